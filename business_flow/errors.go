// Package businessflow contains the core business logic of callback handling, fulfillment and administration
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Validation errors; every field sentinel wraps ErrValidation
	ErrValidation          = errors.New("validation failed")
	ErrRequestNil          = fmt.Errorf("%w: request body is required", ErrValidation)
	ErrOrderTidRequired    = fmt.Errorf("%w: orderTid is required", ErrValidation)
	ErrItemListRequired    = fmt.Errorf("%w: itemList is required", ErrValidation)
	ErrSnListRequired      = fmt.Errorf("%w: snList is required", ErrValidation)
	ErrSnPinRequired       = fmt.Errorf("%w: snPin is required", ErrValidation)
	ErrDataRequired        = fmt.Errorf("%w: data is required", ErrValidation)
	ErrCouponRequired      = fmt.Errorf("%w: data.coupon is required", ErrValidation)
	ErrQRCodeRequired      = fmt.Errorf("%w: data.qrcode is required", ErrValidation)
	ErrCidRequired         = fmt.Errorf("%w: data.cid is required", ErrValidation)
	ErrTransIDRequired     = fmt.Errorf("%w: transId is required", ErrValidation)
	ErrProfileTypeRequired = fmt.Errorf("%w: data.profileType is required", ErrValidation)

	// Persistence and lookup errors
	ErrPersistenceFailed   = errors.New("persistence failed")
	ErrOrderRecordNotFound = errors.New("order record not found")
	ErrOrderAlreadyQueued  = errors.New("order already has a tracking reference")

	// Admin errors
	ErrIncorrectCredentials = errors.New("incorrect username or password")
	ErrAdminNotConfigured   = errors.New("admin credentials are not configured")
	ErrUnauthenticated      = errors.New("not authenticated")

	// Collaborator errors
	ErrReconcilerUnavailable = errors.New("reconciler not available")
	ErrExportFailed          = errors.New("export failed")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// persistenceError wraps a failed authoritative write so both ErrPersistenceFailed and the cause match
func persistenceError(message string, err error) *BusinessError {
	return NewBusinessError("PERSISTENCE_ERROR", message, fmt.Errorf("%w: %w", ErrPersistenceFailed, err))
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsPersistenceFailed(err error) bool {
	return errors.Is(err, ErrPersistenceFailed)
}

func IsOrderRecordNotFound(err error) bool {
	return errors.Is(err, ErrOrderRecordNotFound)
}

func IsOrderAlreadyQueued(err error) bool {
	return errors.Is(err, ErrOrderAlreadyQueued)
}

func IsIncorrectCredentials(err error) bool {
	return errors.Is(err, ErrIncorrectCredentials)
}

func IsAdminNotConfigured(err error) bool {
	return errors.Is(err, ErrAdminNotConfigured)
}

func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrUnauthenticated)
}

func IsReconcilerUnavailable(err error) bool {
	return errors.Is(err, ErrReconcilerUnavailable)
}

// BusinessErrorCode returns the code of the outermost BusinessError in err, or ""
func BusinessErrorCode(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

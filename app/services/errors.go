// Package services provides outbound vendor integrations and technical concerns like tokens and caching
package services

import (
	"errors"
	"fmt"
)

// ErrUpstreamCall marks every failed vendor call
var ErrUpstreamCall = errors.New("upstream call failed")

// ErrUnauthorized is wrapped by UpstreamError when the vendor rejected the credentials
var ErrUnauthorized = errors.New("upstream rejected credentials")

// UpstreamError describes a vendor call that failed or returned a non-success result
type UpstreamError struct {
	Vendor string
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Status > 0 && e.Body != "":
		return fmt.Sprintf("%s %s: status %d: %s", e.Vendor, e.Op, e.Status, e.Body)
	case e.Status > 0:
		return fmt.Sprintf("%s %s: status %d", e.Vendor, e.Op, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Vendor, e.Op, e.Err)
	default:
		return fmt.Sprintf("%s %s failed", e.Vendor, e.Op)
	}
}

func (e *UpstreamError) Unwrap() []error {
	errs := []error{ErrUpstreamCall}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// IsUnauthorized reports whether err is a vendor 401
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

func newUpstreamError(vendor, op string, status int, body []byte, err error) *UpstreamError {
	const maxBody = 512
	b := string(body)
	if len(b) > maxBody {
		b = b[:maxBody]
	}
	return &UpstreamError{Vendor: vendor, Op: op, Status: status, Body: b, Err: err}
}

// IsUpstreamError reports whether err came from a failed vendor call
func IsUpstreamError(err error) bool {
	return errors.Is(err, ErrUpstreamCall)
}

package businessflow

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/amirphl/esim-relay/app/dto"
	"github.com/amirphl/esim-relay/app/services"
	"golang.org/x/crypto/bcrypt"
)

// AdminAuthFlow represents the admin authentication flow used by handlers
type AdminAuthFlow interface {
	Login(ctx context.Context, req *dto.AdminLoginRequest, metadata *ClientMetadata) (*dto.AdminLoginResponse, error)
	Logout(ctx context.Context, token string) error
	Status(ctx context.Context, token string) (*dto.AuthStatusResponse, error)
}

// AdminAuthFlowImpl checks the single configured admin credential and issues session tokens
type AdminAuthFlowImpl struct {
	username     string
	passwordHash string
	tokenService services.TokenService
}

func NewAdminAuthFlow(username, passwordHash string, tokenService services.TokenService) AdminAuthFlow {
	return &AdminAuthFlowImpl{
		username:     username,
		passwordHash: passwordHash,
		tokenService: tokenService,
	}
}

func (af *AdminAuthFlowImpl) Login(ctx context.Context, req *dto.AdminLoginRequest, metadata *ClientMetadata) (*dto.AdminLoginResponse, error) {
	if req == nil || len(req.Username) == 0 || len(req.Password) == 0 {
		return nil, NewBusinessError("ADMIN_LOGIN_VALIDATION_FAILED", "Admin login validation failed", ErrIncorrectCredentials)
	}
	if af.username == "" || af.passwordHash == "" {
		return nil, NewBusinessError("ADMIN_NOT_CONFIGURED", "Admin login is not configured", ErrAdminNotConfigured)
	}

	// Hash comparison runs even for an unknown username
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(af.username)) == 1
	passErr := bcrypt.CompareHashAndPassword([]byte(af.passwordHash), []byte(req.Password))
	if !userOK || passErr != nil {
		return nil, NewBusinessError("ADMIN_INCORRECT_CREDENTIALS", "Incorrect username or password", ErrIncorrectCredentials)
	}

	token, expiresAt, err := af.tokenService.GenerateAdminToken(af.username)
	if err != nil {
		return nil, NewBusinessError("TOKEN_GENERATION_FAILED", "Failed to generate token", err)
	}

	return &dto.AdminLoginResponse{
		Username: af.username,
		Session: dto.AdminSessionDTO{
			AccessToken: token,
			ExpiresIn:   int(time.Until(expiresAt).Seconds()),
			ExpiresAt:   expiresAt.UTC().Format(time.RFC3339),
			TokenType:   "Bearer",
		},
	}, nil
}

func (af *AdminAuthFlowImpl) Logout(ctx context.Context, token string) error {
	claims, err := af.tokenService.ValidateAdminToken(ctx, token)
	if err != nil {
		return NewBusinessError("UNAUTHENTICATED", "Not authenticated", errors.Join(ErrUnauthenticated, err))
	}
	if err := af.tokenService.RevokeToken(ctx, claims); err != nil {
		return NewBusinessError("TOKEN_REVOCATION_FAILED", "Failed to revoke token", err)
	}
	return nil
}

// Status reports whether token is a live admin session; an invalid token is not an error
func (af *AdminAuthFlowImpl) Status(ctx context.Context, token string) (*dto.AuthStatusResponse, error) {
	if token == "" {
		return &dto.AuthStatusResponse{Authenticated: false}, nil
	}
	claims, err := af.tokenService.ValidateAdminToken(ctx, token)
	if err != nil {
		if errors.Is(err, services.ErrTokenExpired) || errors.Is(err, services.ErrTokenInvalid) || errors.Is(err, services.ErrTokenRevoked) {
			return &dto.AuthStatusResponse{Authenticated: false}, nil
		}
		return nil, NewBusinessError("TOKEN_VALIDATION_FAILED", "Failed to validate token", err)
	}
	return &dto.AuthStatusResponse{
		Authenticated: true,
		Username:      claims.Username,
		ExpiresAt:     claims.ExpiresAt.UTC().Format(time.RFC3339),
	}, nil
}

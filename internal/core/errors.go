// AngelaMos | 2026
// errors.go

package core

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidInput = errors.New("invalid input")

	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAccountNotFound     = errors.New("account not found")
	ErrAlreadyRegistered   = errors.New("already registered")
	ErrTokenExpired        = errors.New("token expired")
	ErrTokenInvalid        = errors.New("token malformed")
	ErrTokenRevoked        = errors.New("token already used")
	ErrTokenWrongPurpose   = errors.New("token wrong purpose")
	ErrInvalidTOTPCode     = errors.New("invalid totp code")
	ErrTOTPAlreadyEnabled  = errors.New("totp already enabled")
	ErrTOTPNotEnabled      = errors.New("totp not enabled")
	ErrNoPassword          = errors.New("account has no password")
	ErrProviderDisabled    = errors.New("provider not configured")
	ErrProviderExchange    = errors.New("provider exchange failed")
	ErrMalformedCiphertext = errors.New("malformed ciphertext")
	ErrIntegrityCheck      = errors.New("integrity check failed")
	ErrKeyNotFound         = errors.New("api key not found")
	ErrKeyExpired          = errors.New("api key expired")
	ErrKeyRevoked          = errors.New("api key revoked")
	ErrOwnershipMismatch   = errors.New("connection ownership mismatch")
	ErrConnectionLimit     = errors.New("connection limit reached")
	ErrRateLimited         = errors.New("rate limited")
	ErrDailyLimitExceeded  = errors.New("daily limit exceeded")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
	Code       string
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(err error, message string, status int, code string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		StatusCode: status,
		Code:       code,
	}
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func NotFoundError(resource string) *AppError {
	return NewAppError(
		ErrNotFound,
		fmt.Sprintf("%s not found", resource),
		http.StatusNotFound,
		"NOT_FOUND",
	)
}

func DuplicateError(field string) *AppError {
	return NewAppError(
		ErrDuplicateKey,
		fmt.Sprintf("%s already exists", field),
		http.StatusConflict,
		"DUPLICATE",
	)
}

func UnauthorizedError(message string) *AppError {
	if message == "" {
		message = "authentication required"
	}
	return NewAppError(ErrUnauthorized, message, http.StatusUnauthorized, "UNAUTHORIZED")
}

func ForbiddenError(message string) *AppError {
	if message == "" {
		message = "access denied"
	}
	return NewAppError(ErrForbidden, message, http.StatusForbidden, "FORBIDDEN")
}

func ValidationError(message string) *AppError {
	return NewAppError(ErrInvalidInput, message, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TokenExpiredError() *AppError {
	return NewAppError(ErrTokenExpired, "token has expired", http.StatusUnauthorized, "TOKEN_EXPIRED")
}

func TokenRevokedError() *AppError {
	return NewAppError(ErrTokenRevoked, "token has already been used", http.StatusUnauthorized, "TOKEN_REVOKED")
}

func TokenInvalidError() *AppError {
	return NewAppError(ErrTokenInvalid, "invalid token", http.StatusUnauthorized, "INVALID_TOKEN")
}

// Classify maps a domain error kind to an AppError carrying its stable
// machine-readable code, HTTP status and a message safe to show callers.
// Unknown errors yield nil.
func Classify(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return NewAppError(m.err, m.message, m.status, m.code)
		}
	}

	return nil
}

var errorTable = []struct {
	err     error
	code    string
	status  int
	message string
}{
	{ErrInvalidCredentials, "INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password"},
	{ErrAccountNotFound, "USER_NOT_FOUND", http.StatusUnauthorized, "user not found"},
	{ErrAlreadyRegistered, "ALREADY_REGISTERED", http.StatusConflict, "email already registered, sign in with your existing method"},
	{ErrTokenExpired, "TOKEN_EXPIRED", http.StatusUnauthorized, "token has expired"},
	{ErrTokenWrongPurpose, "INVALID_TOKEN", http.StatusUnauthorized, "token not valid for this operation"},
	{ErrTokenRevoked, "TOKEN_REVOKED", http.StatusUnauthorized, "token has already been used"},
	{ErrTokenInvalid, "INVALID_TOKEN", http.StatusUnauthorized, "invalid token"},
	{ErrInvalidTOTPCode, "INVALID_CODE", http.StatusUnauthorized, "invalid verification code"},
	{ErrTOTPAlreadyEnabled, "TOTP_ALREADY_ENABLED", http.StatusBadRequest, "two-factor authentication is already enabled"},
	{ErrTOTPNotEnabled, "TOTP_NOT_ENABLED", http.StatusBadRequest, "two-factor authentication is not enabled"},
	{ErrNoPassword, "NO_PASSWORD", http.StatusBadRequest, "account has no password set"},
	{ErrProviderDisabled, "PROVIDER_NOT_CONFIGURED", http.StatusNotFound, "oauth provider not configured"},
	{ErrProviderExchange, "OAUTH_FAILED", http.StatusBadGateway, "oauth sign-in failed"},
	{ErrMalformedCiphertext, "INTERNAL_ERROR", http.StatusInternalServerError, "stored credential is unreadable"},
	{ErrIntegrityCheck, "INTERNAL_ERROR", http.StatusInternalServerError, "stored credential is unreadable"},
	{ErrKeyNotFound, "INVALID_API_KEY", http.StatusUnauthorized, "invalid api key"},
	{ErrKeyExpired, "API_KEY_EXPIRED", http.StatusUnauthorized, "api key has expired"},
	{ErrKeyRevoked, "API_KEY_REVOKED", http.StatusUnauthorized, "api key has been revoked"},
	{ErrOwnershipMismatch, "CONNECTION_NOT_FOUND", http.StatusNotFound, "connection not found"},
	{ErrConnectionLimit, "CONNECTION_LIMIT_REACHED", http.StatusForbidden, "plan connection limit reached"},
	{ErrRateLimited, "RATE_LIMITED", http.StatusTooManyRequests, "rate limit exceeded"},
	{ErrDailyLimitExceeded, "DAILY_LIMIT", http.StatusTooManyRequests, "daily request limit exceeded"},
	{ErrNotFound, "NOT_FOUND", http.StatusNotFound, "resource not found"},
	{ErrDuplicateKey, "DUPLICATE", http.StatusConflict, "resource already exists"},
	{ErrForbidden, "FORBIDDEN", http.StatusForbidden, "access denied"},
	{ErrUnauthorized, "UNAUTHORIZED", http.StatusUnauthorized, "authentication required"},
	{ErrInvalidInput, "VALIDATION_ERROR", http.StatusBadRequest, "invalid input"},
}

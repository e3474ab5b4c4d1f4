package errx

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
)

// Kind classifies an expected, locally handled rejection.
type Kind string

const (
	KindUnauthorized      Kind = "unauthorized"
	KindNotFound          Kind = "not_found"
	KindInsufficientStock Kind = "insufficient_stock"
	KindTierMismatch      Kind = "tier_mismatch"
	KindLimitExceeded     Kind = "limit_exceeded"
	KindInvalidAmount     Kind = "invalid_amount"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindBadRequest        Kind = "bad_request"
	KindRateLimited       Kind = "rate_limited"
	KindUpstream          Kind = "upstream"
	KindInternal          Kind = "internal"
)

type kindInfo struct {
	status  int
	message string
}

var kinds = map[Kind]kindInfo{
	KindUnauthorized:      {http.StatusUnauthorized, "Authentication required"},
	KindNotFound:          {http.StatusNotFound, "Product not found"},
	KindInsufficientStock: {http.StatusBadRequest, "Insufficient stock"},
	KindTierMismatch:      {http.StatusForbidden, "Insufficient tier for this product"},
	KindLimitExceeded:     {http.StatusBadRequest, "Transaction limit exceeded"},
	KindInvalidAmount:     {http.StatusBadRequest, "Invalid amount"},
	KindInsufficientFunds: {http.StatusBadRequest, "Insufficient balance"},
	KindBadRequest:        {http.StatusBadRequest, "Invalid request body"},
	KindRateLimited:       {http.StatusTooManyRequests, "Too many requests"},
	KindUpstream:          {http.StatusBadGateway, RedisErrorMessage},
	KindInternal:          {http.StatusInternalServerError, SystemErrorMessage},
}

// Status returns the HTTP status a rejection of this kind is surfaced with.
func (k Kind) Status() int {
	if info, ok := kinds[k]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// Message returns the default user-facing message for the kind.
func (k Kind) Message() string {
	if info, ok := kinds[k]; ok {
		return info.message
	}
	return SystemErrorMessage
}

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Kind    Kind
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Reject builds an AppError for kind using its default status and message.
func Reject(kind Kind, err error) *AppError {
	return &AppError{
		Err:     err,
		Kind:    kind,
		Status:  kind.Status(),
		Message: kind.Message(),
	}
}

// Rejectf is Reject with a caller supplied message.
func Rejectf(kind Kind, err error, format string, args ...any) *AppError {
	e := Reject(kind, err)
	e.Message = fmt.Sprintf(format, args...)
	return e
}

// WrapRedis maps Redis errors to AppError with appropriate status codes.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return &AppError{Err: err, Kind: KindNotFound, Status: http.StatusNotFound, Message: RedisNotFoundMessage}
	}
	return &AppError{Err: err, Kind: KindUpstream, Status: http.StatusBadGateway, Message: RedisErrorMessage}
}

// From returns err as an AppError, wrapping unknown errors as internal.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Reject(KindInternal, err)
}

// KindOf reports the Kind of err, or KindInternal when err is not an AppError.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	if t, ok := target.(*AppError); ok {
		return t.Kind == e.Kind
	}
	return errors.Is(e.Err, target)
}

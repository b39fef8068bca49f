package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeNotFound                 ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorizedActor        ErrorCode = "UNAUTHORIZED_ACTOR"
	ErrCodeValidation               ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidTransition        ErrorCode = "INVALID_TRANSITION"
	ErrCodeNegotiationLimitExceeded ErrorCode = "NEGOTIATION_LIMIT_EXCEEDED"
	ErrCodeInsufficientFunds        ErrorCode = "INSUFFICIENT_FUNDS"
	ErrCodeStalePriceConflict       ErrorCode = "STALE_PRICE_CONFLICT"
	ErrCodeDeadlineExpired          ErrorCode = "DEADLINE_EXPIRED"
	ErrCodeInternal                 ErrorCode = "INTERNAL_ERROR"
)

type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorizedActor:
		return http.StatusForbidden
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeInvalidTransition, ErrCodeStalePriceConflict:
		return http.StatusConflict
	case ErrCodeNegotiationLimitExceeded, ErrCodeDeadlineExpired:
		return http.StatusUnprocessableEntity
	case ErrCodeInsufficientFunds:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf returns the error code carried by err, or INTERNAL_ERROR for
// anything that is not an *AppError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

func IsNotFound(err error) bool {
	return Is(err, ErrCodeNotFound)
}

func IsConflict(err error) bool {
	return Is(err, ErrCodeInvalidTransition) || Is(err, ErrCodeStalePriceConflict)
}

var (
	ErrSwapNotFound      = New(ErrCodeNotFound, "swap request not found")
	ErrMultiSwapNotFound = New(ErrCodeNotFound, "multi swap not found")
	ErrUserNotFound      = New(ErrCodeNotFound, "user not found")
	ErrProductNotFound   = New(ErrCodeNotFound, "product not found")
	ErrNotAParty         = New(ErrCodeUnauthorizedActor, "actor is not a party to the swap")
)

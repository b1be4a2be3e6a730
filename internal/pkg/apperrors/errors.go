package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrAssetAlreadyExists     ErrorType = "ASSET_ALREADY_EXISTS"
	ErrAssetNotFound          ErrorType = "ASSET_NOT_FOUND"
	ErrRiskParamAlreadyExists ErrorType = "RISK_PARAM_ALREADY_EXISTS"
	ErrDepositNotFound        ErrorType = "DEPOSIT_NOT_FOUND"
	ErrBorrowNotFound         ErrorType = "BORROW_NOT_FOUND"
	ErrInsufficientDeposit    ErrorType = "INSUFFICIENT_DEPOSIT"
	ErrInsufficientBorrow     ErrorType = "INSUFFICIENT_BORROW"
	ErrMathOverflow           ErrorType = "MATH_OVERFLOW"
	ErrUnhealthy              ErrorType = "UNHEALTHY"
	ErrPriceTooOld            ErrorType = "PRICE_TOO_OLD"
	ErrOracleUnavailable      ErrorType = "ORACLE_UNAVAILABLE"
	ErrInvalidPriceUpdate     ErrorType = "INVALID_PRICE_UPDATE"
	ErrCapacityExceeded       ErrorType = "CAPACITY_EXCEEDED"
	ErrAlreadyInitialized     ErrorType = "ALREADY_INITIALIZED"
	ErrNotInitialized         ErrorType = "NOT_INITIALIZED"
	ErrUnauthorized           ErrorType = "UNAUTHORIZED"
	ErrAuthFailed             ErrorType = "AUTH_FAILED"
	ErrInvalidRequest         ErrorType = "INVALID_REQUEST"
	ErrReadOnly               ErrorType = "READ_ONLY"
	ErrRequestInProgress      ErrorType = "REQUEST_IN_PROGRESS"
	ErrInternal               ErrorType = "INTERNAL_ERROR"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches another *AppError by type, so errors.Is(err, apperrors.New(ErrAssetNotFound, "", nil)) works.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func Newf(errType ErrorType, format string, args ...any) *AppError {
	return New(errType, fmt.Sprintf(format, args...), nil)
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

// TypeOf returns the ErrorType carried by err, or "" when err is not an AppError.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// IsType reports whether err (or anything it wraps) is an AppError of the given type.
func IsType(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrAssetNotFound, ErrDepositNotFound, ErrBorrowNotFound, ErrNotInitialized:
		return http.StatusNotFound
	case ErrAssetAlreadyExists, ErrRiskParamAlreadyExists, ErrAlreadyInitialized, ErrRequestInProgress:
		return http.StatusConflict
	case ErrInsufficientDeposit, ErrInsufficientBorrow, ErrMathOverflow, ErrCapacityExceeded,
		ErrInvalidRequest, ErrInvalidPriceUpdate:
		return http.StatusBadRequest
	case ErrUnhealthy:
		return http.StatusUnprocessableEntity
	case ErrAuthFailed:
		return http.StatusUnauthorized
	case ErrUnauthorized:
		return http.StatusForbidden
	case ErrPriceTooOld, ErrOracleUnavailable:
		return http.StatusBadGateway
	case ErrReadOnly:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrUnhealthy:
		return "Add collateral or reduce the borrow before retrying."
	case ErrPriceTooOld, ErrOracleUnavailable:
		return "Retry once the price feed has published a fresh round."
	case ErrAuthFailed:
		return "Send the caller address in the X-Caller-Address header."
	case ErrUnauthorized:
		return "Only the registry authority may change the registry."
	case ErrNotInitialized:
		return "Initialize the record before using it."
	case ErrReadOnly:
		return "Wait for maintenance to finish."
	case ErrRequestInProgress:
		return "Retry after the first request with this key completes."
	default:
		return ""
	}
}

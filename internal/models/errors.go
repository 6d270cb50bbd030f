package models

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

type ErrorCode string

const (
	CodeInsufficientFunds      ErrorCode = "INSUFFICIENT_FUNDS"
	CodeTaskNotFound           ErrorCode = "TASK_NOT_FOUND"
	CodeProviderUnavailable    ErrorCode = "PROVIDER_UNAVAILABLE"
	CodeAuthenticationFailed   ErrorCode = "AUTHENTICATION_FAILED"
	CodeRateLimitExceeded      ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeInvalidRequirements    ErrorCode = "INVALID_RESOURCE_REQUIREMENTS"
	CodeWalletSignatureInvalid ErrorCode = "WALLET_SIGNATURE_INVALID"
	CodeInsufficientStake      ErrorCode = "INSUFFICIENT_STAKE"
	CodeResourceUnavailable    ErrorCode = "RESOURCE_UNAVAILABLE"
	CodeResourceNotFound       ErrorCode = "RESOURCE_NOT_FOUND"
	CodeTaskAlreadyAccepted    ErrorCode = "TASK_ALREADY_ACCEPTED"
	CodeInvalidTaskState       ErrorCode = "INVALID_TASK_STATE"
	CodeInvalidRequest         ErrorCode = "INVALID_REQUEST"
	CodeForbidden              ErrorCode = "FORBIDDEN"
	CodeNotFound               ErrorCode = "NOT_FOUND"
	CodeSlashingEvent          ErrorCode = "SLASHING_EVENT"
	CodeVerificationFailed     ErrorCode = "VERIFICATION_FAILED"
	CodeNetworkError           ErrorCode = "NETWORK_ERROR"
	CodeInternalError          ErrorCode = "INTERNAL_ERROR"
)

// Error is the single error kind surfaced to API callers. Kinds are told
// apart by Code; Details carries the kind-specific fields.
type Error struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error *Error `json:"error"`
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeInvalidRequest, CodeInvalidRequirements:
		return http.StatusBadRequest
	case CodeAuthenticationFailed, CodeWalletSignatureInvalid:
		return http.StatusUnauthorized
	case CodeInsufficientFunds, CodeInsufficientStake:
		return http.StatusPaymentRequired
	case CodeForbidden:
		return http.StatusForbidden
	case CodeTaskNotFound, CodeResourceNotFound, CodeNotFound:
		return http.StatusNotFound
	case CodeTaskAlreadyAccepted, CodeInvalidTaskState, CodeSlashingEvent:
		return http.StatusConflict
	case CodeVerificationFailed:
		return http.StatusUnprocessableEntity
	case CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case CodeProviderUnavailable, CodeResourceUnavailable:
		return http.StatusServiceUnavailable
	case CodeNetworkError:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (e *Error) detailString(key string) string {
	if e.Details == nil {
		return ""
	}
	switch v := e.Details[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// RetryAfter returns the retry_after detail in seconds, or 0.
func (e *Error) RetryAfter() int {
	if e.Details == nil {
		return 0
	}
	switch v := e.Details["retry_after"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func (e *Error) TaskId() string     { return e.detailString("task_id") }
func (e *Error) ProviderId() string { return e.detailString("provider_id") }
func (e *Error) Required() string   { return e.detailString("required") }
func (e *Error) Available() string  { return e.detailString("available") }

// AsError unwraps err into an *Error when it carries one.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func HasCode(err error, code ErrorCode) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}

func NewError(code ErrorCode, message string, details map[string]interface{}) *Error {
	return &Error{Code: code, Message: message, Details: details}
}

func ErrInsufficientFunds(required, available decimal.Decimal, currency string) *Error {
	return NewError(CodeInsufficientFunds, "Insufficient funds", map[string]interface{}{
		"required":  required.String(),
		"available": available.String(),
		"currency":  currency,
	})
}

func ErrTaskNotFound(taskId string) *Error {
	return NewError(CodeTaskNotFound, "Task not found", map[string]interface{}{"task_id": taskId})
}

func ErrProviderUnavailable(providerId string) *Error {
	return NewError(CodeProviderUnavailable, "Provider unavailable", map[string]interface{}{"provider_id": providerId})
}

func ErrAuthentication(message string) *Error {
	return NewError(CodeAuthenticationFailed, message, nil)
}

func ErrRateLimit(retryAfter int) *Error {
	return NewError(CodeRateLimitExceeded, "Rate limit exceeded", map[string]interface{}{"retry_after": retryAfter})
}

func ErrInvalidRequirements(message string, requirements ResourceRequirements) *Error {
	return NewError(CodeInvalidRequirements, message, map[string]interface{}{"requirements": requirements})
}

func ErrWalletSignature(message string) *Error {
	return NewError(CodeWalletSignatureInvalid, message, nil)
}

func ErrInsufficientStake(required, current decimal.Decimal, currency string) *Error {
	return NewError(CodeInsufficientStake, "Insufficient stake", map[string]interface{}{
		"required": required.String(),
		"current":  current.String(),
		"currency": currency,
	})
}

func ErrResourceUnavailable(resourceId string) *Error {
	return NewError(CodeResourceUnavailable, "Resource unavailable", map[string]interface{}{"resource_id": resourceId})
}

func ErrResourceNotFound(resourceId string) *Error {
	return NewError(CodeResourceNotFound, "Resource not found", map[string]interface{}{"resource_id": resourceId})
}

func ErrTaskAlreadyAccepted(taskId string) *Error {
	return NewError(CodeTaskAlreadyAccepted, "Task already accepted", map[string]interface{}{"task_id": taskId})
}

func ErrInvalidTaskState(taskId string, status TaskStatus) *Error {
	return NewError(CodeInvalidTaskState, fmt.Sprintf("Task is %s", status), map[string]interface{}{
		"task_id": taskId,
		"status":  string(status),
	})
}

func ErrInvalidRequest(message string) *Error {
	return NewError(CodeInvalidRequest, message, nil)
}

func ErrForbidden(message string) *Error {
	return NewError(CodeForbidden, message, nil)
}

func ErrNotFound(kind, id string) *Error {
	return NewError(CodeNotFound, kind+" not found", map[string]interface{}{"id": id})
}

// ErrSlashingEvent rejects a provider whose stake fell below the minimum
// through slashing. amount is the total slashed.
func ErrSlashingEvent(amount, required, current decimal.Decimal, currency string) *Error {
	return NewError(CodeSlashingEvent, "Stake slashed below the minimum", map[string]interface{}{
		"amount":   amount.String(),
		"required": required.String(),
		"current":  current.String(),
		"currency": currency,
	})
}

func ErrVerificationFailed(taskId, message string) *Error {
	return NewError(CodeVerificationFailed, message, map[string]interface{}{"task_id": taskId})
}

func ErrNetwork(message string, statusCode int) *Error {
	var details map[string]interface{}
	if statusCode != 0 {
		details = map[string]interface{}{"status_code": statusCode}
	}
	return NewError(CodeNetworkError, message, details)
}

func ErrInternal(message string) *Error {
	return NewError(CodeInternalError, message, nil)
}

package apperr

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code identifies the kind of failure an operation reports to its caller.
type Code string

const (
	CodeInsufficientBalance       Code = "INSUFFICIENT_BALANCE"
	CodeInvalidAmount             Code = "INVALID_AMOUNT"
	CodeOutOfStock                Code = "OUT_OF_STOCK"
	CodeOrderNotFound             Code = "ORDER_NOT_FOUND"
	CodeInvalidState              Code = "INVALID_STATE"
	CodeForbidden                 Code = "FORBIDDEN"
	CodeEventNotFound             Code = "EVENT_NOT_FOUND"
	CodeGatewayVerificationFailed Code = "GATEWAY_VERIFICATION_FAILED"
	CodeStorageUnavailable        Code = "STORAGE_UNAVAILABLE"
	CodePaymentNotFound           Code = "PAYMENT_NOT_FOUND"
	CodeItemNotFound              Code = "ITEM_NOT_FOUND"
	CodeRegistrationNotFound      Code = "REGISTRATION_NOT_FOUND"
	CodeValidation                Code = "VALIDATION_ERROR"
	CodeUnauthorized              Code = "UNAUTHORIZED"
	CodeConflict                  Code = "CONFLICT"
	CodeInternal                  Code = "INTERNAL_ERROR"
)

// Metadata describes how a code is rendered at the HTTP boundary.
type Metadata struct {
	HTTPStatus    int
	BizCode       int
	Retryable     bool
	PublicMessage string
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:                {HTTPStatus: http.StatusBadRequest, BizCode: 400, PublicMessage: "invalid request"},
	CodeUnauthorized:              {HTTPStatus: http.StatusUnauthorized, BizCode: 401, PublicMessage: "authentication required"},
	CodeForbidden:                 {HTTPStatus: http.StatusForbidden, BizCode: 403, PublicMessage: "access denied"},
	CodeInternal:                  {HTTPStatus: http.StatusInternalServerError, BizCode: 500, Retryable: true, PublicMessage: "internal server error"},
	CodeOrderNotFound:             {HTTPStatus: http.StatusNotFound, BizCode: 1001, PublicMessage: "order not found"},
	CodeInvalidState:              {HTTPStatus: http.StatusConflict, BizCode: 1002, PublicMessage: "operation not allowed in current state"},
	CodeInsufficientBalance:       {HTTPStatus: http.StatusPaymentRequired, BizCode: 1003, PublicMessage: "insufficient wallet balance"},
	CodeConflict:                  {HTTPStatus: http.StatusConflict, BizCode: 1004, Retryable: true, PublicMessage: "request in progress, retry later"},
	CodePaymentNotFound:           {HTTPStatus: http.StatusNotFound, BizCode: 1005, PublicMessage: "payment not found"},
	CodeGatewayVerificationFailed: {HTTPStatus: http.StatusBadRequest, BizCode: 1006, PublicMessage: "Invalid payment details"},
	CodeItemNotFound:              {HTTPStatus: http.StatusNotFound, BizCode: 1007, PublicMessage: "item not found"},
	CodeOutOfStock:                {HTTPStatus: http.StatusConflict, BizCode: 1008, PublicMessage: "item out of stock"},
	CodeEventNotFound:             {HTTPStatus: http.StatusNotFound, BizCode: 1009, PublicMessage: "event not found"},
	CodeRegistrationNotFound:      {HTTPStatus: http.StatusNotFound, BizCode: 1010, PublicMessage: "registration not found"},
	CodeInvalidAmount:             {HTTPStatus: http.StatusBadRequest, BizCode: 1011, PublicMessage: "amount must be positive"},
	CodeStorageUnavailable:        {HTTPStatus: http.StatusServiceUnavailable, BizCode: 1012, Retryable: true, PublicMessage: "storage unavailable"},
}

// MetadataFor returns the metadata registered for code, falling back to CodeInternal.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details map[string]any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

// OutOfStock reports that itemID cannot satisfy a reservation.
func OutOfStock(itemID, message string) *Error {
	return New(CodeOutOfStock, message).WithDetail("item_id", itemID)
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() map[string]any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetail(key string, value any) *Error {
	if e == nil {
		return nil
	}
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the first *Error in err's chain, or nil.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// CodeOf returns the code carried by err, CodeInternal for untyped errors.
func CodeOf(err error) Code {
	return As(err).Code()
}

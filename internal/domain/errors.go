package domain

import (
	"errors"
	"fmt"
)

// Code classifies an expected, user-facing failure of the reservation core.
type Code string

const (
	CodeValidation              Code = "VALIDATION"
	CodeNotFound                Code = "NOT_FOUND"
	CodeForbidden               Code = "FORBIDDEN"
	CodeLockExpired             Code = "LOCK_EXPIRED"
	CodeAlreadyLocked           Code = "ALREADY_LOCKED"
	CodeConflict                Code = "CONFLICT"
	CodeRequiresQuote           Code = "REQUIRES_QUOTE"
	CodeNoPricing               Code = "NO_PRICING"
	CodeInvalidStatusTransition Code = "INVALID_STATUS_TRANSITION"
	CodeCannotCancel            Code = "CANNOT_CANCEL"
	CodeCouponNotFound          Code = "COUPON_NOT_FOUND"
	CodeCouponInactive          Code = "COUPON_INACTIVE"
	CodeCouponExpired           Code = "COUPON_EXPIRED"
	CodeCouponExhausted         Code = "COUPON_EXHAUSTED"
	CodeCouponMinNights         Code = "COUPON_MIN_NIGHTS"
	CodeCouponMinAmount         Code = "COUPON_MIN_AMOUNT"
	CodeInternal                Code = "INTERNAL"
)

// Error is a typed failure. Two errors match under errors.Is when their codes match,
// so callers can annotate the message without losing the classification.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Errorf builds a typed error with a formatted message.
func Errorf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrValidation              = &Error{Code: CodeValidation}
	ErrNotFound                = &Error{Code: CodeNotFound}
	ErrForbidden               = &Error{Code: CodeForbidden}
	ErrLockExpired             = &Error{Code: CodeLockExpired}
	ErrAlreadyLocked           = &Error{Code: CodeAlreadyLocked}
	ErrConflict                = &Error{Code: CodeConflict}
	ErrRequiresQuote           = &Error{Code: CodeRequiresQuote}
	ErrNoPricing               = &Error{Code: CodeNoPricing}
	ErrInvalidStatusTransition = &Error{Code: CodeInvalidStatusTransition}
	ErrCannotCancel            = &Error{Code: CodeCannotCancel}
	ErrCouponNotFound          = &Error{Code: CodeCouponNotFound}
	ErrCouponInactive          = &Error{Code: CodeCouponInactive}
	ErrCouponExpired           = &Error{Code: CodeCouponExpired}
	ErrCouponExhausted         = &Error{Code: CodeCouponExhausted}
	ErrCouponMinNights         = &Error{Code: CodeCouponMinNights}
	ErrCouponMinAmount         = &Error{Code: CodeCouponMinAmount}
)

// CodeOf returns the code carried by err, or CodeInternal for untyped failures.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

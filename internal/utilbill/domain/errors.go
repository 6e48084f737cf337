package utilbill

import "errors"

var (
	// ErrEmptyID is returned when a bill has no id.
	ErrEmptyID = errors.New("utilbill: empty id")
	// ErrEmptyAccountID is returned when a bill has no account.
	ErrEmptyAccountID = errors.New("utilbill: empty account id")
	// ErrNilRateClass is returned when a rate class is required but missing.
	ErrNilRateClass = errors.New("utilbill: nil rate class")
	// ErrNilBill is returned when saving or copying from a nil bill.
	ErrNilBill = errors.New("utilbill: nil bill")
	// ErrBillNotFound is returned when a bill is not found.
	ErrBillNotFound = errors.New("utilbill: not found")
	// ErrRateClassNotFound is returned when a rate class name is unknown.
	ErrRateClassNotFound = errors.New("utilbill: rate class not found")
	// ErrUnEditableBill is returned when mutating a processed bill.
	ErrUnEditableBill = errors.New("utilbill: bill is processed and cannot be edited")
	// ErrNotProcessable is returned when marking an incomplete bill as processed.
	ErrNotProcessable = errors.New("utilbill: bill is not processable")
	// ErrInvalidPeriod is returned for a period that is reversed or longer than a year.
	ErrInvalidPeriod = errors.New("utilbill: invalid period")
	// ErrDuplicateBinding is returned when a binding is already used on the bill.
	ErrDuplicateBinding = errors.New("utilbill: duplicate binding")
	// ErrChargeNotFound is returned when a charge binding is unknown.
	ErrChargeNotFound = errors.New("utilbill: charge not found")
	// ErrRegisterNotFound is returned when a register binding is unknown.
	ErrRegisterNotFound = errors.New("utilbill: register not found")
	// ErrInvalidChargeType is returned for an unknown charge type.
	ErrInvalidChargeType = errors.New("utilbill: invalid charge type")
)

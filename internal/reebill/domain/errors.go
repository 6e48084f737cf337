package reebill

import "errors"

var (
	// ErrEmptyAccountID is returned when a reebill has no account.
	ErrEmptyAccountID = errors.New("reebill: empty account id")
	// ErrInvalidSequence is returned for a sequence below 1 or a negative version.
	ErrInvalidSequence = errors.New("reebill: invalid sequence")
	// ErrInvalidRate is returned for a discount or late charge rate outside [0, 1].
	ErrInvalidRate = errors.New("reebill: rate must be between 0 and 1")
	// ErrNilUtilBill is returned when no utility bill is attached.
	ErrNilUtilBill = errors.New("reebill: nil utility bill")
	// ErrUtilBillMismatch is returned when attaching a different utility bill.
	ErrUtilBillMismatch = errors.New("reebill: utility bill mismatch")
	// ErrNilReeBill is returned when saving a nil reebill.
	ErrNilReeBill = errors.New("reebill: nil reebill")
	// ErrReeBillNotFound is returned when a reebill is not found.
	ErrReeBillNotFound = errors.New("reebill: not found")
	// ErrReadingNotFound is returned when no reading exists for a register.
	ErrReadingNotFound = errors.New("reebill: reading not found")
	// ErrChargeNotComputed is returned when a utility bill charge has no actual total.
	ErrChargeNotComputed = errors.New("reebill: utility bill charge not computed")
	// ErrIssuedBill is returned when mutating an issued reebill.
	ErrIssuedBill = errors.New("reebill: bill is issued")
	// ErrProcessedBill is returned when mutating a processed reebill.
	ErrProcessedBill = errors.New("reebill: bill is processed")
	// ErrBillState is returned when a structural precondition does not hold.
	ErrBillState = errors.New("reebill: invalid bill state")
	// ErrInvalidPayment is returned for a payment without account or date.
	ErrInvalidPayment = errors.New("reebill: invalid payment")
	// ErrInvalidAmount is returned for an infinite or NaN money amount.
	ErrInvalidAmount = errors.New("reebill: amount is not a finite number")
)

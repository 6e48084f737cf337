package reebill

import (
	"fmt"
	"time"
)

// Snapshot is the persisted form of a reebill. The utility bill is stored by
// id and attached after loading.
type Snapshot struct {
	AccountID         string
	Sequence          int
	Version           int
	UtilBillID        string
	DiscountRate      float64
	LateChargeRate    float64
	Readings          []Reading
	Charges           []ReeBillCharge
	Computed          bool
	ReeValue          float64
	ReeCharge         float64
	ReeSavings        float64
	PriorBalance      float64
	PaymentReceived   float64
	TotalAdjustment   float64
	ManualAdjustment  float64
	LateChargeApplies bool
	BalanceForward    float64
	LateCharge        float64
	BalanceDue        float64
	Processed         bool
	Issued            bool
	IssueDate         time.Time
	DueDate           time.Time
}

// Snapshot returns a detached persisted form of the reebill.
func (r *ReeBill) Snapshot() Snapshot {
	return Snapshot{
		AccountID:         r.accountID,
		Sequence:          r.sequence,
		Version:           r.version,
		UtilBillID:        r.utilBillID,
		DiscountRate:      r.discountRate,
		LateChargeRate:    r.lateChargeRate,
		Readings:          r.Readings(),
		Charges:           r.Charges(),
		Computed:          r.computed,
		ReeValue:          r.reeValue,
		ReeCharge:         r.reeCharge,
		ReeSavings:        r.reeSavings,
		PriorBalance:      r.priorBalance,
		PaymentReceived:   r.paymentReceived,
		TotalAdjustment:   r.totalAdjustment,
		ManualAdjustment:  r.manualAdjustment,
		LateChargeApplies: r.lateChargeApplies,
		BalanceForward:    r.balanceForward,
		LateCharge:        r.lateCharge,
		BalanceDue:        r.balanceDue,
		Processed:         r.processed,
		Issued:            r.issued,
		IssueDate:         r.issueDate,
		DueDate:           r.dueDate,
	}
}

// FromSnapshot rebuilds a reebill without its utility bill; call
// AttachUtilBill before computing.
func FromSnapshot(s Snapshot) (*ReeBill, error) {
	if s.AccountID == "" {
		return nil, ErrEmptyAccountID
	}
	if s.Sequence < 1 || s.Version < 0 {
		return nil, fmt.Errorf("%w: %d version %d", ErrInvalidSequence, s.Sequence, s.Version)
	}
	if s.UtilBillID == "" {
		return nil, ErrNilUtilBill
	}
	if err := validateRate(s.DiscountRate); err != nil {
		return nil, err
	}
	if err := validateRate(s.LateChargeRate); err != nil {
		return nil, err
	}
	if s.Issued && s.IssueDate.IsZero() {
		return nil, fmt.Errorf("%w: issued without issue date", ErrBillState)
	}
	return &ReeBill{
		accountID:         s.AccountID,
		sequence:          s.Sequence,
		version:           s.Version,
		utilBillID:        s.UtilBillID,
		discountRate:      s.DiscountRate,
		lateChargeRate:    s.LateChargeRate,
		readings:          append([]Reading(nil), s.Readings...),
		charges:           append([]ReeBillCharge(nil), s.Charges...),
		computed:          s.Computed,
		reeValue:          s.ReeValue,
		reeCharge:         s.ReeCharge,
		reeSavings:        s.ReeSavings,
		priorBalance:      s.PriorBalance,
		paymentReceived:   s.PaymentReceived,
		totalAdjustment:   s.TotalAdjustment,
		manualAdjustment:  s.ManualAdjustment,
		lateChargeApplies: s.LateChargeApplies,
		balanceForward:    s.BalanceForward,
		lateCharge:        s.LateCharge,
		balanceDue:        s.BalanceDue,
		processed:         s.Processed,
		issued:            s.Issued,
		issueDate:         s.IssueDate,
		dueDate:           s.DueDate,
	}, nil
}

package utilbill

import (
	"fmt"
	"time"

	charges "reebill/internal/charges/domain"
)

// ChargeSnapshot is the persisted form of a charge.
type ChargeSnapshot struct {
	Binding         string
	Description     string
	QuantityFormula string
	Rate            float64
	Unit            string
	Type            charges.ChargeType
	HasCharge       bool
	TargetTotal     *float64
	Quantity        *float64
	Total           *float64
	Error           string
}

// Snapshot is the persisted form of a bill.
type Snapshot struct {
	ID           string
	AccountID    string
	Supplier     string
	RateClass    *RateClass
	PeriodStart  time.Time
	PeriodEnd    time.Time
	DateReceived time.Time
	Processed    bool
	Registers    []charges.Register
	Charges      []ChargeSnapshot
}

// Snapshot returns a detached persisted form of the bill.
func (u *UtilBill) Snapshot() Snapshot {
	s := Snapshot{
		ID:           u.id,
		AccountID:    u.accountID,
		Supplier:     u.supplier,
		RateClass:    u.rateClass.Clone(),
		PeriodStart:  u.periodStart,
		PeriodEnd:    u.periodEnd,
		DateReceived: u.dateReceived,
		Processed:    u.processed,
		Registers:    u.Registers(),
		Charges:      make([]ChargeSnapshot, 0, len(u.charges)),
	}
	for _, c := range u.charges {
		cs := ChargeSnapshot{
			Binding:         c.Binding,
			Description:     c.Description,
			QuantityFormula: c.QuantityFormula,
			Rate:            c.Rate,
			Unit:            c.Unit,
			Type:            c.Type,
			HasCharge:       c.HasCharge,
			Error:           c.ErrorMessage(),
		}
		if c.TargetTotal != nil {
			target := *c.TargetTotal
			cs.TargetTotal = &target
		}
		if q, ok := c.Quantity(); ok {
			cs.Quantity = &q
		}
		if t, ok := c.Total(); ok {
			cs.Total = &t
		}
		s.Charges = append(s.Charges, cs)
	}
	return s
}

// FromSnapshot rebuilds a bill from its persisted form.
func FromSnapshot(s Snapshot) (*UtilBill, error) {
	if s.ID == "" {
		return nil, ErrEmptyID
	}
	if s.AccountID == "" {
		return nil, ErrEmptyAccountID
	}
	if s.RateClass == nil {
		return nil, ErrNilRateClass
	}
	if err := ValidatePeriod(s.PeriodStart, s.PeriodEnd); err != nil {
		return nil, err
	}
	u := &UtilBill{
		id:           s.ID,
		accountID:    s.AccountID,
		supplier:     s.Supplier,
		rateClass:    s.RateClass.Clone(),
		periodStart:  s.PeriodStart,
		periodEnd:    s.PeriodEnd,
		dateReceived: s.DateReceived,
		processed:    s.Processed,
		registers:    append([]charges.Register(nil), s.Registers...),
		charges:      make([]*charges.Charge, 0, len(s.Charges)),
	}
	for _, cs := range s.Charges {
		c := charges.NewCharge(cs.Binding, cs.QuantityFormula, cs.Rate, cs.Type)
		c.Description = cs.Description
		c.Unit = cs.Unit
		c.HasCharge = cs.HasCharge
		if cs.TargetTotal != nil {
			target := *cs.TargetTotal
			c.TargetTotal = &target
		}
		if err := c.Restore(cs.Quantity, cs.Total, cs.Error); err != nil {
			return nil, fmt.Errorf("restore charge %q: %w", cs.Binding, err)
		}
		u.charges = append(u.charges, c)
	}
	return u, nil
}

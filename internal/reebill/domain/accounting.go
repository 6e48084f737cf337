package reebill

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Accounting carries the balance inputs a reebill takes from its account
// history.
type Accounting struct {
	PriorBalance      float64
	PaymentReceived   float64
	TotalAdjustment   float64
	LateChargeApplies bool
}

// ApplyAccounting sets the balance inputs and recomputes the balance.
func (r *ReeBill) ApplyAccounting(a Accounting) error {
	if err := r.checkEditable(); err != nil {
		return err
	}
	if err := checkAmount(a.PriorBalance, a.PaymentReceived, a.TotalAdjustment); err != nil {
		return err
	}
	if a.PaymentReceived < 0 {
		return fmt.Errorf("%w: negative payment %v", ErrInvalidPayment, a.PaymentReceived)
	}
	r.priorBalance = a.PriorBalance
	r.paymentReceived = a.PaymentReceived
	r.totalAdjustment = a.TotalAdjustment
	r.lateChargeApplies = a.LateChargeApplies
	r.updateBalance()
	return nil
}

// LateChargeApplies reports whether the predecessor was past due.
func (r *ReeBill) LateChargeApplies() bool { return r.lateChargeApplies }

// updateBalance derives the balance fields:
//
//	balance forward = prior balance - payment received + total adjustment
//	late charge     = late charge rate * balance forward, when past due and positive
//	balance due     = balance forward + late charge + ree charge + manual adjustment
func (r *ReeBill) updateBalance() {
	forward := decimal.NewFromFloat(r.priorBalance).
		Sub(decimal.NewFromFloat(r.paymentReceived)).
		Add(decimal.NewFromFloat(r.totalAdjustment)).
		Round(2)

	late := decimal.Zero
	if r.lateChargeApplies && forward.IsPositive() {
		late = forward.Mul(decimal.NewFromFloat(r.lateChargeRate)).Round(2)
	}

	due := forward.
		Add(late).
		Add(decimal.NewFromFloat(r.reeCharge)).
		Add(decimal.NewFromFloat(r.manualAdjustment)).
		Round(2)

	r.balanceForward = forward.InexactFloat64()
	r.lateCharge = late.InexactFloat64()
	r.balanceDue = due.InexactFloat64()
}

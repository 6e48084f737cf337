package reebill

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	charges "reebill/internal/charges/domain"
	"reebill/internal/charges/formula"
	utilbill "reebill/internal/utilbill/domain"
)

// PaymentTerm is the time between issue and due date.
const PaymentTerm = 30 * 24 * time.Hour

// Key identifies one version of a reebill.
type Key struct {
	AccountID string
	Sequence  int
	Version   int
}

func (k Key) String() string {
	return k.AccountID + "|" + strconv.Itoa(k.Sequence) + "|" + strconv.Itoa(k.Version)
}

// ReeBill is the renewable energy bill derived from one utility bill. It
// prices the renewable energy a customer consumed at the rates the utility
// would have charged for it.
type ReeBill struct {
	accountID string
	sequence  int
	version   int

	utilBillID string
	utilBill   *utilbill.UtilBill

	discountRate   float64
	lateChargeRate float64

	readings []Reading
	charges  []ReeBillCharge
	computed bool

	reeValue   float64
	reeCharge  float64
	reeSavings float64

	priorBalance      float64
	paymentReceived   float64
	totalAdjustment   float64
	manualAdjustment  float64
	lateChargeApplies bool
	balanceForward    float64
	lateCharge        float64
	balanceDue        float64

	processed bool
	issued    bool
	issueDate time.Time
	dueDate   time.Time
}

// NewReeBill creates version 0 of a reebill with readings taken from the
// utility bill's registers.
func NewReeBill(accountID string, sequence int, ub *utilbill.UtilBill, discountRate, lateChargeRate float64) (*ReeBill, error) {
	if accountID == "" {
		return nil, ErrEmptyAccountID
	}
	if sequence < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSequence, sequence)
	}
	if ub == nil {
		return nil, ErrNilUtilBill
	}
	if err := validateRate(discountRate); err != nil {
		return nil, err
	}
	if err := validateRate(lateChargeRate); err != nil {
		return nil, err
	}
	return &ReeBill{
		accountID:      accountID,
		sequence:       sequence,
		utilBillID:     ub.ID(),
		utilBill:       ub,
		discountRate:   discountRate,
		lateChargeRate: lateChargeRate,
		readings:       readingsFromRegisters(ub.Registers()),
	}, nil
}

func validateRate(rate float64) error {
	if !(rate >= 0 && rate <= 1) {
		return fmt.Errorf("%w: %v", ErrInvalidRate, rate)
	}
	return nil
}

func checkAmount(amounts ...float64) error {
	for _, amount := range amounts {
		if math.IsInf(amount, 0) || math.IsNaN(amount) {
			return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
		}
	}
	return nil
}

// Key returns the reebill identity.
func (r *ReeBill) Key() Key {
	return Key{AccountID: r.accountID, Sequence: r.sequence, Version: r.version}
}

// AccountID returns the customer account.
func (r *ReeBill) AccountID() string { return r.accountID }

// Sequence returns the position of the bill in the account's history.
func (r *ReeBill) Sequence() int { return r.sequence }

// Version returns the correction number, 0 for the original.
func (r *ReeBill) Version() int { return r.version }

// UtilBillID returns the id of the underlying utility bill.
func (r *ReeBill) UtilBillID() string { return r.utilBillID }

// UtilBill returns the attached utility bill, nil when not loaded.
func (r *ReeBill) UtilBill() *utilbill.UtilBill { return r.utilBill }

// AttachUtilBill attaches the loaded utility bill this reebill refers to.
func (r *ReeBill) AttachUtilBill(ub *utilbill.UtilBill) error {
	if ub == nil {
		return ErrNilUtilBill
	}
	if ub.ID() != r.utilBillID {
		return fmt.Errorf("%w: want %s, got %s", ErrUtilBillMismatch, r.utilBillID, ub.ID())
	}
	r.utilBill = ub
	return nil
}

// DiscountRate returns the share of renewable value passed on as savings.
func (r *ReeBill) DiscountRate() float64 { return r.discountRate }

// LateChargeRate returns the rate applied to unpaid balances.
func (r *ReeBill) LateChargeRate() float64 { return r.lateChargeRate }

// Readings returns a copy of the readings.
func (r *ReeBill) Readings() []Reading { return append([]Reading(nil), r.readings...) }

// Charges returns a copy of the charge snapshots.
func (r *ReeBill) Charges() []ReeBillCharge { return append([]ReeBillCharge(nil), r.charges...) }

// Computed reports whether the charges reflect the current inputs.
func (r *ReeBill) Computed() bool { return r.computed }

// ReeValue is the value of the renewable energy at utility rates.
func (r *ReeBill) ReeValue() float64 { return r.reeValue }

// ReeCharge is what the customer is charged for the renewable energy.
func (r *ReeBill) ReeCharge() float64 { return r.reeCharge }

// ReeSavings is the discount the customer receives.
func (r *ReeBill) ReeSavings() float64 { return r.reeSavings }

// PriorBalance returns the balance due on the predecessor.
func (r *ReeBill) PriorBalance() float64 { return r.priorBalance }

// PaymentReceived returns payments applied to this bill.
func (r *ReeBill) PaymentReceived() float64 { return r.paymentReceived }

// TotalAdjustment returns the sum of corrections applied to this bill.
func (r *ReeBill) TotalAdjustment() float64 { return r.totalAdjustment }

// ManualAdjustment returns the operator-entered adjustment.
func (r *ReeBill) ManualAdjustment() float64 { return r.manualAdjustment }

// BalanceForward returns prior balance less payments plus adjustments.
func (r *ReeBill) BalanceForward() float64 { return r.balanceForward }

// LateCharge returns the late charge on the unpaid prior balance.
func (r *ReeBill) LateCharge() float64 { return r.lateCharge }

// BalanceDue returns the total the customer owes.
func (r *ReeBill) BalanceDue() float64 { return r.balanceDue }

// Processed reports the soft lock.
func (r *ReeBill) Processed() bool { return r.processed }

// Issued reports whether the bill was sent to the customer.
func (r *ReeBill) Issued() bool { return r.issued }

// IssueDate returns when the bill was issued.
func (r *ReeBill) IssueDate() time.Time { return r.issueDate }

// DueDate returns when payment is due.
func (r *ReeBill) DueDate() time.Time { return r.dueDate }

func (r *ReeBill) checkEditable() error {
	if r.issued {
		return fmt.Errorf("%w: %s", ErrIssuedBill, r.Key())
	}
	if r.processed {
		return fmt.Errorf("%w: %s", ErrProcessedBill, r.Key())
	}
	return nil
}

// ReplaceReadingsFromUtilBill discards all readings and creates one per
// utility register with zero renewable quantity.
func (r *ReeBill) ReplaceReadingsFromUtilBill() error {
	if err := r.checkEditable(); err != nil {
		return err
	}
	if r.utilBill == nil {
		return ErrNilUtilBill
	}
	r.readings = readingsFromRegisters(r.utilBill.Registers())
	r.computed = false
	return nil
}

// SetRenewableQuantity sets the renewable energy measured for a register.
func (r *ReeBill) SetRenewableQuantity(registerBinding string, quantity float64) error {
	if err := r.checkEditable(); err != nil {
		return err
	}
	for i := range r.readings {
		if r.readings[i].RegisterBinding == registerBinding {
			r.readings[i].RenewableQuantity = quantity
			r.computed = false
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrReadingNotFound, registerBinding)
}

// SetDiscountRate changes the discount rate.
func (r *ReeBill) SetDiscountRate(rate float64) error {
	if err := r.checkEditable(); err != nil {
		return err
	}
	if err := validateRate(rate); err != nil {
		return err
	}
	r.discountRate = rate
	r.computed = false
	return nil
}

// SetLateChargeRate changes the late charge rate.
func (r *ReeBill) SetLateChargeRate(rate float64) error {
	if err := r.checkEditable(); err != nil {
		return err
	}
	if err := validateRate(rate); err != nil {
		return err
	}
	r.lateChargeRate = rate
	r.updateBalance()
	return nil
}

// SetManualAdjustment sets an operator adjustment added to the balance due.
func (r *ReeBill) SetManualAdjustment(amount float64) error {
	if err := r.checkEditable(); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	r.manualAdjustment = charges.RoundCents(amount)
	r.updateBalance()
	return nil
}

// ComputeCharges prices the renewable energy. The utility bill's charges are
// recomputed first unless it is processed, in which case its stored results
// are the actual side. The same charges are then evaluated against register
// quantities replaced by each reading's hypothetical quantity. Any formula
// error in that pass is returned and the previous snapshots are kept.
func (r *ReeBill) ComputeCharges() error {
	if err := r.checkEditable(); err != nil {
		return err
	}
	ub := r.utilBill
	if ub == nil {
		return ErrNilUtilBill
	}
	if ub.Editable() {
		if err := ub.ComputeCharges(true); err != nil {
			return err
		}
	}

	hypothetical := r.hypotheticalContext(ub.RegisterContext())
	utilCharges := ub.Charges()
	evals := charges.Evaluate(hypothetical, utilCharges)
	if err := charges.FirstError(evals); err != nil {
		return fmt.Errorf("hypothetical charges: %w", err)
	}
	byBinding := make(map[string]charges.Evaluation, len(evals))
	for _, ev := range evals {
		byBinding[ev.Charge.Binding] = ev
	}

	snapshots := make([]ReeBillCharge, 0, len(utilCharges))
	for _, c := range utilCharges {
		if !c.HasCharge {
			continue
		}
		aQuantity, _ := c.Quantity()
		aTotal, ok := c.Total()
		if !ok {
			return fmt.Errorf("%w: %q %s", ErrChargeNotComputed, c.Binding, c.ErrorMessage())
		}
		h := byBinding[c.Binding]
		snapshots = append(snapshots, ReeBillCharge{
			Binding:     c.Binding,
			Description: c.Description,
			Type:        c.Type,
			Unit:        c.Unit,
			Rate:        c.Rate,
			AQuantity:   aQuantity,
			HQuantity:   h.Quantity,
			ATotal:      aTotal,
			HTotal:      h.Total,
		})
	}

	r.charges = snapshots
	r.updateTotals()
	r.computed = true
	return nil
}

// hypotheticalContext overrides each register that has a reading with the
// reading's hypothetical quantity. Registers without a reading keep their
// actual quantity.
func (r *ReeBill) hypotheticalContext(actual formula.Context) formula.Context {
	ctx := actual.Clone()
	for _, rd := range r.readings {
		if _, ok := ctx[rd.RegisterBinding]; ok {
			ctx[rd.RegisterBinding] = formula.QuantityValue(rd.HypotheticalQuantity())
		}
	}
	return ctx
}

// TotalActualCharges sums the actual totals of the snapshots.
func (r *ReeBill) TotalActualCharges() float64 {
	return r.sumTotals(func(c ReeBillCharge) float64 { return c.ATotal }).InexactFloat64()
}

// TotalHypotheticalCharges sums the hypothetical totals of the snapshots.
func (r *ReeBill) TotalHypotheticalCharges() float64 {
	return r.sumTotals(func(c ReeBillCharge) float64 { return c.HTotal }).InexactFloat64()
}

func (r *ReeBill) sumTotals(field func(ReeBillCharge) float64) decimal.Decimal {
	sum := decimal.Zero
	for _, c := range r.charges {
		sum = sum.Add(decimal.NewFromFloat(field(c)))
	}
	return sum
}

func (r *ReeBill) updateTotals() {
	value := r.sumTotals(func(c ReeBillCharge) float64 { return c.HTotal }).
		Sub(r.sumTotals(func(c ReeBillCharge) float64 { return c.ATotal }))
	discount := decimal.NewFromFloat(r.discountRate)

	r.reeValue = value.Round(2).InexactFloat64()
	r.reeCharge = value.Mul(decimal.NewFromInt(1).Sub(discount)).Round(2).InexactFloat64()
	r.reeSavings = value.Mul(discount).Round(2).InexactFloat64()
	r.updateBalance()
}

// TotalRenewableEnergy sums the renewable quantity of all readings.
func (r *ReeBill) TotalRenewableEnergy() float64 {
	var sum float64
	for _, rd := range r.readings {
		sum += rd.RenewableQuantity
	}
	return sum
}

// Process marks a computed bill as believed final.
func (r *ReeBill) Process() error {
	if r.issued {
		return fmt.Errorf("%w: %s", ErrIssuedBill, r.Key())
	}
	if !r.computed {
		return fmt.Errorf("%w: %s charges not computed", ErrBillState, r.Key())
	}
	r.processed = true
	return nil
}

// Unprocess lifts the soft lock.
func (r *ReeBill) Unprocess() error {
	if r.issued {
		return fmt.Errorf("%w: %s", ErrIssuedBill, r.Key())
	}
	r.processed = false
	return nil
}

// Issue sends the bill. An original bill after the first requires its
// predecessor (sequence-1) to be issued.
func (r *ReeBill) Issue(at time.Time, predecessor *ReeBill) error {
	if r.issued {
		return fmt.Errorf("%w: %s", ErrIssuedBill, r.Key())
	}
	if !r.computed {
		return fmt.Errorf("%w: %s charges not computed", ErrBillState, r.Key())
	}
	if at.IsZero() {
		return fmt.Errorf("%w: %s zero issue date", ErrBillState, r.Key())
	}
	if r.version == 0 && r.sequence > 1 {
		if predecessor == nil || predecessor.accountID != r.accountID || predecessor.sequence != r.sequence-1 {
			return fmt.Errorf("%w: %s has no predecessor", ErrBillState, r.Key())
		}
		if !predecessor.issued {
			return fmt.Errorf("%w: predecessor %s is not issued", ErrBillState, predecessor.Key())
		}
	}
	r.issued = true
	r.processed = true
	r.issueDate = at
	r.dueDate = at.Add(PaymentTerm)
	return nil
}

// NewVersion starts a correction of an issued bill. The correction is an
// unissued copy with the next version number.
func (r *ReeBill) NewVersion() (*ReeBill, error) {
	if !r.issued {
		return nil, fmt.Errorf("%w: %s is not issued", ErrBillState, r.Key())
	}
	out := r.clone()
	out.version = r.version + 1
	out.issued = false
	out.processed = false
	out.issueDate = time.Time{}
	out.dueDate = time.Time{}
	out.computed = false
	out.utilBill = r.utilBill.Clone()
	return out, nil
}

// CorrectionAdjustment is the change in renewable energy charge a correction
// makes relative to the version it replaces.
func CorrectionAdjustment(original, corrected *ReeBill) float64 {
	return decimal.NewFromFloat(corrected.reeCharge).Sub(decimal.NewFromFloat(original.reeCharge)).Round(2).InexactFloat64()
}

func (r *ReeBill) clone() *ReeBill {
	out := *r
	out.readings = r.Readings()
	out.charges = r.Charges()
	return &out
}

// Clone returns a deep copy, including the attached utility bill.
func (r *ReeBill) Clone() *ReeBill {
	if r == nil {
		return nil
	}
	out := r.clone()
	out.utilBill = r.utilBill.Clone()
	return out
}

package utilbill

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	charges "reebill/internal/charges/domain"
	"reebill/internal/charges/formula"
)

const newChargePrefix = "New Charge "

// UtilBill is the aggregate for one utility billing period: the registers
// read from the meter and the charges computed from them.
type UtilBill struct {
	id           string
	accountID    string
	supplier     string
	rateClass    *RateClass
	periodStart  time.Time
	periodEnd    time.Time
	dateReceived time.Time
	processed    bool

	registers []charges.Register
	charges   []*charges.Charge
}

// NewUtilBill creates a bill with registers seeded from the rate class.
// Either period bound may be zero when not yet known.
func NewUtilBill(id, accountID string, rc *RateClass, periodStart, periodEnd time.Time) (*UtilBill, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	if accountID == "" {
		return nil, ErrEmptyAccountID
	}
	if rc == nil {
		return nil, ErrNilRateClass
	}
	if err := ValidatePeriod(periodStart, periodEnd); err != nil {
		return nil, err
	}
	return &UtilBill{
		id:          id,
		accountID:   accountID,
		rateClass:   rc.Clone(),
		periodStart: periodStart,
		periodEnd:   periodEnd,
		registers:   rc.NewRegisters(),
	}, nil
}

// ID returns the bill identity.
func (u *UtilBill) ID() string { return u.id }

// AccountID returns the owning utility account.
func (u *UtilBill) AccountID() string { return u.accountID }

// Supplier returns the energy supplier name.
func (u *UtilBill) Supplier() string { return u.supplier }

// RateClass returns a copy of the rate class.
func (u *UtilBill) RateClass() *RateClass { return u.rateClass.Clone() }

// PeriodStart returns the first day of the period (zero when unknown).
func (u *UtilBill) PeriodStart() time.Time { return u.periodStart }

// PeriodEnd returns the end of the period (zero when unknown).
func (u *UtilBill) PeriodEnd() time.Time { return u.periodEnd }

// DateReceived returns when the bill document arrived.
func (u *UtilBill) DateReceived() time.Time { return u.dateReceived }

// Processed reports whether the bill is locked as final.
func (u *UtilBill) Processed() bool { return u.processed }

// Editable reports whether the bill may be mutated.
func (u *UtilBill) Editable() bool { return !u.processed }

func (u *UtilBill) checkEditable() error {
	if u.processed {
		return fmt.Errorf("%w: %s", ErrUnEditableBill, u.id)
	}
	return nil
}

// Registers returns a copy of the registers.
func (u *UtilBill) Registers() []charges.Register {
	return append([]charges.Register(nil), u.registers...)
}

// Register returns the register with binding.
func (u *UtilBill) Register(binding string) (charges.Register, bool) {
	for _, r := range u.registers {
		if r.Binding == binding {
			return r, true
		}
	}
	return charges.Register{}, false
}

// Charges returns copies of all charges in bill order.
func (u *UtilBill) Charges() []*charges.Charge {
	out := make([]*charges.Charge, 0, len(u.charges))
	for _, c := range u.charges {
		out = append(out, c.Clone())
	}
	return out
}

// Charge returns a copy of the charge with binding.
func (u *UtilBill) Charge(binding string) (*charges.Charge, bool) {
	c := u.findCharge(binding)
	if c == nil {
		return nil, false
	}
	return c.Clone(), true
}

func (u *UtilBill) findCharge(binding string) *charges.Charge {
	for _, c := range u.charges {
		if c.Binding == binding {
			return c
		}
	}
	return nil
}

// SetPeriod validates and sets the period.
func (u *UtilBill) SetPeriod(start, end time.Time) error {
	if err := u.checkEditable(); err != nil {
		return err
	}
	if err := ValidatePeriod(start, end); err != nil {
		return err
	}
	u.periodStart = start
	u.periodEnd = end
	return nil
}

// SetSupplier sets the energy supplier.
func (u *UtilBill) SetSupplier(supplier string) error {
	if err := u.checkEditable(); err != nil {
		return err
	}
	u.supplier = supplier
	return nil
}

// SetDateReceived records when the bill arrived.
func (u *UtilBill) SetDateReceived(at time.Time) error {
	if err := u.checkEditable(); err != nil {
		return err
	}
	u.dateReceived = at
	return nil
}

// SetRateClass replaces the rate class and regenerates every register with
// zero quantity. Formulas that referenced removed registers fail on the next
// computation.
func (u *UtilBill) SetRateClass(rc *RateClass) error {
	if err := u.checkEditable(); err != nil {
		return err
	}
	if rc == nil {
		return ErrNilRateClass
	}
	registers := rc.NewRegisters()
	for _, r := range registers {
		if u.findCharge(r.Binding) != nil {
			return fmt.Errorf("%w: register %q is a charge", ErrDuplicateBinding, r.Binding)
		}
	}
	u.rateClass = rc.Clone()
	u.registers = registers
	return nil
}

// checkBindingFree rejects a binding already used by a register or a charge.
// Formulas reference both through one namespace.
func (u *UtilBill) checkBindingFree(binding string) error {
	if _, ok := u.Register(binding); ok {
		return fmt.Errorf("%w: register %q", ErrDuplicateBinding, binding)
	}
	if u.findCharge(binding) != nil {
		return fmt.Errorf("%w: charge %q", ErrDuplicateBinding, binding)
	}
	return nil
}

// AddRegister adds a register with a binding unused on this bill.
func (u *UtilBill) AddRegister(r charges.Register) error {
	if err := u.checkEditable(); err != nil {
		return err
	}
	if r.Binding == "" {
		return charges.ErrEmptyBinding
	}
	if err := u.checkBindingFree(r.Binding); err != nil {
		return err
	}
	u.registers = append(u.registers, r)
	return nil
}

// RemoveRegister removes the register with binding.
func (u *UtilBill) RemoveRegister(binding string) error {
	if err := u.checkEditable(); err != nil {
		return err
	}
	for i, r := range u.registers {
		if r.Binding == binding {
			u.registers = append(u.registers[:i], u.registers[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrRegisterNotFound, binding)
}

// SetRegisterQuantity sets the quantity read on a register.
func (u *UtilBill) SetRegisterQuantity(binding string, quantity float64) error {
	if err := u.checkEditable(); err != nil {
		return err
	}
	for i := range u.registers {
		if u.registers[i].Binding == binding {
			u.registers[i].Quantity = quantity
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrRegisterNotFound, binding)
}

// ChargeSpec describes a charge to add. Nil fields take defaults.
type ChargeSpec struct {
	Binding     string
	Description string
	// QuantityFormula defaults to the total register's quantity.
	QuantityFormula *string
	Rate            float64
	Unit            string
	Type            charges.ChargeType
	HasCharge       *bool
	TargetTotal     *float64
}

// AddCharge appends a charge and returns a copy of it. Without a binding the
// charge is named "New Charge N" for the smallest N not in use.
func (u *UtilBill) AddCharge(spec ChargeSpec) (*charges.Charge, error) {
	if err := u.checkEditable(); err != nil {
		return nil, err
	}
	binding := spec.Binding
	if binding == "" {
		binding = u.nextChargeBinding()
	} else if err := u.checkBindingFree(binding); err != nil {
		return nil, err
	}
	chargeType := spec.Type
	if chargeType == "" {
		chargeType = charges.ChargeTypeDistribution
	}
	if !chargeType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidChargeType, chargeType)
	}
	quantityFormula := charges.SimpleFormula(charges.RegisterTotal)
	if spec.QuantityFormula != nil {
		quantityFormula = *spec.QuantityFormula
	}

	c := charges.NewCharge(binding, quantityFormula, spec.Rate, chargeType)
	c.Description = spec.Description
	if spec.Unit != "" {
		c.Unit = spec.Unit
	}
	if spec.HasCharge != nil {
		c.HasCharge = *spec.HasCharge
	}
	if spec.TargetTotal != nil {
		target := *spec.TargetTotal
		c.TargetTotal = &target
	}
	u.charges = append(u.charges, c)
	return c.Clone(), nil
}

func (u *UtilBill) nextChargeBinding() string {
	used := make(map[int]struct{}, len(u.charges))
	for _, c := range u.charges {
		if !strings.HasPrefix(c.Binding, newChargePrefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(c.Binding, newChargePrefix))
		if err == nil {
			used[n] = struct{}{}
		}
	}
	for n := 1; ; n++ {
		if _, ok := used[n]; ok {
			continue
		}
		binding := newChargePrefix + strconv.Itoa(n)
		if _, ok := u.Register(binding); !ok {
			return binding
		}
	}
}

// ChargePatch holds the charge fields to change. Nil fields are kept.
type ChargePatch struct {
	Binding         *string
	Description     *string
	QuantityFormula *string
	Rate            *float64
	Unit            *string
	Type            *charges.ChargeType
	HasCharge       *bool
	TargetTotal     *float64
}

// UpdateCharge applies patch to the charge with binding.
func (u *UtilBill) UpdateCharge(binding string, patch ChargePatch) error {
	if err := u.checkEditable(); err != nil {
		return err
	}
	c := u.findCharge(binding)
	if c == nil {
		return fmt.Errorf("%w: %q", ErrChargeNotFound, binding)
	}
	if patch.Binding != nil && *patch.Binding != binding {
		if *patch.Binding == "" {
			return charges.ErrEmptyBinding
		}
		if err := u.checkBindingFree(*patch.Binding); err != nil {
			return err
		}
	}
	if patch.Type != nil && !patch.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidChargeType, *patch.Type)
	}

	if patch.Binding != nil {
		c.Binding = *patch.Binding
	}
	if patch.Description != nil {
		c.Description = *patch.Description
	}
	if patch.QuantityFormula != nil {
		c.QuantityFormula = *patch.QuantityFormula
	}
	if patch.Rate != nil {
		c.Rate = *patch.Rate
	}
	if patch.Unit != nil {
		c.Unit = *patch.Unit
	}
	if patch.Type != nil {
		c.Type = *patch.Type
	}
	if patch.HasCharge != nil {
		c.HasCharge = *patch.HasCharge
	}
	if patch.TargetTotal != nil {
		target := *patch.TargetTotal
		c.TargetTotal = &target
	}
	return nil
}

// RemoveCharge deletes the charge with binding.
func (u *UtilBill) RemoveCharge(binding string) error {
	if err := u.checkEditable(); err != nil {
		return err
	}
	for i, c := range u.charges {
		if c.Binding == binding {
			u.charges = append(u.charges[:i], u.charges[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrChargeNotFound, binding)
}

// CopyChargesFrom replaces this bill's charges with uncomputed copies of the
// charge definitions on prev, so a new period inherits last period's formulas.
func (u *UtilBill) CopyChargesFrom(prev *UtilBill) error {
	if err := u.checkEditable(); err != nil {
		return err
	}
	if prev == nil {
		return ErrNilBill
	}
	copied := make([]*charges.Charge, 0, len(prev.charges))
	for _, c := range prev.charges {
		if _, ok := u.Register(c.Binding); ok {
			return fmt.Errorf("%w: charge %q is a register", ErrDuplicateBinding, c.Binding)
		}
		fresh := charges.NewCharge(c.Binding, c.QuantityFormula, c.Rate, c.Type)
		fresh.Description = c.Description
		fresh.Unit = c.Unit
		fresh.HasCharge = c.HasCharge
		copied = append(copied, fresh)
	}
	u.charges = copied
	return nil
}

// ComputeCharges evaluates every charge against this bill's registers and
// stores the results. Per-charge failures are recorded on the charges; the
// first one is returned only when raiseException is set.
func (u *UtilBill) ComputeCharges(raiseException bool) error {
	if err := u.checkEditable(); err != nil {
		return err
	}
	err := charges.Compute(u.registers, u.charges)
	if raiseException {
		return err
	}
	return nil
}

// RegisterContext returns the evaluation context of this bill's registers.
func (u *UtilBill) RegisterContext() formula.Context {
	return charges.RegisterContext(u.registers)
}

// ChargeErrors maps each failed charge binding to its error message.
func (u *UtilBill) ChargeErrors() map[string]string {
	out := make(map[string]string)
	for _, c := range u.charges {
		if c.Failed() {
			out[c.Binding] = c.ErrorMessage()
		}
	}
	return out
}

// SupplyCharges returns billed supply charges.
func (u *UtilBill) SupplyCharges() []*charges.Charge {
	return u.billedCharges(charges.ChargeTypeSupply)
}

// DistributionCharges returns billed distribution charges.
func (u *UtilBill) DistributionCharges() []*charges.Charge {
	return u.billedCharges(charges.ChargeTypeDistribution)
}

func (u *UtilBill) billedCharges(chargeType charges.ChargeType) []*charges.Charge {
	var out []*charges.Charge
	for _, c := range u.charges {
		if c.HasCharge && c.Type == chargeType {
			out = append(out, c.Clone())
		}
	}
	return out
}

// TotalCharges sums the totals of billed charges, skipping failed ones.
func (u *UtilBill) TotalCharges() float64 {
	return sumTotals(u.charges)
}

// SupplyTotal sums billed supply charge totals.
func (u *UtilBill) SupplyTotal() float64 {
	return sumTotals(u.SupplyCharges())
}

// DistributionTotal sums billed distribution charge totals.
func (u *UtilBill) DistributionTotal() float64 {
	return sumTotals(u.DistributionCharges())
}

func sumTotals(chs []*charges.Charge) float64 {
	totals := make([]float64, 0, len(chs))
	for _, c := range chs {
		if !c.HasCharge {
			continue
		}
		if total, ok := c.Total(); ok {
			totals = append(totals, total)
		}
	}
	return charges.SumCents(totals...)
}

// TotalEnergy sums the quantities of total-energy registers.
func (u *UtilBill) TotalEnergy() float64 {
	var sum float64
	for _, r := range u.registers {
		if r.Binding == charges.RegisterTotal {
			sum += r.Quantity
		}
	}
	return sum
}

// IsProcessable reports whether the bill has everything needed to be final:
// a rate class, a full period and every charge successfully computed.
func (u *UtilBill) IsProcessable() bool {
	if u.rateClass == nil || u.periodStart.IsZero() || u.periodEnd.IsZero() {
		return false
	}
	for _, c := range u.charges {
		if !c.Computed() {
			return false
		}
	}
	return true
}

// SetProcessed locks or unlocks the bill.
func (u *UtilBill) SetProcessed(processed bool) error {
	if processed && !u.processed && !u.IsProcessable() {
		return fmt.Errorf("%w: %s", ErrNotProcessable, u.id)
	}
	u.processed = processed
	return nil
}

// Clone returns a deep copy.
func (u *UtilBill) Clone() *UtilBill {
	if u == nil {
		return nil
	}
	out := *u
	out.rateClass = u.rateClass.Clone()
	out.registers = u.Registers()
	out.charges = u.Charges()
	return &out
}

package charges

import (
	"math"

	"reebill/internal/charges/formula"
)

// ChargeType categorises a charge on the bill.
type ChargeType string

const (
	ChargeTypeSupply       ChargeType = "supply"
	ChargeTypeDistribution ChargeType = "distribution"
)

// Valid reports whether t is a known charge type.
func (t ChargeType) Valid() bool {
	return t == ChargeTypeSupply || t == ChargeTypeDistribution
}

// Charge is one line item on a bill. Its result is either pending (never
// computed), computed (quantity and total set) or failed (error set).
type Charge struct {
	Binding         string
	Description     string
	QuantityFormula string
	Rate            float64
	Unit            string
	Type            ChargeType
	// HasCharge is false for informational lines that are not billed.
	HasCharge   bool
	TargetTotal *float64

	quantity *float64
	total    *float64
	err      string
}

// NewCharge constructs a billed charge.
func NewCharge(binding, quantityFormula string, rate float64, chargeType ChargeType) *Charge {
	return &Charge{
		Binding:         binding,
		QuantityFormula: quantityFormula,
		Rate:            rate,
		Unit:            "kWh",
		Type:            chargeType,
		HasCharge:       true,
	}
}

// SimpleFormula returns the formula that bills the quantity of a register.
func SimpleFormula(registerBinding string) string {
	return registerBinding + ".quantity"
}

// Quantity returns the last computed quantity.
func (c *Charge) Quantity() (float64, bool) {
	if c.quantity == nil {
		return 0, false
	}
	return *c.quantity, true
}

// Total returns the last computed total.
func (c *Charge) Total() (float64, bool) {
	if c.total == nil {
		return 0, false
	}
	return *c.total, true
}

// ErrorMessage returns the last evaluation error, empty when none.
func (c *Charge) ErrorMessage() string { return c.err }

// Computed reports whether the charge holds a successful result.
func (c *Charge) Computed() bool { return c.total != nil }

// Failed reports whether the last evaluation failed.
func (c *Charge) Failed() bool { return c.err != "" }

// SetResult stores a successful evaluation and clears any error.
func (c *Charge) SetResult(quantity, total float64) {
	c.quantity = &quantity
	c.total = &total
	c.err = ""
}

// SetError stores a failed evaluation and clears quantity and total.
func (c *Charge) SetError(message string) {
	if message == "" {
		message = "unknown error"
	}
	c.quantity = nil
	c.total = nil
	c.err = message
}

// Restore loads a persisted result, rejecting partial states.
func (c *Charge) Restore(quantity, total *float64, message string) error {
	switch {
	case quantity == nil && total == nil:
		c.quantity, c.total, c.err = nil, nil, message
	case quantity != nil && total != nil && message == "":
		c.SetResult(*quantity, *total)
	default:
		return ErrInconsistentResult
	}
	return nil
}

// Identifiers returns the names referenced by the quantity formula.
func (c *Charge) Identifiers() ([]string, error) {
	return formula.Identifiers(c.QuantityFormula)
}

// MatchesTarget reports whether the computed total equals the total printed
// on the source document. Charges without a target always match.
func (c *Charge) MatchesTarget() bool {
	if c.TargetTotal == nil {
		return true
	}
	total, ok := c.Total()
	if !ok {
		return false
	}
	return math.Abs(total-*c.TargetTotal) < 0.005
}

// Clone returns a deep copy.
func (c *Charge) Clone() *Charge {
	if c == nil {
		return nil
	}
	out := *c
	out.TargetTotal = cloneFloat(c.TargetTotal)
	out.quantity = cloneFloat(c.quantity)
	out.total = cloneFloat(c.total)
	return &out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

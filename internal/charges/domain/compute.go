package charges

import (
	"math"
	"sort"

	"reebill/internal/charges/formula"
)

// Evaluation is the outcome of evaluating one charge in a pass.
type Evaluation struct {
	Charge   *Charge
	Quantity float64
	Total    float64
	Err      error
}

// Evaluate evaluates chs in dependency order against ctx without mutating
// either. Each successful charge is added to a private copy of ctx so later
// charges can reference it; failed charges are not, so their dependents fail
// with an unresolved name. Results are returned in evaluation order.
func Evaluate(ctx formula.Context, chs []*Charge) []Evaluation {
	local := ctx.Clone()
	registers := make([]string, 0, len(ctx))
	for binding := range ctx {
		registers = append(registers, binding)
	}
	sort.Strings(registers)

	ordered := Order(chs, registers)
	out := make([]Evaluation, 0, len(ordered))
	for _, c := range ordered {
		quantity, err := formula.Evaluate(c.QuantityFormula, local)
		if err != nil {
			out = append(out, Evaluation{Charge: c, Err: err})
			continue
		}
		total, err := price(c, quantity)
		if err != nil {
			out = append(out, Evaluation{Charge: c, Err: err})
			continue
		}
		local[c.Binding] = formula.ChargeValue(quantity, total)
		out = append(out, Evaluation{Charge: c, Quantity: quantity, Total: total})
	}
	return out
}

// price multiplies quantity by the charge's rate. Values that leave the
// float64 range fail the charge instead of reaching the decimal arithmetic.
func price(c *Charge, quantity float64) (float64, error) {
	overflow := &formula.Error{Formula: c.QuantityFormula, Msg: "numeric overflow"}
	if !finite(quantity) || !finite(c.Rate) {
		return 0, overflow
	}
	total := ChargeTotal(quantity, c.Rate)
	if !finite(total) {
		return 0, overflow
	}
	return total, nil
}

func finite(v float64) bool { return !math.IsInf(v, 0) && !math.IsNaN(v) }

// FirstError returns the first failure in evaluation order, or nil.
func FirstError(evals []Evaluation) error {
	for _, ev := range evals {
		if ev.Err != nil {
			return &ChargeError{Binding: ev.Charge.Binding, Err: ev.Err}
		}
	}
	return nil
}

// Compute evaluates chs against the register quantities and stores each
// result (or error) on its charge. Every charge is evaluated; the first
// failure in evaluation order is returned as a *ChargeError.
func Compute(registers []Register, chs []*Charge) error {
	evals := Evaluate(RegisterContext(registers), chs)
	for _, ev := range evals {
		if ev.Err != nil {
			ev.Charge.SetError(ev.Err.Error())
			continue
		}
		ev.Charge.SetResult(ev.Quantity, ev.Total)
	}
	return FirstError(evals)
}

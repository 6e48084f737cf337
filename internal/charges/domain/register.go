package charges

import "reebill/internal/charges/formula"

// Standard register bindings.
const (
	RegisterTotal   = "REG_TOTAL"
	RegisterDemand  = "REG_DEMAND"
	RegisterPeak    = "REG_PEAK"
	RegisterOffPeak = "REG_OFFPEAK"
)

// Register is a named measurement point on a utility bill.
type Register struct {
	Binding         string
	Description     string
	Quantity        float64
	Unit            string
	MeterIdentifier string
	Estimated       bool
}

// RegisterContext seeds an evaluation context with register quantities.
// Registers carry no total.
func RegisterContext(registers []Register) formula.Context {
	ctx := make(formula.Context, len(registers))
	for _, r := range registers {
		ctx[r.Binding] = formula.QuantityValue(r.Quantity)
	}
	return ctx
}

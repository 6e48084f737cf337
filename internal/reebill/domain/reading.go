package reebill

import charges "reebill/internal/charges/domain"

// MeasureRenewableEnergy is the default measure name of readings.
const MeasureRenewableEnergy = "Renewable Energy"

// Reading pairs the conventional quantity of a utility register with the
// renewable energy that offset it.
type Reading struct {
	RegisterBinding      string
	MeasureName          string
	Unit                 string
	ConventionalQuantity float64
	RenewableQuantity    float64
}

// HypotheticalQuantity is the quantity the meter would have read without the
// renewable offset.
func (r Reading) HypotheticalQuantity() float64 {
	return r.ConventionalQuantity + r.RenewableQuantity
}

func readingsFromRegisters(registers []charges.Register) []Reading {
	out := make([]Reading, 0, len(registers))
	for _, reg := range registers {
		out = append(out, Reading{
			RegisterBinding:      reg.Binding,
			MeasureName:          MeasureRenewableEnergy,
			Unit:                 reg.Unit,
			ConventionalQuantity: reg.Quantity,
		})
	}
	return out
}

// ReeBillCharge is a frozen pair of actual and hypothetical results for one
// utility bill charge.
type ReeBillCharge struct {
	Binding     string
	Description string
	Type        charges.ChargeType
	Unit        string
	Rate        float64
	AQuantity   float64
	HQuantity   float64
	ATotal      float64
	HTotal      float64
}

package utilbill

import charges "reebill/internal/charges/domain"

// RegisterTemplate describes a register every bill of a rate class carries.
type RegisterTemplate struct {
	Binding     string
	Description string
	Unit        string
}

// RateClass is a utility tariff; it determines the registers on a bill.
type RateClass struct {
	Name        string
	Utility     string
	ServiceType string
	Registers   []RegisterTemplate
}

// DefaultRegisterTemplates is used for rate classes that define none.
func DefaultRegisterTemplates() []RegisterTemplate {
	return []RegisterTemplate{{Binding: charges.RegisterTotal, Description: "Total energy", Unit: "kWh"}}
}

// NewRegisters builds a fresh, zero-quantity register set.
func (rc *RateClass) NewRegisters() []charges.Register {
	templates := rc.Registers
	if len(templates) == 0 {
		templates = DefaultRegisterTemplates()
	}
	out := make([]charges.Register, 0, len(templates))
	for _, tpl := range templates {
		out = append(out, charges.Register{
			Binding:     tpl.Binding,
			Description: tpl.Description,
			Unit:        tpl.Unit,
		})
	}
	return out
}

// Clone returns a deep copy.
func (rc *RateClass) Clone() *RateClass {
	if rc == nil {
		return nil
	}
	out := *rc
	out.Registers = append([]RegisterTemplate(nil), rc.Registers...)
	return &out
}

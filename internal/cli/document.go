package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	charges "reebill/internal/charges/domain"
	"reebill/internal/reebill/infrastructure/renewable"
	utilbill "reebill/internal/utilbill/domain"
)

const dateLayout = "2006-01-02"

// billDocument is a self-contained bill priced by the compute command:
//
//	account: "10003"
//	period_start: 2026-03-01
//	period_end: 2026-04-01
//	discount_rate: 0.2
//	registers:
//	  - {binding: REG_TOTAL, unit: kWh, quantity: 561, renewable: 188}
//	charges:
//	  - {binding: DIST, quantity: REG_TOTAL.quantity, rate: 0.0215}
//	  - {binding: TAX, quantity: DIST.total, rate: 0.06}
type billDocument struct {
	Account      string        `yaml:"account"`
	RateClass    string        `yaml:"rate_class"`
	PeriodStart  string        `yaml:"period_start"`
	PeriodEnd    string        `yaml:"period_end"`
	DiscountRate *float64      `yaml:"discount_rate"`
	Registers    []registerDoc `yaml:"registers"`
	Charges      []chargeDoc   `yaml:"charges"`
}

type registerDoc struct {
	Binding     string  `yaml:"binding"`
	Description string  `yaml:"description"`
	Unit        string  `yaml:"unit"`
	Quantity    float64 `yaml:"quantity"`
	Renewable   float64 `yaml:"renewable"`
}

type chargeDoc struct {
	Binding     string   `yaml:"binding"`
	Description string   `yaml:"description"`
	Quantity    *string  `yaml:"quantity"`
	Rate        float64  `yaml:"rate"`
	Unit        string   `yaml:"unit"`
	Type        string   `yaml:"type"`
	HasCharge   *bool    `yaml:"has_charge"`
	TargetTotal *float64 `yaml:"target_total"`
}

func readBillDocument(path string) (billDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return billDocument{}, err
	}
	return parseBillDocument(data)
}

func parseBillDocument(data []byte) (billDocument, error) {
	var doc billDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return billDocument{}, fmt.Errorf("bill document: %w", err)
	}
	doc.Account = strings.TrimSpace(doc.Account)
	if doc.Account == "" {
		doc.Account = "offline"
	}
	if doc.PeriodStart == "" || doc.PeriodEnd == "" {
		return billDocument{}, errors.New("bill document: period_start and period_end are required")
	}
	seen := make(map[string]struct{}, len(doc.Registers))
	for _, r := range doc.Registers {
		if r.Binding == "" {
			return billDocument{}, errors.New("bill document: register without binding")
		}
		if _, dup := seen[r.Binding]; dup {
			return billDocument{}, fmt.Errorf("bill document: duplicate register %q", r.Binding)
		}
		seen[r.Binding] = struct{}{}
		if r.Renewable < 0 {
			return billDocument{}, fmt.Errorf("bill document: negative renewable energy for %q", r.Binding)
		}
	}
	return doc, nil
}

func (d billDocument) period() (time.Time, time.Time, error) {
	start, err := time.Parse(dateLayout, d.PeriodStart)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bill document: period_start: %w", err)
	}
	end, err := time.Parse(dateLayout, d.PeriodEnd)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bill document: period_end: %w", err)
	}
	return start, end, nil
}

// utilBill builds the utility bill the document describes. Its registers
// come from the document, not from a rate class catalog.
func (d billDocument) utilBill(id string) (*utilbill.UtilBill, error) {
	start, end, err := d.period()
	if err != nil {
		return nil, err
	}
	name := d.RateClass
	if name == "" {
		name = "offline"
	}
	rc := &utilbill.RateClass{Name: name}
	for _, r := range d.Registers {
		rc.Registers = append(rc.Registers, utilbill.RegisterTemplate{Binding: r.Binding, Description: r.Description, Unit: r.Unit})
	}
	ub, err := utilbill.NewUtilBill(id, d.Account, rc, start, end)
	if err != nil {
		return nil, err
	}
	for _, r := range d.Registers {
		if err := ub.SetRegisterQuantity(r.Binding, r.Quantity); err != nil {
			return nil, err
		}
	}
	for _, c := range d.Charges {
		spec := utilbill.ChargeSpec{
			Binding:         c.Binding,
			Description:     c.Description,
			QuantityFormula: c.Quantity,
			Rate:            c.Rate,
			Unit:            c.Unit,
			Type:            charges.ChargeType(strings.ToLower(c.Type)),
			HasCharge:       c.HasCharge,
			TargetTotal:     c.TargetTotal,
		}
		if _, err := ub.AddCharge(spec); err != nil {
			return nil, err
		}
	}
	return ub, nil
}

// renewableSource serves the document's renewable quantities.
func (d billDocument) renewableSource() (*renewable.StaticSource, error) {
	start, end, err := d.period()
	if err != nil {
		return nil, err
	}
	m := renewable.Measurement{AccountID: d.Account, PeriodStart: start, PeriodEnd: end, Registers: map[string]float64{}}
	for _, r := range d.Registers {
		m.Registers[r.Binding] = r.Renewable
	}
	return renewable.NewStaticSource(m), nil
}

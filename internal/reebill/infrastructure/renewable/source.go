package renewable

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

// Measurement is renewable energy metered for one account over one period,
// by register binding.
type Measurement struct {
	AccountID   string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Registers   map[string]float64
}

type measurementDoc struct {
	Account     string             `yaml:"account"`
	PeriodStart string             `yaml:"period_start"`
	PeriodEnd   string             `yaml:"period_end"`
	Registers   map[string]float64 `yaml:"registers"`
}

type fileDoc struct {
	Measurements []measurementDoc `yaml:"measurements"`
}

// StaticSource serves a fixed set of measurements. A period without a
// measurement yields no renewable energy.
type StaticSource struct {
	measurements []Measurement
}

// NewStaticSource constructs a source.
func NewStaticSource(measurements ...Measurement) *StaticSource {
	return &StaticSource{measurements: append([]Measurement(nil), measurements...)}
}

// Parse reads measurements from YAML:
//
//	measurements:
//	  - account: "10003"
//	    period_start: 2026-03-01
//	    period_end: 2026-04-01
//	    registers: {REG_TOTAL: 120.5}
func Parse(data []byte) (*StaticSource, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("renewable source: %w", err)
	}
	out := make([]Measurement, 0, len(doc.Measurements))
	for i, m := range doc.Measurements {
		if m.Account == "" {
			return nil, fmt.Errorf("renewable source: measurement %d has no account", i)
		}
		start, err := time.Parse(dateLayout, m.PeriodStart)
		if err != nil {
			return nil, fmt.Errorf("renewable source: measurement %d period_start: %w", i, err)
		}
		end, err := time.Parse(dateLayout, m.PeriodEnd)
		if err != nil {
			return nil, fmt.Errorf("renewable source: measurement %d period_end: %w", i, err)
		}
		for binding, q := range m.Registers {
			if q < 0 {
				return nil, fmt.Errorf("renewable source: measurement %d register %s is negative", i, binding)
			}
		}
		out = append(out, Measurement{AccountID: m.Account, PeriodStart: start, PeriodEnd: end, Registers: m.Registers})
	}
	return NewStaticSource(out...), nil
}

// Load reads a YAML measurement file.
func Load(path string) (*StaticSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// RenewableEnergy returns the measured quantity per requested register for
// the period. Registers without a measurement are omitted.
func (s *StaticSource) RenewableEnergy(ctx context.Context, accountID string, start, end time.Time, registerBindings []string) (map[string]float64, error) {
	_ = ctx
	if s == nil {
		return nil, errors.New("renewable source: nil source")
	}
	out := make(map[string]float64)
	if start.IsZero() || end.IsZero() {
		return out, nil
	}
	for _, m := range s.measurements {
		if m.AccountID != accountID || !sameDay(m.PeriodStart, start) || !sameDay(m.PeriodEnd, end) {
			continue
		}
		for _, binding := range registerBindings {
			if q, ok := m.Registers[binding]; ok {
				out[binding] += q
			}
		}
	}
	return out, nil
}

func sameDay(a, b time.Time) bool {
	return a.UTC().Format(dateLayout) == b.UTC().Format(dateLayout)
}

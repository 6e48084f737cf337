package rateclass

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	utilbill "reebill/internal/utilbill/domain"
)

type registerDoc struct {
	Binding     string `yaml:"binding"`
	Description string `yaml:"description"`
	Unit        string `yaml:"unit"`
}

type rateClassDoc struct {
	Name        string        `yaml:"name"`
	Utility     string        `yaml:"utility"`
	ServiceType string        `yaml:"service_type"`
	Registers   []registerDoc `yaml:"registers"`
}

type catalogDoc struct {
	RateClasses []rateClassDoc `yaml:"rate_classes"`
}

// Catalog is a fixed set of rate classes keyed by name.
type Catalog struct {
	byName map[string]*utilbill.RateClass
	names  []string
}

// NewCatalog builds a catalog. Names must be unique and non-empty.
func NewCatalog(classes ...*utilbill.RateClass) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]*utilbill.RateClass, len(classes))}
	for _, rc := range classes {
		if rc == nil {
			return nil, utilbill.ErrNilRateClass
		}
		name := strings.TrimSpace(rc.Name)
		if name == "" {
			return nil, errors.New("rate class catalog: empty name")
		}
		if _, ok := c.byName[name]; ok {
			return nil, fmt.Errorf("rate class catalog: duplicate %q", name)
		}
		clone := rc.Clone()
		clone.Name = name
		c.byName[name] = clone
		c.names = append(c.names, name)
	}
	sort.Strings(c.names)
	return c, nil
}

// Parse reads a YAML catalog:
//
//	rate_classes:
//	  - name: DC Residential
//	    utility: pepco
//	    service_type: electric
//	    registers:
//	      - {binding: REG_TOTAL, unit: kWh}
//
// A rate class without registers gets the default total register.
func Parse(data []byte) (*Catalog, error) {
	var doc catalogDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("rate class catalog: %w", err)
	}
	classes := make([]*utilbill.RateClass, 0, len(doc.RateClasses))
	for _, d := range doc.RateClasses {
		rc := &utilbill.RateClass{Name: d.Name, Utility: d.Utility, ServiceType: d.ServiceType}
		for _, r := range d.Registers {
			if r.Binding == "" {
				return nil, fmt.Errorf("rate class catalog: %q has a register without binding", d.Name)
			}
			rc.Registers = append(rc.Registers, utilbill.RegisterTemplate{
				Binding:     r.Binding,
				Description: r.Description,
				Unit:        r.Unit,
			})
		}
		classes = append(classes, rc)
	}
	return NewCatalog(classes...)
}

// Load reads a YAML catalog from path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Default returns the built-in catalog used when no file is configured.
func Default() *Catalog {
	c, err := NewCatalog(
		&utilbill.RateClass{
			Name:        "Residential",
			Utility:     "default",
			ServiceType: "electric",
		},
		&utilbill.RateClass{
			Name:        "Commercial Demand",
			Utility:     "default",
			ServiceType: "electric",
			Registers: []utilbill.RegisterTemplate{
				{Binding: "REG_TOTAL", Description: "Total energy", Unit: "kWh"},
				{Binding: "REG_DEMAND", Description: "Peak demand", Unit: "kW"},
			},
		},
		&utilbill.RateClass{
			Name:        "Gas Non Heat",
			Utility:     "default",
			ServiceType: "gas",
			Registers: []utilbill.RegisterTemplate{
				{Binding: "REG_TOTAL", Description: "Total therms", Unit: "therms"},
			},
		},
	)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns a copy of the named rate class.
func (c *Catalog) Lookup(name string) (*utilbill.RateClass, error) {
	rc, ok := c.byName[strings.TrimSpace(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", utilbill.ErrRateClassNotFound, name)
	}
	return rc.Clone(), nil
}

// List returns copies of all rate classes ordered by name.
func (c *Catalog) List() []*utilbill.RateClass {
	out := make([]*utilbill.RateClass, 0, len(c.names))
	for _, name := range c.names {
		out = append(out, c.byName[name].Clone())
	}
	return out
}

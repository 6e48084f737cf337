// Package formula implements the charge quantity formula language: a closed
// arithmetic grammar over numbers and the quantity/total fields of named values.
package formula

import (
	"sort"
	"strings"
)

// Value is the evaluation-time view of a register or computed charge.
// Registers carry no total.
type Value struct {
	Quantity float64
	Total    *float64
}

// QuantityValue returns a value with only a quantity.
func QuantityValue(quantity float64) Value {
	return Value{Quantity: quantity}
}

// ChargeValue returns a value with quantity and total.
func ChargeValue(quantity, total float64) Value {
	return Value{Quantity: quantity, Total: &total}
}

// Context maps bindings to the values a formula may reference.
type Context map[string]Value

// Clone returns a shallow copy of the context.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Expression is a parsed formula.
type Expression struct {
	src  string
	root node
}

// Parse parses src. An empty formula parses to an expression that evaluates to 0.
func Parse(src string) (*Expression, error) {
	if strings.TrimSpace(src) == "" {
		return &Expression{src: src}, nil
	}
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, tokens: tokens}
	root, err := p.parse()
	if err != nil {
		return nil, err
	}
	return &Expression{src: src, root: root}, nil
}

// String returns the source text.
func (x *Expression) String() string { return x.src }

// Identifiers returns the sorted, distinct names the expression references.
func (x *Expression) Identifiers() []string {
	if x.root == nil {
		return nil
	}
	set := make(map[string]struct{})
	x.root.collect(set)
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Eval evaluates the expression against ctx.
func (x *Expression) Eval(ctx Context) (float64, error) {
	if x.root == nil {
		return 0, nil
	}
	return x.root.eval(&evaluator{src: x.src, ctx: ctx})
}

// Identifiers parses src and returns the names it references.
func Identifiers(src string) ([]string, error) {
	x, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return x.Identifiers(), nil
}

// Evaluate parses and evaluates src against ctx.
func Evaluate(src string, ctx Context) (float64, error) {
	x, err := Parse(src)
	if err != nil {
		return 0, err
	}
	return x.Eval(ctx)
}

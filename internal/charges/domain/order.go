package charges

import (
	"slices"
	"sort"

	"reebill/internal/charges/formula"
)

// Order returns chs in an order where every charge follows the charges its
// formula references. registers lists the bindings that are always resolvable.
//
// Charges that can never resolve come first, in input order: members of a
// dependency cycle, charges that (transitively) depend on one, and charges
// referencing a binding that is neither a charge nor a register. They fail
// when evaluated without blocking anything else. Remaining ties are broken by
// input position, so the result is stable for a given input.
func Order(chs []*Charge, registers []string) []*Charge {
	index := make(map[string]int, len(chs))
	for i, c := range chs {
		if _, seen := index[c.Binding]; !seen {
			index[c.Binding] = i
		}
	}
	known := make(map[string]struct{}, len(registers))
	for _, r := range registers {
		known[r] = struct{}{}
	}

	dependents := make([][]int, len(chs))
	indegree := make([]int, len(chs))
	for i, c := range chs {
		names, err := formula.Identifiers(c.QuantityFormula)
		if err != nil {
			continue
		}
		for _, name := range names {
			if j, ok := index[name]; ok {
				dependents[j] = append(dependents[j], i)
				indegree[i]++
				continue
			}
			if _, ok := known[name]; !ok {
				// unresolvable reference: this edge is never satisfied
				indegree[i]++
			}
		}
	}

	ready := make([]int, 0, len(chs))
	for i := range chs {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	emitted := make([]bool, len(chs))
	sorted := make([]*Charge, 0, len(chs))
	for len(ready) > 0 {
		i := ready[0]
		ready = ready[1:]
		emitted[i] = true
		sorted = append(sorted, chs[i])
		for _, d := range dependents[i] {
			indegree[d]--
			if indegree[d] == 0 {
				at := sort.SearchInts(ready, d)
				ready = slices.Insert(ready, at, d)
			}
		}
	}

	out := make([]*Charge, 0, len(chs))
	for i, c := range chs {
		if !emitted[i] {
			out = append(out, c)
		}
	}
	return append(out, sorted...)
}

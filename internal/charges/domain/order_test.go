package charges

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reebill/internal/charges/formula"
)

func bindings(chs []*Charge) []string {
	out := make([]string, 0, len(chs))
	for _, c := range chs {
		out = append(out, c.Binding)
	}
	return out
}

func TestOrder(t *testing.T) {
	registers := []string{RegisterTotal, RegisterDemand}
	tests := []struct {
		name    string
		charges []*Charge
		want    []string
	}{
		{
			name: "reversed chain",
			charges: []*Charge{
				NewCharge("C", "B.total * 2", 1, ChargeTypeSupply),
				NewCharge("B", "A.quantity + 1", 1, ChargeTypeSupply),
				NewCharge("A", "REG_TOTAL.quantity", 1, ChargeTypeSupply),
			},
			want: []string{"A", "B", "C"},
		},
		{
			name: "independent charges keep input order",
			charges: []*Charge{
				NewCharge("Z", "1", 1, ChargeTypeSupply),
				NewCharge("X", "REG_DEMAND.quantity", 1, ChargeTypeSupply),
				NewCharge("Y", "", 1, ChargeTypeSupply),
			},
			want: []string{"Z", "X", "Y"},
		},
		{
			name: "ready charges are taken by input position",
			charges: []*Charge{
				NewCharge("TAX", "SUB.total * 0.06", 1, ChargeTypeDistribution),
				NewCharge("FEE", "2", 1, ChargeTypeDistribution),
				NewCharge("SUB", "FEE.total + 3", 1, ChargeTypeDistribution),
				NewCharge("BASE", "1", 1, ChargeTypeDistribution),
			},
			want: []string{"FEE", "SUB", "TAX", "BASE"},
		},
		{
			name: "two cycle goes first",
			charges: []*Charge{
				NewCharge("C", "5", 1, ChargeTypeSupply),
				NewCharge("A", "B.total", 1, ChargeTypeSupply),
				NewCharge("B", "A.total", 1, ChargeTypeSupply),
			},
			want: []string{"A", "B", "C"},
		},
		{
			name: "self reference",
			charges: []*Charge{
				NewCharge("OK", "1", 1, ChargeTypeSupply),
				NewCharge("SELF", "SELF.quantity + 1", 1, ChargeTypeSupply),
			},
			want: []string{"SELF", "OK"},
		},
		{
			name: "dependents of a cycle go first",
			charges: []*Charge{
				NewCharge("D", "A.total", 1, ChargeTypeSupply),
				NewCharge("E", "1", 1, ChargeTypeSupply),
				NewCharge("A", "B.total", 1, ChargeTypeSupply),
				NewCharge("B", "A.total", 1, ChargeTypeSupply),
			},
			want: []string{"D", "A", "B", "E"},
		},
		{
			name: "unknown binding treated like a cycle",
			charges: []*Charge{
				NewCharge("GOOD", "REG_TOTAL.quantity", 1, ChargeTypeSupply),
				NewCharge("TYPO", "REG_TOTL.quantity", 1, ChargeTypeSupply),
			},
			want: []string{"TYPO", "GOOD"},
		},
		{
			name: "syntax error has no edges",
			charges: []*Charge{
				NewCharge("B", "A.total", 1, ChargeTypeSupply),
				NewCharge("BAD", "A.total +", 1, ChargeTypeSupply),
				NewCharge("A", "1", 1, ChargeTypeSupply),
			},
			want: []string{"BAD", "A", "B"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Order(tt.charges, registers)
			assert.Equal(t, tt.want, bindings(got))
		})
	}
}

func TestOrderIsDeterministic(t *testing.T) {
	chs := []*Charge{
		NewCharge("A", "B.total", 1, ChargeTypeSupply),
		NewCharge("B", "A.total", 1, ChargeTypeSupply),
		NewCharge("C", "REG_TOTAL.quantity", 1, ChargeTypeSupply),
		NewCharge("D", "C.total + MISSING.quantity", 1, ChargeTypeSupply),
		NewCharge("E", "C.total", 1, ChargeTypeSupply),
	}
	first := bindings(Order(chs, []string{RegisterTotal}))
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, bindings(Order(chs, []string{RegisterTotal})))
	}
}

func TestOrderDoesNotMutateInput(t *testing.T) {
	chs := []*Charge{
		NewCharge("B", "A.total", 1, ChargeTypeSupply),
		NewCharge("A", "1", 1, ChargeTypeSupply),
	}
	_ = Order(chs, nil)
	assert.Equal(t, []string{"B", "A"}, bindings(chs))
}

// randomAcyclic builds n charges where charge i may only reference charges
// with a lower index or the total register, then shuffles them.
func randomAcyclic(rng *rand.Rand, n int) []*Charge {
	chs := make([]*Charge, n)
	for i := 0; i < n; i++ {
		expr := "REG_TOTAL.quantity"
		for j := 0; j < i; j++ {
			if rng.Intn(3) == 0 {
				expr += fmt.Sprintf(" + C%d.total", j)
			}
		}
		chs[i] = NewCharge(fmt.Sprintf("C%d", i), expr, 0.01, ChargeTypeSupply)
	}
	rng.Shuffle(len(chs), func(i, j int) { chs[i], chs[j] = chs[j], chs[i] })
	return chs
}

func TestOrderPlacesDependenciesFirst(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		chs := randomAcyclic(rng, 12)
		ordered := Order(chs, []string{RegisterTotal})
		require.Len(t, ordered, len(chs))

		seen := map[string]bool{RegisterTotal: true}
		for _, c := range ordered {
			names, err := formula.Identifiers(c.QuantityFormula)
			require.NoError(t, err)
			for _, name := range names {
				assert.True(t, seen[name], "round %d: %s evaluated before %s", round, c.Binding, name)
			}
			seen[c.Binding] = true
		}

		require.NoError(t, Compute([]Register{{Binding: RegisterTotal, Quantity: 10}}, chs))
	}
}

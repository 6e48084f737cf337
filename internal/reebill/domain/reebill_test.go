package reebill

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	charges "reebill/internal/charges/domain"
	"reebill/internal/charges/formula"
	utilbill "reebill/internal/utilbill/domain"
)

var (
	periodStart = time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	issueAt     = time.Date(2026, time.April, 10, 12, 0, 0, 0, time.UTC)
)

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

// newUtilBill returns a bill with REG_TOTAL = 100 and a TOTAL charge of
// REG_TOTAL.quantity at rate 1.
func newUtilBill(t *testing.T, id string) *utilbill.UtilBill {
	t.Helper()
	ub, err := utilbill.NewUtilBill(id, "acct-1", &utilbill.RateClass{Name: "residential"}, periodStart, periodEnd)
	require.NoError(t, err)
	require.NoError(t, ub.SetRegisterQuantity(charges.RegisterTotal, 100))
	_, err = ub.AddCharge(utilbill.ChargeSpec{Binding: "TOTAL", Rate: 1})
	require.NoError(t, err)
	return ub
}

func newReeBill(t *testing.T, sequence int, ub *utilbill.UtilBill) *ReeBill {
	t.Helper()
	rb, err := NewReeBill("acct-1", sequence, ub, 0.5, 0.1)
	require.NoError(t, err)
	return rb
}

func issuedReeBill(t *testing.T, sequence int, predecessor *ReeBill) *ReeBill {
	t.Helper()
	rb := newReeBill(t, sequence, newUtilBill(t, "ub-issued"))
	require.NoError(t, rb.ComputeCharges())
	require.NoError(t, rb.Issue(issueAt, predecessor))
	return rb
}

func TestNewReeBillValidation(t *testing.T) {
	ub := newUtilBill(t, "ub-1")
	_, err := NewReeBill("", 1, ub, 0.5, 0.1)
	assert.ErrorIs(t, err, ErrEmptyAccountID)
	_, err = NewReeBill("acct-1", 0, ub, 0.5, 0.1)
	assert.ErrorIs(t, err, ErrInvalidSequence)
	_, err = NewReeBill("acct-1", 1, nil, 0.5, 0.1)
	assert.ErrorIs(t, err, ErrNilUtilBill)
	_, err = NewReeBill("acct-1", 1, ub, 1.5, 0.1)
	assert.ErrorIs(t, err, ErrInvalidRate)
	_, err = NewReeBill("acct-1", 1, ub, 0.5, -0.1)
	assert.ErrorIs(t, err, ErrInvalidRate)
}

func TestNewReeBillReadingsFollowRegisters(t *testing.T) {
	rb := newReeBill(t, 1, newUtilBill(t, "ub-1"))
	readings := rb.Readings()
	require.Len(t, readings, 1)
	assert.Equal(t, charges.RegisterTotal, readings[0].RegisterBinding)
	assert.Equal(t, MeasureRenewableEnergy, readings[0].MeasureName)
	assert.Equal(t, 100.0, readings[0].ConventionalQuantity)
	assert.Equal(t, 0.0, readings[0].RenewableQuantity)
	assert.Equal(t, Key{AccountID: "acct-1", Sequence: 1}, rb.Key())
	assert.Equal(t, "acct-1|1|0", rb.Key().String())
}

func TestComputeChargesReconciliation(t *testing.T) {
	rb := newReeBill(t, 1, newUtilBill(t, "ub-1"))
	require.NoError(t, rb.SetRenewableQuantity(charges.RegisterTotal, 20))
	assert.Equal(t, 120.0, rb.Readings()[0].HypotheticalQuantity())

	require.NoError(t, rb.ComputeCharges())
	assert.True(t, rb.Computed())

	chs := rb.Charges()
	require.Len(t, chs, 1)
	assert.Equal(t, "TOTAL", chs[0].Binding)
	assert.Equal(t, 100.0, chs[0].AQuantity)
	assert.Equal(t, 120.0, chs[0].HQuantity)
	assert.Equal(t, 100.0, chs[0].ATotal)
	assert.Equal(t, 120.0, chs[0].HTotal)

	assert.Equal(t, 20.0, rb.ReeValue())
	assert.Equal(t, 10.0, rb.ReeCharge())
	assert.Equal(t, 10.0, rb.ReeSavings())
	assert.Equal(t, 100.0, rb.TotalActualCharges())
	assert.Equal(t, 120.0, rb.TotalHypotheticalCharges())
	assert.Equal(t, 20.0, rb.TotalRenewableEnergy())

	total, ok := rb.UtilBill().Charges()[0].Total()
	require.True(t, ok)
	assert.Equal(t, 100.0, total, "hypothetical pass must not touch utility bill results")
}

func TestComputeChargesDependentCharges(t *testing.T) {
	ub := newUtilBill(t, "ub-1")
	_, err := ub.AddCharge(utilbill.ChargeSpec{
		Binding:         "TAX",
		QuantityFormula: strPtr("TOTAL.total"),
		Rate:            0.06,
		Type:            charges.ChargeTypeSupply,
	})
	require.NoError(t, err)
	_, err = ub.AddCharge(utilbill.ChargeSpec{
		Binding:         "MEMO",
		QuantityFormula: strPtr("REG_TOTAL.quantity"),
		Rate:            2,
		HasCharge:       boolPtr(false),
	})
	require.NoError(t, err)

	rb := newReeBill(t, 1, ub)
	require.NoError(t, rb.SetRenewableQuantity(charges.RegisterTotal, 50))
	require.NoError(t, rb.ComputeCharges())

	byBinding := map[string]ReeBillCharge{}
	for _, c := range rb.Charges() {
		byBinding[c.Binding] = c
	}
	require.Len(t, byBinding, 2, "charges without has_charge are not snapshotted")
	assert.Equal(t, 6.0, byBinding["TAX"].ATotal)
	assert.Equal(t, 9.0, byBinding["TAX"].HTotal)
	assert.Equal(t, charges.ChargeTypeSupply, byBinding["TAX"].Type)
	assert.Equal(t, 53.0, rb.ReeValue())
	assert.Equal(t, 26.5, rb.ReeCharge())
	assert.Equal(t, 26.5, rb.ReeSavings())
}

func TestComputeChargesRegisterWithoutReading(t *testing.T) {
	ub := newUtilBill(t, "ub-1")
	rb := newReeBill(t, 1, ub)

	require.NoError(t, ub.AddRegister(charges.Register{Binding: charges.RegisterDemand, Quantity: 7, Unit: "kWD"}))
	_, err := ub.AddCharge(utilbill.ChargeSpec{
		Binding:         "DEMAND",
		QuantityFormula: strPtr("REG_DEMAND.quantity"),
		Rate:            3,
	})
	require.NoError(t, err)
	require.NoError(t, rb.SetRenewableQuantity(charges.RegisterTotal, 10))
	require.NoError(t, rb.ComputeCharges())

	for _, c := range rb.Charges() {
		if c.Binding == "DEMAND" {
			assert.Equal(t, c.ATotal, c.HTotal)
			assert.Equal(t, 21.0, c.HTotal)
		}
	}
	assert.Equal(t, 10.0, rb.ReeValue())
}

func TestComputeChargesHypotheticalErrorKeepsSnapshots(t *testing.T) {
	ub := newUtilBill(t, "ub-1")
	_, err := ub.AddCharge(utilbill.ChargeSpec{
		Binding:         "RATIO",
		QuantityFormula: strPtr("100 / (REG_TOTAL.quantity - 120)"),
		Rate:            1,
	})
	require.NoError(t, err)

	rb := newReeBill(t, 1, ub)
	require.NoError(t, rb.SetRenewableQuantity(charges.RegisterTotal, 10))
	require.NoError(t, rb.ComputeCharges())
	before := rb.Charges()
	beforeValue := rb.ReeValue()

	require.NoError(t, rb.SetRenewableQuantity(charges.RegisterTotal, 20))
	err = rb.ComputeCharges()
	require.Error(t, err)
	assert.ErrorIs(t, err, formula.ErrFormula)
	var chargeErr *charges.ChargeError
	require.ErrorAs(t, err, &chargeErr)
	assert.Equal(t, "RATIO", chargeErr.Binding)

	assert.Equal(t, before, rb.Charges())
	assert.Equal(t, beforeValue, rb.ReeValue())
	assert.False(t, rb.Computed())
}

func TestComputeChargesActualErrorPropagates(t *testing.T) {
	ub := newUtilBill(t, "ub-1")
	_, err := ub.AddCharge(utilbill.ChargeSpec{Binding: "BAD", QuantityFormula: strPtr("MISSING.total")})
	require.NoError(t, err)

	rb := newReeBill(t, 1, ub)
	err = rb.ComputeCharges()
	assert.ErrorIs(t, err, formula.ErrFormula)
	assert.Empty(t, rb.Charges())
}

func TestComputeChargesProcessedUtilBill(t *testing.T) {
	ub := newUtilBill(t, "ub-1")
	require.NoError(t, ub.ComputeCharges(true))
	require.NoError(t, ub.SetProcessed(true))

	rb := newReeBill(t, 1, ub)
	require.NoError(t, rb.SetRenewableQuantity(charges.RegisterTotal, 20))
	require.NoError(t, rb.ComputeCharges())
	assert.Equal(t, 20.0, rb.ReeValue())
}

func TestEditabilityGates(t *testing.T) {
	rb := newReeBill(t, 1, newUtilBill(t, "ub-1"))
	require.NoError(t, rb.ComputeCharges())
	require.NoError(t, rb.Process())

	assert.ErrorIs(t, rb.ComputeCharges(), ErrProcessedBill)
	assert.ErrorIs(t, rb.SetRenewableQuantity(charges.RegisterTotal, 1), ErrProcessedBill)
	assert.ErrorIs(t, rb.ReplaceReadingsFromUtilBill(), ErrProcessedBill)

	require.NoError(t, rb.Unprocess())
	require.NoError(t, rb.Issue(issueAt, nil))

	assert.ErrorIs(t, rb.ComputeCharges(), ErrIssuedBill)
	assert.ErrorIs(t, rb.SetDiscountRate(0.2), ErrIssuedBill)
	assert.ErrorIs(t, rb.ApplyAccounting(Accounting{}), ErrIssuedBill)
	assert.ErrorIs(t, rb.Unprocess(), ErrIssuedBill)
	assert.ErrorIs(t, rb.Issue(issueAt, nil), ErrIssuedBill)
}

func TestSetRenewableQuantityUnknownRegister(t *testing.T) {
	rb := newReeBill(t, 1, newUtilBill(t, "ub-1"))
	assert.ErrorIs(t, rb.SetRenewableQuantity("REG_NOPE", 1), ErrReadingNotFound)
}

func TestReplaceReadingsFromUtilBill(t *testing.T) {
	ub := newUtilBill(t, "ub-1")
	rb := newReeBill(t, 1, ub)
	require.NoError(t, rb.SetRenewableQuantity(charges.RegisterTotal, 20))

	require.NoError(t, ub.SetRegisterQuantity(charges.RegisterTotal, 250))
	require.NoError(t, ub.AddRegister(charges.Register{Binding: charges.RegisterPeak, Unit: "kWh", Quantity: 30}))
	require.NoError(t, rb.ReplaceReadingsFromUtilBill())

	readings := rb.Readings()
	require.Len(t, readings, 2)
	assert.Equal(t, 250.0, readings[0].ConventionalQuantity)
	assert.Equal(t, 0.0, readings[0].RenewableQuantity)
	assert.Equal(t, charges.RegisterPeak, readings[1].RegisterBinding)
}

func TestProcessRequiresComputed(t *testing.T) {
	rb := newReeBill(t, 1, newUtilBill(t, "ub-1"))
	assert.ErrorIs(t, rb.Process(), ErrBillState)
}

func TestIssue(t *testing.T) {
	first := newReeBill(t, 1, newUtilBill(t, "ub-1"))
	second := newReeBill(t, 2, newUtilBill(t, "ub-2"))
	require.NoError(t, first.ComputeCharges())
	require.NoError(t, second.ComputeCharges())

	assert.ErrorIs(t, second.Issue(issueAt, nil), ErrBillState)
	assert.ErrorIs(t, second.Issue(issueAt, first), ErrBillState, "predecessor not issued")
	assert.False(t, second.Issued())

	require.NoError(t, first.Issue(issueAt, nil))
	assert.True(t, first.Issued())
	assert.True(t, first.Processed())
	assert.Equal(t, issueAt, first.IssueDate())
	assert.Equal(t, issueAt.AddDate(0, 0, 30), first.DueDate())

	require.NoError(t, second.Issue(issueAt.AddDate(0, 1, 0), first))
}

func TestIssueRequiresComputed(t *testing.T) {
	rb := newReeBill(t, 1, newUtilBill(t, "ub-1"))
	assert.ErrorIs(t, rb.Issue(issueAt, nil), ErrBillState)
}

func TestNewVersion(t *testing.T) {
	rb := newReeBill(t, 1, newUtilBill(t, "ub-1"))
	_, err := rb.NewVersion()
	assert.ErrorIs(t, err, ErrBillState)

	require.NoError(t, rb.SetRenewableQuantity(charges.RegisterTotal, 20))
	require.NoError(t, rb.ComputeCharges())
	require.NoError(t, rb.Issue(issueAt, nil))

	corrected, err := rb.NewVersion()
	require.NoError(t, err)
	assert.Equal(t, 1, corrected.Version())
	assert.False(t, corrected.Issued())
	assert.False(t, corrected.Processed())
	assert.True(t, corrected.IssueDate().IsZero())
	assert.Equal(t, rb.Readings(), corrected.Readings())
	require.NotNil(t, corrected.UtilBill())
	assert.NotSame(t, rb.UtilBill(), corrected.UtilBill())
	assert.Equal(t, rb.UtilBill().Charges(), corrected.UtilBill().Charges())

	require.NoError(t, corrected.SetRenewableQuantity(charges.RegisterTotal, 40))
	require.NoError(t, corrected.ComputeCharges())
	assert.Equal(t, 20.0, corrected.ReeCharge())
	assert.Equal(t, 10.0, CorrectionAdjustment(rb, corrected))
	assert.Equal(t, 20.0, rb.Readings()[0].RenewableQuantity, "original is unchanged")

	// A correction of a later bill does not need its predecessor.
	require.NoError(t, corrected.Issue(issueAt.AddDate(0, 2, 0), nil))
}

func TestApplyAccounting(t *testing.T) {
	tests := []struct {
		name        string
		accounting  Accounting
		renewable   float64
		wantForward float64
		wantLate    float64
		wantDue     float64
	}{
		{
			name:        "first bill",
			renewable:   20,
			wantForward: 0,
			wantLate:    0,
			wantDue:     10,
		},
		{
			name:        "paid in full",
			accounting:  Accounting{PriorBalance: 50, PaymentReceived: 50},
			renewable:   20,
			wantForward: 0,
			wantDue:     10,
		},
		{
			name:        "late with adjustment",
			accounting:  Accounting{PriorBalance: 100, PaymentReceived: 40, TotalAdjustment: 5, LateChargeApplies: true},
			renewable:   20,
			wantForward: 65,
			wantLate:    6.5,
			wantDue:     81.5,
		},
		{
			name:        "late but overpaid",
			accounting:  Accounting{PriorBalance: 10, PaymentReceived: 30, LateChargeApplies: true},
			wantForward: -20,
			wantDue:     -20,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := newReeBill(t, 1, newUtilBill(t, "ub-1"))
			require.NoError(t, rb.SetRenewableQuantity(charges.RegisterTotal, tt.renewable))
			require.NoError(t, rb.ComputeCharges())
			require.NoError(t, rb.ApplyAccounting(tt.accounting))

			assert.InDelta(t, tt.wantForward, rb.BalanceForward(), 1e-9)
			assert.InDelta(t, tt.wantLate, rb.LateCharge(), 1e-9)
			assert.InDelta(t, tt.wantDue, rb.BalanceDue(), 1e-9)
		})
	}
}

func TestApplyAccountingRejectsNegativePayment(t *testing.T) {
	rb := newReeBill(t, 1, newUtilBill(t, "ub-1"))
	assert.ErrorIs(t, rb.ApplyAccounting(Accounting{PaymentReceived: -1}), ErrInvalidPayment)
}

func TestNonFiniteAmountsRejected(t *testing.T) {
	rb := newReeBill(t, 1, newUtilBill(t, "ub-1"))
	assert.ErrorIs(t, rb.ApplyAccounting(Accounting{PriorBalance: math.Inf(1)}), ErrInvalidAmount)
	assert.ErrorIs(t, rb.ApplyAccounting(Accounting{PaymentReceived: math.NaN()}), ErrInvalidAmount)
	assert.ErrorIs(t, rb.SetManualAdjustment(math.Inf(-1)), ErrInvalidAmount)
	assert.ErrorIs(t, rb.SetDiscountRate(math.NaN()), ErrInvalidRate)
	_, err := NewPayment("acct-1", issueAt, math.NaN(), "")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	require.NoError(t, rb.SetRenewableQuantity(charges.RegisterTotal, math.Inf(1)))
	var computeErr error
	require.NotPanics(t, func() { computeErr = rb.ComputeCharges() })
	assert.True(t, formula.IsFormulaError(computeErr))
}

func TestManualAdjustment(t *testing.T) {
	rb := newReeBill(t, 1, newUtilBill(t, "ub-1"))
	require.NoError(t, rb.SetRenewableQuantity(charges.RegisterTotal, 20))
	require.NoError(t, rb.ComputeCharges())
	require.NoError(t, rb.SetManualAdjustment(-2.505))
	assert.Equal(t, -2.51, rb.ManualAdjustment())
	assert.InDelta(t, 7.49, rb.BalanceDue(), 1e-9)
}

func TestSnapshotRoundTrip(t *testing.T) {
	ub := newUtilBill(t, "ub-1")
	rb := issuedReeBill(t, 1, nil)
	require.NotNil(t, rb)

	restored, err := FromSnapshot(rb.Snapshot())
	require.NoError(t, err)
	assert.Nil(t, restored.UtilBill())
	assert.Equal(t, rb.Snapshot(), restored.Snapshot())

	assert.ErrorIs(t, restored.AttachUtilBill(ub), ErrUtilBillMismatch)
	assert.ErrorIs(t, restored.AttachUtilBill(nil), ErrNilUtilBill)
}

func TestFromSnapshotValidation(t *testing.T) {
	valid := Snapshot{AccountID: "acct-1", Sequence: 1, UtilBillID: "ub-1"}
	_, err := FromSnapshot(valid)
	require.NoError(t, err)

	bad := valid
	bad.AccountID = ""
	_, err = FromSnapshot(bad)
	assert.ErrorIs(t, err, ErrEmptyAccountID)

	bad = valid
	bad.Version = -1
	_, err = FromSnapshot(bad)
	assert.ErrorIs(t, err, ErrInvalidSequence)

	bad = valid
	bad.Issued = true
	_, err = FromSnapshot(bad)
	assert.ErrorIs(t, err, ErrBillState)
}

func TestClone(t *testing.T) {
	rb := newReeBill(t, 1, newUtilBill(t, "ub-1"))
	clone := rb.Clone()
	require.NoError(t, clone.SetRenewableQuantity(charges.RegisterTotal, 99))
	require.NoError(t, clone.UtilBill().SetRegisterQuantity(charges.RegisterTotal, 1))

	assert.Equal(t, 0.0, rb.Readings()[0].RenewableQuantity)
	reg, ok := rb.UtilBill().Register(charges.RegisterTotal)
	require.True(t, ok)
	assert.Equal(t, 100.0, reg.Quantity)
}

func TestPayments(t *testing.T) {
	received := time.Date(2026, time.March, 15, 9, 0, 0, 0, time.FixedZone("EST", -5*3600))
	p, err := NewPayment("acct-1", received, 25.5, "check")
	require.NoError(t, err)
	assert.NotEqual(t, [16]byte{}, [16]byte(p.ID))
	assert.Equal(t, time.UTC, p.DateReceived.Location())

	_, err = NewPayment("", received, 1, "")
	assert.ErrorIs(t, err, ErrEmptyAccountID)
	_, err = NewPayment("acct-1", time.Time{}, 1, "")
	assert.ErrorIs(t, err, ErrInvalidPayment)

	other, err := NewPayment("acct-1", received.AddDate(0, 1, 0), 0.1, "ach")
	require.NoError(t, err)
	third, err := NewPayment("acct-1", received.AddDate(0, 0, 1), 0.2, "ach")
	require.NoError(t, err)
	payments := []Payment{p, other, third}

	assert.Equal(t, 25.7, SumCredits(payments, time.Time{}, received.AddDate(0, 0, 20)))
	assert.Equal(t, 0.3, SumCredits(payments, received.AddDate(0, 0, 1), received.AddDate(0, 2, 0)))
}

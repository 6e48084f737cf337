package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	charges "reebill/internal/charges/domain"
	"reebill/internal/charges/formula"
	"reebill/internal/utilbill/application"
	utilbill "reebill/internal/utilbill/domain"
	"reebill/internal/utilbill/infrastructure/memory"
	"reebill/internal/utilbill/infrastructure/rateclass"
)

var (
	periodStart = time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	fixedNow    = time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC)
)

type fixedClock struct{}

func (fixedClock) Now() time.Time { return fixedNow }

type recordingPublisher struct {
	events []application.ChargesComputed
	err    error
}

func (p *recordingPublisher) PublishChargesComputed(_ context.Context, event application.ChargesComputed) error {
	p.events = append(p.events, event)
	return p.err
}

func strPtr(s string) *string { return &s }

func newService(t *testing.T) (*application.Service, *memory.UtilBillRepository, *recordingPublisher) {
	t.Helper()
	repo := memory.NewUtilBillRepository()
	pub := &recordingPublisher{}
	svc, err := application.NewService(repo, rateclass.Default(),
		application.WithPublisher(pub),
		application.WithClock(fixedClock{}),
	)
	require.NoError(t, err)
	return svc, repo, pub
}

func TestNewServiceValidation(t *testing.T) {
	_, err := application.NewService(nil, rateclass.Default())
	assert.Error(t, err)
	_, err = application.NewService(memory.NewUtilBillRepository(), nil)
	assert.Error(t, err)
}

func TestCreateCopiesPreviousCharges(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "ub-1", "acct", "Residential", periodStart, periodStart.AddDate(0, 1, 0))
	require.NoError(t, err)
	_, err = svc.AddCharge(ctx, "ub-1", utilbill.ChargeSpec{Binding: "SUPPLY", Rate: 0.1, Type: charges.ChargeTypeSupply})
	require.NoError(t, err)

	next, err := svc.Create(ctx, "ub-2", "acct", "Residential", periodStart.AddDate(0, 1, 0), periodStart.AddDate(0, 2, 0))
	require.NoError(t, err)
	c, ok := next.Charge("SUPPLY")
	require.True(t, ok)
	assert.Equal(t, 0.1, c.Rate)
	assert.False(t, c.Computed())

	_, err = svc.Create(ctx, "ub-3", "acct", "No Such Class", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, utilbill.ErrRateClassNotFound)
}

func TestComputeChargesPersistsAndPublishes(t *testing.T) {
	svc, repo, pub := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "ub-1", "acct", "Residential", periodStart, periodStart.AddDate(0, 1, 0))
	require.NoError(t, err)
	_, err = svc.SetRegisterQuantity(ctx, "ub-1", charges.RegisterTotal, 200)
	require.NoError(t, err)
	added, err := svc.AddCharge(ctx, "ub-1", utilbill.ChargeSpec{Rate: 0.125})
	require.NoError(t, err)
	assert.Equal(t, "New Charge 1", added.Binding)
	total, ok := added.Total()
	require.True(t, ok)
	assert.Equal(t, 25.0, total)

	stored, err := repo.Get(ctx, "ub-1")
	require.NoError(t, err)
	assert.Equal(t, 25.0, stored.TotalCharges())

	require.NotEmpty(t, pub.events)
	last := pub.events[len(pub.events)-1]
	assert.Equal(t, "ub-1", last.BillID)
	assert.Equal(t, 25.0, last.Total)
	assert.Empty(t, last.Errors)
	assert.Equal(t, fixedNow, last.OccurredAt)
}

func TestComputeChargesRaise(t *testing.T) {
	svc, repo, pub := newService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, "ub-1", "acct", "Residential", periodStart, periodStart.AddDate(0, 1, 0))
	require.NoError(t, err)
	_, err = svc.AddCharge(ctx, "ub-1", utilbill.ChargeSpec{Binding: "A", QuantityFormula: strPtr("B.quantity")})
	require.NoError(t, err)
	_, err = svc.AddCharge(ctx, "ub-1", utilbill.ChargeSpec{Binding: "B", QuantityFormula: strPtr("A.quantity")})
	require.NoError(t, err)

	bill, err := svc.ComputeCharges(ctx, "ub-1", false)
	require.NoError(t, err)
	assert.Len(t, bill.ChargeErrors(), 2)

	bill, err = svc.ComputeCharges(ctx, "ub-1", true)
	require.Error(t, err)
	assert.ErrorIs(t, err, formula.ErrFormula)
	require.NotNil(t, bill)

	stored, err := repo.Get(ctx, "ub-1")
	require.NoError(t, err)
	assert.Len(t, stored.ChargeErrors(), 2, "failures are saved even when raised")
	assert.Len(t, pub.events[len(pub.events)-1].Errors, 2)
}

func TestPublisherErrorDoesNotFailCompute(t *testing.T) {
	svc, _, pub := newService(t)
	pub.err = errors.New("bus down")
	ctx := context.Background()
	_, err := svc.Create(ctx, "ub-1", "acct", "Residential", periodStart, periodStart.AddDate(0, 1, 0))
	require.NoError(t, err)
	_, err = svc.ComputeCharges(ctx, "ub-1", true)
	assert.NoError(t, err)
}

func TestUpdateAndRemoveCharge(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, "ub-1", "acct", "Residential", periodStart, periodStart.AddDate(0, 1, 0))
	require.NoError(t, err)
	_, err = svc.SetRegisterQuantity(ctx, "ub-1", charges.RegisterTotal, 10)
	require.NoError(t, err)
	_, err = svc.AddCharge(ctx, "ub-1", utilbill.ChargeSpec{Binding: "DIST", Rate: 1})
	require.NoError(t, err)

	rate := 3.0
	bill, err := svc.UpdateCharge(ctx, "ub-1", "DIST", utilbill.ChargePatch{Rate: &rate})
	require.NoError(t, err)
	assert.Equal(t, 30.0, bill.TotalCharges())

	bill, err = svc.RemoveCharge(ctx, "ub-1", "DIST")
	require.NoError(t, err)
	assert.Empty(t, bill.Charges())

	_, err = svc.RemoveCharge(ctx, "ub-1", "DIST")
	assert.ErrorIs(t, err, utilbill.ErrChargeNotFound)
	_, err = svc.ComputeCharges(ctx, "missing", false)
	assert.ErrorIs(t, err, utilbill.ErrBillNotFound)
}

func TestSetRateClassRegeneratesRegisters(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, "ub-1", "acct", "Residential", periodStart, periodStart.AddDate(0, 1, 0))
	require.NoError(t, err)
	_, err = svc.AddCharge(ctx, "ub-1", utilbill.ChargeSpec{Binding: "DEMAND", QuantityFormula: strPtr("REG_DEMAND.quantity"), Rate: 5})
	require.NoError(t, err)

	bill, err := svc.Get(ctx, "ub-1")
	require.NoError(t, err)
	assert.Contains(t, bill.ChargeErrors(), "DEMAND")

	bill, err = svc.SetRateClass(ctx, "ub-1", "Commercial Demand")
	require.NoError(t, err)
	assert.Equal(t, "Commercial Demand", bill.RateClass().Name)
	assert.Len(t, bill.Registers(), 2)
	assert.Empty(t, bill.ChargeErrors())

	_, err = svc.SetRateClass(ctx, "ub-1", "Nope")
	assert.ErrorIs(t, err, utilbill.ErrRateClassNotFound)
}

func TestSetProcessed(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, "ub-1", "acct", "Residential", periodStart, periodStart.AddDate(0, 1, 0))
	require.NoError(t, err)
	_, err = svc.AddCharge(ctx, "ub-1", utilbill.ChargeSpec{Binding: "BAD", QuantityFormula: strPtr("1 +")})
	require.NoError(t, err)

	_, err = svc.SetProcessed(ctx, "ub-1", true)
	assert.ErrorIs(t, err, utilbill.ErrNotProcessable)
	assert.ErrorIs(t, err, formula.ErrSyntax)

	_, err = svc.UpdateCharge(ctx, "ub-1", "BAD", utilbill.ChargePatch{QuantityFormula: strPtr("1")})
	require.NoError(t, err)
	bill, err := svc.SetProcessed(ctx, "ub-1", true)
	require.NoError(t, err)
	assert.True(t, bill.Processed())

	_, err = svc.AddCharge(ctx, "ub-1", utilbill.ChargeSpec{})
	assert.ErrorIs(t, err, utilbill.ErrUnEditableBill)
	_, err = svc.ComputeCharges(ctx, "ub-1", false)
	assert.ErrorIs(t, err, utilbill.ErrUnEditableBill)

	bill, err = svc.SetProcessed(ctx, "ub-1", false)
	require.NoError(t, err)
	assert.False(t, bill.Processed())
}

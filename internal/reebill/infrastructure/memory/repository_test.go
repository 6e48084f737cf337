package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	charges "reebill/internal/charges/domain"
	reebill "reebill/internal/reebill/domain"
	utilbill "reebill/internal/utilbill/domain"
)

var issueAt = time.Date(2026, time.April, 2, 0, 0, 0, 0, time.UTC)

func newReeBill(t *testing.T, sequence int) *reebill.ReeBill {
	t.Helper()
	ub, err := utilbill.NewUtilBill("ub-1", "acct", &utilbill.RateClass{Name: "rc"}, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.NoError(t, ub.SetRegisterQuantity(charges.RegisterTotal, 10))
	_, err = ub.AddCharge(utilbill.ChargeSpec{Binding: "E", Rate: 1})
	require.NoError(t, err)
	rb, err := reebill.NewReeBill("acct", sequence, ub, 0.5, 0)
	require.NoError(t, err)
	return rb
}

func TestReeBillRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewReeBillRepository()

	last, err := repo.LastSequence(ctx, "acct")
	require.NoError(t, err)
	assert.Equal(t, 0, last)

	first := newReeBill(t, 1)
	require.NoError(t, first.ComputeCharges())
	require.NoError(t, first.Issue(issueAt, nil))
	require.NoError(t, repo.Save(ctx, first))
	correction, err := first.NewVersion()
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, correction))
	require.NoError(t, repo.Save(ctx, newReeBill(t, 2)))

	last, err = repo.LastSequence(ctx, "acct")
	require.NoError(t, err)
	assert.Equal(t, 2, last)

	latest, err := repo.GetLatest(ctx, "acct", 1)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 1, latest.Version())
	assert.Nil(t, latest.UtilBill(), "utility bills are loaded separately")

	missing, err := repo.GetLatest(ctx, "acct", 9)
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := repo.ListByAccount(ctx, "acct")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, reebill.Key{AccountID: "acct", Sequence: 1, Version: 0}, all[0].Key())
	assert.Equal(t, reebill.Key{AccountID: "acct", Sequence: 1, Version: 1}, all[1].Key())
	assert.Equal(t, 2, all[2].Sequence())

	original, err := repo.Get(ctx, reebill.Key{AccountID: "acct", Sequence: 1})
	require.NoError(t, err)
	assert.True(t, original.Issued())

	assert.ErrorIs(t, repo.Save(ctx, nil), reebill.ErrNilReeBill)
}

func TestPaymentRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewPaymentRepository()
	jan := time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC)

	late, err := reebill.NewPayment("acct", jan.AddDate(0, 1, 0), 20, "")
	require.NoError(t, err)
	early, err := reebill.NewPayment("acct", jan, 10, "")
	require.NoError(t, err)
	foreign, err := reebill.NewPayment("other", jan, 99, "")
	require.NoError(t, err)
	for _, p := range []reebill.Payment{late, early, foreign} {
		require.NoError(t, repo.Add(ctx, p))
	}
	assert.ErrorIs(t, repo.Add(ctx, early), reebill.ErrInvalidPayment)

	got, err := repo.ListReceived(ctx, "acct", time.Time{}, jan.AddDate(1, 0, 0))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, early.ID, got[0].ID)
	assert.Equal(t, late.ID, got[1].ID)

	got, err = repo.ListReceived(ctx, "acct", jan.AddDate(0, 0, 1), jan.AddDate(1, 0, 0))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 20.0, got[0].Credit)
}

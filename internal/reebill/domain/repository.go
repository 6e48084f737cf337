package reebill

import (
	"context"
	"time"
)

// Repository persists reebill versions. Get and GetLatest return nil, nil
// when nothing matches.
type Repository interface {
	Get(ctx context.Context, key Key) (*ReeBill, error)
	// GetLatest returns the highest version of a sequence.
	GetLatest(ctx context.Context, accountID string, sequence int) (*ReeBill, error)
	// ListByAccount returns every version ordered by sequence then version.
	ListByAccount(ctx context.Context, accountID string) ([]*ReeBill, error)
	Save(ctx context.Context, bill *ReeBill) error
	// LastSequence returns 0 for an account without bills.
	LastSequence(ctx context.Context, accountID string) (int, error)
}

// PaymentRepository stores payments.
type PaymentRepository interface {
	Add(ctx context.Context, p Payment) error
	// ListReceived returns payments received in [from, to) ordered by date.
	ListReceived(ctx context.Context, accountID string, from, to time.Time) ([]Payment, error)
}

// RenewableEnergySource supplies measured renewable energy per register for
// a period.
type RenewableEnergySource interface {
	RenewableEnergy(ctx context.Context, accountID string, start, end time.Time, registerBindings []string) (map[string]float64, error)
}

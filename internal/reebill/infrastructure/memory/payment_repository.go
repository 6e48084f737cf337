package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	reebill "reebill/internal/reebill/domain"
)

// PaymentRepository is an in-memory payment store.
type PaymentRepository struct {
	mu       sync.RWMutex
	payments []reebill.Payment
}

// NewPaymentRepository constructs a repository.
func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{}
}

// Add stores a payment. Payment ids are unique.
func (r *PaymentRepository) Add(ctx context.Context, p reebill.Payment) error {
	_ = ctx
	if p.AccountID == "" {
		return reebill.ErrEmptyAccountID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.payments {
		if existing.ID == p.ID {
			return fmt.Errorf("%w: duplicate id %s", reebill.ErrInvalidPayment, p.ID)
		}
	}
	r.payments = append(r.payments, p)
	return nil
}

// ListReceived returns payments received in [from, to) ordered by date. A
// zero from means no lower bound.
func (r *PaymentRepository) ListReceived(ctx context.Context, accountID string, from, to time.Time) ([]reebill.Payment, error) {
	_ = ctx
	r.mu.RLock()
	var out []reebill.Payment
	for _, p := range r.payments {
		if p.AccountID != accountID {
			continue
		}
		if !from.IsZero() && p.DateReceived.Before(from) {
			continue
		}
		if !p.DateReceived.Before(to) {
			continue
		}
		out = append(out, p)
	}
	r.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].DateReceived.Before(out[j].DateReceived) })
	return out, nil
}

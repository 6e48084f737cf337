package memory

import (
	"context"
	"sort"
	"sync"

	utilbill "reebill/internal/utilbill/domain"
)

// UtilBillRepository is an in-memory repository for utility bills.
type UtilBillRepository struct {
	mu   sync.RWMutex
	data map[string]*utilbill.UtilBill
}

// NewUtilBillRepository constructs a repository.
func NewUtilBillRepository() *UtilBillRepository {
	return &UtilBillRepository{data: make(map[string]*utilbill.UtilBill)}
}

// Get loads a bill by id.
func (r *UtilBillRepository) Get(ctx context.Context, id string) (*utilbill.UtilBill, error) {
	_ = ctx
	r.mu.RLock()
	bill := r.data[id]
	r.mu.RUnlock()
	if bill == nil {
		return nil, nil
	}
	return bill.Clone(), nil
}

// ListByAccount returns the account's bills ordered by period start then id.
func (r *UtilBillRepository) ListByAccount(ctx context.Context, accountID string) ([]*utilbill.UtilBill, error) {
	_ = ctx
	r.mu.RLock()
	var out []*utilbill.UtilBill
	for _, bill := range r.data {
		if bill.AccountID() == accountID {
			out = append(out, bill.Clone())
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PeriodStart().Equal(out[j].PeriodStart()) {
			return out[i].PeriodStart().Before(out[j].PeriodStart())
		}
		return out[i].ID() < out[j].ID()
	})
	return out, nil
}

// Save persists a bill (overwrites existing).
func (r *UtilBillRepository) Save(ctx context.Context, bill *utilbill.UtilBill) error {
	_ = ctx
	if bill == nil {
		return utilbill.ErrNilBill
	}
	if bill.ID() == "" {
		return utilbill.ErrEmptyID
	}
	copy := bill.Clone()
	r.mu.Lock()
	r.data[bill.ID()] = copy
	r.mu.Unlock()
	return nil
}

// Delete removes a bill. Deleting a missing bill is not an error.
func (r *UtilBillRepository) Delete(ctx context.Context, id string) error {
	_ = ctx
	r.mu.Lock()
	delete(r.data, id)
	r.mu.Unlock()
	return nil
}

package memory

import (
	"context"
	"sort"
	"sync"

	reebill "reebill/internal/reebill/domain"
)

// ReeBillRepository is an in-memory repository for reebill versions.
type ReeBillRepository struct {
	mu   sync.RWMutex
	data map[reebill.Key]*reebill.ReeBill
}

// NewReeBillRepository constructs a repository.
func NewReeBillRepository() *ReeBillRepository {
	return &ReeBillRepository{data: make(map[reebill.Key]*reebill.ReeBill)}
}

// Get loads one version.
func (r *ReeBillRepository) Get(ctx context.Context, key reebill.Key) (*reebill.ReeBill, error) {
	_ = ctx
	r.mu.RLock()
	bill := r.data[key]
	r.mu.RUnlock()
	if bill == nil {
		return nil, nil
	}
	return bill.Clone(), nil
}

// GetLatest loads the highest version of a sequence.
func (r *ReeBillRepository) GetLatest(ctx context.Context, accountID string, sequence int) (*reebill.ReeBill, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *reebill.ReeBill
	for key, bill := range r.data {
		if key.AccountID != accountID || key.Sequence != sequence {
			continue
		}
		if latest == nil || key.Version > latest.Version() {
			latest = bill
		}
	}
	return latest.Clone(), nil
}

// ListByAccount returns every version ordered by sequence then version.
func (r *ReeBillRepository) ListByAccount(ctx context.Context, accountID string) ([]*reebill.ReeBill, error) {
	_ = ctx
	r.mu.RLock()
	var out []*reebill.ReeBill
	for key, bill := range r.data {
		if key.AccountID == accountID {
			out = append(out, bill.Clone())
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sequence() != out[j].Sequence() {
			return out[i].Sequence() < out[j].Sequence()
		}
		return out[i].Version() < out[j].Version()
	})
	return out, nil
}

// Save persists a version (overwrites existing). The attached utility bill
// is not stored.
func (r *ReeBillRepository) Save(ctx context.Context, bill *reebill.ReeBill) error {
	_ = ctx
	if bill == nil {
		return reebill.ErrNilReeBill
	}
	stored, err := reebill.FromSnapshot(bill.Snapshot())
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.data[bill.Key()] = stored
	r.mu.Unlock()
	return nil
}

// LastSequence returns the highest sequence of the account, 0 when none.
func (r *ReeBillRepository) LastSequence(ctx context.Context, accountID string) (int, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	last := 0
	for key := range r.data {
		if key.AccountID == accountID && key.Sequence > last {
			last = key.Sequence
		}
	}
	return last, nil
}

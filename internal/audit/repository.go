package audit

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"
)

// Repository stores entries in the audit_logs table.
type Repository struct {
	db *sql.DB
}

// NewRepository returns nil without a database.
func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db}
}

// Log inserts entry after filling its id, timestamp and digest.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit: repository has no database")
	}
	entry = normalize(entry, time.Now())

	var metadata any
	if len(entry.Metadata) > 0 {
		metadata = []byte(entry.Metadata)
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO audit_logs (
	id, actor, action, resource_type, resource_id, account_id,
	metadata, payload_digest, created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)`, entry.ID, entry.Actor, entry.Action, entry.ResourceType, entry.ResourceID, entry.AccountID,
		metadata, entry.PayloadDigest, entry.CreatedAt)
	return err
}

// MemoryLog keeps audit entries in memory.
type MemoryLog struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryLog constructs an empty log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

// Log appends an entry.
func (m *MemoryLog) Log(ctx context.Context, entry Entry) error {
	_ = ctx
	if m == nil {
		return errors.New("audit log: nil log")
	}
	m.mu.Lock()
	m.entries = append(m.entries, normalize(entry, time.Now()))
	m.mu.Unlock()
	return nil
}

// Entries returns a copy of the logged entries in order.
func (m *MemoryLog) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

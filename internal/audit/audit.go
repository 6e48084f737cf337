package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActionReeBillIssued is logged for every issued reebill version.
const ActionReeBillIssued = "reebill.issued"

// Entry is one audited billing action.
type Entry struct {
	ID            uuid.UUID
	Actor         string
	Action        string
	ResourceType  string
	ResourceID    string
	AccountID     string
	Metadata      json.RawMessage
	PayloadDigest string
	CreatedAt     time.Time
}

// Logger persists entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// DigestJSON is the hex SHA-256 of a metadata payload, empty for none.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// normalize fills the id, timestamp and digest of an entry.
func normalize(entry Entry, now time.Time) Entry {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now.UTC()
	}
	if entry.PayloadDigest == "" {
		entry.PayloadDigest = DigestJSON(entry.Metadata)
	}
	return entry
}

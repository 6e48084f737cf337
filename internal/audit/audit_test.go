package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestJSON(t *testing.T) {
	assert.Empty(t, DigestJSON(nil))
	a := DigestJSON([]byte(`{"a":1}`))
	assert.Len(t, a, 64)
	assert.Equal(t, a, DigestJSON([]byte(`{"a":1}`)))
	assert.NotEqual(t, a, DigestJSON([]byte(`{"a":2}`)))
}

func TestNormalize(t *testing.T) {
	now := time.Date(2026, time.April, 5, 12, 0, 0, 0, time.FixedZone("EST", -5*3600))
	entry := normalize(Entry{Metadata: json.RawMessage(`{"a":1}`)}, now)
	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.Equal(t, now.UTC(), entry.CreatedAt)
	assert.Equal(t, DigestJSON([]byte(`{"a":1}`)), entry.PayloadDigest)

	id := uuid.New()
	at := now.Add(-time.Hour)
	kept := normalize(Entry{ID: id, CreatedAt: at, PayloadDigest: "x"}, now)
	assert.Equal(t, id, kept.ID)
	assert.Equal(t, at, kept.CreatedAt)
	assert.Equal(t, "x", kept.PayloadDigest)
}

func TestMemoryLog(t *testing.T) {
	log := NewMemoryLog()
	require.NoError(t, log.Log(context.Background(), Entry{Action: ActionReeBillIssued, ResourceID: "a|1|0"}))
	entries := log.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "a|1|0", entries[0].ResourceID)
	assert.False(t, entries[0].CreatedAt.IsZero())

	var nilLog *MemoryLog
	assert.Error(t, nilLog.Log(context.Background(), Entry{}))
}

func TestRepositoryWithoutDB(t *testing.T) {
	assert.Nil(t, NewRepository(nil))
	var repo *Repository
	assert.Error(t, repo.Log(context.Background(), Entry{}))
}

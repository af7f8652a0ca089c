package store

import (
	"context"
	"sync"

	"github.com/tokenboard/tokenboard/internal/leaderboard"
)

// Memory is an in-process record store with the same replace semantics as
// Postgres. Used in tests and for running the service without a database.
type Memory struct {
	mu      sync.RWMutex
	records map[leaderboard.UserID][]leaderboard.UsageRecord
}

func NewMemory() *Memory {
	return &Memory{records: make(map[leaderboard.UserID][]leaderboard.UsageRecord)}
}

func (m *Memory) ListRecords(ctx context.Context) ([]leaderboard.UsageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []leaderboard.UsageRecord
	for _, recs := range m.records {
		out = append(out, recs...)
	}
	return out, nil
}

func (m *Memory) ListRecordsByUser(ctx context.Context, id leaderboard.UserID) ([]leaderboard.UsageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]leaderboard.UsageRecord(nil), m.records[id]...), nil
}

// ReplaceUserRecords swaps the user's record slice under the write lock, so
// concurrent readers see the old or new set whole.
func (m *Memory) ReplaceUserRecords(ctx context.Context, id leaderboard.UserID, records []leaderboard.UsageRecord) error {
	copied := append([]leaderboard.UsageRecord(nil), records...)
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(copied) == 0 {
		delete(m.records, id)
		return nil
	}
	m.records[id] = copied
	return nil
}

package leaderboard

import (
	"sort"
	"time"
)

// UserID identifies a user in the external registry. The engine never mints
// or retires these; they are opaque keys.
type UserID string

// UsageRecord is one user's usage for one client-reported calendar day.
// Records are read-only from the engine's perspective: ingestion replaces a
// user's full record set atomically and the engine only ever sees snapshots.
type UsageRecord struct {
	UserID UserID `json:"userId"`

	// Date is the local calendar date as reported by the client. UTCDate,
	// when present, is the UTC day the sync actually landed on. Window
	// filtering always goes through EffectiveDate.
	Date    string `json:"date"`
	UTCDate string `json:"utcDate,omitempty"`

	InputTokens         int64   `json:"inputTokens"`
	OutputTokens        int64   `json:"outputTokens"`
	CacheCreationTokens int64   `json:"cacheCreationTokens"`
	CacheReadTokens     int64   `json:"cacheReadTokens"`
	TotalTokens         int64   `json:"totalTokens"`
	TotalCost           float64 `json:"totalCost"`

	ModelsUsed []string  `json:"modelsUsed,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// EffectiveDate is the UTC day used for all range comparisons. Falling back
// to the client-reported date keeps old records without a UTC day usable.
func (r UsageRecord) EffectiveDate() string {
	if r.UTCDate != "" {
		return r.UTCDate
	}
	return r.Date
}

// UserAggregate is one user's summed usage within a window. Rebuilt per
// query; never persisted.
type UserAggregate struct {
	UserID              UserID  `json:"userId"`
	InputTokens         int64   `json:"inputTokens"`
	OutputTokens        int64   `json:"outputTokens"`
	CacheCreationTokens int64   `json:"cacheCreationTokens"`
	CacheReadTokens     int64   `json:"cacheReadTokens"`
	TotalTokens         int64   `json:"totalTokens"`
	TotalCost           float64 `json:"totalCost"`

	models       map[string]struct{}
	LastSyncedAt time.Time `json:"lastSyncedAt"`
}

func (a *UserAggregate) add(r UsageRecord) {
	a.InputTokens += r.InputTokens
	a.OutputTokens += r.OutputTokens
	a.CacheCreationTokens += r.CacheCreationTokens
	a.CacheReadTokens += r.CacheReadTokens
	a.TotalTokens += r.TotalTokens
	a.TotalCost += r.TotalCost
	for _, m := range r.ModelsUsed {
		if m == "" {
			continue
		}
		if a.models == nil {
			a.models = make(map[string]struct{})
		}
		a.models[m] = struct{}{}
	}
	if r.UpdatedAt.After(a.LastSyncedAt) {
		a.LastSyncedAt = r.UpdatedAt
	}
}

// Models returns the union of model names seen in the window, sorted so
// downstream serialization is deterministic.
func (a *UserAggregate) Models() []string {
	if len(a.models) == 0 {
		return nil
	}
	out := make([]string, 0, len(a.models))
	for m := range a.models {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

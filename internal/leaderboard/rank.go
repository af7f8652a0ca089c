package leaderboard

import (
	"encoding/json"
	"sort"
	"time"
)

// RankDelta describes movement versus the previous window. It serializes as
// a signed number (positive = moved toward rank 1), the string "new" for
// users absent from the previous window, or null when no previous window
// exists (all-time).
type RankDelta struct {
	Known bool
	New   bool
	Delta int
}

func (d RankDelta) MarshalJSON() ([]byte, error) {
	switch {
	case !d.Known:
		return []byte("null"), nil
	case d.New:
		return json.Marshal("new")
	default:
		return json.Marshal(d.Delta)
	}
}

func (d *RankDelta) UnmarshalJSON(data []byte) error {
	*d = RankDelta{}
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "new" {
			d.Known = true
			d.New = true
		}
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	d.Known = true
	d.Delta = n
	return nil
}

// Entry is one ranked leaderboard row: a user aggregate plus its dense rank
// and movement, decorated with directory metadata before it leaves the
// service.
type Entry struct {
	UserID      UserID `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`

	Rank       int       `json:"rank"`
	RankChange RankDelta `json:"rankChange"`

	InputTokens         int64   `json:"inputTokens"`
	OutputTokens        int64   `json:"outputTokens"`
	CacheCreationTokens int64   `json:"cacheCreationTokens"`
	CacheReadTokens     int64   `json:"cacheReadTokens"`
	TotalTokens         int64   `json:"totalTokens"`
	TotalCost           float64 `json:"totalCost"`

	Models       []string  `json:"models,omitempty"`
	LastSyncedAt time.Time `json:"lastSyncedAt"`
	HasProfile   bool      `json:"hasProfile,omitempty"`
}

// Rank orders aggregates by total cost descending and assigns dense 1-based
// ranks. Cost ties break on ascending user ID; requirements leave the
// tie-break open, so pick one rule and keep it deterministic.
func Rank(aggregates map[UserID]*UserAggregate) []Entry {
	entries := make([]Entry, 0, len(aggregates))
	for _, agg := range aggregates {
		entries = append(entries, Entry{
			UserID:              agg.UserID,
			InputTokens:         agg.InputTokens,
			OutputTokens:        agg.OutputTokens,
			CacheCreationTokens: agg.CacheCreationTokens,
			CacheReadTokens:     agg.CacheReadTokens,
			TotalTokens:         agg.TotalTokens,
			TotalCost:           agg.TotalCost,
			Models:              agg.Models(),
			LastSyncedAt:        agg.LastSyncedAt,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalCost != entries[j].TotalCost {
			return entries[i].TotalCost > entries[j].TotalCost
		}
		return entries[i].UserID < entries[j].UserID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// ApplyRankChange annotates current entries with their movement relative to
// a previous ranking over the same entity set. Users absent from the
// previous ranking are marked new.
func ApplyRankChange(current, previous []Entry) {
	prevRanks := make(map[UserID]int, len(previous))
	for _, e := range previous {
		prevRanks[e.UserID] = e.Rank
	}
	for i := range current {
		prev, ok := prevRanks[current[i].UserID]
		if !ok {
			current[i].RankChange = RankDelta{Known: true, New: true}
			continue
		}
		current[i].RankChange = RankDelta{Known: true, Delta: prev - current[i].Rank}
	}
}

// Truncate limits a ranked list to its top n entries. Ranks were assigned
// over the full set first, so truncated output keeps global rank numbers.
func Truncate(entries []Entry, n int) []Entry {
	if n <= 0 || n >= len(entries) {
		return entries
	}
	return entries[:n]
}

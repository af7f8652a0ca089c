package leaderboard

import (
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/tokenboard/tokenboard/internal/timeutil"
)

func rec(user UserID, date string, cost float64) UsageRecord {
	return UsageRecord{
		UserID:      user,
		Date:        date,
		TotalTokens: int64(cost * 1000),
		TotalCost:   cost,
	}
}

func TestAggregateSumsPerUser(t *testing.T) {
	window := timeutil.Window{Start: "2025-01-01", End: "2025-01-02"}
	records := []UsageRecord{
		rec("alice", "2025-01-01", 5),
		rec("bob", "2025-01-01", 10),
		rec("alice", "2025-01-02", 3),
	}

	aggs := Aggregate(records, window)
	if len(aggs) != 2 {
		t.Fatalf("expected 2 users, got %d", len(aggs))
	}
	if got := aggs["alice"].TotalCost; got != 8 {
		t.Errorf("alice cost = %v, want 8", got)
	}
	if got := aggs["bob"].TotalCost; got != 10 {
		t.Errorf("bob cost = %v, want 10", got)
	}
}

func TestAggregateIsOrderIndependent(t *testing.T) {
	window := timeutil.Window{Start: "2025-01-01", End: "2025-01-31"}
	records := []UsageRecord{
		{UserID: "alice", Date: "2025-01-01", InputTokens: 10, OutputTokens: 20, TotalTokens: 30, TotalCost: 1.5, ModelsUsed: []string{"opus"}},
		{UserID: "alice", Date: "2025-01-02", InputTokens: 5, CacheReadTokens: 7, TotalTokens: 12, TotalCost: 0.25, ModelsUsed: []string{"sonnet"}},
		{UserID: "bob", Date: "2025-01-02", CacheCreationTokens: 3, TotalTokens: 3, TotalCost: 0.1},
		{UserID: "carol", Date: "2025-01-15", TotalTokens: 99, TotalCost: 9.9, ModelsUsed: []string{"opus", "haiku"}},
		{UserID: "alice", Date: "2025-01-20", TotalTokens: 4, TotalCost: 0.05, ModelsUsed: []string{"opus"}},
	}

	baseline := snapshot(Aggregate(records, window))
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]UsageRecord(nil), records...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		if got := snapshot(Aggregate(shuffled, window)); !reflect.DeepEqual(got, baseline) {
			t.Fatalf("permutation %d changed the aggregate:\n got %#v\nwant %#v", i, got, baseline)
		}
	}
}

type aggSnapshot struct {
	In, Out, CacheW, CacheR, Total int64
	Cost                           float64
	Models                         []string
	Synced                         time.Time
}

func snapshot(aggs map[UserID]*UserAggregate) map[UserID]aggSnapshot {
	out := make(map[UserID]aggSnapshot, len(aggs))
	for id, a := range aggs {
		out[id] = aggSnapshot{
			In: a.InputTokens, Out: a.OutputTokens,
			CacheW: a.CacheCreationTokens, CacheR: a.CacheReadTokens,
			Total: a.TotalTokens, Cost: a.TotalCost,
			Models: a.Models(), Synced: a.LastSyncedAt,
		}
	}
	return out
}

func TestAggregateWindowInclusivity(t *testing.T) {
	window := timeutil.Window{Start: "2025-01-01", End: "2025-01-07"}
	records := []UsageRecord{
		rec("edge", "2025-01-07", 1),    // == end: included
		rec("late", "2025-01-08", 1),    // end + 1: excluded
		rec("early", "2025-01-01", 1),   // == start: included
		rec("before", "2024-12-31", 1),  // start - 1: excluded
	}
	aggs := Aggregate(records, window)
	for _, want := range []UserID{"edge", "early"} {
		if _, ok := aggs[want]; !ok {
			t.Errorf("user %s should be inside the window", want)
		}
	}
	for _, reject := range []UserID{"late", "before"} {
		if _, ok := aggs[reject]; ok {
			t.Errorf("user %s should be outside the window", reject)
		}
	}
}

func TestAggregatePrefersUTCDate(t *testing.T) {
	window := timeutil.Window{Start: "2025-01-02", End: "2025-01-02"}
	records := []UsageRecord{
		// Local date outside the window, UTC date inside: include.
		{UserID: "tokyo", Date: "2025-01-03", UTCDate: "2025-01-02", TotalCost: 1},
		// Local date inside, UTC date outside: exclude.
		{UserID: "hawaii", Date: "2025-01-02", UTCDate: "2025-01-01", TotalCost: 1},
	}
	aggs := Aggregate(records, window)
	if _, ok := aggs["tokyo"]; !ok {
		t.Error("record with in-window UTC date was excluded")
	}
	if _, ok := aggs["hawaii"]; ok {
		t.Error("filtering used the local date instead of the UTC date")
	}
}

func TestAggregateModelUnionAndLastSynced(t *testing.T) {
	window := timeutil.Window{Start: "2025-01-01", End: "2025-01-31"}
	early := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	late := time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)
	records := []UsageRecord{
		{UserID: "alice", Date: "2025-01-01", ModelsUsed: []string{"opus", "sonnet"}, UpdatedAt: late},
		{UserID: "alice", Date: "2025-01-02", ModelsUsed: []string{"sonnet", "haiku"}, UpdatedAt: early},
	}
	agg := Aggregate(records, window)["alice"]
	if got := agg.Models(); !reflect.DeepEqual(got, []string{"haiku", "opus", "sonnet"}) {
		t.Errorf("models = %v, want sorted union", got)
	}
	if !agg.LastSyncedAt.Equal(late) {
		t.Errorf("last synced = %v, want %v", agg.LastSyncedAt, late)
	}
}

func TestFilterMembers(t *testing.T) {
	window := timeutil.Window{Start: "2025-01-01", End: "2025-01-31"}
	aggs := Aggregate([]UsageRecord{
		rec("alice", "2025-01-01", 1),
		rec("bob", "2025-01-01", 2),
		rec("carol", "2025-01-01", 3),
	}, window)

	FilterMembers(aggs, map[UserID]struct{}{"alice": {}, "carol": {}})
	if len(aggs) != 2 {
		t.Fatalf("expected 2 members, got %d", len(aggs))
	}
	if _, ok := aggs["bob"]; ok {
		t.Error("bob is not a team member and should be filtered out")
	}
}

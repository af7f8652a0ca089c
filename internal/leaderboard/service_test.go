package leaderboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tokenboard/tokenboard/internal/timeutil"
)

type fakeStore struct {
	records   []UsageRecord
	err       error
	listCalls int
}

func (f *fakeStore) ListRecords(ctx context.Context) ([]UsageRecord, error) {
	f.listCalls++
	return f.records, f.err
}

func (f *fakeStore) ListRecordsByUser(ctx context.Context, id UserID) ([]UsageRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []UsageRecord
	for _, r := range f.records {
		if r.UserID == id {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeDirectory struct {
	identities  map[UserID]Identity
	teams       map[string]map[UserID]struct{}
	lookupCalls int
}

func (f *fakeDirectory) Lookup(ctx context.Context, ids []UserID) (map[UserID]Identity, error) {
	f.lookupCalls++
	out := make(map[UserID]Identity)
	for _, id := range ids {
		if ident, ok := f.identities[id]; ok {
			out[id] = ident
		}
	}
	return out, nil
}

func (f *fakeDirectory) TeamMembers(ctx context.Context, team string) (map[UserID]struct{}, error) {
	members, ok := f.teams[team]
	if !ok {
		return map[UserID]struct{}{}, nil
	}
	return members, nil
}

var serviceNow = time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)

func newTestService(records []UsageRecord, dir *fakeDirectory) (*Service, *fakeStore) {
	store := &fakeStore{records: records}
	if dir == nil {
		dir = &fakeDirectory{identities: map[UserID]Identity{}}
	}
	return NewService(store, dir, func() time.Time { return serviceNow }), store
}

func directoryFor(ids ...UserID) *fakeDirectory {
	dir := &fakeDirectory{identities: map[UserID]Identity{}}
	for _, id := range ids {
		dir.identities[id] = Identity{ID: id, DisplayName: string(id)}
	}
	return dir
}

func TestOverviewSingleFetch(t *testing.T) {
	// Weekly window is [2025-06-08, 2025-06-16]; previous is
	// [2025-05-30, 2025-06-07].
	records := []UsageRecord{
		rec("alice", "2025-06-10", 8),
		rec("bob", "2025-06-11", 10),
		rec("carol", "2025-06-12", 1),
		rec("alice", "2025-06-01", 10), // previous window, rank 1
		rec("bob", "2025-06-02", 6),    // previous window, rank 2
	}
	svc, store := newTestService(records, directoryFor("alice", "bob", "carol"))

	overview, err := svc.Overview(context.Background(), LeaderboardParams{Period: timeutil.PeriodWeekly})
	require.NoError(t, err)

	// Summary, current ranking, and previous ranking all come from one scan.
	require.Equal(t, 1, store.listCalls)

	require.Equal(t, Stats{TotalTokens: 19000, TotalCost: 19, TotalUsers: 3}, overview.Stats)
	require.Len(t, overview.Entries, 3)

	bob, alice, carol := overview.Entries[0], overview.Entries[1], overview.Entries[2]
	require.Equal(t, UserID("bob"), bob.UserID)
	require.Equal(t, 1, bob.Rank)
	require.Equal(t, RankDelta{Known: true, Delta: 1}, bob.RankChange)

	require.Equal(t, UserID("alice"), alice.UserID)
	require.Equal(t, RankDelta{Known: true, Delta: -1}, alice.RankChange)

	require.Equal(t, UserID("carol"), carol.UserID)
	require.Equal(t, RankDelta{Known: true, New: true}, carol.RankChange)
}

func TestLeaderboardAllTimeHasNullDeltas(t *testing.T) {
	svc, _ := newTestService([]UsageRecord{
		rec("alice", "2024-01-01", 5),
		rec("bob", "2025-06-10", 3),
	}, directoryFor("alice", "bob"))

	entries, err := svc.Leaderboard(context.Background(), LeaderboardParams{Period: timeutil.PeriodAllTime})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		require.Equal(t, RankDelta{}, e.RankChange, "all-time deltas must serialize as null")
	}
}

func TestLeaderboardRejectsUnknownPeriod(t *testing.T) {
	svc, _ := newTestService(nil, nil)
	_, err := svc.Leaderboard(context.Background(), LeaderboardParams{Period: "fortnight"})
	require.ErrorIs(t, err, timeutil.ErrInvalidPeriod)
}

func TestLeaderboardRejectsNegativeLimit(t *testing.T) {
	svc, _ := newTestService(nil, nil)
	_, err := svc.Leaderboard(context.Background(), LeaderboardParams{Period: timeutil.PeriodWeekly, Limit: -1})
	require.ErrorIs(t, err, ErrInvalidLimit)
}

func TestLeaderboardEmptyWindowIsNotAnError(t *testing.T) {
	svc, _ := newTestService(nil, nil)
	entries, err := svc.Leaderboard(context.Background(), LeaderboardParams{Period: timeutil.PeriodDaily})
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestLeaderboardSkipsUsersMissingFromDirectory(t *testing.T) {
	svc, _ := newTestService([]UsageRecord{
		rec("alice", "2025-06-10", 5),
		rec("ghost", "2025-06-10", 9),
	}, directoryFor("alice"))

	entries, err := svc.Leaderboard(context.Background(), LeaderboardParams{Period: timeutil.PeriodWeekly})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, UserID("alice"), entries[0].UserID)
	// ghost out-ranked alice, and the skip must not renumber survivors.
	require.Equal(t, 2, entries[0].Rank)
}

func TestLeaderboardBatchesDirectoryLookup(t *testing.T) {
	dir := directoryFor("alice", "bob", "carol")
	svc, _ := newTestService([]UsageRecord{
		rec("alice", "2025-06-10", 1),
		rec("bob", "2025-06-10", 2),
		rec("carol", "2025-06-10", 3),
	}, dir)

	_, err := svc.Leaderboard(context.Background(), LeaderboardParams{Period: timeutil.PeriodWeekly})
	require.NoError(t, err)
	require.Equal(t, 1, dir.lookupCalls, "decoration must use one bulk lookup")
}

func TestLeaderboardTeamFilter(t *testing.T) {
	dir := directoryFor("alice", "bob", "carol")
	dir.teams = map[string]map[UserID]struct{}{
		"platform": {"alice": {}, "carol": {}},
	}
	svc, _ := newTestService([]UsageRecord{
		rec("alice", "2025-06-10", 1),
		rec("bob", "2025-06-10", 10),
		rec("carol", "2025-06-10", 3),
	}, dir)

	entries, err := svc.Leaderboard(context.Background(), LeaderboardParams{Period: timeutil.PeriodWeekly, Team: "platform"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, UserID("carol"), entries[0].UserID)
	require.Equal(t, 1, entries[0].Rank, "ranks are assigned within the team view")
}

func TestLeaderboardLimitKeepsGlobalRanks(t *testing.T) {
	svc, _ := newTestService([]UsageRecord{
		rec("a", "2025-06-10", 5),
		rec("b", "2025-06-10", 4),
		rec("c", "2025-06-10", 3),
	}, directoryFor("a", "b", "c"))

	entries, err := svc.Leaderboard(context.Background(), LeaderboardParams{Period: timeutil.PeriodWeekly, Limit: 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, 1, entries[0].Rank)
	require.Equal(t, 2, entries[1].Rank)
}

func TestStoreErrorPropagates(t *testing.T) {
	boom := errors.New("connection reset")
	store := &fakeStore{err: boom}
	svc := NewService(store, directoryFor(), func() time.Time { return serviceNow })

	_, err := svc.Leaderboard(context.Background(), LeaderboardParams{Period: timeutil.PeriodWeekly})
	require.ErrorIs(t, err, boom)

	_, err = svc.Stats(context.Background(), timeutil.PeriodWeekly)
	require.ErrorIs(t, err, boom)
}

func TestUserRank(t *testing.T) {
	svc, _ := newTestService([]UsageRecord{
		rec("alice", "2025-06-10", 8),
		rec("bob", "2025-06-11", 10),
	}, nil)

	res, err := svc.UserRank(context.Background(), "alice", timeutil.PeriodWeekly)
	require.NoError(t, err)
	require.NotNil(t, res.Rank)
	require.Equal(t, 2, *res.Rank)
	require.Equal(t, 2, res.TotalParticipants)
	require.NotNil(t, res.Stats)
	require.Equal(t, float64(8), res.Stats.TotalCost)

	absent, err := svc.UserRank(context.Background(), "nobody", timeutil.PeriodWeekly)
	require.NoError(t, err)
	require.Nil(t, absent.Rank)
	require.Nil(t, absent.Stats)
	require.Equal(t, 2, absent.TotalParticipants)
}

func TestUsageChartThroughService(t *testing.T) {
	svc, _ := newTestService([]UsageRecord{
		rec("alice", "2025-06-10", 2),
		rec("bob", "2025-06-10", 3),
		rec("alice", "2025-06-11", 1),
	}, nil)

	points, err := svc.UsageChart(context.Background(), ChartParams{Bucket: timeutil.BucketDay})
	require.NoError(t, err)
	require.Len(t, points, 2)
	require.Equal(t, "2025-06-10", points[0].Bucket)
	require.Equal(t, float64(5), points[0].TotalCost)
	require.Equal(t, 2, points[0].ActiveUsers)
}

func TestUserChartValidatesTopN(t *testing.T) {
	svc, _ := newTestService(nil, nil)
	_, err := svc.UserChart(context.Background(), UserChartParams{Bucket: timeutil.BucketDay, TopN: maxChartUsers + 1})
	require.ErrorIs(t, err, ErrInvalidTopN)
}

func TestUserChartUsesDisplayNames(t *testing.T) {
	dir := &fakeDirectory{identities: map[UserID]Identity{
		"alice": {ID: "alice", DisplayName: "Alice W."},
	}}
	svc, _ := newTestService([]UsageRecord{
		rec("alice", "2025-06-10", 2),
	}, dir)

	chart, err := svc.UserChart(context.Background(), UserChartParams{Bucket: timeutil.BucketDay, TopN: 1})
	require.NoError(t, err)
	require.Len(t, chart.Users, 1)
	require.Equal(t, "Alice_W_", chart.Users[0].Key)
	require.Equal(t, "Alice W.", chart.Users[0].DisplayName)
}

func TestUserUsageReadsOnlyTheUser(t *testing.T) {
	svc, _ := newTestService([]UsageRecord{
		rec("alice", "2025-06-10", 2),
		rec("bob", "2025-06-10", 9),
	}, nil)

	points, err := svc.UserUsage(context.Background(), "alice", ChartParams{Bucket: timeutil.BucketDay})
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Equal(t, float64(2), points[0].TotalCost)
}

package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tokenboard/tokenboard/internal/timeutil"
)

var (
	ErrInvalidLimit = errors.New("invalid limit")
	ErrInvalidTopN  = errors.New("invalid series count")
)

const (
	// maxChartUsers bounds per-user chart fan-out; one line per user stops
	// being readable well before the query stops being cheap.
	maxChartUsers     = 10
	defaultChartUsers = 5
)

// Store is the record store the engine reads from. Implementations must
// guarantee a reader sees either a user's old or new full record set during
// a concurrent replace, never a partial mix.
type Store interface {
	ListRecords(ctx context.Context) ([]UsageRecord, error)
	ListRecordsByUser(ctx context.Context, id UserID) ([]UsageRecord, error)
}

// Identity is directory metadata for one user.
type Identity struct {
	ID          UserID
	DisplayName string
	Team        string
	HasProfile  bool
}

// Directory resolves user metadata in bulk. Lookup is called once per query
// with every referenced ID; implementations should batch accordingly.
type Directory interface {
	Lookup(ctx context.Context, ids []UserID) (map[UserID]Identity, error)
	TeamMembers(ctx context.Context, team string) (map[UserID]struct{}, error)
}

// Service derives leaderboards, summaries, and chart series from the record
// store on demand. There is no materialized state: every query re-reads and
// re-ranks, so there is nothing to invalidate.
type Service struct {
	store     Store
	directory Directory
	now       func() time.Time
}

// NewService wires the engine to its collaborators. The clock is injected so
// window resolution is deterministic under test; nil means wall clock.
func NewService(store Store, directory Directory, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, directory: directory, now: now}
}

// LeaderboardParams selects a ranked window.
type LeaderboardParams struct {
	Period timeutil.Period
	Team   string
	Limit  int
}

// Stats are window-wide totals across all participants.
type Stats struct {
	TotalTokens int64   `json:"totalTokens"`
	TotalCost   float64 `json:"totalCost"`
	TotalUsers  int     `json:"totalUsers"`
}

// Overview is the combined page payload: summary plus leaderboard derived
// from a single record fetch.
type Overview struct {
	Period  timeutil.Period `json:"period"`
	Start   string          `json:"start"`
	End     string          `json:"end"`
	Stats   Stats           `json:"stats"`
	Entries []Entry         `json:"entries"`
}

// Leaderboard returns the ranked, delta-annotated, decorated entries for a
// period, truncated to the limit after ranking.
func (s *Service) Leaderboard(ctx context.Context, params LeaderboardParams) ([]Entry, error) {
	overview, err := s.Overview(ctx, params)
	if err != nil {
		return nil, err
	}
	return overview.Entries, nil
}

// Stats returns window totals for a period over the same window the
// leaderboard would use.
func (s *Service) Stats(ctx context.Context, period timeutil.Period) (Stats, error) {
	window, err := timeutil.ResolveWindow(period, s.now())
	if err != nil {
		return Stats{}, err
	}
	records, err := s.store.ListRecords(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list records: %w", err)
	}
	return summarize(Aggregate(records, window)), nil
}

// Overview serves the combined summary-plus-leaderboard page. The backing
// record set is fetched once; totals, the current ranking, and the previous
// window ranking are all derived from that one read.
func (s *Service) Overview(ctx context.Context, params LeaderboardParams) (Overview, error) {
	if params.Limit < 0 {
		return Overview{}, fmt.Errorf("%w: %d", ErrInvalidLimit, params.Limit)
	}
	now := s.now()
	window, err := timeutil.ResolveWindow(params.Period, now)
	if err != nil {
		return Overview{}, err
	}

	records, err := s.store.ListRecords(ctx)
	if err != nil {
		return Overview{}, fmt.Errorf("list records: %w", err)
	}

	var members map[UserID]struct{}
	if params.Team != "" {
		members, err = s.directory.TeamMembers(ctx, params.Team)
		if err != nil {
			return Overview{}, fmt.Errorf("resolve team %q: %w", params.Team, err)
		}
	}

	current := Aggregate(records, window)
	if members != nil {
		FilterMembers(current, members)
	}
	entries := Rank(current)

	// The previous ranking filters the same in-memory record set; a second
	// store scan for what is a pure re-filter would be wasted I/O.
	if prevWindow, ok, err := timeutil.PreviousWindow(params.Period, now); err != nil {
		return Overview{}, err
	} else if ok {
		previous := Aggregate(records, prevWindow)
		if members != nil {
			FilterMembers(previous, members)
		}
		ApplyRankChange(entries, Rank(previous))
	}

	entries = Truncate(entries, params.Limit)
	entries, err = s.decorate(ctx, entries)
	if err != nil {
		return Overview{}, err
	}

	return Overview{
		Period:  params.Period,
		Start:   window.Start,
		End:     window.End,
		Stats:   summarize(current),
		Entries: entries,
	}, nil
}

// ChartParams selects an overall usage series.
type ChartParams struct {
	Bucket     timeutil.Bucket
	TimeRange  timeutil.TimeRange
	Cumulative bool
}

// UsageChart returns the overall bucketed series, sorted ascending by
// bucket key.
func (s *Service) UsageChart(ctx context.Context, params ChartParams) ([]ChartPoint, error) {
	window, err := timeutil.ResolveChartWindow(params.Bucket, params.TimeRange, s.now())
	if err != nil {
		return nil, err
	}
	records, err := s.store.ListRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return chartSeries(records, window, params.Bucket, params.Cumulative)
}

// UserChartParams selects a per-user comparison series.
type UserChartParams struct {
	Bucket     timeutil.Bucket
	TimeRange  timeutil.TimeRange
	TopN       int
	Cumulative bool
}

// UserChart returns cost series for the window's top-N users: the users are
// chosen by one ranking pass over the whole window, then charted as a
// complete zero-filled matrix.
func (s *Service) UserChart(ctx context.Context, params UserChartParams) (UserChart, error) {
	if params.TopN < 0 || params.TopN > maxChartUsers {
		return UserChart{}, fmt.Errorf("%w: %d (max %d)", ErrInvalidTopN, params.TopN, maxChartUsers)
	}
	topN := params.TopN
	if topN == 0 {
		topN = defaultChartUsers
	}
	window, err := timeutil.ResolveChartWindow(params.Bucket, params.TimeRange, s.now())
	if err != nil {
		return UserChart{}, err
	}
	records, err := s.store.ListRecords(ctx)
	if err != nil {
		return UserChart{}, fmt.Errorf("list records: %w", err)
	}

	top := Truncate(Rank(Aggregate(records, window)), topN)
	ids := make([]UserID, 0, len(top))
	for _, e := range top {
		ids = append(ids, e.UserID)
	}
	names, err := s.directory.Lookup(ctx, ids)
	if err != nil {
		return UserChart{}, fmt.Errorf("lookup users: %w", err)
	}
	return topUserSeries(records, window, top, params.Bucket, params.Cumulative, names)
}

// UserRankResult locates one user inside a period's ranking. Rank and Stats
// are nil when the user has no usage in the window.
type UserRankResult struct {
	UserID            UserID         `json:"userId"`
	Rank              *int           `json:"rank"`
	TotalParticipants int            `json:"totalParticipants"`
	Stats             *UserAggregate `json:"stats"`
}

// UserRank reports where one user lands in the full ranking for a period.
func (s *Service) UserRank(ctx context.Context, id UserID, period timeutil.Period) (UserRankResult, error) {
	window, err := timeutil.ResolveWindow(period, s.now())
	if err != nil {
		return UserRankResult{}, err
	}
	records, err := s.store.ListRecords(ctx)
	if err != nil {
		return UserRankResult{}, fmt.Errorf("list records: %w", err)
	}
	aggregates := Aggregate(records, window)
	entries := Rank(aggregates)
	result := UserRankResult{UserID: id, TotalParticipants: len(entries)}
	for _, e := range entries {
		if e.UserID == id {
			rank := e.Rank
			result.Rank = &rank
			result.Stats = aggregates[id]
			break
		}
	}
	return result, nil
}

// UserUsage returns one user's own bucketed usage series, for rank-history
// style profile views. This path reads only that user's records.
func (s *Service) UserUsage(ctx context.Context, id UserID, params ChartParams) ([]ChartPoint, error) {
	window, err := timeutil.ResolveChartWindow(params.Bucket, params.TimeRange, s.now())
	if err != nil {
		return nil, err
	}
	records, err := s.store.ListRecordsByUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list records for %s: %w", id, err)
	}
	return chartSeries(records, window, params.Bucket, params.Cumulative)
}

// decorate attaches directory metadata with one batched lookup. Entries for
// users missing from the directory (deleted mid-query) are dropped rather
// than failing the whole leaderboard.
func (s *Service) decorate(ctx context.Context, entries []Entry) ([]Entry, error) {
	if len(entries) == 0 {
		return entries, nil
	}
	ids := make([]UserID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.UserID)
	}
	identities, err := s.directory.Lookup(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("lookup users: %w", err)
	}
	out := entries[:0]
	for _, e := range entries {
		ident, ok := identities[e.UserID]
		if !ok {
			slog.Warn("dropping leaderboard entry for unknown user", "user_id", string(e.UserID))
			continue
		}
		e.DisplayName = ident.DisplayName
		e.HasProfile = ident.HasProfile
		out = append(out, e)
	}
	return out, nil
}

func summarize(aggregates map[UserID]*UserAggregate) Stats {
	var stats Stats
	stats.TotalUsers = len(aggregates)
	for _, agg := range aggregates {
		stats.TotalTokens += agg.TotalTokens
		stats.TotalCost += agg.TotalCost
	}
	return stats
}

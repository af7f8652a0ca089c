package leaderboard

import (
	"sort"
	"strconv"

	"github.com/tokenboard/tokenboard/internal/timeutil"
)

// ChartPoint is one bucket of the overall usage series.
type ChartPoint struct {
	Bucket      string  `json:"bucket"`
	TotalTokens int64   `json:"totalTokens"`
	TotalCost   float64 `json:"totalCost"`
	ActiveUsers int     `json:"activeUsers"`
}

type dateTotals struct {
	tokens int64
	cost   float64
	users  map[UserID]struct{}
}

// aggregateDaily folds records into one bucket per exact calendar day. The
// daily map is the single source for coarser granularities: week and month
// buckets are produced by re-grouping these day sums, never by a second pass
// over the records, so all three views agree.
func aggregateDaily(records []UsageRecord, window timeutil.Window) map[string]*dateTotals {
	daily := make(map[string]*dateTotals)
	for _, r := range records {
		date := r.EffectiveDate()
		if !window.Contains(date) {
			continue
		}
		dt, ok := daily[date]
		if !ok {
			dt = &dateTotals{users: make(map[UserID]struct{})}
			daily[date] = dt
		}
		dt.tokens += r.TotalTokens
		dt.cost += r.TotalCost
		dt.users[r.UserID] = struct{}{}
	}
	return daily
}

// rebucket coarsens a daily series into the requested granularity by summing
// day totals and unioning day user sets.
func rebucket(daily map[string]*dateTotals, bucket timeutil.Bucket) (map[string]*dateTotals, error) {
	if bucket == timeutil.BucketDay {
		return daily, nil
	}
	out := make(map[string]*dateTotals)
	for date, dt := range daily {
		key, err := timeutil.BucketKey(date, bucket)
		if err != nil {
			return nil, err
		}
		agg, ok := out[key]
		if !ok {
			agg = &dateTotals{users: make(map[UserID]struct{})}
			out[key] = agg
		}
		agg.tokens += dt.tokens
		agg.cost += dt.cost
		for id := range dt.users {
			agg.users[id] = struct{}{}
		}
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// chartSeries renders a bucketed series sorted ascending by bucket key. The
// cumulative transform runs only after the sort; active-user counts stay
// per-bucket since a running union is not meaningful for charting.
func chartSeries(records []UsageRecord, window timeutil.Window, bucket timeutil.Bucket, cumulative bool) ([]ChartPoint, error) {
	buckets, err := rebucket(aggregateDaily(records, window), bucket)
	if err != nil {
		return nil, err
	}
	points := make([]ChartPoint, 0, len(buckets))
	for _, key := range sortedKeys(buckets) {
		dt := buckets[key]
		points = append(points, ChartPoint{
			Bucket:      key,
			TotalTokens: dt.tokens,
			TotalCost:   dt.cost,
			ActiveUsers: len(dt.users),
		})
	}
	if cumulative {
		var tokens int64
		var cost float64
		for i := range points {
			tokens += points[i].TotalTokens
			cost += points[i].TotalCost
			points[i].TotalTokens = tokens
			points[i].TotalCost = cost
		}
	}
	return points, nil
}

// UserSeriesMeta names one per-user series. Key is the sanitized identifier
// used as the field name inside each chart point.
type UserSeriesMeta struct {
	UserID      UserID `json:"userId"`
	Key         string `json:"key"`
	DisplayName string `json:"displayName,omitempty"`
}

// UserChartPoint carries a "bucket" field plus one cost field per series key.
type UserChartPoint map[string]any

// UserChart is the per-user chart response: the included users in rank
// order and a complete bucket×user cost matrix.
type UserChart struct {
	Users  []UserSeriesMeta `json:"users"`
	Points []UserChartPoint `json:"series"`
}

// bucketField is reserved inside chart points; series keys may never shadow it.
const bucketField = "bucket"

// topUserSeries builds a dense bucket-by-user cost matrix for the already
// ranked top users of the window. Every included user appears at every
// bucket, zero-filled, so chart lines connect consistently.
func topUserSeries(records []UsageRecord, window timeutil.Window, top []Entry, bucket timeutil.Bucket, cumulative bool, names map[UserID]Identity) (UserChart, error) {
	topSet := make(map[UserID]struct{}, len(top))
	for _, e := range top {
		topSet[e.UserID] = struct{}{}
	}

	// Sparse date×user cost matrix restricted to the chosen users.
	dailyCost := make(map[string]map[UserID]float64)
	for _, r := range records {
		date := r.EffectiveDate()
		if !window.Contains(date) {
			continue
		}
		if _, ok := topSet[r.UserID]; !ok {
			continue
		}
		row, ok := dailyCost[date]
		if !ok {
			row = make(map[UserID]float64)
			dailyCost[date] = row
		}
		row[r.UserID] += r.TotalCost
	}

	bucketCost := make(map[string]map[UserID]float64)
	for date, row := range dailyCost {
		key, err := timeutil.BucketKey(date, bucket)
		if err != nil {
			return UserChart{}, err
		}
		agg, ok := bucketCost[key]
		if !ok {
			agg = make(map[UserID]float64)
			bucketCost[key] = agg
		}
		for id, cost := range row {
			agg[id] += cost
		}
	}

	used := map[string]struct{}{bucketField: {}}
	users := make([]UserSeriesMeta, 0, len(top))
	for _, e := range top {
		meta := UserSeriesMeta{UserID: e.UserID}
		display := string(e.UserID)
		if ident, ok := names[e.UserID]; ok && ident.DisplayName != "" {
			display = ident.DisplayName
			meta.DisplayName = ident.DisplayName
		}
		meta.Key = seriesKey(display, used)
		users = append(users, meta)
	}

	keys := sortedKeys(bucketCost)
	points := make([]UserChartPoint, 0, len(keys))
	running := make(map[UserID]float64, len(users))
	for _, key := range keys {
		point := UserChartPoint{bucketField: key}
		for _, u := range users {
			cost := bucketCost[key][u.UserID]
			if cumulative {
				running[u.UserID] += cost
				cost = running[u.UserID]
			}
			point[u.Key] = cost
		}
		points = append(points, point)
	}
	return UserChart{Users: users, Points: points}, nil
}

// seriesKey constrains a display name to [A-Za-z0-9_] with a leading letter
// or underscore, then disambiguates collisions with a numeric suffix. One
// underscore per rune, not per byte, so multibyte names stay readable.
func seriesKey(name string, used map[string]struct{}) string {
	out := make([]byte, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			out = append(out, byte(r))
		default:
			out = append(out, '_')
		}
	}
	key := string(out)
	if key == "" {
		key = "user"
	}
	if key[0] >= '0' && key[0] <= '9' {
		key = "u" + key
	}
	if _, taken := used[key]; taken {
		for i := 2; ; i++ {
			candidate := key + "_" + strconv.Itoa(i)
			if _, clash := used[candidate]; !clash {
				key = candidate
				break
			}
		}
	}
	used[key] = struct{}{}
	return key
}

package leaderboard

import (
	"reflect"
	"sort"
	"testing"

	"github.com/tokenboard/tokenboard/internal/timeutil"
)

func chartRecords() []UsageRecord {
	// Two ISO weeks: Mon 2025-06-02 .. Sun 2025-06-08 and Mon 2025-06-09 ...
	return []UsageRecord{
		rec("alice", "2025-06-02", 2),
		rec("bob", "2025-06-02", 1),
		rec("alice", "2025-06-04", 3),
		rec("bob", "2025-06-08", 4), // Sunday, still week of 06-02
		rec("alice", "2025-06-09", 5),
		rec("carol", "2025-06-10", 7),
	}
}

var chartWindow = timeutil.Window{Start: "2025-06-01", End: "2025-06-30"}

func TestChartSeriesDaily(t *testing.T) {
	points, err := chartSeries(chartRecords(), chartWindow, timeutil.BucketDay, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 5 {
		t.Fatalf("expected 5 day buckets, got %d", len(points))
	}
	if !sort.SliceIsSorted(points, func(i, j int) bool { return points[i].Bucket < points[j].Bucket }) {
		t.Error("points must be sorted ascending by bucket key")
	}
	first := points[0]
	if first.Bucket != "2025-06-02" || first.TotalCost != 3 || first.ActiveUsers != 2 {
		t.Errorf("first point = %+v, want 2025-06-02 cost=3 users=2", first)
	}
}

func TestWeekBucketsCoarsenDailyConsistently(t *testing.T) {
	records := chartRecords()
	daily, err := chartSeries(records, chartWindow, timeutil.BucketDay, false)
	if err != nil {
		t.Fatal(err)
	}
	weekly, err := chartSeries(records, chartWindow, timeutil.BucketWeek, false)
	if err != nil {
		t.Fatal(err)
	}

	// Summing the daily buckets of a calendar week must reproduce that
	// week's bucket exactly, token and cost alike.
	for _, week := range weekly {
		var tokens int64
		var cost float64
		for _, day := range daily {
			key, err := timeutil.WeekKey(day.Bucket)
			if err != nil {
				t.Fatal(err)
			}
			if key == week.Bucket {
				tokens += day.TotalTokens
				cost += day.TotalCost
			}
		}
		if tokens != week.TotalTokens || cost != week.TotalCost {
			t.Errorf("week %s = tokens %d cost %v, daily sum tokens %d cost %v",
				week.Bucket, week.TotalTokens, week.TotalCost, tokens, cost)
		}
	}

	if weekly[0].Bucket != "2025-06-02" || weekly[1].Bucket != "2025-06-09" {
		t.Errorf("week keys = %s, %s, want Mondays 2025-06-02 and 2025-06-09", weekly[0].Bucket, weekly[1].Bucket)
	}
	if weekly[0].ActiveUsers != 2 {
		t.Errorf("week one active users = %d, want 2 (union of day sets)", weekly[0].ActiveUsers)
	}
}

func TestMonthBuckets(t *testing.T) {
	records := append(chartRecords(), rec("alice", "2025-07-01", 11))
	window := timeutil.Window{Start: "2025-06-01", End: "2025-07-31"}
	points, err := chartSeries(records, window, timeutil.BucketMonth, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 month buckets, got %d", len(points))
	}
	if points[0].Bucket != "2025-06-01" || points[1].Bucket != "2025-07-01" {
		t.Errorf("month keys = %s, %s", points[0].Bucket, points[1].Bucket)
	}
	if points[0].TotalCost != 22 {
		t.Errorf("june cost = %v, want 22", points[0].TotalCost)
	}
}

func TestCumulativeSeriesIdempotentUnderResort(t *testing.T) {
	records := chartRecords()
	once, err := chartSeries(records, chartWindow, timeutil.BucketDay, true)
	if err != nil {
		t.Fatal(err)
	}

	// Feed the records in a different order; bucket sorting happens before
	// the running sum, so the output must be identical.
	reversed := make([]UsageRecord, len(records))
	for i, r := range records {
		reversed[len(records)-1-i] = r
	}
	again, err := chartSeries(reversed, chartWindow, timeutil.BucketDay, true)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(once, again) {
		t.Errorf("cumulative series differ:\n %+v\n %+v", once, again)
	}

	last := once[len(once)-1]
	if last.TotalCost != 22 {
		t.Errorf("final cumulative cost = %v, want 22", last.TotalCost)
	}
}

func TestTopUserSeriesCompleteMatrix(t *testing.T) {
	records := chartRecords()
	top := Truncate(Rank(Aggregate(records, chartWindow)), 2)
	names := map[UserID]Identity{
		"alice": {ID: "alice", DisplayName: "Alice"},
		"carol": {ID: "carol", DisplayName: "Carol"},
	}
	chart, err := topUserSeries(records, chartWindow, top, timeutil.BucketDay, false, names)
	if err != nil {
		t.Fatal(err)
	}

	// alice has cost 10, carol 7, bob 5: top two are alice and carol.
	if len(chart.Users) != 2 || chart.Users[0].UserID != "alice" || chart.Users[1].UserID != "carol" {
		t.Fatalf("users = %+v, want alice then carol", chart.Users)
	}

	for _, p := range chart.Points {
		for _, u := range chart.Users {
			if _, ok := p[u.Key]; !ok {
				t.Errorf("bucket %v missing series %s: matrix must be complete", p[bucketField], u.Key)
			}
		}
	}

	// 2025-06-08 belongs only to bob, who is outside the top two; excluded
	// users must not contribute buckets.
	for _, p := range chart.Points {
		if p[bucketField] == "2025-06-08" {
			t.Error("bucket 2025-06-08 leaked from a non-top user")
		}
	}
}

func TestSeriesKeySanitization(t *testing.T) {
	used := map[string]struct{}{bucketField: {}}
	tests := []struct {
		name string
		want string
	}{
		{"Alice Smith", "Alice_Smith"},
		{"Alice-Smith", "Alice_Smith_2"}, // collides after sanitization
		{"99bottles", "u99bottles"},
		{"", "user"},
		{"bucket", "bucket_2"}, // reserved field name
		{"héllo!", "h_llo_"},
		{"田中太郎", "____"},
		{"é", "_"},
	}
	for _, tt := range tests {
		if got := seriesKey(tt.name, used); got != tt.want {
			t.Errorf("seriesKey(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestTopUserSeriesDisplayNameFallback(t *testing.T) {
	records := []UsageRecord{rec("u-1", "2025-06-02", 1)}
	top := Rank(Aggregate(records, chartWindow))
	chart, err := topUserSeries(records, chartWindow, top, timeutil.BucketDay, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(chart.Users) != 1 || chart.Users[0].Key != "u_1" {
		t.Fatalf("users = %+v, want key u_1 derived from the raw id", chart.Users)
	}
}

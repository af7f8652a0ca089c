package timeutil

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidPeriod    = errors.New("invalid period")
	ErrInvalidBucket    = errors.New("invalid bucket")
	ErrInvalidTimeRange = errors.New("invalid time range")
	ErrInvalidDate      = errors.New("invalid date")
)

const (
	// DateLayout is the calendar-date format used for all record dates and
	// window bounds. Zero-padded ISO dates compare correctly as strings.
	DateLayout = "2006-01-02"

	// EpochFloor bounds all-time windows so resolution never needs a scan
	// for the earliest record.
	EpochFloor = "2000-01-01"
)

// Period selects a rolling leaderboard window.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodAllTime Period = "all"
)

// ParsePeriod validates a period string. Unknown values are rejected rather
// than defaulted; a silent fallback changes which window a caller reads.
func ParsePeriod(raw string) (Period, error) {
	switch Period(strings.ToLower(strings.TrimSpace(raw))) {
	case PeriodDaily:
		return PeriodDaily, nil
	case PeriodWeekly:
		return PeriodWeekly, nil
	case PeriodMonthly:
		return PeriodMonthly, nil
	case PeriodAllTime, "alltime", "all-time":
		return PeriodAllTime, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, raw)
	}
}

func (p Period) lookbackDays() int {
	switch p {
	case PeriodDaily:
		return 1
	case PeriodWeekly:
		return 7
	case PeriodMonthly:
		return 30
	default:
		return 0
	}
}

// Window is an inclusive [Start, End] range of calendar-date strings.
type Window struct {
	Period Period
	Start  string
	End    string
}

// Contains reports whether a date string falls inside the window.
func (w Window) Contains(date string) bool {
	return date >= w.Start && date <= w.End
}

// Days returns the inclusive span length in days.
func (w Window) Days() int {
	start, err1 := ParseDate(w.Start)
	end, err2 := ParseDate(w.End)
	if err1 != nil || err2 != nil {
		return 0
	}
	return int(end.Sub(start).Hours()/24) + 1
}

// ResolveWindow maps a period onto concrete date bounds relative to now.
//
// Rolling windows carry a one-day buffer on both sides: clients report local
// calendar dates, so a record written at 11pm local time may land on the UTC
// day before or after the server's "now". The buffer keeps those records in
// "today" instead of dropping them at the boundary.
func ResolveWindow(period Period, now time.Time) (Window, error) {
	today := DateOf(now)
	end := MustAddDays(today, 1)
	switch period {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		start := MustAddDays(today, -period.lookbackDays())
		return Window{Period: period, Start: start, End: end}, nil
	case PeriodAllTime:
		return Window{Period: period, Start: EpochFloor, End: end}, nil
	default:
		return Window{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, string(period))
	}
}

// PreviousWindow returns the equal-length window immediately preceding the
// current one, used for rank-delta computation. All-time has no predecessor.
func PreviousWindow(period Period, now time.Time) (Window, bool, error) {
	if period == PeriodAllTime {
		return Window{}, false, nil
	}
	current, err := ResolveWindow(period, now)
	if err != nil {
		return Window{}, false, err
	}
	span := current.Days()
	prev := Window{
		Period: period,
		Start:  MustAddDays(current.Start, -span),
		End:    MustAddDays(current.End, -span),
	}
	return prev, true, nil
}

// ResolveRange builds a window from explicit inclusive bounds.
func ResolveRange(start, end string) (Window, error) {
	if err := ValidateDate(start); err != nil {
		return Window{}, err
	}
	if err := ValidateDate(end); err != nil {
		return Window{}, err
	}
	if end < start {
		return Window{}, fmt.Errorf("%w: end %s before start %s", ErrInvalidDate, end, start)
	}
	return Window{Start: start, End: end}, nil
}

// Bucket selects the time-series grouping granularity.
type Bucket string

const (
	BucketDay   Bucket = "day"
	BucketWeek  Bucket = "week"
	BucketMonth Bucket = "month"
)

func ParseBucket(raw string) (Bucket, error) {
	switch Bucket(strings.ToLower(strings.TrimSpace(raw))) {
	case BucketDay:
		return BucketDay, nil
	case BucketWeek:
		return BucketWeek, nil
	case BucketMonth:
		return BucketMonth, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidBucket, raw)
	}
}

// horizonDays is the implied lookback when no explicit time range is given:
// enough days to fill a chart at the bucket's granularity.
func (b Bucket) horizonDays() int {
	switch b {
	case BucketWeek:
		return 84
	case BucketMonth:
		return 365
	default:
		return 30
	}
}

// TimeRange is an explicit chart lookback override; it wins over the
// bucket's implied horizon.
type TimeRange string

const (
	Range30d TimeRange = "30d"
	Range90d TimeRange = "90d"
	Range6m  TimeRange = "6m"
	Range1y  TimeRange = "1y"
	RangeAll TimeRange = "all"
)

func ParseTimeRange(raw string) (TimeRange, error) {
	switch TimeRange(strings.ToLower(strings.TrimSpace(raw))) {
	case Range30d:
		return Range30d, nil
	case Range90d:
		return Range90d, nil
	case Range6m:
		return Range6m, nil
	case Range1y:
		return Range1y, nil
	case RangeAll:
		return RangeAll, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTimeRange, raw)
	}
}

func (r TimeRange) days() int {
	switch r {
	case Range30d:
		return 30
	case Range90d:
		return 90
	case Range6m:
		return 183
	case Range1y:
		return 365
	default:
		return 0
	}
}

// ResolveChartWindow picks chart bounds from an optional explicit range,
// falling back to the bucket's implied horizon. The end bound carries the
// same one-day forward buffer as leaderboard windows.
func ResolveChartWindow(bucket Bucket, timeRange TimeRange, now time.Time) (Window, error) {
	switch bucket {
	case BucketDay, BucketWeek, BucketMonth:
	default:
		return Window{}, fmt.Errorf("%w: %q", ErrInvalidBucket, string(bucket))
	}
	today := DateOf(now)
	end := MustAddDays(today, 1)
	if timeRange == RangeAll {
		return Window{Start: EpochFloor, End: end}, nil
	}
	days := bucket.horizonDays()
	if timeRange != "" {
		d := timeRange.days()
		if d == 0 {
			return Window{}, fmt.Errorf("%w: %q", ErrInvalidTimeRange, string(timeRange))
		}
		days = d
	}
	return Window{Start: MustAddDays(today, -days), End: end}, nil
}

// DateOf formats a timestamp as a UTC calendar-date string.
func DateOf(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseDate parses a calendar-date string at UTC midnight.
func ParseDate(date string) (time.Time, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return t, nil
}

// ValidateDate rejects anything that is not a zero-padded ISO calendar date.
func ValidateDate(date string) error {
	_, err := ParseDate(date)
	return err
}

// AddDays shifts a date string by n calendar days.
func AddDays(date string, n int) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, n).Format(DateLayout), nil
}

// MustAddDays is AddDays for dates the caller already validated.
func MustAddDays(date string, n int) string {
	out, err := AddDays(date, n)
	if err != nil {
		panic(err)
	}
	return out
}

// WeekKey maps a date onto the Monday of its ISO week. Sunday belongs to the
// week that started six days earlier.
func WeekKey(date string) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	offset := int(t.Weekday()) - 1
	if t.Weekday() == time.Sunday {
		offset = 6
	}
	return t.AddDate(0, 0, -offset).Format(DateLayout), nil
}

// MonthKey maps a date onto the first day of its month.
func MonthKey(date string) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).Format(DateLayout), nil
}

// BucketKey maps a date onto its bucket key for the given granularity.
func BucketKey(date string, bucket Bucket) (string, error) {
	switch bucket {
	case BucketDay:
		if err := ValidateDate(date); err != nil {
			return "", err
		}
		return date, nil
	case BucketWeek:
		return WeekKey(date)
	case BucketMonth:
		return MonthKey(date)
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidBucket, string(bucket))
	}
}

package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tokenboard/tokenboard/internal/cache"
	"github.com/tokenboard/tokenboard/internal/config"
	"github.com/tokenboard/tokenboard/internal/leaderboard"
	"github.com/tokenboard/tokenboard/internal/observability"
	"github.com/tokenboard/tokenboard/internal/timeutil"
)

var (
	ErrInvalidPayload = errors.New("invalid sync payload")
	ErrTooManyDays    = errors.New("sync exceeds per-upload day limit")
)

const defaultMaxDays = 400

// Store persists replacement record sets for one user at a time.
type Store interface {
	ReplaceUserRecords(ctx context.Context, id leaderboard.UserID, records []leaderboard.UsageRecord) error
}

// DayUsage is one calendar day of usage as uploaded by a client.
type DayUsage struct {
	Date    string `json:"date"`
	UTCDate string `json:"utcDate,omitempty"`

	InputTokens         int64   `json:"inputTokens"`
	OutputTokens        int64   `json:"outputTokens"`
	CacheCreationTokens int64   `json:"cacheCreationTokens"`
	CacheReadTokens     int64   `json:"cacheReadTokens"`
	TotalTokens         int64   `json:"totalTokens"`
	TotalCost           float64 `json:"totalCost"`

	ModelsUsed []string `json:"modelsUsed,omitempty"`
}

// SyncRequest replaces the calling user's full record set. An empty Days
// slice clears the user's usage. IdempotencyKey, when set, fences retries:
// a second upload with the same key is acknowledged without being applied.
type SyncRequest struct {
	Days           []DayUsage `json:"days"`
	IdempotencyKey string     `json:"idempotencyKey,omitempty"`
}

type SyncResult struct {
	Applied bool `json:"applied"`
	Days    int  `json:"days"`
}

// Service validates and applies usage sync uploads.
type Service struct {
	store   Store
	fence   *cache.SyncFence
	metrics *observability.Provider
	maxDays int
	now     func() time.Time
}

func NewService(store Store, fence *cache.SyncFence, metrics *observability.Provider, cfg config.IngestConfig, now func() time.Time) *Service {
	maxDays := cfg.MaxDaysPerSync
	if maxDays <= 0 {
		maxDays = defaultMaxDays
	}
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:   store,
		fence:   fence,
		metrics: metrics,
		maxDays: maxDays,
		now:     now,
	}
}

// Sync validates the payload and replaces the user's stored records. The
// replace is all-or-nothing: any invalid day rejects the whole upload.
func (s *Service) Sync(ctx context.Context, userID leaderboard.UserID, req SyncRequest) (SyncResult, error) {
	if strings.TrimSpace(string(userID)) == "" {
		return s.reject(fmt.Errorf("%w: missing user id", ErrInvalidPayload))
	}
	if len(req.Days) > s.maxDays {
		return s.reject(fmt.Errorf("%w: %d days, limit %d", ErrTooManyDays, len(req.Days), s.maxDays))
	}

	records, err := s.buildRecords(userID, req.Days)
	if err != nil {
		return s.reject(err)
	}

	fenceKey := ""
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		fenceKey = string(userID) + ":" + key
		if !s.fence.Claim(ctx, fenceKey) {
			slog.Info("duplicate sync skipped", "user_id", userID, "idempotency_key", key)
			s.metrics.RecordSync("duplicate", 0, 0)
			return SyncResult{Applied: false, Days: len(records)}, nil
		}
	}

	if err := s.store.ReplaceUserRecords(ctx, userID, records); err != nil {
		if fenceKey != "" {
			s.fence.Release(ctx, fenceKey)
		}
		return SyncResult{}, fmt.Errorf("replace records: %w", err)
	}

	var inputTokens, outputTokens int64
	for _, r := range records {
		inputTokens += r.InputTokens
		outputTokens += r.OutputTokens
	}
	s.metrics.RecordSync("applied", inputTokens, outputTokens)
	slog.Info("usage sync applied", "user_id", userID, "days", len(records))
	return SyncResult{Applied: true, Days: len(records)}, nil
}

func (s *Service) buildRecords(userID leaderboard.UserID, days []DayUsage) ([]leaderboard.UsageRecord, error) {
	now := s.now().UTC()
	records := make([]leaderboard.UsageRecord, 0, len(days))
	seen := make(map[string]struct{}, len(days))

	for _, day := range days {
		if err := timeutil.ValidateDate(day.Date); err != nil {
			return nil, fmt.Errorf("%w: date %q: %v", ErrInvalidPayload, day.Date, err)
		}
		if day.UTCDate != "" {
			if err := timeutil.ValidateDate(day.UTCDate); err != nil {
				return nil, fmt.Errorf("%w: utc date %q: %v", ErrInvalidPayload, day.UTCDate, err)
			}
		}
		if _, ok := seen[day.Date]; ok {
			return nil, fmt.Errorf("%w: duplicate date %q", ErrInvalidPayload, day.Date)
		}
		seen[day.Date] = struct{}{}

		for name, v := range map[string]int64{
			"inputTokens":         day.InputTokens,
			"outputTokens":        day.OutputTokens,
			"cacheCreationTokens": day.CacheCreationTokens,
			"cacheReadTokens":     day.CacheReadTokens,
			"totalTokens":         day.TotalTokens,
		} {
			if v < 0 {
				return nil, fmt.Errorf("%w: negative %s on %s", ErrInvalidPayload, name, day.Date)
			}
		}
		if math.IsNaN(day.TotalCost) || math.IsInf(day.TotalCost, 0) || day.TotalCost < 0 {
			return nil, fmt.Errorf("%w: invalid totalCost on %s", ErrInvalidPayload, day.Date)
		}

		totalTokens := day.TotalTokens
		if totalTokens == 0 {
			totalTokens = day.InputTokens + day.OutputTokens + day.CacheCreationTokens + day.CacheReadTokens
		}

		records = append(records, leaderboard.UsageRecord{
			UserID:              userID,
			Date:                day.Date,
			UTCDate:             day.UTCDate,
			InputTokens:         day.InputTokens,
			OutputTokens:        day.OutputTokens,
			CacheCreationTokens: day.CacheCreationTokens,
			CacheReadTokens:     day.CacheReadTokens,
			TotalTokens:         totalTokens,
			TotalCost:           normalizeCost(day.TotalCost),
			ModelsUsed:          cleanModels(day.ModelsUsed),
			UpdatedAt:           now,
		})
	}
	return records, nil
}

func (s *Service) reject(err error) (SyncResult, error) {
	s.metrics.RecordSync("rejected", 0, 0)
	return SyncResult{}, err
}

// normalizeCost rounds a dollar amount to whole microdollars so stored
// values survive the float64 round trip through the micros column.
func normalizeCost(dollars float64) float64 {
	v, _ := decimal.NewFromFloat(dollars).Round(6).Float64()
	return v
}

func cleanModels(models []string) []string {
	out := make([]string, 0, len(models))
	seen := make(map[string]struct{}, len(models))
	for _, m := range models {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

package public

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/tokenboard/tokenboard/internal/app"
	"github.com/tokenboard/tokenboard/internal/httpserver/httputil"
	"github.com/tokenboard/tokenboard/internal/leaderboard"
	"github.com/tokenboard/tokenboard/internal/timeutil"
)

const defaultLeaderboardLimit = 50

// Register mounts the read API and the keyed sync endpoint.
func Register(router fiber.Router, container *app.Container) {
	h := &handler{container: container}

	api := router.Group("/api")
	api.Get("/leaderboard", h.leaderboard)
	api.Get("/stats", h.stats)
	api.Get("/overview", h.overview)
	api.Get("/charts/usage", h.usageChart)
	api.Get("/charts/users", h.userChart)
	api.Get("/users/:id/rank", h.userRank)
	api.Get("/users/:id/usage", h.userUsage)
	api.Post("/usage/sync", requireAPIKey(container), h.sync)
}

type handler struct {
	container *app.Container
}

func (h *handler) leaderboard(c *fiber.Ctx) error {
	params, err := leaderboardParams(c)
	if err != nil {
		return httputil.WriteServiceError(c, err)
	}
	entries, err := h.container.Leaderboard.Leaderboard(c.Context(), params)
	if err != nil {
		return httputil.WriteServiceError(c, err)
	}
	h.recordQuery("leaderboard", string(params.Period))
	return c.JSON(fiber.Map{"entries": entries})
}

func (h *handler) stats(c *fiber.Ctx) error {
	period, err := parsePeriod(c)
	if err != nil {
		return httputil.WriteServiceError(c, err)
	}
	stats, err := h.container.Leaderboard.Stats(c.Context(), period)
	if err != nil {
		return httputil.WriteServiceError(c, err)
	}
	h.recordQuery("stats", string(period))
	return c.JSON(stats)
}

func (h *handler) overview(c *fiber.Ctx) error {
	params, err := leaderboardParams(c)
	if err != nil {
		return httputil.WriteServiceError(c, err)
	}
	overview, err := h.container.Leaderboard.Overview(c.Context(), params)
	if err != nil {
		return httputil.WriteServiceError(c, err)
	}
	h.recordQuery("overview", string(params.Period))
	return c.JSON(overview)
}

func (h *handler) usageChart(c *fiber.Ctx) error {
	params, err := chartParams(c)
	if err != nil {
		return httputil.WriteServiceError(c, err)
	}
	points, err := h.container.Leaderboard.UsageChart(c.Context(), params)
	if err != nil {
		return httputil.WriteServiceError(c, err)
	}
	h.recordQuery("usage_chart", string(params.Bucket))
	return c.JSON(fiber.Map{"points": points})
}

func (h *handler) userChart(c *fiber.Ctx) error {
	base, err := chartParams(c)
	if err != nil {
		return httputil.WriteServiceError(c, err)
	}
	params := leaderboard.UserChartParams{
		Bucket:     base.Bucket,
		TimeRange:  base.TimeRange,
		Cumulative: base.Cumulative,
	}
	if raw := strings.TrimSpace(c.Query("top")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return httputil.WriteServiceError(c, leaderboard.ErrInvalidTopN)
		}
		params.TopN = n
	}
	chart, err := h.container.Leaderboard.UserChart(c.Context(), params)
	if err != nil {
		return httputil.WriteServiceError(c, err)
	}
	h.recordQuery("user_chart", string(params.Bucket))
	return c.JSON(chart)
}

func (h *handler) userRank(c *fiber.Ctx) error {
	period, err := parsePeriod(c)
	if err != nil {
		return httputil.WriteServiceError(c, err)
	}
	id := leaderboard.UserID(c.Params("id"))
	result, err := h.container.Leaderboard.UserRank(c.Context(), id, period)
	if err != nil {
		return httputil.WriteServiceError(c, err)
	}
	h.recordQuery("user_rank", string(period))
	return c.JSON(result)
}

func (h *handler) userUsage(c *fiber.Ctx) error {
	params, err := chartParams(c)
	if err != nil {
		return httputil.WriteServiceError(c, err)
	}
	id := leaderboard.UserID(c.Params("id"))
	points, err := h.container.Leaderboard.UserUsage(c.Context(), id, params)
	if err != nil {
		return httputil.WriteServiceError(c, err)
	}
	h.recordQuery("user_usage", string(params.Bucket))
	return c.JSON(fiber.Map{"points": points})
}

func (h *handler) recordQuery(kind, period string) {
	h.container.Observability.RecordQuery(kind, period)
}

func parsePeriod(c *fiber.Ctx) (timeutil.Period, error) {
	raw := strings.TrimSpace(c.Query("period"))
	if raw == "" {
		return timeutil.PeriodWeekly, nil
	}
	return timeutil.ParsePeriod(raw)
}

func leaderboardParams(c *fiber.Ctx) (leaderboard.LeaderboardParams, error) {
	period, err := parsePeriod(c)
	if err != nil {
		return leaderboard.LeaderboardParams{}, err
	}
	params := leaderboard.LeaderboardParams{
		Period: period,
		Team:   strings.TrimSpace(c.Query("team")),
		Limit:  defaultLeaderboardLimit,
	}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return leaderboard.LeaderboardParams{}, leaderboard.ErrInvalidLimit
		}
		params.Limit = limit
	}
	return params, nil
}

func chartParams(c *fiber.Ctx) (leaderboard.ChartParams, error) {
	params := leaderboard.ChartParams{Bucket: timeutil.BucketDay}
	if raw := strings.TrimSpace(c.Query("bucket")); raw != "" {
		bucket, err := timeutil.ParseBucket(raw)
		if err != nil {
			return leaderboard.ChartParams{}, err
		}
		params.Bucket = bucket
	}
	if raw := strings.TrimSpace(c.Query("range")); raw != "" {
		timeRange, err := timeutil.ParseTimeRange(raw)
		if err != nil {
			return leaderboard.ChartParams{}, err
		}
		params.TimeRange = timeRange
	}
	params.Cumulative = c.QueryBool("cumulative")
	return params, nil
}

package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tridentsec/trident-analytics/internal/history"
	"github.com/tridentsec/trident-analytics/internal/models"
	"github.com/tridentsec/trident-analytics/internal/scheduler"
	"github.com/tridentsec/trident-analytics/internal/services"
	"github.com/tridentsec/trident-analytics/internal/utils"
)

const refreshPath = "/api/v1/analytics/refresh"

// AnalyticsService is the behaviour the HTTP layer needs from the service facade.
type AnalyticsService interface {
	Snapshot() (*models.AnalyticsSnapshot, error)
	Refresh(ctx context.Context) (*models.AnalyticsSnapshot, error)
	History(ctx context.Context, opts history.QueryOpts) (services.HistoryView, error)
	SetAutoRefresh(enabled bool)
	AutoRefresh() (bool, scheduler.State)
	Subscribe() (<-chan *models.AnalyticsSnapshot, func())
}

// Handlers serves the analytics REST API.
type Handlers struct {
	logger  *slog.Logger
	service AnalyticsService
	now     func() time.Time
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(logger *slog.Logger, service AnalyticsService) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	h := &Handlers{logger: logger, service: service, now: time.Now}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	router.GET("/healthz", h.health)
	v1 := router.Group("/api/v1/analytics")
	{
		v1.GET("", h.getSnapshot)
		v1.POST("/refresh", h.refresh)
		v1.GET("/classification", h.getClassification)
		v1.GET("/baselines", h.getBaselineStats)
		v1.GET("/history", h.getHistory)
		v1.GET("/auto-refresh", h.getAutoRefresh)
		v1.PUT("/auto-refresh", h.putAutoRefresh)
	}
	router.GET("/ws", h.streamSnapshots)
	return router
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}

func (h *Handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// getSnapshot returns the latest snapshot. A cycle in which every source failed
// is still returned with 200; its error field carries the user-facing message.
func (h *Handlers) getSnapshot(c *gin.Context) {
	snap, ok := h.latest(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handlers) refresh(c *gin.Context) {
	snap, err := h.service.Refresh(c.Request.Context())
	if err != nil {
		if errors.Is(err, utils.ErrAllSourcesFailed) {
			c.JSON(http.StatusBadGateway, gin.H{
				"error":    utils.AllSourcesFailedMessage,
				"retry":    refreshPath,
				"snapshot": snap,
			})
			return
		}
		h.logger.Error("manual refresh failed", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh failed"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handlers) getClassification(c *gin.Context) {
	snap, ok := h.latest(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"cycle_id":         snap.CycleID,
		"classification":   snap.Classification,
		"confusion_matrix": snap.ConfusionMatrix,
	})
}

func (h *Handlers) getBaselineStats(c *gin.Context) {
	snap, ok := h.latest(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"cycle_id":       snap.CycleID,
		"total":          len(snap.Baselines),
		"baseline_stats": snap.BaselineStats,
	})
}

func (h *Handlers) getHistory(c *gin.Context) {
	opts, err := h.historyOpts(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	view, err := h.service.History(c.Request.Context(), opts)
	if err != nil {
		if errors.Is(err, services.ErrHistoryDisabled) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("history query failed", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handlers) getAutoRefresh(c *gin.Context) {
	enabled, state := h.service.AutoRefresh()
	c.JSON(http.StatusOK, gin.H{"enabled": enabled, "state": state})
}

func (h *Handlers) putAutoRefresh(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"enabled\": true|false}"})
		return
	}
	h.service.SetAutoRefresh(*req.Enabled)
	h.getAutoRefresh(c)
}

func (h *Handlers) latest(c *gin.Context) (*models.AnalyticsSnapshot, bool) {
	snap, err := h.service.Snapshot()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "retry": refreshPath})
		return nil, false
	}
	return snap, true
}

// historyOpts reads ?since= (RFC3339 timestamp or a duration such as 24h) and ?limit=.
func (h *Handlers) historyOpts(c *gin.Context) (history.QueryOpts, error) {
	var opts history.QueryOpts
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			opts.Since = h.now().Add(-d)
		} else if ts, err := utils.ParseTimestamp(raw); err == nil {
			opts.Since = ts
		} else {
			return opts, fmt.Errorf("invalid since %q", raw)
		}
	}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("invalid limit %q", raw)
		}
		opts.Limit = n
	}
	return opts, nil
}

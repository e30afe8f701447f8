package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printconnect/internal/config"
	"github.com/orrn/printconnect/internal/db"
)

const maxStatsDays = 90

type CodeController interface {
	Current() string
	ForceRotate(ctx context.Context) string
}

type CounterStore interface {
	Today(ctx context.Context) (*db.DailyCounter, error)
	GetCounters(ctx context.Context, from, to time.Time) ([]*db.DailyCounter, error)
}

type OTPResponse struct {
	OTP string `json:"otp"`
}

type StatsResponse struct {
	Today *db.DailyCounter   `json:"today"`
	Days  []*db.DailyCounter `json:"days"`
}

type ServerConfigResponse struct {
	Port            int    `json:"port"`
	UploadDir       string `json:"upload_dir"`
	DatabasePath    string `json:"database_path"`
	PrimaryPath     string `json:"primary_path"`
	FallbackPath    string `json:"fallback_path"`
	PrimaryTimeout  string `json:"primary_timeout"`
	FallbackReap    string `json:"fallback_reap_timeout"`
	SerializeDevice bool   `json:"serialize_device"`
	MaxUploadMB     int64  `json:"max_upload_mb"`
	RateLimit       int    `json:"rate_limit"`
	Webhooks        int    `json:"webhooks"`
	LogLevel        string `json:"log_level"`
	LogFormat       string `json:"log_format"`
}

// OperatorHandler backs the authenticated operator API. counters may be
// nil when persistence is disabled.
type OperatorHandler struct {
	codes    CodeController
	counters CounterStore
	config   *config.Config
}

func NewOperatorHandler(codes CodeController, counters CounterStore, cfg *config.Config) *OperatorHandler {
	return &OperatorHandler{
		codes:    codes,
		counters: counters,
		config:   cfg,
	}
}

func (h *OperatorHandler) GetOTP(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, OTPResponse{OTP: h.codes.Current()})
}

func (h *OperatorHandler) RotateOTP(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, OTPResponse{OTP: h.codes.ForceRotate(c.Request.Context())})
}

func (h *OperatorHandler) GetStats(c *gin.Context) {
	if h.counters == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Statistics are disabled"})
		return
	}

	days := 7
	if v := c.Query("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxStatsDays {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "days must be between 1 and 90"})
			return
		}
		days = n
	}

	ctx := c.Request.Context()
	today, err := h.counters.Today(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to load statistics"})
		return
	}

	now := time.Now()
	history, err := h.counters.GetCounters(ctx, now.AddDate(0, 0, -(days-1)), now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to load statistics"})
		return
	}

	c.JSON(http.StatusOK, StatsResponse{Today: today, Days: history})
}

func (h *OperatorHandler) GetServerConfig(c *gin.Context) {
	cfg := h.config
	c.JSON(http.StatusOK, ServerConfigResponse{
		Port:            cfg.Server.Port,
		UploadDir:       cfg.Storage.UploadDir,
		DatabasePath:    cfg.Database.Path,
		PrimaryPath:     cfg.Printing.Primary.Path,
		FallbackPath:    cfg.Printing.Fallback.Path,
		PrimaryTimeout:  cfg.Printing.PrimaryTimeout.String(),
		FallbackReap:    cfg.Printing.FallbackReap.String(),
		SerializeDevice: cfg.Printing.SerializeDevice,
		MaxUploadMB:     cfg.Server.MaxUploadMB,
		RateLimit:       cfg.Server.RateLimit,
		Webhooks:        len(cfg.Webhooks),
		LogLevel:        cfg.Logging.Level,
		LogFormat:       cfg.Logging.Format,
	})
}

func (h *OperatorHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/otp", h.GetOTP)
	r.POST("/otp/rotate", h.RotateOTP)
	r.GET("/stats", h.GetStats)
	r.GET("/settings/server", h.GetServerConfig)
}

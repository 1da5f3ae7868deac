package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Jeongbyungkyu/korea-investment/internal/api/response"
	"github.com/Jeongbyungkyu/korea-investment/internal/infra/database/postgres"
)

// DBHealth reports database health. *postgres.Pool satisfies it.
type DBHealth interface {
	Health(ctx context.Context) *postgres.HealthStatus
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	db        DBHealth // nil when persistence is disabled
	startTime time.Time
	version   string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db DBHealth, version string) *HealthHandler {
	return &HealthHandler{
		db:        db,
		startTime: time.Now(),
		version:   version,
	}
}

// SimpleHealthResponse represents a simple health check response
type SimpleHealthResponse struct {
	Status        string    `json:"status"`
	Version       string    `json:"version"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Timestamp     time.Time `json:"timestamp"`
}

// ReadyResponse represents a readiness check response
type ReadyResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]string      `json:"checks"`
	Database  *postgres.HealthStatus `json:"database,omitempty"`
}

// Health returns simple liveness check
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, SimpleHealthResponse{
		Status:        "healthy",
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Timestamp:     time.Now(),
	})
}

// Ready returns readiness check with dependency checks
// GET /health/ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{
		Status:    "ready",
		Timestamp: time.Now(),
		Checks:    map[string]string{},
	}

	if h.db == nil {
		resp.Checks["database"] = "disabled"
		response.JSON(w, http.StatusOK, resp)
		return
	}

	dbHealth := h.db.Health(r.Context())
	resp.Database = dbHealth
	switch dbHealth.Status {
	case postgres.StatusHealthy:
		resp.Checks["database"] = "ok"
	case postgres.StatusDegraded:
		resp.Checks["database"] = "degraded"
	default:
		resp.Checks["database"] = "failed"
		resp.Status = "not_ready"
		response.JSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	response.JSON(w, http.StatusOK, resp)
}

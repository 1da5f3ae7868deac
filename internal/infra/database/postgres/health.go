package postgres

import (
	"context"
	"fmt"
	"time"
)

// Health states
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthStatus represents database health status
type HealthStatus struct {
	Status       string    `json:"status"`
	ResponseTime string    `json:"response_time"` // e.g., "5ms"
	ActiveConns  int32     `json:"active_conns"`
	IdleConns    int32     `json:"idle_conns"`
	TotalConns   int32     `json:"total_conns"`
	MaxConns     int32     `json:"max_conns"`
	CheckedAt    time.Time `json:"checked_at"`
	Error        string    `json:"error,omitempty"`
}

// Health pings the database and reports pool usage.
func (p *Pool) Health(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{CheckedAt: start, Status: StatusHealthy}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := p.Ping(pingCtx); err != nil {
		status.Status = StatusUnhealthy
		status.Error = fmt.Sprintf("ping failed: %v", err)
		status.ResponseTime = time.Since(start).String()
		return status
	}

	stats := p.Stat()
	fillPoolStats(status, stats.AcquiredConns(), stats.IdleConns(), stats.TotalConns(), stats.MaxConns())
	status.ResponseTime = time.Since(start).String()
	return status
}

// fillPoolStats marks the pool degraded when at most two connections remain.
func fillPoolStats(s *HealthStatus, acquired, idle, total, max int32) {
	s.ActiveConns = acquired
	s.IdleConns = idle
	s.TotalConns = total
	s.MaxConns = max
	if max > 0 && acquired >= max-2 {
		s.Status = StatusDegraded
		s.Error = "connection pool nearly exhausted"
	}
}

// IsHealthy returns true if the database is healthy
func (p *Pool) IsHealthy(ctx context.Context) bool {
	return p.Health(ctx).Status == StatusHealthy
}

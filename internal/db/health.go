package db

import (
	"context"
	"time"
)

// HealthReporter is a store that reports query latency and pool pressure
// in addition to plain liveness.
type HealthReporter interface {
	Pinger
	HealthCheck(ctx context.Context) *HealthInfo
}

// HealthInfo contains database health check results.
// Status is one of the models.Status* values.
type HealthInfo struct {
	Timestamp    time.Time     `json:"timestamp"`
	Status       string        `json:"status"`
	Error        string        `json:"error,omitempty"`
	Warning      string        `json:"warning,omitempty"`
	PoolStats    PoolStats     `json:"pool_stats"`
	QueryLatency time.Duration `json:"query_latency_ns"`
}

// PoolStats contains connection pool statistics.
type PoolStats struct {
	OpenConnections int           `json:"open_connections"`
	InUse           int           `json:"in_use"`
	Idle            int           `json:"idle"`
	WaitCount       int64         `json:"wait_count"`
	WaitDuration    time.Duration `json:"wait_duration_ns"`
}

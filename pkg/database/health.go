package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// HealthStatus is the database section of the health endpoint: one ping
// round trip plus pool gauges from database/sql.
type HealthStatus struct {
	Healthy   bool  `json:"healthy"`
	LatencyMS int64 `json:"latency_ms"`
	Open      int   `json:"open_connections,omitempty"`
	InUse     int   `json:"in_use,omitempty"`
	Idle      int   `json:"idle,omitempty"`
	MaxOpen   int   `json:"max_open,omitempty"`
}

// Health pings the database and snapshots its pool.
func Health(ctx context.Context, db *sql.DB) (*HealthStatus, error) {
	start := time.Now()
	err := db.PingContext(ctx)
	st := &HealthStatus{
		Healthy:   err == nil,
		LatencyMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		return st, fmt.Errorf("database ping failed: %w", err)
	}

	stats := db.Stats()
	st.Open = stats.OpenConnections
	st.InUse = stats.InUse
	st.Idle = stats.Idle
	st.MaxOpen = stats.MaxOpenConnections
	return st, nil
}

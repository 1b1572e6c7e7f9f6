package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/segyhp/amortization-engine/pkg/response"
)

type dbPinger interface {
	PingContext(ctx context.Context) error
}

type redisPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// HealthHandler serves liveness and readiness. Readiness needs both the plan
// store and the redis instance that holds the loan locks.
type HealthHandler struct {
	checks  []dependencyCheck
	timeout time.Duration
}

type dependencyCheck struct {
	name  string
	check func(ctx context.Context) error
}

func NewHealthHandler(db dbPinger, redisClient redisPinger, timeout time.Duration) *HealthHandler {
	return &HealthHandler{
		checks: []dependencyCheck{
			{name: "database", check: db.PingContext},
			{name: "redis", check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
		},
		timeout: timeout,
	}
}

type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Health reports that the process is up
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.Success(w, HealthStatus{Status: "ok", Timestamp: time.Now().UTC()})
}

// Ready pings every dependency within the configured timeout
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]string, len(h.checks)),
	}
	for _, dep := range h.checks {
		if err := dep.check(ctx); err != nil {
			log.Warn().Err(err).Str("dependency", dep.name).Msg("readiness check failed")
			status.Status = "error"
			status.Checks[dep.name] = "failed: " + err.Error()
			continue
		}
		status.Checks[dep.name] = "ok"
	}

	if status.Status != "ok" {
		response.JSON(w, http.StatusServiceUnavailable, status)
		return
	}
	response.Success(w, status)
}

package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// HealthStatus is the state of one check or of the whole process.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// DefaultCheckTimeout bounds checks registered without a timeout.
const DefaultCheckTimeout = 5 * time.Second

// HealthCheck tests one dependency. A failing critical check makes the
// process unhealthy; any other failure only degrades it.
type HealthCheck struct {
	Name      string
	CheckFunc func(context.Context) error
	Timeout   time.Duration
	Critical  bool
}

// CheckStatus is the outcome of one check.
type CheckStatus struct {
	Status   HealthStatus `json:"status"`
	Message  string       `json:"message,omitempty"`
	Duration string       `json:"duration"`
}

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status     HealthStatus           `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
	Version    string                 `json:"version"`
	Uptime     string                 `json:"uptime"`
	Checks     map[string]CheckStatus `json:"checks"`
	Goroutines int                    `json:"goroutines"`
}

// HealthChecker runs the registered checks on demand.
type HealthChecker struct {
	mu     sync.RWMutex
	checks map[string]*HealthCheck
}

var (
	startTime = time.Now()

	versionMu sync.RWMutex
	version   = "dev"

	checkerOnce   sync.Once
	globalChecker *HealthChecker
)

// InitHealthChecker returns the process-wide checker served by /health.
func InitHealthChecker() *HealthChecker {
	checkerOnce.Do(func() {
		globalChecker = &HealthChecker{checks: make(map[string]*HealthCheck)}
	})
	return globalChecker
}

// SetVersion sets the version reported by /health.
func SetVersion(v string) {
	versionMu.Lock()
	defer versionMu.Unlock()
	version = v
}

func currentVersion() string {
	versionMu.RLock()
	defer versionMu.RUnlock()
	return version
}

// RegisterCheck adds check, replacing any check with the same name.
func (hc *HealthChecker) RegisterCheck(check *HealthCheck) {
	if check.Timeout <= 0 {
		check.Timeout = DefaultCheckTimeout
	}
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[check.Name] = check
}

// Check runs every check concurrently.
func (hc *HealthChecker) Check(ctx context.Context) HealthResponse {
	hc.mu.RLock()
	checks := make([]*HealthCheck, 0, len(hc.checks))
	for _, c := range hc.checks {
		checks = append(checks, c)
	}
	hc.mu.RUnlock()

	results := make([]CheckStatus, len(checks))
	var g errgroup.Group
	for i, c := range checks {
		g.Go(func() error {
			results[i] = runCheck(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	resp := HealthResponse{
		Status:     HealthStatusHealthy,
		Timestamp:  time.Now(),
		Version:    currentVersion(),
		Uptime:     time.Since(startTime).Round(time.Second).String(),
		Checks:     make(map[string]CheckStatus, len(checks)),
		Goroutines: goroutineCount(),
	}
	for i, c := range checks {
		resp.Checks[c.Name] = results[i]
		switch results[i].Status {
		case HealthStatusUnhealthy:
			resp.Status = HealthStatusUnhealthy
		case HealthStatusDegraded:
			if resp.Status == HealthStatusHealthy {
				resp.Status = HealthStatusDegraded
			}
		}
	}
	return resp
}

func runCheck(ctx context.Context, c *HealthCheck) CheckStatus {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- c.CheckFunc(ctx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	st := CheckStatus{Status: HealthStatusHealthy, Duration: time.Since(start).String()}
	if err != nil {
		st.Status = HealthStatusDegraded
		if c.Critical {
			st.Status = HealthStatusUnhealthy
		}
		st.Message = err.Error()
	}
	return st
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// HealthHandler serves the full report. Only an unhealthy process answers 503.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := InitHealthChecker().Check(r.Context())
		code := http.StatusOK
		if resp.Status == HealthStatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}

func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// ReadinessHandler answers 200 only while every check passes.
func ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if InitHealthChecker().Check(r.Context()).Status != HealthStatusHealthy {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// PingCheck always passes.
func PingCheck() *HealthCheck {
	return &HealthCheck{
		Name:      "ping",
		CheckFunc: func(context.Context) error { return nil },
		Timeout:   time.Second,
	}
}

// RedisCheck pings the Redis server behind the shared blackboard and the
// task queue.
func RedisCheck(ping func(context.Context) error) *HealthCheck {
	return &HealthCheck{Name: "redis", CheckFunc: ping, Critical: true}
}

// QueueCheck degrades the process while more than limit remote tasks wait.
func QueueCheck(pending func(context.Context) (int64, error), limit int64) *HealthCheck {
	return &HealthCheck{
		Name: "queue",
		CheckFunc: func(ctx context.Context) error {
			n, err := pending(ctx)
			if err != nil {
				return err
			}
			if n > limit {
				return fmt.Errorf("%d tasks pending, limit %d", n, limit)
			}
			return nil
		},
	}
}

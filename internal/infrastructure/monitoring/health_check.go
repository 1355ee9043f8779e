package monitoring

import (
	"context"
	"sync"
	"time"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

type HealthChecker struct {
	mu       sync.RWMutex
	checks   []HealthCheck
	results  map[string]checkResult
	onResult []func(name string, healthy bool)
}

type HealthCheck struct {
	Name     string
	Check    func(ctx context.Context) (bool, error)
	Interval time.Duration
	Timeout  time.Duration
}

type checkResult struct {
	healthy bool
	detail  string
}

type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{results: make(map[string]checkResult)}
}

func (h *HealthChecker) AddCheck(name string, check func(ctx context.Context) (bool, error), interval, timeout time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.checks = append(h.checks, HealthCheck{
		Name:     name,
		Check:    check,
		Interval: interval,
		Timeout:  timeout,
	})
}

// OnResult registers fn to be told the outcome of every check run.
func (h *HealthChecker) OnResult(fn func(name string, healthy bool)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onResult = append(h.onResult, fn)
}

// CheckAll runs every check concurrently, each bounded by its own timeout.
func (h *HealthChecker) CheckAll(ctx context.Context) HealthStatus {
	h.mu.RLock()
	checks := append([]HealthCheck(nil), h.checks...)
	h.mu.RUnlock()

	var wg sync.WaitGroup
	for _, check := range checks {
		wg.Add(1)
		go func(check HealthCheck) {
			defer wg.Done()
			h.run(ctx, check)
		}(check)
	}
	wg.Wait()

	return h.Snapshot()
}

// Snapshot reports the last recorded result of each check without running
// any. Checks that never ran are omitted.
func (h *HealthChecker) Snapshot() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]string, len(h.results)),
	}
	for name, r := range h.results {
		status.Checks[name] = r.detail
		if !r.healthy {
			status.Status = StatusUnhealthy
		}
	}
	return status
}

func (h *HealthChecker) run(ctx context.Context, check HealthCheck) {
	checkCtx, cancel := context.WithTimeout(ctx, check.Timeout)
	healthy, err := check.Check(checkCtx)
	cancel()

	r := checkResult{healthy: healthy && err == nil, detail: StatusHealthy}
	switch {
	case err != nil:
		r.detail = err.Error()
	case !healthy:
		r.detail = "check failed"
	}

	h.mu.Lock()
	h.results[check.Name] = r
	hooks := append([]func(string, bool){}, h.onResult...)
	h.mu.Unlock()

	for _, fn := range hooks {
		fn(check.Name, r.healthy)
	}
}

// StartBackgroundChecks runs each check on its own interval until ctx is
// done, keeping Snapshot current.
func (h *HealthChecker) StartBackgroundChecks(ctx context.Context) {
	h.mu.RLock()
	checks := append([]HealthCheck(nil), h.checks...)
	h.mu.RUnlock()

	for _, check := range checks {
		go h.runCheckPeriodically(ctx, check)
	}
}

func (h *HealthChecker) runCheckPeriodically(ctx context.Context, check HealthCheck) {
	h.run(ctx, check)

	ticker := time.NewTicker(check.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.run(ctx, check)
		}
	}
}

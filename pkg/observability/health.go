package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck checks one dependency.
type HealthCheck func(ctx context.Context) error

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name     string        `json:"name"`
	Status   HealthStatus  `json:"status"`
	Critical bool          `json:"critical"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// HealthReport aggregates every registered check.
type HealthReport struct {
	Status    HealthStatus  `json:"status"`
	CheckedAt time.Time     `json:"checked_at"`
	Checks    []CheckResult `json:"checks"`
}

type registeredCheck struct {
	critical bool
	check    HealthCheck
}

// HealthRegistry runs named checks. A failing critical check makes the
// report unhealthy; a failing optional one only degrades it.
type HealthRegistry struct {
	mu      sync.RWMutex
	checks  map[string]registeredCheck
	timeout time.Duration
}

// NewHealthRegistry creates a registry that gives each check timeout to finish.
func NewHealthRegistry(timeout time.Duration) *HealthRegistry {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthRegistry{
		checks:  make(map[string]registeredCheck),
		timeout: timeout,
	}
}

// Register adds or replaces the check called name.
func (r *HealthRegistry) Register(name string, critical bool, check HealthCheck) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[name] = registeredCheck{critical: critical, check: check}
}

// Check runs all checks concurrently.
func (r *HealthRegistry) Check(ctx context.Context) HealthReport {
	r.mu.RLock()
	checks := make(map[string]registeredCheck, len(r.checks))
	for name, c := range r.checks {
		checks[name] = c
	}
	r.mu.RUnlock()

	results := make([]CheckResult, 0, len(checks))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, c := range checks {
		wg.Add(1)
		go func(name string, c registeredCheck) {
			defer wg.Done()
			res := r.run(ctx, name, c)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}(name, c)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return HealthReport{
		Status:    overall(results),
		CheckedAt: time.Now().UTC(),
		Checks:    results,
	}
}

func (r *HealthRegistry) run(ctx context.Context, name string, c registeredCheck) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	err := c.check(checkCtx)
	res := CheckResult{
		Name:     name,
		Status:   HealthStatusHealthy,
		Critical: c.critical,
		Duration: time.Since(start),
	}
	if err != nil {
		res.Status = HealthStatusUnhealthy
		res.Error = err.Error()
	}
	return res
}

func overall(results []CheckResult) HealthStatus {
	status := HealthStatusHealthy
	for _, res := range results {
		if res.Status == HealthStatusHealthy {
			continue
		}
		if res.Critical {
			return HealthStatusUnhealthy
		}
		status = HealthStatusDegraded
	}
	return status
}

// Handler serves the report as JSON, with 503 when unhealthy.
func (r *HealthRegistry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		report := r.Check(req.Context())
		w.Header().Set("Content-Type", "application/json")
		if report.Status == HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(report)
	})
}

// PingCheck adapts anything with a Ping method, such as a database
// connection or a broker publisher.
func PingCheck(p interface{ Ping(context.Context) error }) HealthCheck {
	return p.Ping
}

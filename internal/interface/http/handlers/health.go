package handlers

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// HealthChecker reports the state of the service and its dependencies.
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
	AddCheck(name string, check HealthCheckFunc)
}

// HealthCheckFunc probes one dependency. A non-nil error marks it unhealthy.
type HealthCheckFunc func(ctx context.Context) error

// HealthStatus is the body of /health.
type HealthStatus struct {
	Healthy   bool                   `json:"healthy"`
	Ready     bool                   `json:"ready"`
	Message   string                 `json:"message,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

// CheckResult is the outcome of one probe.
type CheckResult struct {
	Healthy  bool   `json:"healthy"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`

	// Optional probes never make the service unhealthy.
	Optional bool `json:"optional,omitempty"`
}

type probe struct {
	fn       HealthCheckFunc
	optional bool
}

// CompositeHealthChecker runs named probes in parallel, each under its own
// timeout, and folds the results into one HealthStatus.
type CompositeHealthChecker struct {
	mu      sync.RWMutex
	probes  map[string]probe
	started time.Time
	version string
	timeout time.Duration
}

// NewCompositeHealthChecker creates a checker with a 5s per-probe timeout.
func NewCompositeHealthChecker(version string) *CompositeHealthChecker {
	return &CompositeHealthChecker{
		probes:  make(map[string]probe),
		started: time.Now(),
		version: version,
		timeout: 5 * time.Second,
	}
}

// AddCheck registers a probe that must pass for the service to be healthy.
func (c *CompositeHealthChecker) AddCheck(name string, check HealthCheckFunc) {
	c.add(name, probe{fn: check})
}

// AddOptionalCheck registers a probe that is reported but never fails the
// service. The cache is optional: reads fall back to the store without it.
func (c *CompositeHealthChecker) AddOptionalCheck(name string, check HealthCheckFunc) {
	c.add(name, probe{fn: check, optional: true})
}

func (c *CompositeHealthChecker) add(name string, p probe) {
	c.mu.Lock()
	c.probes[name] = p
	c.mu.Unlock()
}

// Check runs every probe and aggregates the results.
func (c *CompositeHealthChecker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	probes := make(map[string]probe, len(c.probes))
	for name, p := range c.probes {
		probes[name] = p
	}
	c.mu.RUnlock()

	status := HealthStatus{
		Healthy:   true,
		Ready:     true,
		Checks:    make(map[string]CheckResult, len(probes)),
		Uptime:    time.Since(c.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Version:   c.version,
	}
	if len(probes) == 0 {
		status.Message = "No health checks registered"
		return status
	}

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	for name, p := range probes {
		g.Go(func() error {
			res := c.run(ctx, p)
			mu.Lock()
			status.Checks[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var failed []string
	for name, res := range status.Checks {
		if !res.Healthy && !res.Optional {
			failed = append(failed, name)
		}
	}
	if len(failed) == 0 {
		status.Message = "All checks passed"
		return status
	}

	slices.Sort(failed)
	status.Healthy = false
	status.Ready = false
	status.Message = "Some checks failed: " + strings.Join(failed, ", ")
	return status
}

func (c *CompositeHealthChecker) run(ctx context.Context, p probe) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := p.fn(ctx)
	res := CheckResult{
		Healthy:  err == nil,
		Message:  "OK",
		Duration: time.Since(start).Round(time.Millisecond).String(),
		Optional: p.optional,
	}
	if err != nil {
		res.Message = err.Error()
	}
	return res
}

// Pinger is anything that can be pinged, such as the database or the cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewPingCheck adapts a Pinger to a HealthCheckFunc.
func NewPingCheck(p Pinger) HealthCheckFunc {
	return p.Ping
}

// NoopHealthChecker is always healthy. The server uses it when no checker is
// wired.
type NoopHealthChecker struct {
	started time.Time
}

// NewNoopHealthChecker creates a NoopHealthChecker.
func NewNoopHealthChecker() *NoopHealthChecker {
	return &NoopHealthChecker{started: time.Now()}
}

// Check always reports healthy.
func (n *NoopHealthChecker) Check(context.Context) HealthStatus {
	return HealthStatus{
		Healthy:   true,
		Ready:     true,
		Message:   "OK",
		Uptime:    time.Since(n.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
	}
}

// AddCheck is a no-op.
func (n *NoopHealthChecker) AddCheck(string, HealthCheckFunc) {}

// internal/startup/checker.go
package startup

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/netrahq/netra/internal/config"
)

// Priority tiers a check. Critical checks get the shortest timeouts so
// they fail fast; background checks run after the critical path, off
// the startup clock.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityBackground
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityBackground:
		return "background"
	default:
		return "unknown"
	}
}

// Check is one startup probe: an explicit descriptor, not a bound
// method discovered by reflection.
type Check struct {
	Name     string
	Priority Priority
	Timeout  time.Duration
	Run      func(ctx context.Context) CheckResult

	// nonCriticalOnCrash downgrades unexpected crashes inside the
	// check. Only the assistant bootstrap uses it.
	nonCriticalOnCrash bool
}

// group is one ordered category of checks. Later groups assume that
// earlier infrastructure is in place, so group order is fixed.
type group struct {
	name       string
	concurrent bool
	checks     []Check
}

// outcome tags per-check control flow: either the run continues or a
// staging environment demands an immediate abort.
type outcome struct {
	abort  bool
	reason string
}

var outcomeContinue = outcome{}

func abortStaging(reason string) outcome {
	return outcome{abort: true, reason: reason}
}

// BackgroundState describes one background check task.
type BackgroundState string

const (
	BackgroundPending   BackgroundState = "pending"
	BackgroundRunning   BackgroundState = "running"
	BackgroundCompleted BackgroundState = "completed"
	BackgroundFailed    BackgroundState = "failed"
)

type backgroundTask struct {
	state  BackgroundState
	result CheckResult
}

// Checker runs the prioritized startup check battery. One Checker is
// built per boot; RunAllChecks is a single pass and holds no state
// across calls.
type Checker struct {
	cfg    *config.Config
	sctx   *Context
	logger *zap.Logger

	groups          []group
	backgroundGrace time.Duration

	mu       sync.Mutex
	bgTasks  map[string]*backgroundTask
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup

	// Injectable probes, swapped in tests.
	virtualMemory func() (*mem.VirtualMemoryStat, error)
	lookupHost    func(ctx context.Context, host string) ([]string, error)
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithBackgroundGrace sets the delay before background checks start.
func WithBackgroundGrace(d time.Duration) CheckerOption {
	return func(c *Checker) {
		c.backgroundGrace = d
	}
}

// NewChecker builds the check battery for one boot.
func NewChecker(cfg *config.Config, sctx *Context, logger *zap.Logger, opts ...CheckerOption) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sctx == nil {
		sctx = &Context{}
	}
	c := &Checker{
		cfg:             cfg,
		sctx:            sctx,
		logger:          logger,
		backgroundGrace: 2 * time.Second,
		bgTasks:         make(map[string]*backgroundTask),
		virtualMemory:   mem.VirtualMemory,
		lookupHost: func(ctx context.Context, host string) ([]string, error) {
			return net.DefaultResolver.LookupHost(ctx, host)
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.groups = []group{
		{name: "environment", checks: []Check{
			{Name: CheckEnvironmentVariables, Priority: PriorityCritical, Timeout: 2 * time.Second, Run: c.checkEnvironmentVariables},
		}},
		{name: "configuration", checks: []Check{
			{Name: CheckConfiguration, Priority: PriorityCritical, Timeout: 2 * time.Second, Run: c.checkConfiguration},
		}},
		{name: "filesystem", checks: []Check{
			{Name: CheckFilePermissions, Priority: PriorityHigh, Timeout: 5 * time.Second, Run: c.checkFilePermissions},
		}},
		{name: "database", checks: []Check{
			{Name: CheckDatabaseConnection, Priority: PriorityCritical, Timeout: 10 * time.Second, Run: c.checkDatabaseConnection},
		}},
		{name: "services", concurrent: true, checks: []Check{
			{Name: CheckRedis, Priority: PriorityMedium, Timeout: 5 * time.Second, Run: c.checkRedis},
			{Name: CheckClickHouse, Priority: PriorityMedium, Timeout: 10 * time.Second, Run: c.checkClickHouse},
			{Name: CheckLLMProviders, Priority: PriorityMedium, Timeout: 10 * time.Second, Run: c.checkLLMProviders},
		}},
		{name: "system", concurrent: true, checks: []Check{
			{Name: CheckMemoryResources, Priority: PriorityMedium, Timeout: 5 * time.Second, Run: c.checkMemoryResources},
			{Name: CheckNetworkConnectivity, Priority: PriorityMedium, Timeout: 10 * time.Second, Run: c.checkNetworkConnectivity},
			{Name: CheckAssistantBootstrap, Priority: PriorityMedium, Timeout: 10 * time.Second, Run: c.checkAssistantBootstrap, nonCriticalOnCrash: true},
		}},
	}

	return c
}

// backgroundChecks are scheduled after the critical path completes.
func (c *Checker) backgroundChecks() []Check {
	return []Check{
		{Name: CheckConnectionPoolWarmup, Priority: PriorityBackground, Timeout: 30 * time.Second, Run: c.checkConnectionPoolWarmup},
	}
}

// RunAllChecks executes the battery in fixed category order. Sequential
// categories run their checks in order; the services and system
// categories fan out concurrently with per-check isolation. In staging
// any failing check aborts the run immediately.
//
// The returned error is non-nil when the host must not finish starting:
// critical failures anywhere, or any failure in staging.
func (c *Checker) RunAllChecks(ctx context.Context) (*Report, error) {
	if c.cfg.SkipChecks() {
		c.logger.Warn("startup checks skipped by configuration")
		return skippedReport(), nil
	}

	start := time.Now()
	var results []CheckResult

	for _, g := range c.groups {
		groupResults, oc := c.runGroup(ctx, g)
		results = append(results, groupResults...)
		if oc.abort {
			report := buildReport(results, msSince(start))
			return report, fmt.Errorf("startup aborted in staging: %s\n%s",
				oc.reason, failureSummary(report.Failures))
		}
	}

	report := buildReport(results, msSince(start))

	if err := c.escalate(report); err != nil {
		return report, err
	}

	c.scheduleBackground(ctx)

	c.logger.Info("startup checks complete",
		zap.Int("total", report.TotalChecks),
		zap.Int("passed", report.Passed),
		zap.Int("failed_critical", report.FailedCritical),
		zap.Int("failed_non_critical", report.FailedNonCritical),
		zap.Float64("duration_ms", report.DurationMS))

	return report, nil
}

// escalate applies the orchestration-level policy: critical failures
// always abort; staging escalates non-critical failures to fatal too.
func (c *Checker) escalate(report *Report) error {
	if report.FailedCritical > 0 {
		return fmt.Errorf("startup failed: %d critical checks failed\n%s",
			report.FailedCritical, failureSummary(report.Failures))
	}
	if c.cfg.IsStaging() && report.FailedNonCritical > 0 {
		return fmt.Errorf("startup failed: %d non-critical checks failed in staging\n%s",
			report.FailedNonCritical, failureSummary(report.Failures))
	}
	return nil
}

// runGroup executes one category. Concurrent groups fire every check,
// await them all, and collect results in declared order; one check's
// failure never cancels its siblings.
func (c *Checker) runGroup(ctx context.Context, g group) ([]CheckResult, outcome) {
	if !g.concurrent {
		var results []CheckResult
		for _, check := range g.checks {
			result := c.executeCheck(ctx, check)
			results = append(results, result)
			if oc := c.stagingOutcome(result); oc.abort {
				return results, oc
			}
		}
		return results, outcomeContinue
	}

	results := make([]CheckResult, len(g.checks))
	var wg sync.WaitGroup
	for i, check := range g.checks {
		wg.Add(1)
		go func(i int, check Check) {
			defer wg.Done()
			results[i] = c.executeCheck(ctx, check)
		}(i, check)
	}
	wg.Wait()

	for _, result := range results {
		if oc := c.stagingOutcome(result); oc.abort {
			return results, oc
		}
	}
	return results, outcomeContinue
}

// stagingOutcome converts a failing result into an abort in staging.
// Staging has zero tolerance for partial failure before promotion.
func (c *Checker) stagingOutcome(result CheckResult) outcome {
	if !result.Success && c.cfg.IsStaging() {
		return abortStaging(fmt.Sprintf("check %s failed: %s", result.Name, result.Message))
	}
	return outcomeContinue
}

// executeCheck times one check under its own deadline. Crashes inside
// the check become failure results (non-critical for checks flagged
// that way); a missed deadline becomes a TIMEOUT result subject to the
// same escalation rules as a failure.
func (c *Checker) executeCheck(ctx context.Context, check Check) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, check.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan CheckResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				result := Failed(check.Name, fmt.Sprintf("check crashed: %v", r))
				if check.nonCriticalOnCrash {
					result = result.NonCritical()
				}
				done <- result
			}
		}()
		done <- check.Run(checkCtx)
	}()

	var result CheckResult
	select {
	case result = <-done:
	case <-checkCtx.Done():
		result = CheckResult{
			Name:     check.Name,
			Success:  false,
			Message:  fmt.Sprintf("timed out after %v", check.Timeout),
			Critical: check.Priority == PriorityCritical,
			Status:   StatusTimeout,
		}
	}

	result.DurationMS = msSince(start)

	c.logger.Debug("startup check finished",
		zap.String("check", check.Name),
		zap.Bool("success", result.Success),
		zap.String("status", string(result.Status)),
		zap.Float64("duration_ms", result.DurationMS))

	return result
}

// scheduleBackground launches the background tier after a grace delay.
// Tasks are tracked for later inspection and cancelled on Close.
func (c *Checker) scheduleBackground(ctx context.Context) {
	checks := c.backgroundChecks()
	if len(checks) == 0 {
		return
	}

	bgCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	c.mu.Lock()
	c.bgCancel = cancel
	for _, check := range checks {
		c.bgTasks[check.Name] = &backgroundTask{state: BackgroundPending}
	}
	c.mu.Unlock()

	for _, check := range checks {
		check := check
		c.bgWG.Add(1)
		go func() {
			defer c.bgWG.Done()

			select {
			case <-time.After(c.backgroundGrace):
			case <-bgCtx.Done():
				return
			}

			c.setBackgroundState(check.Name, BackgroundRunning, CheckResult{})
			result := c.executeCheck(bgCtx, check)

			state := BackgroundCompleted
			if !result.Success {
				state = BackgroundFailed
			}
			c.setBackgroundState(check.Name, state, result)
		}()
	}
}

func (c *Checker) setBackgroundState(name string, state BackgroundState, result CheckResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	task := c.bgTasks[name]
	if task == nil {
		return
	}
	task.state = state
	if state == BackgroundCompleted || state == BackgroundFailed {
		task.result = result
	}
}

// BackgroundTaskStatus reports the state of every background check.
func (c *Checker) BackgroundTaskStatus() map[string]BackgroundState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]BackgroundState, len(c.bgTasks))
	for name, task := range c.bgTasks {
		out[name] = task.state
	}
	return out
}

// BackgroundResult returns a completed background check's result.
func (c *Checker) BackgroundResult(name string) (CheckResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	task := c.bgTasks[name]
	if task == nil || (task.state != BackgroundCompleted && task.state != BackgroundFailed) {
		return CheckResult{}, false
	}
	return task.result, true
}

// Close cancels pending background tasks and waits for them to stop.
func (c *Checker) Close() {
	c.mu.Lock()
	cancel := c.bgCancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.bgWG.Wait()
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}

package monitor

import (
	"sync"
	"time"
)

// MaxConsecutiveErrors is how many failed rebuilds in a row are tolerated
// before the monitor reports unhealthy.
const MaxConsecutiveErrors = 3

// BuildMonitor tracks dataset rebuild health and failures.
type BuildMonitor struct {
	mu                sync.RWMutex
	maxAge            time.Duration
	lastSuccess       time.Time
	lastAttempt       time.Time
	consecutiveErrors int
	lastError         string
	buildID           string
	records           int
}

// NewBuildMonitor creates a monitor. A successful build older than maxAge
// is stale; zero disables the check.
func NewBuildMonitor(maxAge time.Duration) *BuildMonitor {
	return &BuildMonitor{maxAge: maxAge}
}

// RecordSuccess records a successful rebuild.
func (bm *BuildMonitor) RecordSuccess(buildID string, records int) {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	now := time.Now()
	bm.lastSuccess = now
	bm.lastAttempt = now
	bm.consecutiveErrors = 0
	bm.lastError = ""
	bm.buildID = buildID
	bm.records = records
}

// RecordFailure records a failed rebuild. The last good build id is kept.
func (bm *BuildMonitor) RecordFailure(err error) {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	bm.lastAttempt = time.Now()
	bm.consecutiveErrors++
	if err != nil {
		bm.lastError = err.Error()
	}
}

// IsHealthy returns true if rebuilds are working.
// Unhealthy conditions:
//   - Never succeeded
//   - Last success older than maxAge
//   - More than MaxConsecutiveErrors consecutive failures
func (bm *BuildMonitor) IsHealthy() bool {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	return bm.healthy()
}

func (bm *BuildMonitor) healthy() bool {
	if bm.lastSuccess.IsZero() {
		return false
	}
	if bm.maxAge > 0 && time.Since(bm.lastSuccess) > bm.maxAge {
		return false
	}
	return bm.consecutiveErrors <= MaxConsecutiveErrors
}

// BuildStatus is the rebuild section of the health response.
type BuildStatus struct {
	Healthy           bool   `json:"healthy"`
	BuildID           string `json:"build_id,omitempty"`
	Records           int    `json:"records"`
	LastSuccess       string `json:"last_success,omitempty"`
	TimeSinceSuccess  string `json:"time_since_success,omitempty"`
	LastAttempt       string `json:"last_attempt,omitempty"`
	ConsecutiveErrors int    `json:"consecutive_errors,omitempty"`
	LastError         string `json:"last_error,omitempty"`
}

// Status returns current rebuild status for health checks.
func (bm *BuildMonitor) Status() BuildStatus {
	bm.mu.RLock()
	defer bm.mu.RUnlock()

	status := BuildStatus{
		Healthy: bm.healthy(),
		BuildID: bm.buildID,
		Records: bm.records,
	}

	if !bm.lastSuccess.IsZero() {
		status.LastSuccess = bm.lastSuccess.Format(time.RFC3339)
		status.TimeSinceSuccess = time.Since(bm.lastSuccess).Round(time.Second).String()
	}

	if !bm.lastAttempt.IsZero() {
		status.LastAttempt = bm.lastAttempt.Format(time.RFC3339)
	}

	if bm.consecutiveErrors > 0 {
		status.ConsecutiveErrors = bm.consecutiveErrors
		status.LastError = bm.lastError
	}

	return status
}

package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

var startTime = time.Now()

const maxRecentErrors = 10

// HealthChecker reports whether the engine loop is alive and trading
type HealthChecker struct {
	mu        sync.RWMutex
	staleTick time.Duration
	lastTick  time.Time
	lastBar   time.Time
	haltCause string
	errors    []string
	breakers  func() map[string]string
	now       func() time.Time
}

// HealthStatus is the JSON body of the health endpoint
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	LastTick  time.Time         `json:"last_tick"`
	LastBar   time.Time         `json:"last_bar"`
	Halted    string            `json:"halted,omitempty"`
	Breakers  map[string]string `json:"breakers,omitempty"`
	Uptime    string            `json:"uptime"`
	Errors    []string          `json:"errors,omitempty"`
}

// NewHealthChecker creates a checker that reports degraded once no tick
// arrived for staleTick
func NewHealthChecker(staleTick time.Duration) *HealthChecker {
	return &HealthChecker{
		staleTick: staleTick,
		errors:    make([]string, 0, maxRecentErrors),
		now:       time.Now,
	}
}

// WatchBreakers registers a source of breaker states ("closed", "open",
// "half-open") keyed by name
func (h *HealthChecker) WatchBreakers(fn func() map[string]string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.breakers = fn
}

// Tick records a completed engine tick and the current halt cause
func (h *HealthChecker) Tick(at time.Time, haltCause string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastTick = at
	h.haltCause = haltCause
}

// Bar records an evaluated bar
func (h *HealthChecker) Bar(at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastBar = at
}

// Error keeps the latest errors for the health body
func (h *HealthChecker) Error(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.errors) == maxRecentErrors {
		h.errors = h.errors[1:]
	}
	h.errors = append(h.errors, msg)
}

// Status computes the current health
func (h *HealthChecker) Status() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := h.now()
	st := HealthStatus{
		Status:    "healthy",
		Timestamp: now,
		LastTick:  h.lastTick,
		LastBar:   h.lastBar,
		Halted:    h.haltCause,
		Uptime:    time.Since(startTime).Round(time.Second).String(),
		Errors:    append([]string(nil), h.errors...),
	}
	if h.breakers != nil {
		st.Breakers = h.breakers()
	}

	switch {
	case h.lastTick.IsZero() || (h.staleTick > 0 && now.Sub(h.lastTick) > h.staleTick):
		st.Status = "unhealthy"
	case h.haltCause != "":
		st.Status = "degraded"
	default:
		for _, state := range st.Breakers {
			if state != "closed" {
				st.Status = "degraded"
				break
			}
		}
	}
	return st
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	st := h.Status()
	w.Header().Set("Content-Type", "application/json")
	if st.Status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(st)
}

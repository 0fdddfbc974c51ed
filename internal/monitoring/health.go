package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

var startTime = time.Now()

// HealthChecker reports liveness of the paper-trading loop over HTTP.
type HealthChecker struct {
	mu         sync.RWMutex
	lastBar    time.Time
	lastPrice  float64
	dataFeedOK bool
	staleAfter time.Duration
	errors     []string
}

// HealthStatus is the JSON payload served by the health endpoint.
type HealthStatus struct {
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	LastBar    time.Time `json:"last_bar"`
	LastPrice  float64   `json:"last_price"`
	DataFeedOK bool      `json:"data_feed_ok"`
	Uptime     string    `json:"uptime"`
	Errors     []string  `json:"errors,omitempty"`
}

// NewHealthChecker creates a health checker that reports degraded when no
// bar has been processed within staleAfter.
func NewHealthChecker(staleAfter time.Duration) *HealthChecker {
	if staleAfter <= 0 {
		staleAfter = time.Hour
	}
	return &HealthChecker{
		staleAfter: staleAfter,
		errors:     make([]string, 0),
	}
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status, code := "healthy", http.StatusOK
	if !h.dataFeedOK || time.Since(h.lastBar) > h.staleAfter {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	if len(h.errors) > 0 {
		status, code = "unhealthy", http.StatusInternalServerError
	}

	health := HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		LastBar:    h.lastBar,
		LastPrice:  h.lastPrice,
		DataFeedOK: h.dataFeedOK,
		Uptime:     time.Since(startTime).String(),
		Errors:     h.errors,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(health)
}

// RecordBar notes that a bar was processed at the given price.
func (h *HealthChecker) RecordBar(price float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastBar = time.Now()
	h.lastPrice = price
}

// SetDataFeedOK flags whether the candle source is reachable.
func (h *HealthChecker) SetDataFeedOK(ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dataFeedOK = ok
}

// RecordFailure appends an error visible on the health endpoint.
func (h *HealthChecker) RecordFailure(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, msg)
	if len(h.errors) > 20 {
		h.errors = h.errors[len(h.errors)-20:]
	}
}

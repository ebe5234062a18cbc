// Package health provides health check functionality for services
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// Check represents a single health check
type Check struct {
	Name     string  `json:"name"`
	Status   Status  `json:"status"`
	Message  string  `json:"message,omitempty"`
	Latency  float64 `json:"latency_ms"`
	Critical bool    `json:"critical"`
}

// Response is the health check response
type Response struct {
	Status    Status            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version,omitempty"`
	Service   string            `json:"service,omitempty"`
	Checks    map[string]*Check `json:"checks,omitempty"`
	Uptime    float64           `json:"uptime_seconds"`
}

// Checker is a function that performs a health check
type Checker func(ctx context.Context) error

type registered struct {
	checker  Checker
	critical bool
}

// Handler manages health checks for a service
type Handler struct {
	mu        sync.RWMutex
	checks    map[string]registered
	service   string
	version   string
	startTime time.Time
}

// NewHandler creates a new health handler
func NewHandler(service, version string) *Handler {
	return &Handler{
		checks:    make(map[string]registered),
		service:   service,
		version:   version,
		startTime: time.Now(),
	}
}

// AddCheck registers a check whose failure makes the service unhealthy
func (h *Handler) AddCheck(name string, checker Checker) {
	h.add(name, checker, true)
}

// AddOptionalCheck registers a check whose failure only degrades the
// service, such as a push channel the service can run without
func (h *Handler) AddOptionalCheck(name string, checker Checker) {
	h.add(name, checker, false)
}

func (h *Handler) add(name string, checker Checker, critical bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = registered{checker: checker, critical: critical}
}

// Check runs all health checks and returns the result
func (h *Handler) Check(ctx context.Context) *Response {
	h.mu.RLock()
	defer h.mu.RUnlock()

	resp := &Response{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Version:   h.version,
		Service:   h.service,
		Checks:    make(map[string]*Check),
		Uptime:    time.Since(h.startTime).Seconds(),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, reg := range h.checks {
		wg.Add(1)
		go func(name string, reg registered) {
			defer wg.Done()

			start := time.Now()
			err := reg.checker(ctx)

			check := &Check{
				Name:     name,
				Status:   StatusHealthy,
				Latency:  float64(time.Since(start).Microseconds()) / 1000,
				Critical: reg.critical,
			}
			if err != nil {
				check.Status = StatusUnhealthy
				check.Message = err.Error()
			}

			mu.Lock()
			defer mu.Unlock()
			resp.Checks[name] = check
			switch {
			case err == nil:
			case reg.critical:
				resp.Status = StatusUnhealthy
			case resp.Status == StatusHealthy:
				resp.Status = StatusDegraded
			}
		}(name, reg)
	}

	wg.Wait()
	return resp
}

// LivenessHandler returns an HTTP handler for liveness probe
func (h *Handler) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessHandler returns an HTTP handler for readiness probe. A degraded
// service is still ready.
func (h *Handler) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		resp := h.Check(ctx)

		w.Header().Set("Content-Type", "application/json")
		if resp.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

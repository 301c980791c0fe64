package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/Unleash/unleash-edge/pkg/logging"
)

// HealthStatus is the response body for GET /internal-backstage/health.
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Version   string            `json:"version,omitempty"`
	Checks    map[string]string `json:"checks,omitempty"`
	Uptime    string            `json:"uptime,omitempty"`
}

// HealthChecker runs named checks (e.g. "persistence", "upstream") and
// reports the aggregate result.
type HealthChecker struct {
	mu        sync.RWMutex
	version   string
	startTime time.Time
	checks    map[string]func() error
	logger    *logging.Logger
}

// NewHealthChecker creates a new health checker.
func NewHealthChecker(version string, logger *logging.Logger) *HealthChecker {
	return &HealthChecker{
		version:   version,
		startTime: time.Now(),
		checks:    make(map[string]func() error),
		logger:    logger,
	}
}

// RegisterCheck adds a named health check function.
func (h *HealthChecker) RegisterCheck(name string, check func() error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// Handler returns the GET /internal-backstage/health HTTP handler.
func (h *HealthChecker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.mu.RLock()
		defer h.mu.RUnlock()

		status := HealthStatus{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   h.version,
			Uptime:    time.Since(h.startTime).String(),
			Checks:    make(map[string]string),
		}

		for name, check := range h.checks {
			if err := check(); err != nil {
				status.Status = "unhealthy"
				status.Checks[name] = err.Error()
			} else {
				status.Checks[name] = "ok"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if status.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(status); err != nil && h.logger != nil {
			h.logger.WithError(err).Warn("health handler encode failed")
		}
	}
}

// LivenessHandler returns a simple liveness probe handler: the process is
// running and able to answer HTTP at all.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	}
}

// ReadinessHandler returns a readiness probe handler backed by ready, which
// is typically edgeapp.App.Ready (every required environment has at least
// one applied commit or snapshot restore).
func ReadinessHandler(ready func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if ready != nil && ready() {
			json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "not_ready"})
	}
}

// InstanceData is the response body for GET /internal-backstage/instancedata:
// process and host diagnostics useful for operators debugging one edge
// instance, distinct from the aggregate Prometheus /metrics endpoint.
type InstanceData struct {
	Goroutines  int     `json:"goroutines"`
	AllocMB     uint64  `json:"alloc_mb"`
	SysMB       uint64  `json:"sys_mb"`
	NumGC       uint32  `json:"num_gc"`
	GoVersion   string  `json:"go_version"`
	NumCPU      int     `json:"num_cpu"`
	CPUPercent  float64 `json:"cpu_percent,omitempty"`
	MemUsedPct  float64 `json:"mem_used_percent,omitempty"`
	HostUptimeS uint64  `json:"host_uptime_seconds,omitempty"`
}

// InstanceDataHandler returns process and host diagnostics, using gopsutil
// for the host-level figures the standard library's runtime package cannot
// report (system memory, CPU load, host uptime).
func InstanceDataHandler(logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		data := InstanceData{
			Goroutines: runtime.NumGoroutine(),
			AllocMB:    m.Alloc / 1024 / 1024,
			SysMB:      m.Sys / 1024 / 1024,
			NumGC:      m.NumGC,
			GoVersion:  runtime.Version(),
			NumCPU:     runtime.NumCPU(),
		}

		if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
			data.CPUPercent = percents[0]
		} else if err != nil && logger != nil {
			logger.WithError(err).Debug("cpu.Percent unavailable")
		}
		if vm, err := mem.VirtualMemory(); err == nil {
			data.MemUsedPct = vm.UsedPercent
		}
		if info, err := host.Info(); err == nil {
			data.HostUptimeS = info.Uptime
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(data)
	}
}

package api

import (
	"net/http"
	"time"

	"github.com/snarg/vcon-wtf/internal/transcribe"
	"github.com/snarg/vcon-wtf/internal/watch"
)

// EngineStatus is what the health endpoints read from the inference engine.
type EngineStatus interface {
	IsLoaded() bool
	LoadedModel() string
	ProviderName() string
	Stats() transcribe.EngineStats
}

// ConnStatus reports a broker connection.
type ConnStatus interface {
	IsConnected() bool
}

// WatcherStatus reports the folder-ingest state.
type WatcherStatus interface {
	Status() watch.Status
}

type HealthResponse struct {
	Status        string                  `json:"status"`
	Timestamp     time.Time               `json:"timestamp"`
	Version       string                  `json:"version"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	Checks        map[string]string       `json:"checks"`
	Inference     *transcribe.EngineStats `json:"inference,omitempty"`
	Watcher       *watch.Status           `json:"watcher,omitempty"`
}

type ReadyResponse struct {
	Status    string    `json:"status"`
	Model     *string   `json:"model"`
	Timestamp time.Time `json:"timestamp"`
}

type HealthHandler struct {
	engine    EngineStatus
	mqtt      ConnStatus    // nil when MQTT is not configured
	watcher   WatcherStatus // nil when folder ingest is off
	version   string
	startTime time.Time
	now       func() time.Time
}

func NewHealthHandler(engine EngineStatus, mqtt ConnStatus, watcher WatcherStatus, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		engine:    engine,
		mqtt:      mqtt,
		watcher:   watcher,
		version:   version,
		startTime: startTime,
		now:       time.Now,
	}
}

// ServeHTTP handles GET /health. Liveness only: it answers 200 as long as the
// process is serving, with dependency state under checks.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	checks := make(map[string]string)
	resp := HealthResponse{
		Status:        "ok",
		Timestamp:     now.UTC(),
		Version:       h.version,
		UptimeSeconds: int64(now.Sub(h.startTime).Seconds()),
		Checks:        checks,
	}

	if h.engine != nil {
		checks["provider"] = h.engine.ProviderName()
		if h.engine.IsLoaded() {
			checks["model"] = "loaded"
		} else {
			checks["model"] = "loading"
		}
		stats := h.engine.Stats()
		resp.Inference = &stats
	}

	if h.mqtt != nil {
		if h.mqtt.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	if h.watcher != nil {
		ws := h.watcher.Status()
		checks["file_watcher"] = ws.Status
		resp.Watcher = &ws
	} else {
		checks["file_watcher"] = "not_configured"
	}

	WriteJSON(w, http.StatusOK, resp)
}

// Ready handles GET /health/ready: 200 once the default model has answered
// a warm-up call, 503 before that.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{Status: "not_ready", Timestamp: h.now().UTC()}
	if h.engine != nil && h.engine.IsLoaded() {
		model := h.engine.LoadedModel()
		resp.Status = "ok"
		resp.Model = &model
		WriteJSON(w, http.StatusOK, resp)
		return
	}
	WriteJSON(w, http.StatusServiceUnavailable, resp)
}

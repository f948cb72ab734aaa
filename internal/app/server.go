package app

import (
	"net/http"

	"github.com/MrWong99/jarvis/internal/health"
	"github.com/MrWong99/jarvis/internal/lease"
	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/internal/orchestrator"
)

// stateResponse is the body of GET /v1/state.
type stateResponse struct {
	State orchestrator.State `json:"state"`
	Lease lease.Stats        `json:"lease"`
}

// commandResponse is one entry of GET /v1/commands.
type commandResponse struct {
	Name        string  `json:"name"`
	Trigger     string  `json:"trigger"`
	Description string  `json:"description,omitempty"`
	Threshold   float64 `json:"threshold,omitempty"`
}

// Handler returns the HTTP handler for the health, control and metrics
// endpoints, wrapped in [observe.Middleware].
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()

	checkers := []health.Checker{
		health.Probe("lease", a.arbiter),
		health.Probe("orchestrator", a.orch),
	}
	// Fallback groups report an outage once every backend's circuit is open.
	if p, ok := a.providers.STT.(health.Prober); ok {
		checkers = append(checkers, health.Probe("stt", p))
	}
	if p, ok := a.providers.TTS.(health.Prober); ok {
		checkers = append(checkers, health.Probe("tts", p))
	}
	health.New(checkers...).Register(mux)

	mux.HandleFunc("POST /v1/wake", a.handleWake)
	mux.HandleFunc("POST /v1/stop", a.handleStop)
	mux.HandleFunc("GET /v1/state", a.handleState)
	mux.HandleFunc("GET /v1/commands", a.handleCommands)
	mux.Handle("GET /metrics", observe.MetricsHandler())

	return observe.Middleware(a.metrics)(mux)
}

func (a *App) handleWake(w http.ResponseWriter, r *http.Request) {
	state := a.orch.State()
	if state == orchestrator.StateStopped {
		health.WriteJSON(w, http.StatusConflict, map[string]string{"error": "orchestrator stopped"})
		return
	}
	a.orch.Trigger("http")
	observe.Logger(r.Context()).Info("manual wake requested", "state", state)
	health.WriteJSON(w, http.StatusAccepted, stateResponse{State: state, Lease: a.arbiter.Stats()})
}

func (a *App) handleStop(w http.ResponseWriter, r *http.Request) {
	observe.Logger(r.Context()).Info("stop requested over http")
	// Stop blocks until teardown finished, which the caller may not want
	// to wait for.
	go func() { _ = a.orch.Stop() }()
	health.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

func (a *App) handleState(w http.ResponseWriter, _ *http.Request) {
	health.WriteJSON(w, http.StatusOK, stateResponse{
		State: a.orch.State(),
		Lease: a.arbiter.Stats(),
	})
}

func (a *App) handleCommands(w http.ResponseWriter, _ *http.Request) {
	cmds := a.registry.List()
	out := make([]commandResponse, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, commandResponse{
			Name:        c.Name,
			Trigger:     c.Trigger,
			Description: c.Description,
			Threshold:   c.Threshold,
		})
	}
	health.WriteJSON(w, http.StatusOK, out)
}

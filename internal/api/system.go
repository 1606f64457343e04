package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/ptl-core/internal/metrics"
)

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, err := s.orch.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, CodeSystemInternal, "Service not running", err.Error())
		return
	}
	writeOK(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"version":      s.version,
		"mode":         status.Policy,
		"orchestrator": status,
		"ws_clients":   s.hub.ClientCount(),
	})
}

// handleListLocations returns the configured units.
func (s *Server) handleListLocations(w http.ResponseWriter, r *http.Request) {
	units, err := s.orch.Units(r.Context())
	if err != nil {
		writeInternalError(w, CodeLocationInternal, "An error occurred while retrieving locations: "+err.Error())
		return
	}
	writeOK(w, http.StatusOK, units)
}

// handleListEndpoints returns every controller link with its counters.
func (s *Server) handleListEndpoints(w http.ResponseWriter, r *http.Request) {
	endpoints, err := s.orch.Endpoints(r.Context())
	if err != nil {
		writeInternalError(w, CodeSystemInternal, err.Error())
		return
	}
	writeOK(w, http.StatusOK, endpoints)
}

// handleLog returns a copy of one in-memory log, oldest entry first.
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	var (
		out any
		err error
	)
	ctx := r.Context()
	switch name := chi.URLParam(r, "log"); name {
	case metrics.LogSent:
		out, err = s.orch.SentLog(ctx)
	case metrics.LogReceived:
		out, err = s.orch.ReceivedLog(ctx)
	case metrics.LogPending:
		out, err = s.orch.PendingLog(ctx)
	case metrics.LogAlarms:
		out, err = s.orch.AlarmLog(ctx)
	default:
		writeError(w, http.StatusNotFound, CodeNotFound, "Not found", "unknown log "+name)
		return
	}
	if err != nil {
		writeInternalError(w, CodeSystemInternal, err.Error())
		return
	}
	writeOK(w, http.StatusOK, out)
}

// handleReload re-reads the topology, rebuilds the links and restores the
// mode's queued movements.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.topology == nil {
		writeError(w, http.StatusServiceUnavailable, CodeSystemInternal, "Reload not available", "no topology source configured")
		return
	}
	units, err := s.orch.ReloadFrom(r.Context(), s.topology)
	if err != nil {
		s.logger.Error("configuration reload failed", "error", err, "request_id", requestID(r.Context()))
		writeInternalError(w, CodeSystemInternal, err.Error())
		return
	}
	s.logger.Info("configuration reloaded", "units", len(units))
	writeOK(w, http.StatusOK, map[string]any{"units": len(units)})
}

// handleListHelp returns the help entry of every error code.
func (s *Server) handleListHelp(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, http.StatusOK, helpTable)
}

// handleGetHelp returns the help entry of one error code.
func (s *Server) handleGetHelp(w http.ResponseWriter, r *http.Request) {
	h, ok := lookupHelp(chi.URLParam(r, "code"))
	if !ok {
		writeError(w, http.StatusNotFound, CodeHelpNotFound,
			"Incorrect code, this code does not exist",
			"Ensure that the code included in the request is correct")
		return
	}
	writeOK(w, http.StatusOK, h)
}

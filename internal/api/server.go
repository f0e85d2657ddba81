// Package api serves the query and control surface of the signal
// system: live signal states, lane snapshots, controller statistics,
// historical logs and analytics, the manual emergency override, and a
// websocket stream of the state table.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/Sujal0507/ai-powered-smart-signals/internal/controller"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/db"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/httputil"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/monitoring"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/timeutil"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/traffic"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/version"
)

// SignalController is the controller surface the API needs.
type SignalController interface {
	AllStates() map[int]traffic.SignalState
	Stats() traffic.Statistics
	ForceEmergency(laneID int) error
}

// LaneReader exposes the shared lane table.
type LaneReader interface {
	All() map[int]traffic.LaneSnapshot
}

// CycleStore answers historical queries.
type CycleStore interface {
	RecentCycles(limit int) ([]db.Cycle, error)
	TodayStats() (db.DayStats, error)
	LaneAnalytics(window time.Duration) ([]db.LaneReport, error)
}

// ConfidenceSetter updates the detector threshold at runtime.
type ConfidenceSetter interface {
	SetConfidence(confidence float64) error
}

// Server holds the API dependencies.
type Server struct {
	ctrl     SignalController
	lanes    LaneReader
	store    CycleStore
	detector ConfidenceSetter
	clock    timeutil.Clock
}

// NewServer builds an API server. store and detector may be nil; the
// corresponding endpoints then answer 503.
func NewServer(ctrl SignalController, lanes LaneReader, store CycleStore, detector ConfidenceSetter, clock timeutil.Clock) *Server {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Server{ctrl: ctrl, lanes: lanes, store: store, detector: detector, clock: clock}
}

// Router returns the HTTP router with all endpoints mounted.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(loggingMiddleware)

	r.HandleFunc("/api/states", s.handleStates).Methods(http.MethodGet)
	r.HandleFunc("/api/lanes", s.handleLanes).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/api/logs", s.handleLogs).Methods(http.MethodGet)
	r.HandleFunc("/api/analytics", s.handleAnalytics).Methods(http.MethodGet)
	r.HandleFunc("/api/today", s.handleToday).Methods(http.MethodGet)
	r.HandleFunc("/api/emergency", s.handleEmergency).Methods(http.MethodPost)
	r.HandleFunc("/api/confidence", s.handleConfidence).Methods(http.MethodPost)
	r.HandleFunc("/api/version", s.handleVersion).Methods(http.MethodGet)
	r.HandleFunc("/ws/states", s.handleStatesStream)

	return r
}

func (s *Server) handleStates(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.statesPayload())
}

// statesPayload keys lanes by their string id so the JSON object shape
// is stable for clients.
func (s *Server) statesPayload() map[string]traffic.SignalState {
	states := s.ctrl.AllStates()
	out := make(map[string]traffic.SignalState, len(states))
	for lane, state := range states {
		out[strconv.Itoa(lane)] = state
	}
	return out
}

func (s *Server) handleLanes(w http.ResponseWriter, r *http.Request) {
	snapshots := s.lanes.All()
	out := make(map[string]traffic.LaneSnapshot, len(snapshots))
	for lane, snap := range snapshots {
		out[strconv.Itoa(lane)] = snap
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.ctrl.Stats())
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "cycle store not configured")
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > 1000 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	cycles, err := s.store.RecentCycles(limit)
	if err != nil {
		monitoring.Logf("api: recent cycles query failed: %v", err)
		httputil.InternalServerError(w, "failed to query cycle log")
		return
	}
	if cycles == nil {
		cycles = []db.Cycle{}
	}
	httputil.WriteJSONOK(w, cycles)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "cycle store not configured")
		return
	}

	hours := 24
	if h := r.URL.Query().Get("hours"); h != "" {
		parsed, err := strconv.Atoi(h)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "invalid 'hours' parameter")
			return
		}
		hours = parsed
	}

	reports, err := s.store.LaneAnalytics(time.Duration(hours) * time.Hour)
	if err != nil {
		monitoring.Logf("api: lane analytics query failed: %v", err)
		httputil.InternalServerError(w, "failed to query analytics")
		return
	}
	if reports == nil {
		reports = []db.LaneReport{}
	}
	httputil.WriteJSONOK(w, reports)
}

func (s *Server) handleToday(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "cycle store not configured")
		return
	}

	stats, err := s.store.TodayStats()
	if err != nil {
		monitoring.Logf("api: today stats query failed: %v", err)
		httputil.InternalServerError(w, "failed to query today's stats")
		return
	}
	httputil.WriteJSONOK(w, stats)
}

func (s *Server) handleEmergency(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Lane int `json:"lane"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.BadRequest(w, "invalid request body")
		return
	}

	if err := s.ctrl.ForceEmergency(body.Lane); err != nil {
		if errors.Is(err, controller.ErrInvalidLane) {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.InternalServerError(w, "failed to trigger emergency")
		return
	}
	httputil.WriteJSONOK(w, map[string]any{"status": "override pending", "lane": body.Lane})
}

func (s *Server) handleConfidence(w http.ResponseWriter, r *http.Request) {
	if s.detector == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "detector not configured")
		return
	}

	var body struct {
		Confidence float64 `json:"confidence"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.BadRequest(w, "invalid request body")
		return
	}

	if err := s.detector.SetConfidence(body.Confidence); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]any{"confidence": body.Confidence})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{"version": version.Version})
}

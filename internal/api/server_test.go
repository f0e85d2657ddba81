package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Sujal0507/ai-powered-smart-signals/internal/controller"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/db"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/monitoring"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/traffic"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

type fakeController struct {
	mu          sync.Mutex
	states      map[int]traffic.SignalState
	stats       traffic.Statistics
	forcedLanes []int
	forceErr    error
}

func (f *fakeController) AllStates() map[int]traffic.SignalState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states
}

func (f *fakeController) setStates(states map[int]traffic.SignalState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = states
}
func (f *fakeController) Stats() traffic.Statistics              { return f.stats }
func (f *fakeController) ForceEmergency(lane int) error {
	if f.forceErr != nil {
		return f.forceErr
	}
	f.forcedLanes = append(f.forcedLanes, lane)
	return nil
}

type fakeLanes struct {
	snapshots map[int]traffic.LaneSnapshot
}

func (f *fakeLanes) All() map[int]traffic.LaneSnapshot { return f.snapshots }

type fakeStore struct {
	cycles  []db.Cycle
	today   db.DayStats
	reports []db.LaneReport
	err     error

	lastLimit  int
	lastWindow time.Duration
}

func (f *fakeStore) RecentCycles(limit int) ([]db.Cycle, error) {
	f.lastLimit = limit
	return f.cycles, f.err
}
func (f *fakeStore) TodayStats() (db.DayStats, error) { return f.today, f.err }
func (f *fakeStore) LaneAnalytics(window time.Duration) ([]db.LaneReport, error) {
	f.lastWindow = window
	return f.reports, f.err
}

type fakeDetector struct {
	confidence float64
}

func (f *fakeDetector) SetConfidence(c float64) error {
	if c <= 0 || c > 1 {
		return fmt.Errorf("confidence %v out of range", c)
	}
	f.confidence = c
	return nil
}

func newTestServer() (*Server, *fakeController, *fakeStore, *fakeDetector) {
	ctrl := &fakeController{
		states: map[int]traffic.SignalState{1: traffic.Green, 2: traffic.Red},
		stats:  traffic.Statistics{Cycles: 12, CurrentLane: 1},
	}
	lanes := &fakeLanes{snapshots: map[int]traffic.LaneSnapshot{
		1: {LaneID: 1, Counts: map[string]int{"car": 4}},
	}}
	store := &fakeStore{}
	det := &fakeDetector{confidence: 0.5}
	return NewServer(ctrl, lanes, store, det, nil), ctrl, store, det
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestStatesEndpoint(t *testing.T) {
	s, _, _, _ := newTestServer()
	rec := doRequest(s, http.MethodGet, "/api/states", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var got map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]string{"1": "GREEN", "2": "RED"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("states mismatch (-want +got):\n%s", diff)
	}
}

func TestLanesEndpoint(t *testing.T) {
	s, _, _, _ := newTestServer()
	rec := doRequest(s, http.MethodGet, "/api/lanes", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var got map[string]traffic.LaneSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["1"].Counts["car"] != 4 {
		t.Errorf("lane 1 = %+v", got["1"])
	}
}

func TestStatsEndpoint(t *testing.T) {
	s, _, _, _ := newTestServer()
	rec := doRequest(s, http.MethodGet, "/api/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var got traffic.Statistics
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Cycles != 12 || got.CurrentLane != 1 {
		t.Errorf("stats = %+v", got)
	}
}

func TestLogsEndpoint(t *testing.T) {
	s, _, store, _ := newTestServer()
	store.cycles = []db.Cycle{{ID: 1, LaneID: 2, Mode: "NORMAL"}}

	rec := doRequest(s, http.MethodGet, "/api/logs?limit=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if store.lastLimit != 5 {
		t.Errorf("limit passed to store = %d, want 5", store.lastLimit)
	}

	var got []db.Cycle
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].LaneID != 2 {
		t.Errorf("cycles = %+v", got)
	}
}

func TestLogsEndpointValidation(t *testing.T) {
	s, _, _, _ := newTestServer()
	for _, q := range []string{"limit=0", "limit=1001", "limit=abc"} {
		rec := doRequest(s, http.MethodGet, "/api/logs?"+q, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, rec.Code)
		}
	}
}

func TestLogsEndpointEmptyIsArray(t *testing.T) {
	s, _, _, _ := newTestServer()
	rec := doRequest(s, http.MethodGet, "/api/logs", "")
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("empty logs body = %q, want []", body)
	}
}

func TestAnalyticsEndpoint(t *testing.T) {
	s, _, store, _ := newTestServer()
	store.reports = []db.LaneReport{{LaneID: 1, Cycles: 3}}

	rec := doRequest(s, http.MethodGet, "/api/analytics?hours=6", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if store.lastWindow != 6*time.Hour {
		t.Errorf("window = %s, want 6h", store.lastWindow)
	}

	rec = doRequest(s, http.MethodGet, "/api/analytics?hours=-1", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative hours: status = %d, want 400", rec.Code)
	}
}

func TestTodayEndpoint(t *testing.T) {
	s, _, store, _ := newTestServer()
	store.today = db.DayStats{Cycles: 7, Vehicles: 42, EmergencyEvents: 1}

	rec := doRequest(s, http.MethodGet, "/api/today", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var got db.DayStats
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(store.today, got); diff != "" {
		t.Errorf("today stats mismatch (-want +got):\n%s", diff)
	}
}

func TestEmergencyEndpoint(t *testing.T) {
	s, ctrl, _, _ := newTestServer()

	rec := doRequest(s, http.MethodPost, "/api/emergency", `{"lane":3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if len(ctrl.forcedLanes) != 1 || ctrl.forcedLanes[0] != 3 {
		t.Errorf("forced lanes = %v, want [3]", ctrl.forcedLanes)
	}
}

func TestEmergencyEndpointErrors(t *testing.T) {
	s, ctrl, _, _ := newTestServer()

	rec := doRequest(s, http.MethodPost, "/api/emergency", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad body: status = %d, want 400", rec.Code)
	}

	ctrl.forceErr = fmt.Errorf("%w: 99", controller.ErrInvalidLane)
	rec = doRequest(s, http.MethodPost, "/api/emergency", `{"lane":99}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid lane: status = %d, want 400", rec.Code)
	}

	rec = doRequest(s, http.MethodGet, "/api/emergency", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET: status = %d, want 405", rec.Code)
	}
}

func TestConfidenceEndpoint(t *testing.T) {
	s, _, _, det := newTestServer()

	rec := doRequest(s, http.MethodPost, "/api/confidence", `{"confidence":0.7}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if det.confidence != 0.7 {
		t.Errorf("confidence = %v, want 0.7", det.confidence)
	}

	rec = doRequest(s, http.MethodPost, "/api/confidence", `{"confidence":1.5}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("out of range: status = %d, want 400", rec.Code)
	}
}

func TestVersionEndpoint(t *testing.T) {
	s, _, _, _ := newTestServer()
	rec := doRequest(s, http.MethodGet, "/api/version", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "version") {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestNilDependenciesAnswer503(t *testing.T) {
	ctrl := &fakeController{states: map[int]traffic.SignalState{}}
	s := NewServer(ctrl, &fakeLanes{}, nil, nil, nil)

	for _, path := range []string{"/api/logs", "/api/analytics", "/api/today"} {
		rec := doRequest(s, http.MethodGet, path, "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d, want 503", path, rec.Code)
		}
	}
	rec := doRequest(s, http.MethodPost, "/api/confidence", `{"confidence":0.5}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("confidence: status = %d, want 503", rec.Code)
	}
}

func TestStoreFailureAnswers500(t *testing.T) {
	s, _, store, _ := newTestServer()
	store.err = fmt.Errorf("database locked")

	rec := doRequest(s, http.MethodGet, "/api/logs", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

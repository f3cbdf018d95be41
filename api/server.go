// Package api exposes the run lifecycle and derived speed data over HTTP,
// plus a WebSocket ingestion endpoint for the external detector.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/speedframe/speedframe/internal/detector"
	"github.com/speedframe/speedframe/internal/monitoring"
	"github.com/speedframe/speedframe/internal/session"
	"github.com/speedframe/speedframe/internal/speed"
	"github.com/speedframe/speedframe/internal/storage/sqlite"
	"github.com/speedframe/speedframe/internal/units"
	"github.com/speedframe/speedframe/internal/version"
	"github.com/speedframe/speedframe/internal/vision"
)

const wsReadDeadline = 60 * time.Second

// Server wires the session manager and run store to the HTTP surface.
type Server struct {
	sessions *session.Manager
	store    *sqlite.Store
	upgrader websocket.Upgrader
}

// NewServer creates a server. store may be nil when persistence is
// disabled; finalize then skips the save.
func NewServer(sessions *session.Manager, store *sqlite.Store) *Server {
	return &Server{
		sessions: sessions,
		store:    store,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeMux returns the route table.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/runs", s.startRun)
	mux.HandleFunc("POST /api/runs/{id}/frames", s.ingestFrame)
	mux.HandleFunc("POST /api/runs/{id}/finalize", s.finalizeRun)
	mux.HandleFunc("PUT /api/runs/{id}/overrides/{frame}", s.putOverride)
	mux.HandleFunc("DELETE /api/runs/{id}/overrides/{frame}", s.deleteOverride)
	mux.HandleFunc("PUT /api/runs/{id}/calibration", s.putCalibration)
	mux.HandleFunc("GET /api/runs/{id}/speeds", s.getSpeeds)
	mux.HandleFunc("GET /ws/detections", s.detectionsSocket)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("/", s.homeHandler)
	return mux
}

func (s *Server) homeHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("speedframe " + version.String() + ": detection-to-speed engine\n"))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("api: failed to encode response: %v", err)
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// runID parses the {id} path segment; a malformed id is reported and the
// zero UUID returned, which can never match an active run.
func (s *Server) runID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "malformed run id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceWidth  float64 `json:"source_width"`
		SourceHeight float64 `json:"source_height"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	runID, err := s.sessions.StartRun(req.SourceWidth, req.SourceHeight)
	if err != nil {
		s.writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"run_id": runID.String()})
}

func (s *Server) ingestFrame(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.runID(w, r)
	if !ok {
		return
	}

	var ev detector.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "malformed frame event")
		return
	}

	if s.sessions.Ingest(runID, ev.Frame()) {
		s.writeJSON(w, http.StatusOK, map[string]bool{"accepted": true})
		return
	}
	// Stale generation or inactive run: dropped by design, not an error.
	s.writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": false})
}

func (s *Server) finalizeRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.runID(w, r)
	if !ok {
		return
	}

	if err := s.sessions.Finalize(runID); err != nil {
		s.writeJSONError(w, http.StatusConflict, err.Error())
		return
	}

	res := s.sessions.Snapshot()
	if s.store != nil {
		if err := s.persistRun(res); err != nil {
			monitoring.Logf("api: failed to persist run %s: %v", res.RunID, err)
			s.writeJSONError(w, http.StatusInternalServerError, "run finalized but not persisted")
			return
		}
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) persistRun(res session.Result) error {
	rec := sqlite.RunRecord{
		RunID:          res.RunID,
		SourceW:        res.SourceW,
		SourceH:        res.SourceH,
		State:          string(res.State),
		MetersPerPixel: res.MetersPerPixel,
		PeakKmh:        res.PeakKmh,
		PeakFrame:      res.PeakFrame,
	}
	if err := s.store.SaveRun(rec); err != nil {
		return err
	}
	if err := s.store.SaveFrames(res.RunID, s.sessions.Frames()); err != nil {
		return err
	}
	return s.store.SaveSamples(res.RunID, res.Samples)
}

func (s *Server) putOverride(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.runID(w, r)
	if !ok {
		return
	}
	frame, err := strconv.Atoi(r.PathValue("frame"))
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "malformed frame index")
		return
	}

	var box vision.Box
	if err := json.NewDecoder(r.Body).Decode(&box); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "malformed override box")
		return
	}

	if err := s.sessions.SetOverride(runID, frame, box); err != nil {
		s.writeJSONError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.sessions.Snapshot())
}

func (s *Server) deleteOverride(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.runID(w, r)
	if !ok {
		return
	}
	frame, err := strconv.Atoi(r.PathValue("frame"))
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "malformed frame index")
		return
	}

	if err := s.sessions.ClearOverride(runID, frame); err != nil {
		s.writeJSONError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.sessions.Snapshot())
}

func (s *Server) putCalibration(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.runID(w, r)
	if !ok {
		return
	}
	if runID != s.sessions.RunID() {
		s.writeJSONError(w, http.StatusConflict, "not the active run")
		return
	}

	var req struct {
		P1              speed.Point `json:"p1"`
		P2              speed.Point `json:"p2"`
		DisplayWidth    float64     `json:"display_width"`
		DisplayHeight   float64     `json:"display_height"`
		ReferenceMeters float64     `json:"reference_meters"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "malformed calibration request")
		return
	}

	cal, err := s.sessions.Calibrate(req.P1, req.P2, req.DisplayWidth, req.DisplayHeight, req.ReferenceMeters)
	if err != nil {
		s.writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, cal)
}

func (s *Server) getSpeeds(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.runID(w, r)
	if !ok {
		return
	}
	if runID != s.sessions.RunID() {
		s.writeJSONError(w, http.StatusNotFound, "run not active")
		return
	}

	res := s.sessions.Snapshot()
	if u := r.URL.Query().Get("units"); u != "" {
		if !units.IsValid(u) {
			s.writeJSONError(w, http.StatusUnprocessableEntity,
				"invalid units, valid values: "+units.GetValidUnitsString())
			return
		}
		convertResult(&res, u)
	}
	s.writeJSON(w, http.StatusOK, res)
}

// convertResult rescales every speed value in res to the target units.
// Field names keep their km/h spelling; the values are what change.
func convertResult(res *session.Result, target string) {
	for i := range res.Samples {
		res.Samples[i].Kmh = units.ConvertSpeed(res.Samples[i].Kmh, target)
	}
	res.PeakKmh = units.ConvertSpeed(res.PeakKmh, target)
	res.Summary.MaxKmh = units.ConvertSpeed(res.Summary.MaxKmh, target)
	res.Summary.MeanKmh = units.ConvertSpeed(res.Summary.MeanKmh, target)
	res.Summary.P50Kmh = units.ConvertSpeed(res.Summary.P50Kmh, target)
	res.Summary.P85Kmh = units.ConvertSpeed(res.Summary.P85Kmh, target)
	res.Summary.P95Kmh = units.ConvertSpeed(res.Summary.P95Kmh, target)
}

// detectionsSocket accepts a detector push stream. Each text message is one
// detector.Event; malformed messages and stale run tags degrade to "no
// detections" without closing the stream.
func (s *Server) detectionsSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("api: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
		return nil
	})

	monitoring.Logf("api: detector connected from %s", r.RemoteAddr)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			monitoring.Logf("api: detector disconnected: %v", err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsReadDeadline))

		ev, err := detector.DecodeEvent(msg)
		if err != nil {
			monitoring.Logf("api: dropping malformed detector event: %v", err)
			continue
		}
		runID, err := uuid.Parse(ev.RunID)
		if err != nil {
			monitoring.Logf("api: dropping detector event with malformed run id %q", ev.RunID)
			continue
		}
		s.sessions.Ingest(runID, ev.Frame())
	}
}

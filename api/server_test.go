package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedframe/speedframe/internal/session"
	"github.com/speedframe/speedframe/internal/vision"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(session.NewManager(session.DefaultParams()), nil).ServeMux())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body interface{}) (*http.Response, map[string]json.RawMessage) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp, payload
}

func startRun(t *testing.T, srv *httptest.Server, w, h float64) string {
	t.Helper()
	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/api/runs",
		map[string]float64{"source_width": w, "source_height": h})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var runID string
	require.NoError(t, json.Unmarshal(payload["run_id"], &runID))
	return runID
}

func setCalibration(t *testing.T, srv *httptest.Server, runID string) {
	t.Helper()
	// 100 display px at contain scale 1 and 1 m reference: 0.01 m/px.
	resp, _ := doJSON(t, http.MethodPut, srv.URL+"/api/runs/"+runID+"/calibration", map[string]interface{}{
		"p1":               map[string]float64{"x": 0, "y": 0},
		"p2":               map[string]float64{"x": 100, "y": 0},
		"display_width":    640.0,
		"display_height":   640.0,
		"reference_meters": 1.0,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func postFrame(t *testing.T, srv *httptest.Server, runID string, tsMs int64, boxes []vision.Box) map[string]json.RawMessage {
	t.Helper()
	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/api/runs/"+runID+"/frames",
		map[string]interface{}{"timestamp_ms": tsMs, "boxes": boxes})
	require.Contains(t, []int{http.StatusOK, http.StatusAccepted}, resp.StatusCode)
	return payload
}

func TestRunWorkflow(t *testing.T) {
	srv := newTestServer(t)

	runID := startRun(t, srv, 640, 640)
	setCalibration(t, srv, runID)

	postFrame(t, srv, runID, 0, []vision.Box{{X: -5, Y: -5, Width: 10, Height: 10, Confidence: 0.9}})
	postFrame(t, srv, runID, 100, []vision.Box{{X: 5, Y: -5, Width: 10, Height: 10, Confidence: 0.9}})

	resp, err := http.Get(srv.URL + "/api/runs/" + runID + "/speeds")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res session.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, runID, res.RunID)
	assert.Equal(t, 2, res.FrameCount)
	require.Len(t, res.Samples, 2)
	assert.InDelta(t, 3.6, res.Samples[1].Kmh, 1e-9)
	assert.Equal(t, 1, res.PeakFrame)
}

func TestSpeedUnitsQuery(t *testing.T) {
	srv := newTestServer(t)

	runID := startRun(t, srv, 640, 640)
	setCalibration(t, srv, runID)
	postFrame(t, srv, runID, 0, []vision.Box{{X: -5, Y: -5, Width: 10, Height: 10, Confidence: 0.9}})
	postFrame(t, srv, runID, 100, []vision.Box{{X: 5, Y: -5, Width: 10, Height: 10, Confidence: 0.9}})

	var res session.Result
	getJSON(t, srv.URL+"/api/runs/"+runID+"/speeds?units=mps", &res)
	require.Len(t, res.Samples, 2)
	assert.InDelta(t, 1.0, res.Samples[1].Kmh, 1e-9)
	assert.InDelta(t, 1.0, res.PeakKmh, 1e-9)

	resp, payload := doJSON(t, http.MethodGet, srv.URL+"/api/runs/"+runID+"/speeds?units=furlongs", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, string(payload["error"]), "invalid units")
}

func TestStaleRunFrameIsDiscardedNotFailed(t *testing.T) {
	srv := newTestServer(t)
	startRun(t, srv, 640, 640)

	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/api/runs/"+uuid.NewString()+"/frames",
		map[string]interface{}{"timestamp_ms": 0, "boxes": []vision.Box{}})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.JSONEq(t, `false`, string(payload["accepted"]))
}

func TestMalformedRunID(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/runs/not-a-uuid/frames",
		map[string]interface{}{"timestamp_ms": 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInvalidCalibrationRejected(t *testing.T) {
	srv := newTestServer(t)
	runID := startRun(t, srv, 640, 640)

	resp, payload := doJSON(t, http.MethodPut, srv.URL+"/api/runs/"+runID+"/calibration", map[string]interface{}{
		"p1":               map[string]float64{"x": 0, "y": 0},
		"p2":               map[string]float64{"x": 0, "y": 0},
		"display_width":    640.0,
		"display_height":   640.0,
		"reference_meters": 3.0,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, string(payload["error"]), "coincide")
}

func TestOverrideEndpoints(t *testing.T) {
	srv := newTestServer(t)
	runID := startRun(t, srv, 640, 640)
	postFrame(t, srv, runID, 0, []vision.Box{{X: 70, Y: 70, Width: 20, Height: 20, Confidence: 0.9}})

	resp, _ := doJSON(t, http.MethodPut, srv.URL+"/api/runs/"+runID+"/overrides/0",
		vision.Box{X: 0, Y: 10, Width: 20, Height: 20})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res session.Result
	getJSON(t, srv.URL+"/api/runs/"+runID+"/speeds", &res)
	require.Len(t, res.Centers, 1)
	assert.Equal(t, session.CenterOverride, res.Centers[0].Source)
	assert.InDelta(t, 10.0, res.Centers[0].X, 1e-9)

	resp2, _ := doJSON(t, http.MethodDelete, srv.URL+"/api/runs/"+runID+"/overrides/0", nil)
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	getJSON(t, srv.URL+"/api/runs/"+runID+"/speeds", &res)
	assert.Equal(t, session.CenterDetection, res.Centers[0].Source)
}

func getJSON(t *testing.T, url string, v interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestFinalize(t *testing.T) {
	srv := newTestServer(t)
	runID := startRun(t, srv, 640, 640)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/runs/"+runID+"/finalize", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	t.Run("double finalize conflicts", func(t *testing.T) {
		resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/runs/"+runID+"/finalize", nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestWebSocketIngestion(t *testing.T) {
	srv := newTestServer(t)
	runID := startRun(t, srv, 640, 640)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/detections"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	msg := fmt.Sprintf(`{"run_id":%q,"timestamp_ms":0,"boxes":[{"x":10,"y":10,"width":20,"height":20,"confidence":0.8}]}`, runID)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))

	// Malformed payloads must not tear down the stream.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	msg2 := fmt.Sprintf(`{"run_id":%q,"timestamp_ms":100,"boxes":[]}`, runID)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg2)))

	var res session.Result
	deadline := time.Now().Add(2 * time.Second)
	for {
		getJSON(t, srv.URL+"/api/runs/"+runID+"/speeds", &res)
		if res.FrameCount == 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, 2, res.FrameCount)
	assert.Equal(t, session.CenterDetection, res.Centers[0].Source)
}

func TestMetricsExposed(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

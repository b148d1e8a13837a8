package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/tabularml/workbench/pkg/common/config"
	"github.com/tabularml/workbench/pkg/common/logger"
	"github.com/tabularml/workbench/pkg/dataset"
	"github.com/tabularml/workbench/pkg/session"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

func testServer(t *testing.T) *Server {
	t.Helper()
	registry, err := dataset.LoadRegistry("")
	if err != nil {
		t.Fatalf("failed to load registry: %v", err)
	}
	cfg := &config.Config{
		MaxRequestBody: 1 << 20,
		MaxRows:        1000,
		MaxColumns:     20,
		MaxSessions:    8,
		SessionTTL:     time.Minute,
		DefaultCVFolds: 3,
	}
	return NewServer(session.New(cfg.MaxSessions, cfg.SessionTTL), registry, cfg)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var payload map[string]interface{}
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, payload
}

func uploadCSV(t *testing.T, router http.Handler, csv string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v1/datasets/load", strings.NewReader(csv))
	req.Header.Set("Content-Type", "text/csv")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var payload map[string]interface{}
	if rec.Body.Len() > 0 {
		json.Unmarshal(rec.Body.Bytes(), &payload)
	}
	return rec, payload
}

func TestHealthEndpoint(t *testing.T) {
	router := testServer(t).Router()
	rec, _ := doJSON(t, router, "GET", "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestFullWorkflowOverHTTP(t *testing.T) {
	router := testServer(t).Router()

	csv := "feat1,feat2,target\n0,1,0\n1,0,1\n0,1,0\n1,0,1\n0,1,0\n1,0,1\n0,1,0\n1,0,1\n"
	rec, payload := uploadCSV(t, router, csv)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 on load, got %d: %s", rec.Code, rec.Body.String())
	}
	sessionID, _ := payload["session_id"].(string)
	if sessionID == "" {
		t.Fatalf("expected session id, got %v", payload)
	}

	rec, _ = doJSON(t, router, "GET", "/api/v1/sessions/"+sessionID+"/profile", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on profile, got %d", rec.Code)
	}

	rec, payload = doJSON(t, router, "POST", "/api/v1/sessions/"+sessionID+"/preprocess",
		map[string]interface{}{"target": "target"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on preprocess, got %d: %s", rec.Code, rec.Body.String())
	}
	if payload["task"] != "classification" {
		t.Fatalf("expected classification task, got %v", payload["task"])
	}

	rec, payload = doJSON(t, router, "POST", "/api/v1/sessions/"+sessionID+"/train",
		map[string]interface{}{"algorithm": "linear_model"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 on train, got %d: %s", rec.Code, rec.Body.String())
	}
	label, _ := payload["algorithm_label"].(string)
	if !strings.Contains(label, "Logistic") {
		t.Fatalf("expected logistic label, got %q", label)
	}
	metrics, _ := payload["metrics"].(map[string]interface{})
	if _, ok := metrics["accuracy"]; !ok {
		t.Fatalf("expected accuracy metric, got %v", metrics)
	}
	runID, _ := payload["run_id"].(string)
	if runID == "" {
		t.Fatal("expected run id")
	}

	rec, payload = doJSON(t, router, "GET", "/api/v1/runs/"+runID+"/evaluate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on evaluate, got %d", rec.Code)
	}
	if payload["session_id"] != sessionID {
		t.Fatalf("expected evaluate to resolve the owning session, got %v", payload["session_id"])
	}

	rec, payload = doJSON(t, router, "POST", "/api/v1/sessions/"+sessionID+"/predict",
		map[string]interface{}{"features": map[string]interface{}{"feat1": 1, "feat2": 0}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on predict, got %d: %s", rec.Code, rec.Body.String())
	}
	confidence, ok := payload["confidence"].(float64)
	if !ok || confidence < 0 || confidence > 1 {
		t.Fatalf("expected confidence in [0,1], got %v", payload["confidence"])
	}

	req := httptest.NewRequest("POST", "/api/v1/sessions/"+sessionID+"/predict/batch",
		strings.NewReader("feat1,feat2\n0,1\n1,0\n"))
	req.Header.Set("Content-Type", "text/csv")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 on batch predict, got %d: %s", recorder.Code, recorder.Body.String())
	}

	rec, _ = doJSON(t, router, "GET", "/api/v1/sessions/"+sessionID+"/predict/batch/download", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on download, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("expected text/csv download, got %q", ct)
	}

	rec, payload = doJSON(t, router, "POST", "/api/v1/sessions/"+sessionID+"/viz/histogram",
		map[string]interface{}{"column": "feat1", "bins": 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on histogram, got %d: %s", rec.Code, rec.Body.String())
	}
	counts, _ := payload["counts"].([]interface{})
	if len(counts) != 2 {
		t.Fatalf("expected 2 bins, got %v", payload)
	}

	rec, _ = doJSON(t, router, "DELETE", "/api/v1/sessions/"+sessionID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d", rec.Code)
	}
	rec, _ = doJSON(t, router, "GET", "/api/v1/sessions/"+sessionID+"/profile", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestOutlierWorkflowOverHTTP(t *testing.T) {
	router := testServer(t).Router()

	var b strings.Builder
	b.WriteString("v\n")
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&b, "%d\n", 10+i%5)
	}
	b.WriteString("1000\n")
	rec, payload := uploadCSV(t, router, b.String())
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	sessionID := payload["session_id"].(string)

	// Apply before compute must fail with a mask error.
	rec, _ = doJSON(t, router, "POST", "/api/v1/sessions/"+sessionID+"/outliers/apply",
		map[string]interface{}{"action": "drop"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 before compute, got %d", rec.Code)
	}

	rec, payload = doJSON(t, router, "POST", "/api/v1/sessions/"+sessionID+"/outliers/compute",
		map[string]interface{}{"method": "iqr"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on compute, got %d: %s", rec.Code, rec.Body.String())
	}
	if payload["outlier_rows"].(float64) != 1 {
		t.Fatalf("expected one outlier, got %v", payload["outlier_rows"])
	}

	rec, payload = doJSON(t, router, "POST", "/api/v1/sessions/"+sessionID+"/outliers/apply",
		map[string]interface{}{"action": "drop"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on drop, got %d: %s", rec.Code, rec.Body.String())
	}

	// The drop invalidated the mask; a second apply must fail.
	rec, _ = doJSON(t, router, "POST", "/api/v1/sessions/"+sessionID+"/outliers/apply",
		map[string]interface{}{"action": "drop"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on stale mask, got %d", rec.Code)
	}
}

func TestLoadRejectsOversizedDatasetWithoutSession(t *testing.T) {
	server := testServer(t)
	router := server.Router()

	var b strings.Builder
	cols := make([]string, 25)
	for i := range cols {
		cols[i] = fmt.Sprintf("c%d", i)
	}
	b.WriteString(strings.Join(cols, ","))
	b.WriteString("\n")
	b.WriteString(strings.Repeat("1,", 24))
	b.WriteString("1\n")

	rec, _ := uploadCSV(t, router, b.String())
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	if server.store.Len() != 0 {
		t.Fatalf("expected no session created, got %d", server.store.Len())
	}
}

func TestTrainBeforePreprocessFails(t *testing.T) {
	router := testServer(t).Router()
	rec, payload := uploadCSV(t, router, "x,y\n1,0\n2,1\n3,0\n4,1\n")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	sessionID := payload["session_id"].(string)

	rec, _ = doJSON(t, router, "POST", "/api/v1/sessions/"+sessionID+"/train",
		map[string]interface{}{"algorithm": "linear_model"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without preprocessing, got %d", rec.Code)
	}

	rec, _ = doJSON(t, router, "POST", "/api/v1/sessions/"+sessionID+"/predict",
		map[string]interface{}{"features": map[string]interface{}{"x": 1}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 before training, got %d", rec.Code)
	}
}

func TestListDatasetsAndAlgorithms(t *testing.T) {
	router := testServer(t).Router()

	rec, payload := doJSON(t, router, "GET", "/api/v1/datasets", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	datasets, _ := payload["datasets"].([]interface{})
	if len(datasets) == 0 {
		t.Fatal("expected built-in datasets")
	}

	rec, payload = doJSON(t, router, "GET", "/api/v1/algorithms?task=regression", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	algorithms, _ := payload["algorithms"].([]interface{})
	if len(algorithms) < 3 {
		t.Fatalf("expected at least 3 algorithms, got %v", payload)
	}

	rec, _ = doJSON(t, router, "GET", "/api/v1/algorithms?task=nope", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown task, got %d", rec.Code)
	}
}

func TestWriteJSONFailureStillReturnsEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusCreated, map[string]interface{}{"value": math.Inf(1)})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on unencodable payload, got %d", rec.Code)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("expected a JSON envelope, got %q", rec.Body.String())
	}
	errBody, _ := payload["error"].(map[string]interface{})
	if errBody["kind"] != "internal_error" {
		t.Fatalf("expected internal_error kind, got %v", payload)
	}
}

func TestTrainSucceedsWithNonFiniteUploadCells(t *testing.T) {
	router := testServer(t).Router()

	var b strings.Builder
	b.WriteString("x,y\n")
	for i := 0; i < 12; i++ {
		if i == 4 {
			fmt.Fprintf(&b, "inf,%d\n", 3*i+1)
			continue
		}
		fmt.Fprintf(&b, "%d,%d\n", i, 3*i+1)
	}
	rec, payload := uploadCSV(t, router, b.String())
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 on load, got %d: %s", rec.Code, rec.Body.String())
	}
	sessionID := payload["session_id"].(string)

	rec, _ = doJSON(t, router, "POST", "/api/v1/sessions/"+sessionID+"/preprocess",
		map[string]interface{}{"target": "y"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on preprocess, got %d: %s", rec.Code, rec.Body.String())
	}

	rec, payload = doJSON(t, router, "POST", "/api/v1/sessions/"+sessionID+"/train",
		map[string]interface{}{"algorithm": "linear_model"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 on train, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.Len() == 0 {
		t.Fatal("expected a response body alongside the 201")
	}
	metrics, _ := payload["metrics"].(map[string]interface{})
	if _, ok := metrics["rmse"].(float64); !ok {
		t.Fatalf("expected finite rmse metric, got %v", payload)
	}
}

func TestSystemConfigEchoesLimits(t *testing.T) {
	router := testServer(t).Router()
	rec, payload := doJSON(t, router, "GET", "/api/v1/system/config", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	upload, _ := payload["upload"].(map[string]interface{})
	if upload == nil || upload["max_rows"].(float64) != 1000 || upload["max_columns"].(float64) != 20 {
		t.Fatalf("unexpected upload limits: %v", payload)
	}
	sessions, _ := payload["sessions"].(map[string]interface{})
	if sessions == nil || sessions["max_active"].(float64) != 8 {
		t.Fatalf("unexpected session limits: %v", payload)
	}
}

func TestLoadBuiltinDatasetByKey(t *testing.T) {
	router := testServer(t).Router()
	rec, payload := doJSON(t, router, "POST", "/api/v1/datasets/load", map[string]interface{}{"key": "iris"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if payload["session_id"] == "" {
		t.Fatalf("expected session id, got %v", payload)
	}
	profile, _ := payload["profile"].(map[string]interface{})
	if profile == nil {
		t.Fatalf("expected profile in load response, got %v", payload)
	}
}

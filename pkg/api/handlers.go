package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/tabularml/workbench/pkg/common/apperr"
	"github.com/tabularml/workbench/pkg/dataset"
	"github.com/tabularml/workbench/pkg/inference"
	"github.com/tabularml/workbench/pkg/observability/metrics"
	"github.com/tabularml/workbench/pkg/outliers"
	"github.com/tabularml/workbench/pkg/preprocess"
	"github.com/tabularml/workbench/pkg/profile"
	"github.com/tabularml/workbench/pkg/session"
	"github.com/tabularml/workbench/pkg/train"
	"github.com/tabularml/workbench/pkg/viz"
)

func (s *Server) limits() dataset.Limits {
	return dataset.Limits{MaxRows: s.cfg.MaxRows, MaxColumns: s.cfg.MaxColumns}
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, into interface{}) error {
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestBody)
	if err := json.NewDecoder(body).Decode(into); err != nil {
		return apperr.New(apperr.KindInvalidRequest, "invalid JSON body: %v", err)
	}
	return nil
}

func sessionID(r *http.Request) string {
	return mux.Vars(r)["id"]
}

// handleSystemConfig echoes the active upload and session limits so a UI
// can validate uploads client-side.
func (s *Server) handleSystemConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"upload": map[string]interface{}{
			"max_bytes":   s.cfg.MaxRequestBody,
			"max_rows":    s.cfg.MaxRows,
			"max_columns": s.cfg.MaxColumns,
		},
		"sessions": map[string]interface{}{
			"max_active":  s.cfg.MaxSessions,
			"ttl_seconds": int(s.cfg.SessionTTL.Seconds()),
		},
	})
}

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	list, err := s.registry.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"datasets": list})
}

// handleLoadDataset accepts either a JSON body naming a built-in dataset
// key, or a raw CSV upload (Content-Type text/csv). Limit violations fail
// before any session is created.
func (s *Server) handleLoadDataset(w http.ResponseWriter, r *http.Request) {
	var frame *dataset.Frame
	var err error

	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/csv") {
		body := http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestBody)
		data, readErr := io.ReadAll(body)
		if readErr != nil {
			writeError(w, apperr.New(apperr.KindDatasetTooLarge, "request body exceeds %d bytes", s.cfg.MaxRequestBody))
			return
		}
		frame, err = dataset.ParseCSV(data, s.limits())
	} else {
		var req struct {
			Key string `json:"key"`
		}
		if err := s.decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		if req.Key == "" {
			writeError(w, apperr.New(apperr.KindInvalidRequest, "dataset key or CSV upload required"))
			return
		}
		frame, err = s.registry.Load(req.Key)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	id, err := s.store.Create(frame)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.IncDatasetLoaded()
	described, err := profile.Describe(frame)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"session_id": id,
		"profile":    described,
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	frame, err := s.store.Frame(sessionID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	described, err := profile.Describe(frame)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, described)
}

func (s *Server) handleListAlgorithms(w http.ResponseWriter, r *http.Request) {
	task := preprocess.Task(r.URL.Query().Get("task"))
	if task == "" {
		task = preprocess.TaskClassification
	}
	if task != preprocess.TaskClassification && task != preprocess.TaskRegression {
		writeError(w, apperr.New(apperr.KindInvalidRequest, "unknown task %q", task))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"task":       task,
		"algorithms": train.Algorithms(task),
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	s.store.Delete(sessionID(r))
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "deleted"})
}

func (s *Server) handleOutliersCompute(w http.ResponseWriter, r *http.Request) {
	var req outliers.DetectRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	id := sessionID(r)
	frame, err := s.store.Frame(id)
	if err != nil {
		writeError(w, err)
		return
	}
	report, err := outliers.Detect(frame, req)
	if err != nil {
		writeError(w, err)
		return
	}
	state := &session.OutlierState{
		Method:    report.Method,
		Mask:      report.Mask,
		Columns:   report.Columns,
		Threshold: report.Threshold,
	}
	if err := s.store.SetOutlierState(id, state); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type outlierApplyRequest struct {
	Action string  `json:"action"`
	K      float64 `json:"k"`
}

// handleOutliersApply consumes the mask cached by the compute step.
// Actions that rewrite the dataframe (drop, winsorize) invalidate the
// mask; a second apply without recomputing fails with NoMaskComputed.
func (s *Server) handleOutliersApply(w http.ResponseWriter, r *http.Request) {
	var req outlierApplyRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	id := sessionID(r)

	if req.Action == "reset" {
		if err := s.store.ClearOutlierState(id); err != nil {
			writeError(w, err)
			return
		}
		frame, err := s.store.Frame(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "reset", "rows": frame.Rows()})
		return
	}

	state, err := s.store.OutlierState(id)
	if err != nil {
		writeError(w, err)
		return
	}
	frame, err := s.store.Frame(id)
	if err != nil {
		writeError(w, err)
		return
	}

	switch req.Action {
	case "mask":
		masked := 0
		for _, keep := range state.Mask {
			if !keep {
				masked++
			}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "mask",
			"mask_stats": map[string]int{
				"masked_rows":   masked,
				"unmasked_rows": len(state.Mask) - masked,
			},
		})
	case "drop":
		kept, err := outliers.Drop(frame, state.Mask)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := s.store.ReplaceFrame(id, kept); err != nil {
			writeError(w, err)
			return
		}
		s.writeApplyProfile(w, id, "drop")
	case "winsorize":
		k := req.K
		if k == 0 {
			k = 1.5
		}
		capped, err := outliers.Winsorize(frame, state.Columns, k)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := s.store.ReplaceFrame(id, capped); err != nil {
			writeError(w, err)
			return
		}
		s.writeApplyProfile(w, id, "winsorize")
	default:
		writeError(w, apperr.New(apperr.KindInvalidRequest, "unsupported action %q", req.Action))
	}
}

func (s *Server) writeApplyProfile(w http.ResponseWriter, id, status string) {
	frame, err := s.store.Frame(id)
	if err != nil {
		writeError(w, err)
		return
	}
	described, err := profile.Describe(frame)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  status,
		"profile": described,
	})
}

func (s *Server) handlePreprocess(w http.ResponseWriter, r *http.Request) {
	var req preprocess.Request
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	id := sessionID(r)
	frame, err := s.store.Frame(id)
	if err != nil {
		writeError(w, err)
		return
	}
	summary, artifact, err := preprocess.FitPreprocess(frame, req)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.SetArtifact(id, summary.Target, artifact); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	var req train.Request
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.CVFolds == 0 {
		req.CVFolds = s.cfg.DefaultCVFolds
	}
	id := sessionID(r)
	artifact, err := s.store.Artifact(id)
	if err != nil {
		writeError(w, err)
		return
	}
	run, err := train.Train(artifact, req)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.AddRun(id, run); err != nil {
		writeError(w, err)
		return
	}
	metrics.IncRunTrained()
	writeJSON(w, http.StatusCreated, runPayload(run))
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["run_id"]
	sessID, run, err := s.store.RunByID(runID)
	if err != nil {
		writeError(w, err)
		return
	}
	payload := runPayload(run)
	payload["session_id"] = sessID
	writeJSON(w, http.StatusOK, payload)
}

func runPayload(run *train.Run) map[string]interface{} {
	payload := map[string]interface{}{
		"run_id":          run.ID,
		"algorithm":       run.Algorithm,
		"algorithm_label": run.Label,
		"task":            run.Task,
		"target":          run.Target,
		"feature_names":   run.FeatureNames,
		"metrics":         run.Metrics,
		"eval_table":      run.EvalTable,
		"created_at":      run.CreatedAt,
	}
	if len(run.Classes) > 0 {
		payload["classes"] = run.Classes
	}
	if run.Curves != nil {
		payload["curves"] = run.Curves
	}
	if len(run.Importances) > 0 {
		payload["feature_importances"] = run.Importances
	}
	return payload
}

type predictSingleRequest struct {
	RunID    string                 `json:"run_id"`
	Features map[string]interface{} `json:"features"`
}

func (s *Server) handlePredictSingle(w http.ResponseWriter, r *http.Request) {
	var req predictSingleRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	id := sessionID(r)
	run, err := s.resolveRun(id, req.RunID)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := inference.PredictSingle(run, req.Features)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.IncPrediction()
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePredictBatch(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	run, err := s.resolveRun(id, r.URL.Query().Get("run_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestBody)
	data, readErr := io.ReadAll(body)
	if readErr != nil {
		writeError(w, apperr.New(apperr.KindDatasetTooLarge, "request body exceeds %d bytes", s.cfg.MaxRequestBody))
		return
	}
	result, err := inference.PredictBatch(run, data, s.limits())
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.SetBatchResult(id, result.CSV); err != nil {
		writeError(w, err)
		return
	}
	metrics.AddBatchRows(result.Rows)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleBatchDownload(w http.ResponseWriter, r *http.Request) {
	data, err := s.store.BatchResult(sessionID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="predictions.csv"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// resolveRun picks the session's latest run, or the named run when the
// caller pins one. A run id owned by a different session is not visible.
func (s *Server) resolveRun(id, runID string) (*train.Run, error) {
	if runID == "" {
		return s.store.LatestRun(id)
	}
	owner, run, err := s.store.RunByID(runID)
	if err != nil {
		return nil, err
	}
	if owner != id {
		return nil, apperr.New(apperr.KindRunNotFound, "run %q not found for this session", runID)
	}
	return run, nil
}

func (s *Server) handleHistogram(w http.ResponseWriter, r *http.Request) {
	var req viz.HistogramRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	frame, err := s.store.Frame(sessionID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	hist, err := viz.ComputeHistogram(frame, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

func (s *Server) handleBox(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Column  string `json:"column"`
		GroupBy string `json:"group_by"`
	}
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	frame, err := s.store.Frame(sessionID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	summary, err := viz.ComputeBox(frame, req.Column, req.GroupBy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleCorrelation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Columns []string `json:"columns"`
	}
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	frame, err := s.store.Frame(sessionID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	corr, err := viz.ComputeCorrelation(frame, req.Columns)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, corr)
}

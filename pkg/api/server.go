// Package api exposes the workbench over HTTP: dataset loading, profiling,
// outlier handling, preprocessing, training, inference and visualization
// summaries, all scoped to in-memory sessions.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tabularml/workbench/pkg/common/apperr"
	"github.com/tabularml/workbench/pkg/common/config"
	"github.com/tabularml/workbench/pkg/common/logger"
	"github.com/tabularml/workbench/pkg/dataset"
	"github.com/tabularml/workbench/pkg/observability/metrics"
	"github.com/tabularml/workbench/pkg/session"
)

type Server struct {
	store    *session.Store
	registry *dataset.Registry
	cfg      *config.Config
}

func NewServer(store *session.Store, registry *dataset.Registry, cfg *config.Config) *Server {
	return &Server{store: store, registry: registry, cfg: cfg}
}

// Router builds the full route table. All session-scoped routes take the
// session id as a path variable.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(Recovery, Logging)

	router.HandleFunc("/health", healthCheck).Methods("GET")
	router.HandleFunc("/metrics", s.handleMetrics).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/system/config", s.handleSystemConfig).Methods("GET")
	api.HandleFunc("/datasets", s.handleListDatasets).Methods("GET")
	api.HandleFunc("/datasets/load", s.handleLoadDataset).Methods("POST")
	api.HandleFunc("/algorithms", s.handleListAlgorithms).Methods("GET")

	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/profile", s.handleProfile).Methods("GET")
	api.HandleFunc("/sessions/{id}/outliers/compute", s.handleOutliersCompute).Methods("POST")
	api.HandleFunc("/sessions/{id}/outliers/apply", s.handleOutliersApply).Methods("POST")
	api.HandleFunc("/sessions/{id}/preprocess", s.handlePreprocess).Methods("POST")
	api.HandleFunc("/sessions/{id}/train", s.handleTrain).Methods("POST")
	api.HandleFunc("/sessions/{id}/predict", s.handlePredictSingle).Methods("POST")
	api.HandleFunc("/sessions/{id}/predict/batch", s.handlePredictBatch).Methods("POST")
	api.HandleFunc("/sessions/{id}/predict/batch/download", s.handleBatchDownload).Methods("GET")
	api.HandleFunc("/sessions/{id}/viz/histogram", s.handleHistogram).Methods("POST")
	api.HandleFunc("/sessions/{id}/viz/box", s.handleBox).Methods("POST")
	api.HandleFunc("/sessions/{id}/viz/corr", s.handleCorrelation).Methods("POST")

	api.HandleFunc("/runs/{run_id}/evaluate", s.handleEvaluate).Methods("GET")

	return router
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics.WritePrometheus(w, s.store.Len())
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// writeJSON marshals before touching the response so an encoding failure
// still yields a typed error envelope instead of a truncated success.
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to encode response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"kind":"internal_error","message":"internal error"}}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// writeError maps a typed error kind to an HTTP status. Internal errors
// are logged but never echo their underlying message to the caller.
func writeError(w http.ResponseWriter, err error) {
	typed := apperr.Wrap(err)
	status := statusFor(typed.Kind)
	message := typed.Message
	if typed.Kind == apperr.KindInternal {
		logger.Log.WithError(err).Error("Internal error")
		message = "internal error"
	}
	body := map[string]interface{}{
		"kind":    typed.Kind,
		"message": message,
	}
	if len(typed.Details) > 0 {
		body["details"] = typed.Details
	}
	writeJSON(w, status, map[string]interface{}{"error": body})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindSessionNotFound, apperr.KindRunNotFound,
		apperr.KindColumnNotFound, apperr.KindTargetNotFound:
		return http.StatusNotFound
	case apperr.KindTooManySessions:
		return http.StatusTooManyRequests
	case apperr.KindDatasetTooLarge:
		return http.StatusRequestEntityTooLarge
	case apperr.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

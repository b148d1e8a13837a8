// Package metrics tracks workbench counters and renders them in the
// Prometheus text exposition format. Counters are process-local; there is
// no push or registry dependency.
package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	datasetsLoaded    atomic.Int64
	sessionsEvicted   atomic.Int64
	sessionsExpired   atomic.Int64
	runsTrained       atomic.Int64
	predictionsServed atomic.Int64
	batchRowsScored   atomic.Int64
)

func IncDatasetLoaded()  { datasetsLoaded.Add(1) }
func IncSessionEvicted() { sessionsEvicted.Add(1) }
func IncSessionExpired() { sessionsExpired.Add(1) }
func IncRunTrained()     { runsTrained.Add(1) }
func IncPrediction()     { predictionsServed.Add(1) }

func AddBatchRows(n int) { batchRowsScored.Add(int64(n)) }

// WritePrometheus renders all counters plus the caller-supplied live
// session gauge.
func WritePrometheus(w http.ResponseWriter, activeSessions int) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(w, "# HELP workbench_datasets_loaded_total Number of datasets loaded into sessions.\n")
	fmt.Fprintf(w, "# TYPE workbench_datasets_loaded_total counter\n")
	fmt.Fprintf(w, "workbench_datasets_loaded_total %d\n", datasetsLoaded.Load())

	fmt.Fprintf(w, "# HELP workbench_sessions_active Current number of live sessions.\n")
	fmt.Fprintf(w, "# TYPE workbench_sessions_active gauge\n")
	fmt.Fprintf(w, "workbench_sessions_active %d\n", activeSessions)

	fmt.Fprintf(w, "# HELP workbench_sessions_evicted_total Sessions evicted by the capacity limit.\n")
	fmt.Fprintf(w, "# TYPE workbench_sessions_evicted_total counter\n")
	fmt.Fprintf(w, "workbench_sessions_evicted_total %d\n", sessionsEvicted.Load())

	fmt.Fprintf(w, "# HELP workbench_sessions_expired_total Sessions purged by the idle TTL.\n")
	fmt.Fprintf(w, "# TYPE workbench_sessions_expired_total counter\n")
	fmt.Fprintf(w, "workbench_sessions_expired_total %d\n", sessionsExpired.Load())

	fmt.Fprintf(w, "# HELP workbench_runs_trained_total Completed training runs.\n")
	fmt.Fprintf(w, "# TYPE workbench_runs_trained_total counter\n")
	fmt.Fprintf(w, "workbench_runs_trained_total %d\n", runsTrained.Load())

	fmt.Fprintf(w, "# HELP workbench_predictions_total Single-row predictions served.\n")
	fmt.Fprintf(w, "# TYPE workbench_predictions_total counter\n")
	fmt.Fprintf(w, "workbench_predictions_total %d\n", predictionsServed.Load())

	fmt.Fprintf(w, "# HELP workbench_batch_rows_scored_total Rows scored through batch prediction.\n")
	fmt.Fprintf(w, "# TYPE workbench_batch_rows_scored_total counter\n")
	fmt.Fprintf(w, "workbench_batch_rows_scored_total %d\n", batchRowsScored.Load())
}

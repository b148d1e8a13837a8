package inference

import (
	"os"
	"strings"
	"testing"

	"github.com/tabularml/workbench/pkg/common/apperr"
	"github.com/tabularml/workbench/pkg/common/logger"
	"github.com/tabularml/workbench/pkg/dataset"
	"github.com/tabularml/workbench/pkg/preprocess"
	"github.com/tabularml/workbench/pkg/train"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

func trainedRun(t *testing.T) *train.Run {
	t.Helper()
	csv := "feat1,feat2,target\n0,1,0\n1,0,1\n0,1,0\n1,0,1\n0,1,0\n1,0,1\n0,1,0\n1,0,1\n"
	frame, err := dataset.ParseCSV([]byte(csv), dataset.Limits{})
	if err != nil {
		t.Fatalf("failed to build frame: %v", err)
	}
	_, artifact, err := preprocess.FitPreprocess(frame, preprocess.Request{Target: "target"})
	if err != nil {
		t.Fatalf("failed to preprocess: %v", err)
	}
	run, err := train.Train(artifact, train.Request{Algorithm: train.AlgorithmLinearModel})
	if err != nil {
		t.Fatalf("failed to train: %v", err)
	}
	return run
}

func TestPredictSingleRequiresRun(t *testing.T) {
	if _, err := PredictSingle(nil, map[string]interface{}{"feat1": 1}); !apperr.Is(err, apperr.KindModelNotReady) {
		t.Fatalf("expected ModelNotReady, got %v", err)
	}
}

func TestPredictSingleClassification(t *testing.T) {
	run := trainedRun(t)
	result, err := PredictSingle(run, map[string]interface{}{"feat1": 1.0, "feat2": 0.0})
	if err != nil {
		t.Fatalf("failed to predict: %v", err)
	}
	if result.Prediction != "1" {
		t.Fatalf("expected class 1, got %v", result.Prediction)
	}
	if result.Confidence == nil || *result.Confidence < 0 || *result.Confidence > 1 {
		t.Fatalf("confidence out of range: %v", result.Confidence)
	}
	if len(result.Probabilities) != 2 {
		t.Fatalf("expected 2 class probabilities, got %v", result.Probabilities)
	}
}

func TestPredictSingleValidatesFeatures(t *testing.T) {
	run := trainedRun(t)

	_, err := PredictSingle(run, map[string]interface{}{"feat1": 1.0})
	if !apperr.Is(err, apperr.KindInvalidFeatureValue) {
		t.Fatalf("expected InvalidFeatureValue for missing feature, got %v", err)
	}
	if !strings.Contains(err.Error(), "feat2") {
		t.Fatalf("error must name the missing feature, got %v", err)
	}

	_, err = PredictSingle(run, map[string]interface{}{"feat1": "abc", "feat2": 0.0})
	if !apperr.Is(err, apperr.KindInvalidFeatureValue) {
		t.Fatalf("expected InvalidFeatureValue for non-numeric value, got %v", err)
	}

	_, err = PredictSingle(run, map[string]interface{}{"feat1": "1.5", "feat2": "0"})
	if err != nil {
		t.Fatalf("numeric strings must coerce, got %v", err)
	}
}

func TestPredictBatchRoundTrip(t *testing.T) {
	run := trainedRun(t)
	batch := []byte("feat1,feat2\n0,1\n1,0\n0,1\n1,0\n")

	result, err := PredictBatch(run, batch, dataset.Limits{MaxRows: 100, MaxColumns: 10})
	if err != nil {
		t.Fatalf("failed to predict batch: %v", err)
	}
	if result.Rows != 4 {
		t.Fatalf("expected 4 rows, got %d", result.Rows)
	}

	hasTarget := false
	hasConfidence := false
	for _, name := range result.Columns {
		if name == "target" {
			hasTarget = true
		}
		if name == "confidence" {
			hasConfidence = true
		}
	}
	if !hasTarget || !hasConfidence {
		t.Fatalf("expected prediction and confidence columns, got %v", result.Columns)
	}
	if len(result.Preview) != 4 {
		t.Fatalf("expected 4 preview rows, got %d", len(result.Preview))
	}

	parsed, err := dataset.ParseCSV(result.CSV, dataset.Limits{})
	if err != nil {
		t.Fatalf("serialized batch result must be valid CSV: %v", err)
	}
	predicted, _ := parsed.Column("target")
	for i := 0; i < parsed.Rows(); i++ {
		want := "0"
		if i%2 == 1 {
			want = "1"
		}
		if predicted.Cell(i) != want {
			t.Fatalf("row %d predicted %q, want %q", i, predicted.Cell(i), want)
		}
	}
}

func TestPredictBatchValidation(t *testing.T) {
	run := trainedRun(t)

	_, err := PredictBatch(run, []byte("feat1\n1\n"), dataset.Limits{})
	if !apperr.Is(err, apperr.KindMissingFeatureColumns) {
		t.Fatalf("expected MissingFeatureColumns, got %v", err)
	}
	if !strings.Contains(err.Error(), "feat2") {
		t.Fatalf("error must name the absent column, got %v", err)
	}

	_, err = PredictBatch(run, []byte("feat1,feat2\n1,abc\n"), dataset.Limits{})
	if !apperr.Is(err, apperr.KindInvalidBatchData) {
		t.Fatalf("expected InvalidBatchData, got %v", err)
	}
}

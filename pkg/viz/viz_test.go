package viz

import (
	"math"
	"testing"

	"github.com/tabularml/workbench/pkg/common/apperr"
	"github.com/tabularml/workbench/pkg/dataset"
)

func mustFrame(t *testing.T, csv string) *dataset.Frame {
	t.Helper()
	frame, err := dataset.ParseCSV([]byte(csv), dataset.Limits{})
	if err != nil {
		t.Fatalf("failed to build frame: %v", err)
	}
	return frame
}

func TestHistogramBinsAndEdges(t *testing.T) {
	frame := mustFrame(t, "value\n1\n2\n3\n4\n5\n6\n")
	hist, err := ComputeHistogram(frame, HistogramRequest{Column: "value", Bins: 3})
	if err != nil {
		t.Fatalf("failed to compute: %v", err)
	}
	if len(hist.Counts) != 3 {
		t.Fatalf("expected 3 counts, got %d", len(hist.Counts))
	}
	if len(hist.Edges) != 4 {
		t.Fatalf("expected 4 edges, got %d", len(hist.Edges))
	}
	if len(hist.Centers) != 3 {
		t.Fatalf("expected 3 centers, got %d", len(hist.Centers))
	}

	total := 0.0
	for _, c := range hist.Counts {
		total += c
	}
	if total != 6 {
		t.Fatalf("expected counts to sum to 6, got %v", total)
	}
	if hist.Edges[0] != 1 || hist.Edges[3] != 6 {
		t.Fatalf("unexpected edge span: %v", hist.Edges)
	}
}

func TestHistogramRangeFilterAndDensity(t *testing.T) {
	frame := mustFrame(t, "value\n1\n2\n3\n4\n5\n6\n100\n")
	lo, hi := 1.0, 6.0
	hist, err := ComputeHistogram(frame, HistogramRequest{
		Column: "value", Bins: 5, Min: &lo, Max: &hi, Density: true,
	})
	if err != nil {
		t.Fatalf("failed to compute: %v", err)
	}
	if hist.N != 6 {
		t.Fatalf("expected 6 values in range, got %d", hist.N)
	}

	// Density integrates to 1 over the binned range.
	width := hist.Edges[1] - hist.Edges[0]
	area := 0.0
	for _, c := range hist.Counts {
		area += c * width
	}
	if math.Abs(area-1) > 1e-9 {
		t.Fatalf("expected density area 1, got %v", area)
	}
}

func TestHistogramKDEAndLog1p(t *testing.T) {
	frame := mustFrame(t, "value\n-1\n0\n1\n10\n100\n1000\n")
	hist, err := ComputeHistogram(frame, HistogramRequest{Column: "value", Bins: 4, Log1p: true, KDE: true})
	if err != nil {
		t.Fatalf("failed to compute: %v", err)
	}
	// Negatives clamp to zero before log1p, so the lowest edge is 0.
	if hist.Edges[0] != 0 {
		t.Fatalf("expected lowest edge 0 after clamped log1p, got %v", hist.Edges[0])
	}
	if hist.KDE == nil || len(hist.KDE.X) != len(hist.KDE.Y) || len(hist.KDE.X) == 0 {
		t.Fatal("expected a KDE curve")
	}
	for i, y := range hist.KDE.Y {
		if y < 0 || math.IsNaN(y) {
			t.Fatalf("KDE point %d invalid: %v", i, y)
		}
	}
}

func TestHistogramValidation(t *testing.T) {
	frame := mustFrame(t, "value,label\n1,a\n2,b\n3,a\n")

	if _, err := ComputeHistogram(frame, HistogramRequest{Column: "nope"}); !apperr.Is(err, apperr.KindColumnNotFound) {
		t.Fatalf("expected ColumnNotFound, got %v", err)
	}
	if _, err := ComputeHistogram(frame, HistogramRequest{Column: "label"}); !apperr.Is(err, apperr.KindNonNumericColumn) {
		t.Fatalf("expected NonNumericColumn, got %v", err)
	}
	if _, err := ComputeHistogram(frame, HistogramRequest{Column: "value", Bins: 1}); !apperr.Is(err, apperr.KindInvalidRequest) {
		t.Fatalf("expected InvalidRequest for bins=1, got %v", err)
	}
	if _, err := ComputeHistogram(frame, HistogramRequest{Column: "value", Bins: 500}); !apperr.Is(err, apperr.KindInvalidRequest) {
		t.Fatalf("expected InvalidRequest for bins=500, got %v", err)
	}
}

func TestBoxSummaryGroups(t *testing.T) {
	frame := mustFrame(t, "v,g\n1,a\n2,a\n3,a\n4,a\n10,b\n20,b\n30,b\n40,b\n")

	overall, err := ComputeBox(frame, "v", "")
	if err != nil {
		t.Fatalf("failed to compute: %v", err)
	}
	stats, ok := overall.Groups["overall"]
	if !ok {
		t.Fatalf("expected overall group, got %v", overall.Groups)
	}
	if stats.Min != 1 || stats.Max != 40 || stats.Count != 8 {
		t.Fatalf("unexpected overall stats: %+v", stats)
	}
	if stats.Q1 > stats.Median || stats.Median > stats.Q3 {
		t.Fatalf("quartiles out of order: %+v", stats)
	}

	grouped, err := ComputeBox(frame, "v", "g")
	if err != nil {
		t.Fatalf("failed to compute grouped: %v", err)
	}
	if len(grouped.Groups) != 2 {
		t.Fatalf("expected 2 groups, got %v", grouped.Groups)
	}
	if grouped.Groups["a"].Max != 4 || grouped.Groups["b"].Min != 10 {
		t.Fatalf("unexpected group stats: %+v", grouped.Groups)
	}
}

func TestCorrelationMatrix(t *testing.T) {
	frame := mustFrame(t, "a,b,c\n1,2,5\n2,4,5\n3,6,5\n4,8,5\n")
	corr, err := ComputeCorrelation(frame, nil)
	if err != nil {
		t.Fatalf("failed to compute: %v", err)
	}
	if len(corr.Columns) != 3 || len(corr.Matrix) != 3 {
		t.Fatalf("expected 3x3 matrix, got %v", corr.Columns)
	}
	for i := range corr.Matrix {
		if corr.Matrix[i][i] != 1 {
			t.Fatalf("diagonal must be 1, got %v", corr.Matrix[i][i])
		}
	}
	// a and b are perfectly correlated.
	if math.Abs(corr.Matrix[0][1]-1) > 1e-9 {
		t.Fatalf("expected corr(a,b)=1, got %v", corr.Matrix[0][1])
	}
	// c is constant: undefined correlations are reported as 0.
	if corr.Matrix[0][2] != 0 || corr.Matrix[2][0] != 0 {
		t.Fatalf("expected constant-column correlation 0, got %v", corr.Matrix[0][2])
	}
}

func TestCorrelationValidation(t *testing.T) {
	text := mustFrame(t, "name\na\nb\n")
	if _, err := ComputeCorrelation(text, nil); !apperr.Is(err, apperr.KindNoNumericColumns) {
		t.Fatalf("expected NoNumericColumns, got %v", err)
	}

	frame := mustFrame(t, "a,name\n1,x\n2,y\n")
	if _, err := ComputeCorrelation(frame, []string{"a", "name"}); !apperr.Is(err, apperr.KindNonNumericColumn) {
		t.Fatalf("expected NonNumericColumn, got %v", err)
	}
	if _, err := ComputeCorrelation(frame, []string{"nope"}); !apperr.Is(err, apperr.KindColumnNotFound) {
		t.Fatalf("expected ColumnNotFound, got %v", err)
	}
}

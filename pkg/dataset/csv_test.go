package dataset

import (
	"strings"
	"testing"

	"github.com/tabularml/workbench/pkg/common/apperr"
)

func TestParseCSVInfersColumnKinds(t *testing.T) {
	data := []byte("age,name,score\n34,alice,1.5\n29,bob,\n41,carol,2.25\n")
	frame, err := ParseCSV(data, Limits{MaxRows: 100, MaxColumns: 10})
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if frame.Rows() != 3 || frame.Cols() != 3 {
		t.Fatalf("expected 3x3 frame, got %dx%d", frame.Rows(), frame.Cols())
	}

	age, _ := frame.Column("age")
	if !age.IsNumeric() {
		t.Fatal("expected age to be numeric")
	}
	name, _ := frame.Column("name")
	if name.IsNumeric() {
		t.Fatal("expected name to be categorical")
	}
	score, _ := frame.Column("score")
	if score.MissingCount() != 1 {
		t.Fatalf("expected one missing score, got %d", score.MissingCount())
	}
}

func TestParseCSVTreatsMissingTokens(t *testing.T) {
	data := []byte("v\n1\nNA\nnull\nnan\n2\n")
	frame, err := ParseCSV(data, Limits{MaxRows: 100, MaxColumns: 10})
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	col, _ := frame.Column("v")
	if col.MissingCount() != 3 {
		t.Fatalf("expected 3 missing values, got %d", col.MissingCount())
	}
	if !col.IsNumeric() {
		t.Fatal("expected column to stay numeric despite missing tokens")
	}
}

func TestParseCSVTreatsNonFiniteAsMissing(t *testing.T) {
	data := []byte("v\n1\ninf\n-inf\n3\n")
	frame, err := ParseCSV(data, Limits{MaxRows: 100, MaxColumns: 10})
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	col, _ := frame.Column("v")
	if !col.IsNumeric() {
		t.Fatal("expected column to stay numeric")
	}
	if col.MissingCount() != 2 {
		t.Fatalf("expected 2 missing values for non-finite cells, got %d", col.MissingCount())
	}
	for _, v := range col.NonMissingFloats() {
		if v != 1 && v != 3 {
			t.Fatalf("unexpected surviving value %v", v)
		}
	}
}

func TestParseCSVEnforcesLimits(t *testing.T) {
	wide := []byte("a,b,c\n1,2,3\n")
	if _, err := ParseCSV(wide, Limits{MaxRows: 10, MaxColumns: 2}); !apperr.Is(err, apperr.KindDatasetTooLarge) {
		t.Fatalf("expected DatasetTooLarge for columns, got %v", err)
	}

	tall := []byte("a\n1\n2\n3\n")
	if _, err := ParseCSV(tall, Limits{MaxRows: 2, MaxColumns: 10}); !apperr.Is(err, apperr.KindDatasetTooLarge) {
		t.Fatalf("expected DatasetTooLarge for rows, got %v", err)
	}
}

func TestParseCSVRejectsBadInput(t *testing.T) {
	if _, err := ParseCSV([]byte("a,b\n1\n"), Limits{MaxRows: 10, MaxColumns: 10}); !apperr.Is(err, apperr.KindInvalidCSV) {
		t.Fatalf("expected InvalidCSV for ragged rows, got %v", err)
	}
	if _, err := ParseCSV([]byte("a,a\n1,2\n"), Limits{MaxRows: 10, MaxColumns: 10}); !apperr.Is(err, apperr.KindInvalidCSV) {
		t.Fatalf("expected InvalidCSV for duplicate headers, got %v", err)
	}
	if _, err := ParseCSV([]byte("a,b\n"), Limits{MaxRows: 10, MaxColumns: 10}); !apperr.Is(err, apperr.KindEmptyDataset) {
		t.Fatalf("expected EmptyDataset for header-only input, got %v", err)
	}
}

func TestEncodeCSVRoundTrip(t *testing.T) {
	data := []byte("x,label\n1,a\n2,b\n,a\n")
	frame, err := ParseCSV(data, Limits{MaxRows: 10, MaxColumns: 10})
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	out, err := EncodeCSV(frame)
	if err != nil {
		t.Fatalf("failed to encode: %v", err)
	}
	again, err := ParseCSV(out, Limits{MaxRows: 10, MaxColumns: 10})
	if err != nil {
		t.Fatalf("failed to re-parse: %v", err)
	}
	if again.Rows() != frame.Rows() || again.Cols() != frame.Cols() {
		t.Fatalf("round trip changed shape: %dx%d vs %dx%d", again.Rows(), again.Cols(), frame.Rows(), frame.Cols())
	}
	col, _ := again.Column("x")
	if col.MissingCount() != 1 {
		t.Fatalf("expected missing cell to survive round trip, got %d missing", col.MissingCount())
	}
}

func TestRegistryLoadsBuiltins(t *testing.T) {
	registry, err := LoadRegistry("")
	if err != nil {
		t.Fatalf("failed to load registry: %v", err)
	}
	list, err := registry.List()
	if err != nil {
		t.Fatalf("failed to list datasets: %v", err)
	}
	if len(list) == 0 {
		t.Fatal("expected built-in datasets")
	}

	frame, err := registry.Load("iris")
	if err != nil {
		t.Fatalf("failed to load iris: %v", err)
	}
	if frame.Rows() == 0 {
		t.Fatal("expected iris rows")
	}
	if !frame.HasColumn("species") {
		t.Fatalf("expected species column, got %v", frame.ColumnNames())
	}

	if _, err := registry.Load("nope"); err == nil || !strings.Contains(err.Error(), "nope") {
		t.Fatalf("expected unknown key error naming the key, got %v", err)
	}
}

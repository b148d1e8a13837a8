package profile

import (
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

func TestDescribeReportsShapeAndStats(t *testing.T) {
	frame := mustFrame(t, "x,label\n1,a\n2,b\n3,a\n4,b\n5,a\n6,b\n7,a\n")
	p, err := Describe(frame)
	if err != nil {
		t.Fatalf("failed to describe: %v", err)
	}
	if p.Shape[0] != 7 || p.Shape[1] != 2 {
		t.Fatalf("expected shape [7 2], got %v", p.Shape)
	}
	if len(p.Head) != 5 {
		t.Fatalf("expected 5 preview rows, got %d", len(p.Head))
	}
	if p.DTypes["x"] != "float64" || p.DTypes["label"] != "object" {
		t.Fatalf("unexpected dtypes: %v", p.DTypes)
	}

	var x *ColumnProfile
	for i := range p.Columns {
		if p.Columns[i].Name == "x" {
			x = &p.Columns[i]
		}
	}
	if x == nil {
		t.Fatal("missing profile for column x")
	}
	if x.Mean == nil || *x.Mean != 4 {
		t.Fatalf("expected mean 4, got %v", x.Mean)
	}
	if x.Min == nil || *x.Min != 1 || x.Max == nil || *x.Max != 7 {
		t.Fatalf("unexpected min/max: %v %v", x.Min, x.Max)
	}
}

func TestDescribeCountsMissing(t *testing.T) {
	frame := mustFrame(t, "x,y\n1,a\nna,b\n3,c\n")
	p, err := Describe(frame)
	if err != nil {
		t.Fatalf("failed to describe: %v", err)
	}
	if p.Columns[0].Missing != 1 {
		t.Fatalf("expected 1 missing, got %d", p.Columns[0].Missing)
	}
}

func TestDescribeRejectsEmptyFrame(t *testing.T) {
	frame := mustFrame(t, "x\n1\n")
	empty := frame.Filter([]bool{false})
	if _, err := Describe(empty); !apperr.Is(err, apperr.KindEmptyDataset) {
		t.Fatalf("expected EmptyDataset, got %v", err)
	}
}

// Package preprocess fits the reusable column transform (impute, scale,
// encode), performs the train/test split and infers the learning task for
// a chosen target column.
package preprocess

import (
	"math"
	"sort"
	"strconv"

	"github.com/tabularml/workbench/pkg/common/apperr"
	"github.com/tabularml/workbench/pkg/dataset"
)

type Task string

const (
	TaskClassification Task = "classification"
	TaskRegression     Task = "regression"
)

// Request carries the caller's preprocessing configuration.
type Request struct {
	Target string       `json:"target"`
	Split  SplitConfig  `json:"split"`
	Impute ImputeConfig `json:"impute"`
	Scale  ScaleConfig  `json:"scale"`
	Encode EncodeConfig `json:"encode"`
}

func (r Request) withDefaults() Request {
	if r.Impute.Numeric == "" {
		r.Impute.Numeric = ImputeMean
	}
	if r.Impute.Categorical == "" {
		r.Impute.Categorical = ImputeMostFrequent
	}
	if r.Scale.Method == "" {
		r.Scale.Method = ScaleStandard
	}
	if r.Encode.OneHot == nil {
		enabled := true
		r.Encode.OneHot = &enabled
	}
	return r
}

// MissingnessSummary records what imputation had to fix.
type MissingnessSummary struct {
	DroppedTargetRows       int            `json:"dropped_target_rows"`
	RowsWithMissingFeatures int            `json:"rows_with_missing_features"`
	ImputedCells            int            `json:"imputed_cells"`
	PerColumn               map[string]int `json:"per_column,omitempty"`
}

// Artifact is the fitted preprocessing state consumed by the trainer.
type Artifact struct {
	Transform    *ColumnTransform
	XTrain       [][]float64
	XTest        [][]float64
	YTrain       []float64
	YTest        []float64
	Classes      []string
	FeatureNames []string
	Target       string
	Task         Task
	Missing      MissingnessSummary
	// Row positions (within the working frame) of each split, used by the
	// trainer's row-level evaluation table.
	TrainIndices []int
	TestIndices  []int
}

// Summary is the caller-facing result of a preprocessing run.
type Summary struct {
	Target             string             `json:"target"`
	Task               Task               `json:"task"`
	TrainRows          int                `json:"train_rows"`
	TestRows           int                `json:"test_rows"`
	NumericColumns     []string           `json:"numeric_columns"`
	CategoricalColumns []string           `json:"categorical_columns"`
	FeatureNames       []string           `json:"feature_names"`
	Stratified         bool               `json:"stratified"`
	Missing            MissingnessSummary `json:"missing"`
}

// FitPreprocess drops rows with a missing target, infers the task, splits
// train/test, fits the column transform on the training split only and
// transforms both splits.
func FitPreprocess(frame *dataset.Frame, req Request) (*Summary, *Artifact, error) {
	req = req.withDefaults()
	targetCol, ok := frame.Column(req.Target)
	if !ok {
		return nil, nil, apperr.New(apperr.KindTargetNotFound, "target column %q not found", req.Target)
	}

	keep := make([]bool, frame.Rows())
	kept := 0
	for i := range keep {
		if !targetCol.Missing[i] {
			keep[i] = true
			kept++
		}
	}
	if kept == 0 {
		return nil, nil, apperr.New(apperr.KindEmptyDataset, "all rows have a missing target value")
	}
	working := frame
	dropped := frame.Rows() - kept
	if dropped > 0 {
		working = frame.Filter(keep)
	}
	targetCol, _ = working.Column(req.Target)

	task := inferTask(targetCol, working.Rows())
	classes, labels := encodeTarget(targetCol, task)

	var numericCols, categoricalCols []string
	for i := 0; i < working.Cols(); i++ {
		col := working.ColumnAt(i)
		if col.Name == req.Target {
			continue
		}
		if col.IsNumeric() {
			numericCols = append(numericCols, col.Name)
		} else {
			categoricalCols = append(categoricalCols, col.Name)
		}
	}

	var stratLabels []int
	if task == TaskClassification && len(classes) > 1 {
		stratLabels = labels
	}
	trainIdx, testIdx, stratified := trainTestSplit(working.Rows(), stratLabels, req.Split)

	transform := NewColumnTransform(numericCols, categoricalCols, req.Impute, req.Scale, req.Encode)
	if err := transform.Fit(working, trainIdx); err != nil {
		return nil, nil, err
	}
	xTrain, err := transform.Transform(working, trainIdx)
	if err != nil {
		return nil, nil, err
	}
	xTest, err := transform.Transform(working, testIdx)
	if err != nil {
		return nil, nil, err
	}

	yTrain := make([]float64, len(trainIdx))
	yTest := make([]float64, len(testIdx))
	for i, r := range trainIdx {
		yTrain[i] = targetValue(targetCol, labels, task, r)
	}
	for i, r := range testIdx {
		yTest[i] = targetValue(targetCol, labels, task, r)
	}

	missing := missingness(working, req.Target, dropped)
	featureNames := transform.FeatureNames()

	summary := &Summary{
		Target:             req.Target,
		Task:               task,
		TrainRows:          len(trainIdx),
		TestRows:           len(testIdx),
		NumericColumns:     numericCols,
		CategoricalColumns: categoricalCols,
		FeatureNames:       featureNames,
		Stratified:         stratified,
		Missing:            missing,
	}
	artifact := &Artifact{
		Transform:    transform,
		XTrain:       xTrain,
		XTest:        xTest,
		YTrain:       yTrain,
		YTest:        yTest,
		Classes:      classes,
		FeatureNames: featureNames,
		Target:       req.Target,
		Task:         task,
		Missing:      missing,
		TrainIndices: trainIdx,
		TestIndices:  testIdx,
	}
	return summary, artifact, nil
}

// inferTask treats a target as classification when its cardinality is at
// most max(10, 5% of rows); numeric targets above that are regression.
func inferTask(col *dataset.Column, rows int) Task {
	if !col.IsNumeric() {
		return TaskClassification
	}
	distinct := map[float64]bool{}
	for i, v := range col.Floats {
		if !col.Missing[i] {
			distinct[v] = true
		}
	}
	limit := int(math.Max(10, math.Ceil(0.05*float64(rows))))
	if len(distinct) > limit {
		return TaskRegression
	}
	return TaskClassification
}

// encodeTarget maps classification labels to class indices ordered by the
// natural order of the class values.
func encodeTarget(col *dataset.Column, task Task) ([]string, []int) {
	if task != TaskClassification {
		return nil, nil
	}
	seen := map[string]bool{}
	for i := 0; i < col.Len(); i++ {
		if !col.Missing[i] {
			seen[col.Cell(i)] = true
		}
	}
	classes := make([]string, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	if col.IsNumeric() {
		sort.Slice(classes, func(a, b int) bool {
			va, _ := strconv.ParseFloat(classes[a], 64)
			vb, _ := strconv.ParseFloat(classes[b], 64)
			return va < vb
		})
	} else {
		sort.Strings(classes)
	}
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	labels := make([]int, col.Len())
	for i := 0; i < col.Len(); i++ {
		if !col.Missing[i] {
			labels[i] = index[col.Cell(i)]
		}
	}
	return classes, labels
}

func targetValue(col *dataset.Column, labels []int, task Task, row int) float64 {
	if task == TaskClassification {
		return float64(labels[row])
	}
	return col.Floats[row]
}

func missingness(frame *dataset.Frame, target string, droppedTargetRows int) MissingnessSummary {
	summary := MissingnessSummary{
		DroppedTargetRows: droppedTargetRows,
		PerColumn:         map[string]int{},
	}
	rowHasMissing := make([]bool, frame.Rows())
	for i := 0; i < frame.Cols(); i++ {
		col := frame.ColumnAt(i)
		if col.Name == target {
			continue
		}
		count := 0
		for r, m := range col.Missing {
			if m {
				count++
				rowHasMissing[r] = true
			}
		}
		if count > 0 {
			summary.PerColumn[col.Name] = count
			summary.ImputedCells += count
		}
	}
	for _, m := range rowHasMissing {
		if m {
			summary.RowsWithMissingFeatures++
		}
	}
	if len(summary.PerColumn) == 0 {
		summary.PerColumn = nil
	}
	return summary
}

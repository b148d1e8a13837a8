// Package apperr defines the typed error taxonomy shared across the
// workbench services. Every error returned to a caller is one of these
// kinds; unexpected internal failures are coerced into KindInternal so
// library-specific messages never become part of the API contract.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindSessionNotFound       Kind = "session_not_found"
	KindRunNotFound           Kind = "run_not_found"
	KindEmptyDataset          Kind = "empty_dataset"
	KindInvalidCSV            Kind = "invalid_csv"
	KindDatasetTooLarge       Kind = "dataset_too_large"
	KindTooManySessions       Kind = "too_many_sessions"
	KindTargetNotFound        Kind = "target_not_found"
	KindColumnNotFound        Kind = "column_not_found"
	KindNonNumericColumn      Kind = "non_numeric_column"
	KindNoNumericColumns      Kind = "no_numeric_columns"
	KindInvalidThreshold      Kind = "invalid_threshold"
	KindInvalidHyperparameter Kind = "invalid_hyperparameter"
	KindInvalidFeatureValue   Kind = "invalid_feature_value"
	KindMissingFeatureColumns Kind = "missing_feature_columns"
	KindInvalidBatchData      Kind = "invalid_batch_data"
	KindNoMaskComputed        Kind = "no_mask_computed"
	KindPreprocessingRequired Kind = "preprocessing_required"
	KindModelNotReady         Kind = "model_not_ready"
	KindInvalidRequest        Kind = "invalid_request"
	KindInternal              Kind = "internal_error"
)

type Error struct {
	Kind    Kind
	Message string
	Details map[string]interface{}
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func WithDetails(kind Kind, details map[string]interface{}, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Details: details}
}

// Wrap coerces an arbitrary error into an *Error, preserving typed errors
// and hiding everything else behind KindInternal.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return &Error{Kind: KindInternal, Message: "internal error", cause: err}
}

// KindOf reports the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

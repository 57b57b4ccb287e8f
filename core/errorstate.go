package core

import (
	"slices"
	"time"
)

// SchemaErrorKind categorizes schema errors.
type SchemaErrorKind string

const (
	SchemaErrorGeneration SchemaErrorKind = "generation"
	SchemaErrorValidation SchemaErrorKind = "validation"
)

// DestinationErrorKind categorizes destination store errors.
type DestinationErrorKind string

const (
	DestinationErrorConnection DestinationErrorKind = "connection"
	DestinationErrorWrite      DestinationErrorKind = "write"
	DestinationErrorQuery      DestinationErrorKind = "query"
)

// ValidationErrorKind categorizes data validation errors.
type ValidationErrorKind string

const (
	ValidationErrorDataType     ValidationErrorKind = "data_type"
	ValidationErrorConstraint   ValidationErrorKind = "constraint"
	ValidationErrorMissingField ValidationErrorKind = "missing_field"
	ValidationErrorFormat       ValidationErrorKind = "format"
)

// PipelineError is a per-stage error entry, tagged fatal or warning.
type PipelineError struct {
	Stage      StageName
	Message    string
	Fatal      bool
	OccurredAt time.Time
}

// SchemaError is a schema generation or validation error entry.
type SchemaError struct {
	Kind       SchemaErrorKind
	Message    string
	OccurredAt time.Time
}

// DestinationError is a destination store error entry. Statement carries
// the offending query when applicable.
type DestinationError struct {
	Kind       DestinationErrorKind
	Message    string
	Statement  string
	OccurredAt time.Time
}

// ValidationError is a data validation error entry.
type ValidationError struct {
	Kind       ValidationErrorKind
	Field      string
	Expected   string
	Actual     string
	Message    string
	OccurredAt time.Time
}

// ErrorState is the categorized error ledger attached to each job: four
// independent append-only lists with counters. Counters always equal the
// ledger lengths.
type ErrorState struct {
	Pipeline    []PipelineError
	Schema      []SchemaError
	Destination []DestinationError
	Validation  []ValidationError

	PipelineCount    int
	SchemaCount      int
	DestinationCount int
	ValidationCount  int
	FatalCount       int
}

// RecordPipelineError appends a per-stage error entry.
func (e *ErrorState) RecordPipelineError(stage StageName, message string, fatal bool) {
	e.Pipeline = append(e.Pipeline, PipelineError{
		Stage:      stage,
		Message:    message,
		Fatal:      fatal,
		OccurredAt: time.Now().UTC(),
	})
	e.PipelineCount++
	if fatal {
		e.FatalCount++
	}
}

// RecordSchemaError appends a schema error entry.
func (e *ErrorState) RecordSchemaError(kind SchemaErrorKind, message string) {
	e.Schema = append(e.Schema, SchemaError{
		Kind:       kind,
		Message:    message,
		OccurredAt: time.Now().UTC(),
	})
	e.SchemaCount++
}

// RecordDestinationError appends a destination error entry.
func (e *ErrorState) RecordDestinationError(kind DestinationErrorKind, message, statement string) {
	e.Destination = append(e.Destination, DestinationError{
		Kind:       kind,
		Message:    message,
		Statement:  statement,
		OccurredAt: time.Now().UTC(),
	})
	e.DestinationCount++
}

// RecordValidationError appends a validation error entry.
func (e *ErrorState) RecordValidationError(kind ValidationErrorKind, field, expected, actual, message string) {
	e.Validation = append(e.Validation, ValidationError{
		Kind:       kind,
		Field:      field,
		Expected:   expected,
		Actual:     actual,
		Message:    message,
		OccurredAt: time.Now().UTC(),
	})
	e.ValidationCount++
}

// HasFatalError reports whether any pipeline error was recorded as fatal.
func (e *ErrorState) HasFatalError() bool {
	return e.FatalCount > 0
}

// TotalErrors returns the number of entries across all ledgers.
func (e *ErrorState) TotalErrors() int {
	return e.PipelineCount + e.SchemaCount + e.DestinationCount + e.ValidationCount
}

// Clear empties every ledger and resets all counters.
func (e *ErrorState) Clear() {
	*e = ErrorState{}
}

// ErrorSummary is a cross-ledger read view of error counts.
type ErrorSummary struct {
	PipelineErrors    int
	SchemaErrors      int
	DestinationErrors int
	ValidationErrors  int
	FatalErrors       int
	Total             int
}

// Summary returns counts by category.
func (e *ErrorState) Summary() ErrorSummary {
	return ErrorSummary{
		PipelineErrors:    e.PipelineCount,
		SchemaErrors:      e.SchemaCount,
		DestinationErrors: e.DestinationCount,
		ValidationErrors:  e.ValidationCount,
		FatalErrors:       e.FatalCount,
		Total:             e.TotalErrors(),
	}
}

// ErrorRecord is a flattened view of one ledger entry, used for
// cross-ledger reporting.
type ErrorRecord struct {
	Category   string // "pipeline", "schema", "destination" or "validation"
	Message    string
	Fatal      bool
	OccurredAt time.Time
}

// MostRecent returns up to n entries across all ledgers, most recent first.
func (e *ErrorState) MostRecent(n int) []ErrorRecord {
	records := make([]ErrorRecord, 0, e.TotalErrors())
	for _, entry := range e.Pipeline {
		records = append(records, ErrorRecord{
			Category:   "pipeline",
			Message:    entry.Message,
			Fatal:      entry.Fatal,
			OccurredAt: entry.OccurredAt,
		})
	}
	for _, entry := range e.Schema {
		records = append(records, ErrorRecord{
			Category:   "schema",
			Message:    entry.Message,
			OccurredAt: entry.OccurredAt,
		})
	}
	for _, entry := range e.Destination {
		records = append(records, ErrorRecord{
			Category:   "destination",
			Message:    entry.Message,
			OccurredAt: entry.OccurredAt,
		})
	}
	for _, entry := range e.Validation {
		records = append(records, ErrorRecord{
			Category:   "validation",
			Message:    entry.Message,
			OccurredAt: entry.OccurredAt,
		})
	}

	slices.SortFunc(records, func(a, b ErrorRecord) int {
		return b.OccurredAt.Compare(a.OccurredAt)
	})

	if n >= 0 && len(records) > n {
		records = records[:n]
	}
	return records
}

package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID is the standardized key for extraction/ingestion run identifiers.
	FieldRunID = "run_id"
	// FieldEvidenceID is the standardized key for the evidence unit being processed.
	FieldEvidenceID = "evidence_id"
	// FieldStage is the standardized key for pipeline stage names.
	FieldStage = "stage"
	// FieldSourcePath is the standardized key for paths inside the evidence container.
	FieldSourcePath = "source_path"
	// FieldEventType classifies warnings and errors for log filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests a next step to the operator.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
)

type ctxKey int

const (
	runIDKey ctxKey = iota
	evidenceIDKey
	stageKey
)

// WithRunID tags ctx with a run identifier picked up by WithContext.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// WithEvidenceID tags ctx with the evidence unit being processed.
func WithEvidenceID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, evidenceIDKey, id)
}

// WithStage tags ctx with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey, stage)
}

// RunIDFromContext returns the run identifier stored by WithRunID.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(runIDKey).(string)
	return id, ok && id != ""
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if id, ok := ctx.Value(evidenceIDKey).(int64); ok {
		fields = append(fields, slog.Int64(FieldEvidenceID, id))
	}
	if stage, ok := ctx.Value(stageKey).(string); ok && stage != "" {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(toArgs(fields)...)
}

package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// A review run enriches the context once and every stage, retriever and LLM call logged
// below it carries the same review_id without passing it around.
type LogFields struct {
	ReviewID  *int64  // Snowflake review ID
	Stage     *string // Pipeline stage currently running (e.g., "analyze_risks")
	FileName  *string // Uploaded file name, when the review came from an upload
	Provider  *string // LLM provider serving the call
	Component string  // Component name (OTel semantic convention style, e.g., "review.orchestrator")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
// Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, update LogFields) LogFields {
	result := existing

	if update.ReviewID != nil {
		result.ReviewID = update.ReviewID
	}
	if update.Stage != nil {
		result.Stage = update.Stage
	}
	if update.FileName != nil {
		result.FileName = update.FileName
	}
	if update.Provider != nil {
		result.Provider = update.Provider
	}
	if update.Component != "" {
		result.Component = update.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{Stage: logger.Ptr("parse")})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate shortens s to at most maxLen runes, appending "..." if truncated.
// Contract text is mostly CJK, so truncation counts runes rather than bytes.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

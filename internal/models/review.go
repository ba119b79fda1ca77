package models

// FieldError describes why one reviewer supplied field was refused.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult is either Ok with the validated event or Failed with every field error.
type ValidationResult struct {
	event    *Event
	failures []FieldError
}

// ValidationOK wraps a successfully validated event.
func ValidationOK(event *Event) ValidationResult {
	return ValidationResult{event: event}
}

// ValidationFailed wraps a non-empty list of field errors.
func ValidationFailed(failures []FieldError) ValidationResult {
	return ValidationResult{failures: failures}
}

// OK reports whether validation succeeded.
func (r ValidationResult) OK() bool {
	return r.event != nil
}

// Event returns the validated event when OK.
func (r ValidationResult) Event() (*Event, bool) {
	return r.event, r.event != nil
}

// Failures returns the field errors when not OK.
func (r ValidationResult) Failures() []FieldError {
	return r.failures
}

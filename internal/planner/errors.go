package planner

import "fmt"

// ConfigurationError reports an unusable setting that was replaced by a
// fallback (an unknown timezone falls back to UTC).
type ConfigurationError struct {
	Field    string
	Value    string
	Fallback string
	Err      error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s %q unusable, using %s: %v", e.Field, e.Value, e.Fallback, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ParseError reports a field that could not be parsed; the trigger kind it
// feeds is skipped.
type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("cannot parse %s %q", e.Field, e.Value)
	}
	return fmt.Sprintf("cannot parse %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

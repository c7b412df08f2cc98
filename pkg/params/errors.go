package params

import (
	"errors"
	"fmt"
)

// ErrConfiguration matches every resolution failure via errors.Is.
var ErrConfiguration = errors.New("configuration error")

// ConfigurationError reports a configuration that does not satisfy a spec.
type ConfigurationError struct {
	Step   string
	Param  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("step %q: %s", e.Step, e.Reason)
	}
	return fmt.Sprintf("step %q: parameter %q: %s", e.Step, e.Param, e.Reason)
}

// Is makes ConfigurationError match ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// ParameterTypeError reports a value that could not be coerced to the
// declared kind.
type ParameterTypeError struct {
	Step   string
	Param  string
	Kind   Kind
	Value  any
	Tier   Provenance
	Source string
	Err    error
}

func (e *ParameterTypeError) Error() string {
	return fmt.Sprintf("step %q: parameter %q from %s (%s): cannot use %#v as %s: %v",
		e.Step, e.Param, e.Tier, e.Source, e.Value, e.Kind, e.Err)
}

func (e *ParameterTypeError) Unwrap() error { return e.Err }

// Is makes ParameterTypeError match ErrConfiguration.
func (e *ParameterTypeError) Is(target error) bool { return target == ErrConfiguration }

// UnrecognizedParameterError reports a name the step's closed spec does not
// declare.
type UnrecognizedParameterError struct {
	Step   string
	Param  string
	Tier   Provenance
	Source string
}

func (e *UnrecognizedParameterError) Error() string {
	return fmt.Sprintf("step %q: unrecognized parameter %q from %s (%s)", e.Step, e.Param, e.Tier, e.Source)
}

// Is makes UnrecognizedParameterError match ErrConfiguration.
func (e *UnrecognizedParameterError) Is(target error) bool { return target == ErrConfiguration }

package jasper

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrNotFound             = errors.New("not found")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrInvalidFormat        = errors.New("invalid format")
	ErrInvalidResourceDir   = errors.New("invalid resource directory")
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrExecutionDisabled    = errors.New("process execution is disabled")
	ErrProcessFailed        = errors.New("process failed")
	ErrMissingParameters    = errors.New("missing parameters")
	ErrIO                   = errors.New("io error")
)

// genericFailureMessage is reported when the tool exits non-zero without printing anything.
const genericFailureMessage = "Your report has an error and couldn't be processed! " +
	"Try to output the command using Command.String() and run it manually in the console."

// ProcessError describes a jasperstarter invocation that exited with a non-zero status.
type ProcessError struct {
	Command  Command
	Output   []string
	ExitCode int
}

func (e *ProcessError) Error() string {
	if len(e.Output) > 0 {
		return "[JasperStarter] " + e.Output[0]
	}
	return genericFailureMessage
}

func (e *ProcessError) Is(target error) bool {
	return target == ErrProcessFailed
}

// MissingParametersError is returned by Reporter.Generate when the report references
// parameters the caller did not supply. Report lists every declared parameter.
type MissingParametersError struct {
	Parameters []ParameterInfo
	Missing    []string
	Report     string
	Cause      error
}

func (e *MissingParametersError) Error() string {
	return "Missing parameters:\n" + e.Report
}

func (e *MissingParametersError) Unwrap() error {
	return e.Cause
}

func (e *MissingParametersError) Is(target error) bool {
	return target == ErrMissingParameters
}

func invalidFormatError(format string) error {
	return fmt.Errorf("%w: %q (valid formats: %s)", ErrInvalidFormat, format, strings.Join(Formats(), ", "))
}

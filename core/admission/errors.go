package admission

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/qlass/backend/core"
)

var (
	// errors
	ErrNotFound            = errors.New("application not found")
	ErrNoActiveApplication = errors.New("submit or select an application first")
	ErrGateNotSatisfied    = errors.New("stage gate not satisfied")
	ErrMalformedSnapshot   = errors.New("malformed admissions snapshot")
	ErrStateNotLoaded      = errors.New("stored admissions could not be read; saves are held until a load succeeds")
)

// Error codes reported to notification sinks and API clients.
const (
	CodeValidation          = "validation"
	CodeNoActiveApplication = "no_active_application"
	CodeGateNotSatisfied    = "gate_not_satisfied"
	CodeNotFound            = "not_found"
	CodePersistence         = "persistence"
	CodeInternal            = "internal"
)

// GateError is returned when a stage is set before the stage gating it reached its success status.
type GateError struct {
	Stage Stage
	Gate  Stage
	Want  Status
	Got   Status
}

func (err *GateError) Error() string {
	return fmt.Sprintf("%s must be %s before %s can be set", err.Gate.Title(), err.Want, err.Stage)
}

func (err *GateError) Is(target error) bool {
	return target == ErrGateNotSatisfied
}

// PersistenceError wraps a durable store failure. It never invalidates the in-memory state.
type PersistenceError struct {
	Op  string // load | save | reset
	Err error
}

func (err *PersistenceError) Error() string {
	return fmt.Sprintf("admissions %s: %v", err.Op, err.Err)
}

func (err *PersistenceError) Unwrap() error {
	return err.Err
}

// ErrorCode maps err to one of the Code* constants.
func ErrorCode(err error) string {
	var pErr *PersistenceError
	switch {
	case err == nil:
		return ""
	case core.IsValidationError(err):
		return CodeValidation
	case errors.Is(err, ErrNoActiveApplication):
		return CodeNoActiveApplication
	case errors.Is(err, ErrGateNotSatisfied):
		return CodeGateNotSatisfied
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.As(err, &pErr):
		return CodePersistence
	default:
		return CodeInternal
	}
}

func errUnknownStage(stage Stage) error {
	return core.NewValidationError(nil, core.FieldError{Field: "stage", Error: fmt.Sprintf("unknown stage %q", stage)})
}

func errInvalidStatus(stage Stage, status Status) error {
	return core.NewValidationError(nil, core.FieldError{
		Field: "status",
		Error: fmt.Sprintf("%q is not a valid %s status", status, stage),
	})
}

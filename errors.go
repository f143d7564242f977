package qtbridge

import (
	"errors"
	"fmt"
	"log"
)

// Error kinds that indicate caller misuse rather than a fault in the bridge
// or the backend. These are logged as warnings; everything else that crosses
// the UI boundary is logged as an error.
var (
	ErrIndexRange    = errors.New("index out of range")
	ErrBadValue      = errors.New("invalid value")
	ErrBadType       = errors.New("incompatible type")
	ErrMissingMember = errors.New("no such member")
	ErrBadKey        = errors.New("no such key")
)

var misuseKinds = []error{ErrIndexRange, ErrBadValue, ErrBadType, ErrMissingMember, ErrBadKey}

func callerMisuse(err error) bool {
	for _, kind := range misuseKinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// ConfigError is a usage error in backend code or registration arguments.
// It is returned to the caller and must never crash the process. Remedy,
// when set, is actionable text shown verbatim.
type ConfigError struct {
	Op     string
	Reason string
	Remedy string
}

func (e *ConfigError) Error() string {
	if e.Remedy != "" {
		return fmt.Sprintf("%s: %s\n%s", e.Op, e.Reason, e.Remedy)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// InternalError indicates a broken registration sequence, as opposed to
// caller misuse: a bracket invoked before binding, a finalized description
// missing, and the like.
type InternalError struct {
	Op     string
	Reason string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error in %s: %s", e.Op, e.Reason)
}

func configErrorf(op, format string, p ...interface{}) *ConfigError {
	return &ConfigError{Op: op, Reason: fmt.Sprintf(format, p...)}
}

func configError(op, reason, remedy string) *ConfigError {
	return &ConfigError{Op: op, Reason: reason, Remedy: remedy}
}

// callErrorf builds a boundary-crossing error carrying its misuse kind, so
// the logging side can pick a severity with errors.Is.
func callErrorf(kind error, op, format string, p ...interface{}) error {
	return fmt.Errorf("%s: %s: %w", op, fmt.Sprintf(format, p...), kind)
}

func internalErrorf(op, format string, p ...interface{}) *InternalError {
	return &InternalError{Op: op, Reason: fmt.Sprintf(format, p...)}
}

func logWarn(fmsg string, p ...interface{}) {
	log.Printf("qtbridge: WARNING: "+fmsg, p...)
}

func logError(fmsg string, p ...interface{}) {
	log.Printf("qtbridge: ERROR: "+fmsg, p...)
}

// logCallError records a failure from a boundary crossing. The UI layer has
// no way to receive backend errors, so these are logged and the call is
// reported unhandled; the severity split keeps ordinary usage mistakes from
// flooding the log.
func logCallError(context string, err error) {
	if err == nil {
		logWarn("%s: no error recorded", context)
		return
	}
	if callerMisuse(err) {
		logWarn("%s: %s", context, err)
	} else {
		logError("%s: %s", context, err)
	}
}

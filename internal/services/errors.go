package services

import (
	"errors"
	"fmt"
)

// Kind classifies engine errors so callers can map them to transport codes
// without parsing messages.
type Kind string

const (
	KindNotFound                Kind = "not_found"
	KindValidation              Kind = "validation"
	KindInvalidState            Kind = "invalid_state"
	KindTransitionNotAllowed    Kind = "transition_not_allowed"
	KindRequiredTasksIncomplete Kind = "required_tasks_incomplete"
	KindStageInUse              Kind = "stage_in_use"
	KindConflict                Kind = "conflict"
)

// Error is the structured error returned by every engine operation. Only the
// fields relevant to the kind are populated.
type Error struct {
	Kind    Kind
	Message string

	FieldKey  string   // KindValidation
	FromStage string   // KindTransitionNotAllowed
	ToStage   string   // KindTransitionNotAllowed
	TaskNames []string // KindRequiredTasksIncomplete
	LeadCount int64    // KindStageInUse
}

func (e *Error) Error() string {
	return e.Message
}

// IsKind reports whether err is an engine error of the given kind.
func IsKind(err error, kind Kind) bool {
	var engineErr *Error
	return errors.As(err, &engineErr) && engineErr.Kind == kind
}

func notFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func invalidStatef(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

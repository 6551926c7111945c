package remediation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/pdfaccess/internal/models"
)

type ErrorKind string

const (
	KindContextUnavailable   ErrorKind = "ContextUnavailable"
	KindGenerationFailed     ErrorKind = "GenerationFailed"
	KindInvalidTransition    ErrorKind = "InvalidTransition"
	KindImplementationFailed ErrorKind = "ImplementationFailed"
	KindTimeout              ErrorKind = "Timeout"
)

var (
	// ErrOperationInProgress is returned when another caller is already
	// generating or implementing the same issue.
	ErrOperationInProgress = errors.New("remediation operation already in progress")
	ErrEmptyContent        = errors.New("generation returned empty content")
)

// Error carries one of the remediation error kinds.
type Error struct {
	Kind    ErrorKind
	Op      string
	IssueID uuid.UUID
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s issue %s: %s", e.Op, e.IssueID, e.Kind)
	}
	return fmt.Sprintf("%s issue %s: %s: %v", e.Op, e.IssueID, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// InvalidTransitionError names the current state and the state that was requested.
type InvalidTransitionError struct {
	IssueID uuid.UUID
	From    models.RemediationStatus
	To      models.RemediationStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid remediation transition for issue %s: %s -> %s", e.IssueID, e.From, e.To)
}

// KindOf returns the remediation error kind in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var it *InvalidTransitionError
	if errors.As(err, &it) {
		return KindInvalidTransition
	}
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

func contextUnavailable(issue models.Issue, format string, args ...any) error {
	return &Error{
		Kind:    KindContextUnavailable,
		Op:      "build request",
		IssueID: issue.ID,
		Err:     fmt.Errorf(format, args...),
	}
}

// classify maps a collaborator failure to Timeout or to the given fallback kind.
func classify(err error, fallback ErrorKind) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	var re *Error
	if errors.As(err, &re) && re.Kind == KindTimeout {
		return KindTimeout
	}
	return fallback
}

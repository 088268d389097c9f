package types

import (
	"errors"
	"fmt"
	"strings"
)

// CustomError is returned by middleware that has no richer classification.
type CustomError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (e *CustomError) Error() string {
	return fmt.Sprintf("%d: %s [type: %s]", e.Code, e.Message, e.Type)
}

// FieldError names one offending field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError reports missing or malformed input. Never fatal.
type ValidationError struct {
	Message string
	Fields  []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation: " + e.Message
	}
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Field
	}
	return fmt.Sprintf("validation: %s [%s]", e.Message, strings.Join(names, ", "))
}

// FieldNames returns the names of the offending fields in order.
func (e *ValidationError) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Field
	}
	return names
}

// MissingFields builds a ValidationError for absent required fields.
func MissingFields(section string, fields ...string) *ValidationError {
	fe := make([]FieldError, len(fields))
	for i, f := range fields {
		fe[i] = FieldError{Field: f, Reason: "required"}
	}
	return &ValidationError{
		Message: fmt.Sprintf("section %s is missing required fields", section),
		Fields:  fe,
	}
}

// IdentityResolutionError is a failure to obtain a canonical draft id.
type IdentityResolutionError struct {
	Reference string
	Err       error
}

func (e *IdentityResolutionError) Error() string {
	return fmt.Sprintf("identity resolution for %q failed: %v", e.Reference, e.Err)
}

func (e *IdentityResolutionError) Unwrap() error { return e.Err }

// ConsistencyIssue is one cross-store mismatch.
type ConsistencyIssue struct {
	Code   string `json:"code"`
	Role   string `json:"role,omitempty"`
	Detail string `json:"detail"`
}

// ConsistencyError reports a mismatch between the relational and document stores.
// It is surfaced, not repaired.
type ConsistencyError struct {
	ProposalID string
	Issues     []ConsistencyIssue
}

func (e *ConsistencyError) Error() string {
	codes := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		codes[i] = issue.Code
	}
	return fmt.Sprintf("consistency: proposal %s: %s", e.ProposalID, strings.Join(codes, ", "))
}

// StateTransitionError is an illegal section or status transition.
type StateTransitionError struct {
	From  string
	To    string
	Guard string
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("transition %s -> %s rejected: %s", e.From, e.To, e.Guard)
}

// PersistenceError is a store failure the caller may retry.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Retryable is always true; store outages are transient from the caller's view.
func (e *PersistenceError) Retryable() bool { return true }

// NotFoundError reports a missing record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ForbiddenError reports an actor acting outside its ownership.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	return "forbidden: " + e.Reason
}

// Persistence wraps err as a PersistenceError unless it is already classified.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if Classified(err) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// Classified reports whether err already belongs to the taxonomy.
func Classified(err error) bool {
	var (
		ve *ValidationError
		ie *IdentityResolutionError
		ce *ConsistencyError
		se *StateTransitionError
		pe *PersistenceError
		ne *NotFoundError
		fe *ForbiddenError
	)
	return errors.As(err, &ve) || errors.As(err, &ie) || errors.As(err, &ce) ||
		errors.As(err, &se) || errors.As(err, &pe) || errors.As(err, &ne) || errors.As(err, &fe)
}

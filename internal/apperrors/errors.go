package apperrors

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrMissingIdentity means no stored user identity is available; the action
// was refused before any network call.
var ErrMissingIdentity = errors.New("no authenticated user identity")

// ErrNotLoaded indicates an operation on a component whose load has not completed.
var ErrNotLoaded = errors.New("not loaded")

// ErrSuperseded indicates a load whose result was discarded because the
// component was reloaded or closed while it ran.
var ErrSuperseded = errors.New("superseded by a newer load or close")

// ErrRowBusy indicates a line item already has a mutating request in flight.
var ErrRowBusy = errors.New("line item has a request in flight")

// ErrActionInFlight indicates an approval action is already running for the document.
var ErrActionInFlight = errors.New("approval action already in flight")

// ErrActionNotOffered indicates a status action the status menu does not currently offer.
var ErrActionNotOffered = errors.New("action not offered")

// ErrApprovalFinal indicates the document type treats its current status as final.
var ErrApprovalFinal = errors.New("document approval is final")

// ErrLineItemNotFound indicates no row matched the given local or server id.
var ErrLineItemNotFound = errors.New("line item not found")

// ErrUnknownDocumentType indicates a document type with no registered configuration.
var ErrUnknownDocumentType = errors.New("unknown document type")

// ErrDocumentNotFound indicates the header endpoint returned no record.
var ErrDocumentNotFound = errors.New("document not found")

// ErrSessionNotFound indicates an unknown or expired edit session.
var ErrSessionNotFound = errors.New("session not found")

// ValidationError carries per-field messages for a rejected draft
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// PersistenceError wraps a failed create/update/delete/approve call
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ReferenceUnavailableError reports a lookup kind that could not be loaded.
// It is never fatal; resolution falls back to placeholders.
type ReferenceUnavailableError struct {
	Kind string
	Err  error
}

func (e *ReferenceUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("reference %s unavailable", e.Kind)
	}
	return fmt.Sprintf("reference %s unavailable: %v", e.Kind, e.Err)
}

func (e *ReferenceUnavailableError) Unwrap() error {
	return e.Err
}

// AuthRequiredError is returned when the backend rejects the credential.
// Navigation to a login screen is the caller's business.
type AuthRequiredError struct {
	Status  int
	Message string
}

func (e *AuthRequiredError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("authentication required (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("authentication required (status %d)", e.Status)
}

// RequestError is a failed backend call
type RequestError struct {
	Method    string
	Resource  string
	Status    int
	Message   string
	Retryable bool
	Err       error
}

func (e *RequestError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Method, e.Resource)
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// LoadError is a document-level load failure. The form shows a retry action for it.
type LoadError struct {
	Stage string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Stage, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether repeating the call may succeed
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Retryable
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// FieldErrors extracts per-field messages from a validation failure
func FieldErrors(err error) map[string]string {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return vErr.Fields
	}
	return nil
}

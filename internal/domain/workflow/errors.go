package workflow

import (
	"errors"
	"fmt"
)

// Kind classifies a workflow failure
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindInvalidTransition   Kind = "invalid_transition"
	KindPermissionDenied    Kind = "permission_denied"
	KindValidation          Kind = "validation_error"
	KindConcurrencyConflict Kind = "concurrency_conflict"
)

var (
	// ErrNotFound is returned when the invoice or its workflow row is missing
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when the edge is not in the state table
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrPermissionDenied is returned when the edge exists but the actor's guard fails
	ErrPermissionDenied = errors.New("permission denied")

	// ErrValidation is returned when a field required by the edge is missing
	ErrValidation = errors.New("validation error")

	// ErrConcurrencyConflict is returned when the status changed underneath the request
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

var kindSentinels = map[Kind]error{
	KindNotFound:            ErrNotFound,
	KindInvalidTransition:   ErrInvalidTransition,
	KindPermissionDenied:    ErrPermissionDenied,
	KindValidation:          ErrValidation,
	KindConcurrencyConflict: ErrConcurrencyConflict,
}

// Error is a typed, user-facing workflow failure
type Error struct {
	Kind      Kind
	Message   string
	InvoiceID int64
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.InvoiceID != 0 {
		return fmt.Sprintf("invoice %d: %s", e.InvoiceID, e.Message)
	}
	return e.Message
}

// Is matches the sentinel of the error's kind
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// WithInvoice returns a copy of the error bound to an invoice id
func (e *Error) WithInvoice(id int64) *Error {
	c := *e
	c.InvoiceID = id
	return &c
}

// NotFound creates a NotFound error
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// InvalidTransition creates an InvalidTransition error
func InvalidTransition() *Error {
	return &Error{Kind: KindInvalidTransition, Message: "Invalid transition"}
}

// PermissionDenied creates a PermissionDenied error with a user-facing reason
func PermissionDenied(reason string) *Error {
	return &Error{Kind: KindPermissionDenied, Message: reason}
}

// Validation creates a ValidationError
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// ConcurrencyConflict creates a ConcurrencyConflict error
func ConcurrencyConflict() *Error {
	return &Error{Kind: KindConcurrencyConflict, Message: "Invoice status changed by another request, reload and retry"}
}

// AsError extracts a *Error from err, if any
func AsError(err error) (*Error, bool) {
	var wfErr *Error
	if errors.As(err, &wfErr) {
		return wfErr, true
	}
	return nil, false
}

// User-facing denial reasons
const (
	ReasonSelfApproval      = "You cannot approve or reject your own invoice"
	ReasonViewer            = "Viewers cannot change invoice status"
	ReasonAdminOnly         = "Only an administrator can perform this transition"
	ReasonApproverOnly      = "Only the assigned approver or an active delegate can perform this transition"
	ReasonOperationsRoom    = "Only operations room members can perform this transition"
	ReasonFinanceGate       = "Only finance can record payment for invoices ready for payment"
	ReasonOwnerOnly         = "Only the submitter can resubmit this invoice"
	ReasonBankDetails       = "Manager must confirm bank details before approval"
	ReasonRejectionRequired = "Rejection reason is required"
)

package upgrade

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an upgrade failure.
type Kind string

const (
	// KindPrecondition covers requests rejected before anything is sent to the agent.
	KindPrecondition Kind = "Precondition"
	// KindConfirmationTimeout means the agent never reconnected within the retry budget.
	KindConfirmationTimeout Kind = "ConfirmationTimeout"
	// KindTransferDispatch wraps failures reported by the transfer collaborator.
	KindTransferDispatch Kind = "TransferDispatch"
	// KindUnclassified is everything else.
	KindUnclassified Kind = "Unclassified"
)

// Code is the numeric error code printed to the operator.
type Code int

const (
	CodeInternal         Code = 1000
	CodeAgentNotFound    Code = 1701
	CodeTransfer         Code = 1715
	CodeTimeout          Code = 1716
	CodeAgentNotActive   Code = 1720
	CodeInvalidVersion   Code = 1733
	CodeInvalidChunkSize Code = 1744
	CodeInterrupted      Code = 1799
)

// Error is the error type returned by every operation of this package.
type Error struct {
	Kind    Kind
	Code    Code
	Message string

	// Detail is extra context appended to Message, e.g. the rejected value.
	Detail string

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches errors with the same code, so sentinels compare equal to
// instances carrying a detail or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// With returns a copy of e carrying detail.
func (e *Error) With(detail string) *Error {
	c := *e
	c.Detail = detail
	return &c
}

// Wrap returns a copy of e caused by err.
func (e *Error) Wrap(err error) *Error {
	c := *e
	c.Err = err
	return &c
}

var (
	ErrEndpointNotActive = &Error{Kind: KindPrecondition, Code: CodeAgentNotActive, Message: "Agent is not active"}
	ErrInvalidVersion    = &Error{Kind: KindPrecondition, Code: CodeInvalidVersion, Message: "Invalid version format, expected vX.Y.Z"}
	ErrInvalidChunkSize  = &Error{Kind: KindPrecondition, Code: CodeInvalidChunkSize, Message: "Invalid chunk size, allowed values are [1 - 64000]"}
	ErrEndpointNotFound  = &Error{Kind: KindPrecondition, Code: CodeAgentNotFound, Message: "Agent does not exist"}

	ErrConfirmationTimeout = &Error{Kind: KindConfirmationTimeout, Code: CodeTimeout, Message: "Timeout waiting for agent reconnection."}

	ErrTransfer = &Error{Kind: KindTransferDispatch, Code: CodeTransfer, Message: "Upgrade transfer failed"}

	ErrInterrupted = &Error{Kind: KindUnclassified, Code: CodeInterrupted, Message: "Upgrade interrupted"}
	ErrInternal    = &Error{Kind: KindUnclassified, Code: CodeInternal, Message: "Internal error"}
)

// Classify returns err as an *Error. Errors of this package are returned
// unchanged, context cancellation maps to ErrInterrupted and anything else
// becomes an unclassified ErrInternal.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrInterrupted.Wrap(err)
	}
	return ErrInternal.Wrap(err)
}

package flow

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies what went wrong in a flow.
type ErrorKind string

const (
	// KindValidation covers duplicate names, absent records and bad input.
	KindValidation ErrorKind = "validation"
	// KindPermission covers unauthorized users and identity mismatches.
	KindPermission ErrorKind = "permission"
	// KindDelivery covers private messages that could not be delivered.
	KindDelivery ErrorKind = "delivery"
	// KindTimeout marks a flow that expired.
	KindTimeout ErrorKind = "timeout"
	// KindPersistence covers record store failures.
	KindPersistence ErrorKind = "persistence"
)

// DeliveryKind refines KindDelivery errors.
type DeliveryKind string

const (
	// DeliveryUnreachable means the recipient cannot be messaged privately.
	DeliveryUnreachable DeliveryKind = "unreachable"
	// DeliveryForbidden means the bot lacks the privilege to deliver.
	DeliveryForbidden DeliveryKind = "forbidden"
	// DeliveryOther is any other delivery failure.
	DeliveryOther DeliveryKind = "other"
)

// Error is the single error type surfaced by the controller. The user has
// already been told about it by the time it is returned.
type Error struct {
	Kind   ErrorKind
	Reason string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Reason != "" {
		b.WriteString(" (")
		b.WriteString(e.Reason)
		b.WriteString(")")
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Code renders a stable identifier for logs, e.g. VALIDATION_DUPLICATE.
func (e *Error) Code() string {
	code := string(e.Kind)
	if e.Reason != "" {
		code += "_" + e.Reason
	}
	return strings.ToUpper(code)
}

// Expected reports whether the error is a normal user-facing outcome rather
// than a malfunction worth surfacing to the transport.
func (e *Error) Expected() bool {
	return e.Kind == KindValidation || e.Kind == KindPermission || e.Kind == KindTimeout
}

func validationError(reason, msg string) *Error {
	return &Error{Kind: KindValidation, Reason: reason, Msg: msg}
}

func permissionError(reason string) *Error {
	return &Error{Kind: KindPermission, Reason: reason}
}

func persistenceError(op string, err error) *Error {
	return &Error{Kind: KindPersistence, Reason: op, Err: err}
}

// NewDeliveryError wraps a transport failure with its classification.
func NewDeliveryError(kind DeliveryKind, err error) *Error {
	return &Error{Kind: KindDelivery, Reason: string(kind), Err: err}
}

// DeliveryKindOf extracts the delivery classification of err, defaulting to DeliveryOther.
func DeliveryKindOf(err error) DeliveryKind {
	var fe *Error
	if errors.As(err, &fe) && fe.Kind == KindDelivery {
		switch DeliveryKind(fe.Reason) {
		case DeliveryUnreachable, DeliveryForbidden:
			return DeliveryKind(fe.Reason)
		}
	}
	return DeliveryOther
}

// IsKind reports whether err is a flow error of kind k.
func IsKind(err error, k ErrorKind) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == k
}

func asDelivery(err error) *Error {
	var fe *Error
	if errors.As(err, &fe) && fe.Kind == KindDelivery {
		return fe
	}
	return NewDeliveryError(DeliveryOther, fmt.Errorf("send: %w", err))
}

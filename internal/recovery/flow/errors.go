package flow

import (
	"errors"

	"github.com/openclave/reclaim/internal/recovery/ceremony"
	"github.com/openclave/reclaim/internal/recovery/mfa"
	"github.com/openclave/reclaim/pkg/recoverysdk"
)

// ErrorClass partitions everything that can go wrong during a submission
// attempt. Exactly one visible error is shown at a time; validation and
// policy classes additionally carry per-field annotations.
type ErrorClass string

const (
	// ClassValidation: field-level schema failure, no network call was made.
	ClassValidation ErrorClass = "validation"

	// ClassPolicy: password fails the server-supplied policy.
	ClassPolicy ErrorClass = "policy"

	// ClassMatch: password and confirmation differ.
	ClassMatch ErrorClass = "match"

	// ClassCeremony: the authenticator rejected, cancelled or timed out.
	ClassCeremony ErrorClass = "ceremony"

	// ClassIdentityMismatch: the MFA assertion identity disagrees with the
	// session identity. Fatal for this flow, no retry is offered.
	ClassIdentityMismatch ErrorClass = "identity_mismatch"

	// ClassProtocol: non-2xx response, server message surfaced verbatim.
	ClassProtocol ErrorClass = "protocol"
)

// Error is the single user-visible error of a submission attempt.
type Error struct {
	Class   ErrorClass
	Message string

	// Fields holds per-field annotations for validation and policy errors.
	Fields map[Field]string
}

func (e *Error) Error() string { return e.Message }

// Fatal reports whether the flow must not offer a retry path.
func (e *Error) Fatal() bool { return e.Class == ClassIdentityMismatch }

// classify converts errors from the ceremony, gate and network boundaries
// into the flow taxonomy.
func classify(err error) *Error {
	var flowErr *Error
	if errors.As(err, &flowErr) {
		return flowErr
	}

	if errors.Is(err, mfa.ErrIdentityMismatch) {
		return &Error{
			Class:   ClassIdentityMismatch,
			Message: "the verified identity does not match this session, the flow cannot continue",
		}
	}

	if errors.Is(err, ceremony.ErrCeremony) {
		return &Error{
			Class:   ClassCeremony,
			Message: "the authenticator ceremony was not completed, please try again",
		}
	}

	var apiErr *recoverysdk.APIError
	if errors.As(err, &apiErr) {
		return &Error{Class: ClassProtocol, Message: apiErr.Message}
	}

	return &Error{Class: ClassProtocol, Message: err.Error()}
}

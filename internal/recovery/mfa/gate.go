// Package mfa implements the step-up gate that guards sensitive actions
// behind a WebAuthn assertion when MFA is active for the identity.
package mfa

import (
	"context"
	"errors"
	"fmt"

	"github.com/openclave/reclaim/internal/recovery/ceremony"
	"github.com/openclave/reclaim/pkg/recoverysdk"
	"github.com/openclave/reclaim/pkg/slogx"
)

// Purposes a step-up assertion can be scoped to.
const (
	PurposePasswordReset = "PasswordReset"
)

// ErrIdentityMismatch reports an assertion whose server-side identity
// disagrees with the flow's session identity. It is fatal for the flow; no
// retry path is offered.
var ErrIdentityMismatch = errors.New("mfa assertion identity mismatch, should never happen")

// Gate decides whether a sensitive action needs a step-up assertion first and
// runs the assertion when it does.
type Gate struct {
	Session       *recoverysdk.Session
	Authenticator ceremony.Authenticator

	// Enabled is the MFA flag from the initial configuration snapshot.
	Enabled bool
}

// Require runs the step-up sub-flow for the given purpose. When MFA is not
// active it returns required=false with no network traffic. On success it
// returns the one-time code to thread into the gated action's payload.
//
// The assertion ceremony must complete before the gated action is ever
// attempted; a ceremony failure discards the challenge envelope and reports
// the error without invoking the gated action.
func (g *Gate) Require(ctx context.Context, purpose string) (code string, required bool, err error) {
	if !g.Enabled {
		return "", false, nil
	}

	log := slogx.FromContext(ctx)

	challenge, err := g.Session.StartAssertion(ctx, purpose)
	if err != nil {
		return "", true, fmt.Errorf("start mfa assertion: %w", err)
	}

	if challenge.UserID != g.Session.IdentityID() {
		log.Error("mfa assertion identity does not match session identity",
			"expected", g.Session.IdentityID(),
			"reported", challenge.UserID,
		)
		return "", true, ErrIdentityMismatch
	}

	response, err := ceremony.RunAssert(ctx, g.Authenticator, &challenge.CredentialAssertion)
	if err != nil {
		// The envelope is single-use; a failed ceremony needs a fresh
		// user-initiated attempt from the top.
		return "", true, err
	}

	result, err := g.Session.FinishAssertion(ctx, challenge.Code, response)
	if err != nil {
		return "", true, fmt.Errorf("finish mfa assertion: %w", err)
	}

	log.Debug("step-up assertion accepted", "purpose", purpose)
	return result.MFACode, true, nil
}

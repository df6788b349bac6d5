package recoverysdk

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-webauthn/webauthn/protocol"
)

// StartAssertion requests an assertion challenge envelope for a step-up MFA
// gate scoped to purpose. The response reports the identity the server
// resolved; callers must check it against their own session identity.
func (s *Session) StartAssertion(ctx context.Context, purpose string) (*AssertionChallenge, error) {
	path := fmt.Sprintf("/users/%s/webauthn/auth/start", s.identityID)
	resp, err := s.postJSON(ctx, path, AssertStartRequest{Purpose: purpose})
	if err != nil {
		return nil, err
	}

	var challenge AssertionChallenge
	if err := decodeJSON(resp, &challenge, http.StatusOK); err != nil {
		return nil, err
	}

	return &challenge, nil
}

// FinishAssertion submits the completed assertion ceremony result and returns
// the one-time MFA code released by the server.
func (s *Session) FinishAssertion(ctx context.Context, code string, result *protocol.CredentialAssertionResponse) (*AssertionResult, error) {
	path := fmt.Sprintf("/users/%s/webauthn/auth/finish", s.identityID)
	resp, err := s.postJSON(ctx, path, AssertFinishRequest{Code: code, Data: result})
	if err != nil {
		return nil, err
	}

	var out AssertionResult
	if err := decodeJSON(resp, &out, http.StatusAccepted); err != nil {
		return nil, err
	}

	return &out, nil
}

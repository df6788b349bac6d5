package recoverysdk

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-webauthn/webauthn/protocol"
)

// StartRegistration requests a fresh creation challenge envelope for passkey
// enrollment. Every call returns a new envelope; envelopes are single-use.
func (s *Session) StartRegistration(ctx context.Context, passkeyName string) (*RegistrationChallenge, error) {
	path := fmt.Sprintf("/users/%s/webauthn/register/start", s.identityID)
	resp, err := s.postJSON(ctx, path, RegisterStartRequest{
		PasskeyName: passkeyName,
		MagicLinkID: s.magicLinkID,
	})
	if err != nil {
		return nil, err
	}

	var challenge RegistrationChallenge
	if err := decodeJSON(resp, &challenge, http.StatusOK); err != nil {
		return nil, err
	}

	return &challenge, nil
}

// FinishRegistration submits the completed creation ceremony result. The
// server persists the credential and responds 201 on success.
func (s *Session) FinishRegistration(ctx context.Context, passkeyName string, result *protocol.CredentialCreationResponse) error {
	path := fmt.Sprintf("/users/%s/webauthn/register/finish", s.identityID)
	resp, err := s.postJSON(ctx, path, RegisterFinishRequest{
		PasskeyName: passkeyName,
		Data:        result,
		MagicLinkID: s.magicLinkID,
	})
	if err != nil {
		return err
	}

	return checkStatus(resp, http.StatusCreated)
}

package recoverysdk

import (
	"github.com/go-webauthn/webauthn/protocol"
)

// ============================================================================
// Request Types
// ============================================================================

// RegisterStartRequest begins passkey enrollment for a magic-link session.
type RegisterStartRequest struct {
	// PasskeyName is the user-chosen label for the new credential
	PasskeyName string `json:"passkeyName"`

	// MagicLinkID correlates the request with the single-use recovery link
	MagicLinkID string `json:"magicLinkId"`
}

// RegisterFinishRequest completes passkey enrollment with the ceremony result.
type RegisterFinishRequest struct {
	PasskeyName string `json:"passkeyName"`

	// Data is the authenticator's creation response, binary fields
	// re-encoded base64url for transport
	Data *protocol.CredentialCreationResponse `json:"data"`

	MagicLinkID string `json:"magicLinkId"`
}

// AssertStartRequest begins a step-up MFA assertion scoped to a purpose.
type AssertStartRequest struct {
	// Purpose names the gated action (e.g. "PasswordReset")
	Purpose string `json:"purpose"`
}

// AssertFinishRequest completes a step-up MFA assertion.
type AssertFinishRequest struct {
	// Code is the correlation code issued by the assertion start response
	Code string `json:"code"`

	Data *protocol.CredentialAssertionResponse `json:"data"`
}

// PasswordResetRequest performs the gated password reset.
type PasswordResetRequest struct {
	Password    string `json:"password"`
	MagicLinkID string `json:"magicLinkId"`

	// MFACode is the one-time code from a completed step-up assertion.
	// Omitted when MFA is not active for the identity.
	MFACode string `json:"mfaCode,omitempty"`
}

// ============================================================================
// Response Types
// ============================================================================

// RegistrationChallenge is the server-issued challenge envelope for a passkey
// creation ceremony. Binary fields (challenge, user.id, each
// excludeCredentials[].id) arrive base64url-encoded.
type RegistrationChallenge = protocol.CredentialCreation

// AssertionChallenge is the challenge envelope for a step-up assertion
// ceremony, together with the identity the server believes it is issued for.
// The caller must verify UserID against its own session identity before
// running the ceremony.
type AssertionChallenge struct {
	// UserID is the identity the server resolved for this assertion
	UserID string `json:"userId"`

	// Code correlates the later finish call with this challenge
	Code string `json:"code"`

	protocol.CredentialAssertion
}

// AssertionResult is returned when the server accepts an assertion. The
// MFACode is consumed exactly once by the subsequently gated action.
type AssertionResult struct {
	MFACode string `json:"mfaCode"`
}

// Package ceremony translates between the wire encoding of authenticator
// challenges and the binary structures a platform authenticator consumes,
// and drives the create/assert ceremony through an Authenticator.
//
// Every binary field delivered base64url-encoded (challenge, user.id, each
// excludeCredentials[].id / allowCredentials[].id) is decoded to raw bytes
// before the authenticator is invoked, and every binary field the ceremony
// returns is re-encoded before transmission. The adapter never retries a
// ceremony; a cancelled or rejected ceremony requires a fresh envelope and a
// fresh user-initiated attempt.
package ceremony

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
)

// ErrCeremony reports an authenticator ceremony that was rejected, cancelled
// or timed out. It is recoverable: the user may start a fresh attempt.
var ErrCeremony = errors.New("authenticator ceremony failed")

// CreateRequest holds the decoded parameters of a credential creation
// ceremony.
type CreateRequest struct {
	RelyingPartyID   string
	RelyingPartyName string

	UserID          []byte
	UserName        string
	UserDisplayName string

	Challenge            []byte
	ExcludeCredentialIDs [][]byte

	// UserVerification is always "required"; the client enforces a stricter
	// local verification bar than whatever the server requested.
	UserVerification protocol.UserVerificationRequirement

	Timeout time.Duration
}

// CreateResult is the authenticator's raw response to a creation ceremony.
type CreateResult struct {
	CredentialID      []byte
	ClientDataJSON    []byte
	AttestationObject []byte
	Transports        []string
}

// AssertRequest holds the decoded parameters of an assertion ceremony.
type AssertRequest struct {
	RelyingPartyID string

	Challenge          []byte
	AllowCredentialIDs [][]byte

	UserVerification protocol.UserVerificationRequirement

	Timeout time.Duration
}

// AssertResult is the authenticator's raw response to an assertion ceremony.
type AssertResult struct {
	CredentialID      []byte
	ClientDataJSON    []byte
	AuthenticatorData []byte
	Signature         []byte
	UserHandle        []byte
}

// Authenticator is the platform ceremony boundary: a single suspending
// operation with user-controlled latency. Cancellation is delegated entirely
// to the user declining, the platform timing out, or ctx being cancelled.
type Authenticator interface {
	Create(ctx context.Context, req CreateRequest) (*CreateResult, error)
	Assert(ctx context.Context, req AssertRequest) (*AssertResult, error)
}

// RunCreate decodes the creation envelope, drives the ceremony and re-encodes
// the result for transmission. Authenticator failures of any kind are wrapped
// in ErrCeremony.
func RunCreate(ctx context.Context, auth Authenticator, envelope *protocol.CredentialCreation) (*protocol.CredentialCreationResponse, error) {
	req, err := DecodeCreation(envelope)
	if err != nil {
		return nil, err
	}

	result, err := auth.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCeremony, err)
	}

	return EncodeCreateResult(result), nil
}

// RunAssert is the assertion counterpart of RunCreate.
func RunAssert(ctx context.Context, auth Authenticator, envelope *protocol.CredentialAssertion) (*protocol.CredentialAssertionResponse, error) {
	req, err := DecodeAssertion(envelope)
	if err != nil {
		return nil, err
	}

	result, err := auth.Assert(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCeremony, err)
	}

	return EncodeAssertResult(result), nil
}

// DecodeCreation converts a wire creation envelope into its binary form and
// force-upgrades user verification to "required".
func DecodeCreation(envelope *protocol.CredentialCreation) (CreateRequest, error) {
	if envelope == nil {
		return CreateRequest{}, errors.New("creation envelope is required")
	}
	opts := envelope.Response

	if len(opts.Challenge) == 0 {
		return CreateRequest{}, errors.New("creation envelope is missing a challenge")
	}

	userID, err := decodeUserID(opts.User.ID)
	if err != nil {
		return CreateRequest{}, fmt.Errorf("decode user id: %w", err)
	}

	exclude := make([][]byte, 0, len(opts.CredentialExcludeList))
	for _, descriptor := range opts.CredentialExcludeList {
		exclude = append(exclude, []byte(descriptor.CredentialID))
	}

	return CreateRequest{
		RelyingPartyID:       opts.RelyingParty.ID,
		RelyingPartyName:     opts.RelyingParty.Name,
		UserID:               userID,
		UserName:             opts.User.Name,
		UserDisplayName:      opts.User.DisplayName,
		Challenge:            []byte(opts.Challenge),
		ExcludeCredentialIDs: exclude,
		UserVerification:     protocol.VerificationRequired,
		Timeout:              time.Duration(opts.Timeout) * time.Millisecond,
	}, nil
}

// DecodeAssertion converts a wire assertion envelope into its binary form and
// force-upgrades user verification to "required".
func DecodeAssertion(envelope *protocol.CredentialAssertion) (AssertRequest, error) {
	if envelope == nil {
		return AssertRequest{}, errors.New("assertion envelope is required")
	}
	opts := envelope.Response

	if len(opts.Challenge) == 0 {
		return AssertRequest{}, errors.New("assertion envelope is missing a challenge")
	}

	allow := make([][]byte, 0, len(opts.AllowedCredentials))
	for _, descriptor := range opts.AllowedCredentials {
		allow = append(allow, []byte(descriptor.CredentialID))
	}

	return AssertRequest{
		RelyingPartyID:     opts.RelyingPartyID,
		Challenge:          []byte(opts.Challenge),
		AllowCredentialIDs: allow,
		UserVerification:   protocol.VerificationRequired,
		Timeout:            time.Duration(opts.Timeout) * time.Millisecond,
	}, nil
}

// EncodeCreateResult re-encodes a raw creation result into its wire form.
func EncodeCreateResult(result *CreateResult) *protocol.CredentialCreationResponse {
	return &protocol.CredentialCreationResponse{
		PublicKeyCredential: protocol.PublicKeyCredential{
			Credential: protocol.Credential{
				ID:   base64.RawURLEncoding.EncodeToString(result.CredentialID),
				Type: string(protocol.PublicKeyCredentialType),
			},
			RawID: protocol.URLEncodedBase64(result.CredentialID),
		},
		AttestationResponse: protocol.AuthenticatorAttestationResponse{
			AuthenticatorResponse: protocol.AuthenticatorResponse{
				ClientDataJSON: protocol.URLEncodedBase64(result.ClientDataJSON),
			},
			AttestationObject: protocol.URLEncodedBase64(result.AttestationObject),
			Transports:        result.Transports,
		},
	}
}

// EncodeAssertResult re-encodes a raw assertion result into its wire form.
func EncodeAssertResult(result *AssertResult) *protocol.CredentialAssertionResponse {
	return &protocol.CredentialAssertionResponse{
		PublicKeyCredential: protocol.PublicKeyCredential{
			Credential: protocol.Credential{
				ID:   base64.RawURLEncoding.EncodeToString(result.CredentialID),
				Type: string(protocol.PublicKeyCredentialType),
			},
			RawID: protocol.URLEncodedBase64(result.CredentialID),
		},
		AssertionResponse: protocol.AuthenticatorAssertionResponse{
			AuthenticatorResponse: protocol.AuthenticatorResponse{
				ClientDataJSON: protocol.URLEncodedBase64(result.ClientDataJSON),
			},
			AuthenticatorData: protocol.URLEncodedBase64(result.AuthenticatorData),
			Signature:         protocol.URLEncodedBase64(result.Signature),
			UserHandle:        protocol.URLEncodedBase64(result.UserHandle),
		},
	}
}

// decodeUserID handles the wire forms user.id arrives in: a base64url string
// straight off JSON, or raw bytes when the envelope was built in-process.
func decodeUserID(id any) ([]byte, error) {
	switch v := id.(type) {
	case nil:
		return nil, errors.New("user id is required")
	case string:
		raw, err := base64.RawURLEncoding.DecodeString(v)
		if err != nil {
			// Padded form is legal for webauthn JSON too.
			raw, err = base64.URLEncoding.DecodeString(v)
			if err != nil {
				return nil, fmt.Errorf("user id is not base64url: %w", err)
			}
		}
		return raw, nil
	case []byte:
		return v, nil
	case protocol.URLEncodedBase64:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported user id type %T", id)
	}
}

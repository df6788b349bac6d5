// Package softtoken is a software WebAuthn authenticator. It mints ES256
// resident credentials, answers creation and assertion ceremonies with
// "none" format attestation, and keeps its credentials in a sqlite vault
// with the private keys sealed under a master secret.
//
// It exists so the recovery flow can run end to end on machines without a
// platform authenticator, and it doubles as the ceremony test double.
package softtoken

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/openclave/reclaim/internal/recovery/ceremony"
)

const credentialIDLen = 32

var (
	// ErrExcluded reports a creation ceremony whose exclude list already
	// contains one of the vault's credentials for this relying party.
	ErrExcluded = errors.New("softtoken: credential already registered for this relying party")

	// ErrNoCredential reports an assertion ceremony no vault credential can
	// answer.
	ErrNoCredential = errors.New("softtoken: no matching credential")
)

// Config assembles a Token.
type Config struct {
	// Origin is the web origin this authenticator acts for,
	// e.g. "https://auth.example.com".
	Origin string

	// MasterSecret seals private keys at rest.
	MasterSecret string

	Vault *Vault
}

// Token is a software authenticator bound to one origin and one vault.
type Token struct {
	origin     string
	originHost string
	vault      *Vault
	sealer     *keySealer
}

// New wires a Token, deriving the sealing key from the master secret and the
// vault's stored salt.
func New(cfg Config) (*Token, error) {
	if cfg.Vault == nil {
		return nil, errors.New("softtoken: a vault is required")
	}

	parsed, err := url.Parse(cfg.Origin)
	if err != nil || parsed.Hostname() == "" {
		return nil, fmt.Errorf("softtoken: invalid origin %q", cfg.Origin)
	}

	salt, err := cfg.Vault.salt(context.Background(), newKDFSalt)
	if err != nil {
		return nil, fmt.Errorf("softtoken: load kdf salt: %w", err)
	}
	sealer, err := newKeySealer(cfg.MasterSecret, salt)
	if err != nil {
		return nil, err
	}

	return &Token{
		origin:     strings.TrimSuffix(cfg.Origin, "/"),
		originHost: parsed.Hostname(),
		vault:      cfg.Vault,
		sealer:     sealer,
	}, nil
}

// Create mints a new resident credential for the relying party and answers
// with a "none" attestation. User verification is always performed; the
// token has no weaker mode.
func (t *Token) Create(ctx context.Context, req ceremony.CreateRequest) (*ceremony.CreateResult, error) {
	if err := t.checkRPID(req.RelyingPartyID); err != nil {
		return nil, err
	}

	for _, excluded := range req.ExcludeCredentialIDs {
		if _, err := t.vault.ByCredentialID(ctx, excluded); err == nil {
			return nil, ErrExcluded
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	key, err := generateES256Key()
	if err != nil {
		return nil, err
	}
	keyPEM, err := marshalPrivateKey(key)
	if err != nil {
		return nil, err
	}
	sealedKey, err := t.sealer.seal(keyPEM)
	if err != nil {
		return nil, err
	}

	credentialID := make([]byte, credentialIDLen)
	if _, err := io.ReadFull(rand.Reader, credentialID); err != nil {
		return nil, fmt.Errorf("generate credential id: %w", err)
	}

	cosePub, err := coseECPublicKey(&key.PublicKey)
	if err != nil {
		return nil, err
	}

	attested := buildAttestedCredentialData(credentialID, cosePub)
	authData := buildAuthData(req.RelyingPartyID,
		flagUserPresent|flagUserVerified|flagAttestedCredential, 0, attested)

	attObj, err := buildAttestationObject(authData)
	if err != nil {
		return nil, err
	}

	clientDataJSON, err := buildClientDataJSON("webauthn.create",
		base64.RawURLEncoding.EncodeToString(req.Challenge), t.origin)
	if err != nil {
		return nil, err
	}

	if err := t.vault.Insert(ctx, Credential{
		CredentialID:        credentialID,
		RPID:                req.RelyingPartyID,
		UserID:              req.UserID,
		UserName:            req.UserName,
		PrivateKeyEncrypted: sealedKey,
	}); err != nil {
		return nil, fmt.Errorf("store credential: %w", err)
	}

	return &ceremony.CreateResult{
		CredentialID:      credentialID,
		ClientDataJSON:    clientDataJSON,
		AttestationObject: attObj,
		Transports:        []string{"internal"},
	}, nil
}

// Assert answers an assertion ceremony with the first vault credential the
// allow list admits, bumping its signature counter.
func (t *Token) Assert(ctx context.Context, req ceremony.AssertRequest) (*ceremony.AssertResult, error) {
	if err := t.checkRPID(req.RelyingPartyID); err != nil {
		return nil, err
	}

	credential, err := t.pickCredential(ctx, req)
	if err != nil {
		return nil, err
	}

	keyPEM, err := t.sealer.open(credential.PrivateKeyEncrypted)
	if err != nil {
		return nil, err
	}
	key, err := parsePrivateKey(keyPEM)
	if err != nil {
		return nil, err
	}

	signCount := credential.SignCount + 1
	if err := t.vault.SetSignCount(ctx, credential.ID, signCount); err != nil {
		return nil, fmt.Errorf("bump sign count: %w", err)
	}

	authData := buildAuthData(req.RelyingPartyID,
		flagUserPresent|flagUserVerified, signCount, nil)

	clientDataJSON, err := buildClientDataJSON("webauthn.get",
		base64.RawURLEncoding.EncodeToString(req.Challenge), t.origin)
	if err != nil {
		return nil, err
	}

	clientDataHash := sha256.Sum256(clientDataJSON)
	signed := append(append([]byte{}, authData...), clientDataHash[:]...)
	digest := sha256.Sum256(signed)

	signature, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign assertion: %w", err)
	}

	return &ceremony.AssertResult{
		CredentialID:      credential.CredentialID,
		ClientDataJSON:    clientDataJSON,
		AuthenticatorData: authData,
		Signature:         signature,
		UserHandle:        credential.UserID,
	}, nil
}

// pickCredential selects the vault credential to assert with, honoring the
// allow list when one is present.
func (t *Token) pickCredential(ctx context.Context, req ceremony.AssertRequest) (Credential, error) {
	candidates, err := t.vault.ByRP(ctx, req.RelyingPartyID)
	if err != nil {
		return Credential{}, err
	}

	if len(req.AllowCredentialIDs) == 0 {
		if len(candidates) == 0 {
			return Credential{}, ErrNoCredential
		}
		return candidates[0], nil
	}

	for _, allowed := range req.AllowCredentialIDs {
		for _, candidate := range candidates {
			if bytes.Equal(candidate.CredentialID, allowed) {
				return candidate, nil
			}
		}
	}
	return Credential{}, ErrNoCredential
}

// checkRPID enforces that the relying party id is the origin host or a
// registrable suffix of it.
func (t *Token) checkRPID(rpID string) error {
	if rpID == "" {
		return errors.New("softtoken: relying party id is required")
	}
	if rpID == t.originHost || strings.HasSuffix(t.originHost, "."+rpID) {
		return nil
	}
	return fmt.Errorf("softtoken: relying party %q does not match origin %q", rpID, t.origin)
}

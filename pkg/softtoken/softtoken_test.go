package softtoken

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"

	"github.com/openclave/reclaim/internal/recovery/ceremony"
)

type coseKey struct {
	Kty int    `cbor:"1,keyasint"`
	Alg int    `cbor:"3,keyasint"`
	Crv int    `cbor:"-1,keyasint"`
	X   []byte `cbor:"-2,keyasint"`
	Y   []byte `cbor:"-3,keyasint"`
}

func newTestToken(t *testing.T) *Token {
	t.Helper()

	vault, err := OpenVault(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = vault.Close() })

	token, err := New(Config{
		Origin:       "https://auth.example.com",
		MasterSecret: "test-master-secret",
		Vault:        vault,
	})
	require.NoError(t, err)
	return token
}

func createRequest() ceremony.CreateRequest {
	return ceremony.CreateRequest{
		RelyingPartyID:   "auth.example.com",
		RelyingPartyName: "Example",
		UserID:           []byte("user-1"),
		UserName:         "alice",
		UserDisplayName:  "Alice",
		Challenge:        []byte{1, 2, 3, 4},
	}
}

// parseAttestation unpacks the attestation object down to its COSE public
// key and returns the attested credential id with the parsed key.
func parseAttestation(t *testing.T, attObj []byte) ([]byte, *ecdsa.PublicKey, []byte) {
	t.Helper()

	var att attestationObject
	require.NoError(t, cbor.Unmarshal(attObj, &att))
	require.Equal(t, "none", att.Fmt)
	require.Empty(t, att.AttStmt)

	authData := att.AuthData
	require.GreaterOrEqual(t, len(authData), 37+16+2)

	rpHash := sha256.Sum256([]byte("auth.example.com"))
	require.Equal(t, rpHash[:], authData[:32])

	flags := authData[32]
	require.NotZero(t, flags&flagUserPresent)
	require.NotZero(t, flags&flagUserVerified, "user verification is always performed")
	require.NotZero(t, flags&flagAttestedCredential)

	rest := authData[37+16:]
	idLen := binary.BigEndian.Uint16(rest[:2])
	credentialID := rest[2 : 2+idLen]

	var key coseKey
	require.NoError(t, cbor.Unmarshal(rest[2+idLen:], &key))
	require.Equal(t, coseKeyTypeEC2, key.Kty)
	require.Equal(t, coseAlgES256, key.Alg)
	require.Equal(t, coseCurveP256, key.Crv)

	pub := &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(key.X),
		Y:     new(big.Int).SetBytes(key.Y),
	}
	return credentialID, pub, authData
}

func TestCreateMintsVerifiableCredential(t *testing.T) {
	t.Parallel()

	token := newTestToken(t)
	result, err := token.Create(context.Background(), createRequest())
	require.NoError(t, err)

	credentialID, _, _ := parseAttestation(t, result.AttestationObject)
	require.Equal(t, result.CredentialID, credentialID)
	require.Equal(t, []string{"internal"}, result.Transports)

	var cd clientData
	require.NoError(t, json.Unmarshal(result.ClientDataJSON, &cd))
	require.Equal(t, "webauthn.create", cd.Type)
	require.Equal(t, base64.RawURLEncoding.EncodeToString([]byte{1, 2, 3, 4}), cd.Challenge)
	require.Equal(t, "https://auth.example.com", cd.Origin)
	require.False(t, cd.CrossOrigin)
}

func TestAssertSignatureVerifies(t *testing.T) {
	t.Parallel()

	token := newTestToken(t)
	ctx := context.Background()

	created, err := token.Create(ctx, createRequest())
	require.NoError(t, err)
	_, pub, _ := parseAttestation(t, created.AttestationObject)

	asserted, err := token.Assert(ctx, ceremony.AssertRequest{
		RelyingPartyID:     "auth.example.com",
		Challenge:          []byte{9, 8, 7},
		AllowCredentialIDs: [][]byte{created.CredentialID},
	})
	require.NoError(t, err)
	require.Equal(t, created.CredentialID, asserted.CredentialID)
	require.Equal(t, []byte("user-1"), asserted.UserHandle)

	var cd clientData
	require.NoError(t, json.Unmarshal(asserted.ClientDataJSON, &cd))
	require.Equal(t, "webauthn.get", cd.Type)

	clientDataHash := sha256.Sum256(asserted.ClientDataJSON)
	signed := append(append([]byte{}, asserted.AuthenticatorData...), clientDataHash[:]...)
	digest := sha256.Sum256(signed)
	require.True(t, ecdsa.VerifyASN1(pub, digest[:], asserted.Signature))

	// The signature counter advances on every assertion.
	first := binary.BigEndian.Uint32(asserted.AuthenticatorData[33:37])
	require.Equal(t, uint32(1), first)

	again, err := token.Assert(ctx, ceremony.AssertRequest{
		RelyingPartyID: "auth.example.com",
		Challenge:      []byte{6, 5, 4},
	})
	require.NoError(t, err)
	second := binary.BigEndian.Uint32(again.AuthenticatorData[33:37])
	require.Equal(t, uint32(2), second)
}

func TestCreateHonorsExcludeList(t *testing.T) {
	t.Parallel()

	token := newTestToken(t)
	ctx := context.Background()

	created, err := token.Create(ctx, createRequest())
	require.NoError(t, err)

	req := createRequest()
	req.ExcludeCredentialIDs = [][]byte{created.CredentialID}
	_, err = token.Create(ctx, req)
	require.ErrorIs(t, err, ErrExcluded)
}

func TestAssertWithoutCredential(t *testing.T) {
	t.Parallel()

	token := newTestToken(t)
	_, err := token.Assert(context.Background(), ceremony.AssertRequest{
		RelyingPartyID: "auth.example.com",
		Challenge:      []byte{1},
	})
	require.ErrorIs(t, err, ErrNoCredential)
}

func TestRelyingPartyMustMatchOrigin(t *testing.T) {
	t.Parallel()

	token := newTestToken(t)
	req := createRequest()
	req.RelyingPartyID = "evil.example.net"
	_, err := token.Create(context.Background(), req)
	require.Error(t, err)
}

func TestWrongMasterSecretCannotUnsealKeys(t *testing.T) {
	t.Parallel()

	vault, err := OpenVault(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = vault.Close() })

	token, err := New(Config{
		Origin:       "https://auth.example.com",
		MasterSecret: "right-secret",
		Vault:        vault,
	})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = token.Create(ctx, createRequest())
	require.NoError(t, err)

	intruder, err := New(Config{
		Origin:       "https://auth.example.com",
		MasterSecret: "wrong-secret",
		Vault:        vault,
	})
	require.NoError(t, err)

	_, err = intruder.Assert(ctx, ceremony.AssertRequest{
		RelyingPartyID: "auth.example.com",
		Challenge:      []byte{1},
	})
	require.Error(t, err)
}

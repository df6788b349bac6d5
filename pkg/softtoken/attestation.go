package softtoken

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Authenticator data flags.
const (
	flagUserPresent        = 0x01
	flagUserVerified       = 0x04
	flagAttestedCredential = 0x40
)

// COSE identifiers for an EC2 P-256 key with the ES256 algorithm.
const (
	coseKeyTypeEC2 = 2
	coseAlgES256   = -7
	coseCurveP256  = 1
	coseLabelKty   = 1
	coseLabelAlg   = 3
	coseLabelCurve = -1
	coseLabelX     = -2
	coseLabelY     = -3
)

// ctap2Mode encodes CBOR in the canonical form authenticators emit.
var ctap2Mode = func() cbor.EncMode {
	mode, err := cbor.CTAP2EncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// coseECPublicKey encodes pub as a COSE_Key map.
func coseECPublicKey(pub *ecdsa.PublicKey) ([]byte, error) {
	key := map[int]any{
		coseLabelKty:   coseKeyTypeEC2,
		coseLabelAlg:   coseAlgES256,
		coseLabelCurve: coseCurveP256,
		coseLabelX:     pub.X.FillBytes(make([]byte, 32)),
		coseLabelY:     pub.Y.FillBytes(make([]byte, 32)),
	}
	encoded, err := ctap2Mode.Marshal(key)
	if err != nil {
		return nil, fmt.Errorf("encode cose key: %w", err)
	}
	return encoded, nil
}

// buildAuthData assembles the authenticator data structure:
// rpIdHash || flags || signCount || [attestedCredentialData].
func buildAuthData(rpID string, flags byte, signCount uint32, attested []byte) []byte {
	rpHash := sha256.Sum256([]byte(rpID))

	out := make([]byte, 0, 37+len(attested))
	out = append(out, rpHash[:]...)
	out = append(out, flags)
	out = binary.BigEndian.AppendUint32(out, signCount)
	out = append(out, attested...)
	return out
}

// buildAttestedCredentialData assembles aaguid || credIdLen || credId ||
// cosePublicKey. The aaguid is all zero, as required for self-contained
// software authenticators with no attestation story.
func buildAttestedCredentialData(credentialID, cosePublicKey []byte) []byte {
	out := make([]byte, 0, 16+2+len(credentialID)+len(cosePublicKey))
	out = append(out, make([]byte, 16)...)
	out = binary.BigEndian.AppendUint16(out, uint16(len(credentialID)))
	out = append(out, credentialID...)
	out = append(out, cosePublicKey...)
	return out
}

// attestationObject is the CBOR wire form of a "none" format attestation.
type attestationObject struct {
	AuthData []byte         `cbor:"authData"`
	Fmt      string         `cbor:"fmt"`
	AttStmt  map[string]any `cbor:"attStmt"`
}

func buildAttestationObject(authData []byte) ([]byte, error) {
	encoded, err := ctap2Mode.Marshal(attestationObject{
		AuthData: authData,
		Fmt:      "none",
		AttStmt:  map[string]any{},
	})
	if err != nil {
		return nil, fmt.Errorf("encode attestation object: %w", err)
	}
	return encoded, nil
}

// clientData is the JSON payload both ceremonies sign over.
type clientData struct {
	Type        string `json:"type"`
	Challenge   string `json:"challenge"`
	Origin      string `json:"origin"`
	CrossOrigin bool   `json:"crossOrigin"`
}

func buildClientDataJSON(ceremonyType, challenge, origin string) ([]byte, error) {
	data, err := json.Marshal(clientData{
		Type:      ceremonyType,
		Challenge: challenge,
		Origin:    origin,
	})
	if err != nil {
		return nil, fmt.Errorf("encode client data: %w", err)
	}
	return data, nil
}

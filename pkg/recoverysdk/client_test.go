package recoverysdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/require"
)

func TestStartRegistration(t *testing.T) {
	t.Parallel()

	var gotPath, gotCSRF string
	var gotBody RegisterStartRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotCSRF = r.Header.Get(CSRFHeader)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"publicKey": {
				"challenge": "AQIDBA",
				"rp": {"id": "auth.example.com", "name": "Example"},
				"user": {"id": "dXNlci0x", "name": "jdoe", "displayName": "J. Doe"},
				"excludeCredentials": [{"type": "public-key", "id": "y8Ke"}],
				"authenticatorSelection": {"userVerification": "preferred"}
			}
		}`))
	}))
	t.Cleanup(srv.Close)

	session := NewClient(srv.URL).NewSession("user-1", "link-1", "csrf-1")

	challenge, err := session.StartRegistration(context.Background(), "My Key")
	require.NoError(t, err)

	require.Equal(t, "/users/user-1/webauthn/register/start", gotPath)
	require.Equal(t, "csrf-1", gotCSRF)
	require.Equal(t, RegisterStartRequest{PasskeyName: "My Key", MagicLinkID: "link-1"}, gotBody)

	require.Equal(t, []byte{1, 2, 3, 4}, []byte(challenge.Response.Challenge))
	require.Equal(t, "auth.example.com", challenge.Response.RelyingParty.ID)
	require.Len(t, challenge.Response.CredentialExcludeList, 1)
}

func TestFinishRegistration(t *testing.T) {
	t.Parallel()

	t.Run("accepts 201", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/users/user-1/webauthn/register/finish", r.URL.Path)

			var body RegisterFinishRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "My Key", body.PasskeyName)
			require.Equal(t, "link-1", body.MagicLinkID)
			require.NotNil(t, body.Data)

			w.WriteHeader(http.StatusCreated)
		}))
		t.Cleanup(srv.Close)

		session := NewClient(srv.URL).NewSession("user-1", "link-1", "csrf-1")
		err := session.FinishRegistration(context.Background(), "My Key", &protocol.CredentialCreationResponse{})
		require.NoError(t, err)
	})

	t.Run("surfaces server message on rejection", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error": "BadRequest", "message": "attestation rejected"}`))
		}))
		t.Cleanup(srv.Close)

		session := NewClient(srv.URL).NewSession("user-1", "link-1", "csrf-1")
		err := session.FinishRegistration(context.Background(), "My Key", &protocol.CredentialCreationResponse{})

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
		require.Equal(t, "attestation rejected", apiErr.Message)
	})
}

func TestStartAssertion(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/user-1/webauthn/auth/start", r.URL.Path)

		var body AssertStartRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "PasswordReset", body.Purpose)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"userId": "user-1",
			"code": "corr-1",
			"publicKey": {
				"challenge": "BQYHCA",
				"rpId": "auth.example.com",
				"allowCredentials": [{"type": "public-key", "id": "y8Ke"}],
				"userVerification": "discouraged"
			}
		}`))
	}))
	t.Cleanup(srv.Close)

	session := NewClient(srv.URL).NewSession("user-1", "link-1", "csrf-1")

	challenge, err := session.StartAssertion(context.Background(), "PasswordReset")
	require.NoError(t, err)
	require.Equal(t, "user-1", challenge.UserID)
	require.Equal(t, "corr-1", challenge.Code)
	require.Equal(t, []byte{5, 6, 7, 8}, []byte(challenge.Response.Challenge))
	require.Len(t, challenge.Response.AllowedCredentials, 1)
}

func TestFinishAssertion(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/user-1/webauthn/auth/finish", r.URL.Path)

		var body AssertFinishRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "corr-1", body.Code)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"mfaCode": "otc-99"}`))
	}))
	t.Cleanup(srv.Close)

	session := NewClient(srv.URL).NewSession("user-1", "link-1", "csrf-1")

	result, err := session.FinishAssertion(context.Background(), "corr-1", &protocol.CredentialAssertionResponse{})
	require.NoError(t, err)
	require.Equal(t, "otc-99", result.MFACode)
}

func TestResetPassword(t *testing.T) {
	t.Parallel()

	t.Run("returns Location header on success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/users/user-1/password/reset", r.URL.Path)

			var body PasswordResetRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "Abcdefg123!", body.Password)
			require.Equal(t, "link-1", body.MagicLinkID)
			require.Equal(t, "otc-99", body.MFACode)

			w.Header().Set("Location", "/auth/v1/account?x=1")
			w.WriteHeader(http.StatusAccepted)
		}))
		t.Cleanup(srv.Close)

		session := NewClient(srv.URL).NewSession("user-1", "link-1", "csrf-1")

		redirect, err := session.ResetPassword(context.Background(), "Abcdefg123!", "otc-99")
		require.NoError(t, err)
		require.Equal(t, "/auth/v1/account?x=1", redirect)
	})

	t.Run("omits mfaCode when empty", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var raw map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
			require.NotContains(t, raw, "mfaCode")
			w.WriteHeader(http.StatusOK)
		}))
		t.Cleanup(srv.Close)

		session := NewClient(srv.URL).NewSession("user-1", "link-1", "csrf-1")

		redirect, err := session.ResetPassword(context.Background(), "Abcdefg123!", "")
		require.NoError(t, err)
		require.Empty(t, redirect)
	})

	t.Run("surfaces server message on failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message": "password was used recently"}`))
		}))
		t.Cleanup(srv.Close)

		session := NewClient(srv.URL).NewSession("user-1", "link-1", "csrf-1")

		_, err := session.ResetPassword(context.Background(), "Abcdefg123!", "")
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, "password was used recently", apiErr.Message)
	})
}

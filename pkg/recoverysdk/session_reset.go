package recoverysdk

import (
	"context"
	"fmt"
	"io"
)

// ResetPassword performs the password reset gated behind the magic link and,
// when MFA is active, a one-time assertion code. On success it returns the
// server-provided redirect target from the Location header, or "" when the
// server did not supply one.
func (s *Session) ResetPassword(ctx context.Context, password, mfaCode string) (string, error) {
	path := fmt.Sprintf("/users/%s/password/reset", s.identityID)
	resp, err := s.postJSON(ctx, path, PasswordResetRequest{
		Password:    password,
		MagicLinkID: s.magicLinkID,
		MFACode:     mfaCode,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", parseErrorResponse(resp, bodyBytes)
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.Header.Get("Location"), nil
}

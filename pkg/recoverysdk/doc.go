// Package recoverysdk is an HTTP client for the account-recovery endpoints of
// the auth server: WebAuthn passkey enrollment, step-up MFA assertions,
// magic-link password resets and the live event stream.
//
// A Client is cheap and safe to share. Flow-scoped state (the target
// identity, the magic-link id and its anti-forgery token) lives on a Session
// created per recovery attempt:
//
//	client := recoverysdk.NewClient("https://auth.example.com")
//	session := client.NewSession(identityID, magicLinkID, csrfToken)
//	challenge, err := session.StartRegistration(ctx, "My YubiKey")
//
// All binary WebAuthn fields cross the wire base64url-encoded; the types of
// github.com/go-webauthn/webauthn/protocol handle that encoding.
package recoverysdk

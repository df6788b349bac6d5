package flow

import (
	"regexp"

	"github.com/openclave/reclaim/pkg/policyx"
)

// Field names a single input of the enrollment sub-forms.
type Field string

const (
	FieldPasskeyName     Field = "passkeyName"
	FieldPassword        Field = "password"
	FieldPasswordConfirm Field = "passwordConfirm"
)

// FormState is the mutable user input of one flow instance. It is reset
// whenever the account-type choice changes and after a successful
// submission; it is never persisted.
type FormState struct {
	PasskeyName     string
	Password        string
	PasswordConfirm string
}

const (
	passkeyNameMinLen = 2
	passkeyNameMaxLen = 32
)

// Allowed characters for a passkey label: letters, digits, space and a small
// set of common punctuation.
var passkeyNamePattern = regexp.MustCompile(`^[a-zA-Z0-9 +\-_.@/]+$`)

// validateSchema performs the synchronous field-level checks for the active
// variant. An empty result allows the submission to proceed; deeper policy
// checks are a separate error class and never appear here.
func validateSchema(form FormState, variant Variant) map[Field]string {
	fields := make(map[Field]string)

	switch variant {
	case VariantNewAccountPasskey:
		switch {
		case form.PasskeyName == "":
			fields[FieldPasskeyName] = "a name for the new passkey is required"
		case len(form.PasskeyName) < passkeyNameMinLen:
			fields[FieldPasskeyName] = "the passkey name is too short"
		case len(form.PasskeyName) > passkeyNameMaxLen:
			fields[FieldPasskeyName] = "the passkey name is too long"
		case !passkeyNamePattern.MatchString(form.PasskeyName):
			fields[FieldPasskeyName] = "the passkey name contains invalid characters"
		}

	case VariantNewAccountPassword, VariantPasswordReset:
		if form.Password == "" {
			fields[FieldPassword] = "a new password is required"
		}
		if form.PasswordConfirm == "" {
			fields[FieldPasswordConfirm] = "the password confirmation is required"
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return fields
}

// checkPassword verifies the match invariant, the absolute length cap and
// the policy. The cap applies uniformly to every password variant,
// independent of the policy maximum.
func checkPassword(form FormState, policy policyx.Policy) *Error {
	if form.Password != form.PasswordConfirm {
		return &Error{
			Class:   ClassMatch,
			Message: "password and confirmation do not match",
			Fields: map[Field]string{
				FieldPasswordConfirm: "does not match the password",
			},
		}
	}

	if len(form.Password) > policyx.HardLengthCap {
		return &Error{
			Class:   ClassPolicy,
			Message: "the password exceeds the maximum supported length",
			Fields: map[Field]string{
				FieldPassword: policyx.ViolationTooLong.Message(),
			},
		}
	}

	if violations := policyx.Validate(form.Password, policy); len(violations) > 0 {
		fields := make(map[Field]string, 1)
		fields[FieldPassword] = violations[0].Message()
		return &Error{
			Class:   ClassPolicy,
			Message: "the password does not satisfy the current policy",
			Fields:  fields,
		}
	}

	return nil
}

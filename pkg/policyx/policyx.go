// Package policyx validates candidate passwords against a server-supplied
// password policy and generates policy-conforming random passwords.
//
// The policy is a one-shot immutable snapshot sourced at flow start. Reuse
// restrictions (NotRecentlyUsed) are enforced server-side against the stored
// history; this package only carries the metadata along.
package policyx

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// HardLengthCap is an absolute upper bound on password length, enforced on
// every variant independently of the policy maximum.
const HardLengthCap = 256

// GeneratedLengthMin is the floor for generated passwords. Policies with a
// smaller minimum still get at least this many characters.
const GeneratedLengthMin = 24

// Character classes a policy can require.
const (
	classLower   = "abcdefghijklmnopqrstuvwxyz"
	classUpper   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	classDigits  = "0123456789"
	classSpecial = "!$%&*+,-.:;=?_~"
)

// Policy mirrors the seven ordered numeric fields delivered with the initial
// page configuration. Class fields hold the required count for that class;
// zero means the class is not required.
type Policy struct {
	LengthMin        int
	LengthMax        int
	IncludeLowerCase int
	IncludeUpperCase int
	IncludeDigits    int
	IncludeSpecial   int
	NotRecentlyUsed  int
}

// Violation identifies a single failed policy rule.
type Violation string

const (
	ViolationTooShort     Violation = "too_short"
	ViolationTooLong      Violation = "too_long"
	ViolationNeedsLower   Violation = "needs_lowercase"
	ViolationNeedsUpper   Violation = "needs_uppercase"
	ViolationNeedsDigit   Violation = "needs_digit"
	ViolationNeedsSpecial Violation = "needs_special"
)

// Message returns a human-readable description for display next to the
// password field.
func (v Violation) Message() string {
	switch v {
	case ViolationTooShort:
		return "password is too short for the current policy"
	case ViolationTooLong:
		return "password is too long for the current policy"
	case ViolationNeedsLower:
		return "password needs at least one lowercase character"
	case ViolationNeedsUpper:
		return "password needs at least one uppercase character"
	case ViolationNeedsDigit:
		return "password needs at least one digit"
	case ViolationNeedsSpecial:
		return "password needs at least one special character"
	default:
		return string(v)
	}
}

// Validate checks password against p and returns every violated rule.
// An empty result means the password satisfies the policy.
func Validate(password string, p Policy) []Violation {
	var out []Violation

	if len(password) < p.LengthMin {
		out = append(out, ViolationTooShort)
	}
	maxLen := p.LengthMax
	if maxLen <= 0 || maxLen > HardLengthCap {
		maxLen = HardLengthCap
	}
	if len(password) > maxLen {
		out = append(out, ViolationTooLong)
	}

	if p.IncludeLowerCase > 0 && !strings.ContainsAny(password, classLower) {
		out = append(out, ViolationNeedsLower)
	}
	if p.IncludeUpperCase > 0 && !strings.ContainsAny(password, classUpper) {
		out = append(out, ViolationNeedsUpper)
	}
	if p.IncludeDigits > 0 && !strings.ContainsAny(password, classDigits) {
		out = append(out, ViolationNeedsDigit)
	}
	if p.IncludeSpecial > 0 && !strings.ContainsAny(password, classSpecial) {
		out = append(out, ViolationNeedsSpecial)
	}

	return out
}

// Generate produces a random password satisfying every class requirement of
// p, with length max(p.LengthMin, GeneratedLengthMin), capped to the policy
// maximum when one is set.
//
// One character is drawn independently per required class, the remainder is
// filled from the full allowed alphabet and the result is shuffled. This
// favors policy satisfaction over exact uniform randomness, which is fine for
// a suggested credential.
func Generate(p Policy) (string, error) {
	length := max(p.LengthMin, GeneratedLengthMin)
	if p.LengthMax > 0 && length > p.LengthMax {
		length = p.LengthMax
	}
	if length > HardLengthCap {
		length = HardLengthCap
	}

	var required []string
	alphabet := ""
	for _, c := range []struct {
		count int
		set   string
	}{
		{p.IncludeLowerCase, classLower},
		{p.IncludeUpperCase, classUpper},
		{p.IncludeDigits, classDigits},
		{p.IncludeSpecial, classSpecial},
	} {
		if c.count > 0 {
			required = append(required, c.set)
			alphabet += c.set
		}
	}
	if alphabet == "" {
		alphabet = classLower + classUpper + classDigits
	}

	buf := make([]byte, 0, length)
	for _, set := range required {
		if len(buf) == length {
			break // more required classes than the length allows
		}
		ch, err := randomChar(set)
		if err != nil {
			return "", err
		}
		buf = append(buf, ch)
	}
	for len(buf) < length {
		ch, err := randomChar(alphabet)
		if err != nil {
			return "", err
		}
		buf = append(buf, ch)
	}

	if err := shuffle(buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func randomChar(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, fmt.Errorf("failed to draw random character: %w", err)
	}
	return set[n.Int64()], nil
}

// shuffle performs a Fisher-Yates shuffle with crypto/rand indices.
func shuffle(buf []byte) error {
	for i := len(buf) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return fmt.Errorf("failed to shuffle password: %w", err)
		}
		j := n.Int64()
		buf[i], buf[j] = buf[j], buf[i]
	}
	return nil
}

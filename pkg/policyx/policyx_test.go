package policyx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	policy := Policy{
		LengthMin:        10,
		LengthMax:        128,
		IncludeLowerCase: 1,
		IncludeUpperCase: 1,
		IncludeDigits:    1,
		IncludeSpecial:   1,
		NotRecentlyUsed:  1,
	}

	t.Run("conforming password has no violations", func(t *testing.T) {
		require.Empty(t, Validate("Abcdefg123!", policy))
	})

	t.Run("short password violates length", func(t *testing.T) {
		violations := Validate("short", policy)
		require.Contains(t, violations, ViolationTooShort)
	})

	t.Run("missing classes are each reported", func(t *testing.T) {
		violations := Validate("abcdefghijk", policy)
		require.Contains(t, violations, ViolationNeedsUpper)
		require.Contains(t, violations, ViolationNeedsDigit)
		require.Contains(t, violations, ViolationNeedsSpecial)
		require.NotContains(t, violations, ViolationNeedsLower)
	})

	t.Run("policy maximum is enforced", func(t *testing.T) {
		long := strings.Repeat("Aa1!", 40) // 160 chars
		require.Contains(t, Validate(long, policy), ViolationTooLong)
	})

	t.Run("hard cap applies when policy maximum is absent", func(t *testing.T) {
		open := Policy{LengthMin: 8}
		over := strings.Repeat("x", HardLengthCap+1)
		require.Contains(t, Validate(over, open), ViolationTooLong)

		exact := strings.Repeat("x", HardLengthCap)
		require.Empty(t, Validate(exact, open))
	})

	t.Run("classes with zero count are not required", func(t *testing.T) {
		relaxed := Policy{LengthMin: 4, LengthMax: 64, IncludeLowerCase: 1}
		require.Empty(t, Validate("abcdef", relaxed))
	})
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	policies := map[string]Policy{
		"all classes":      {LengthMin: 10, LengthMax: 128, IncludeLowerCase: 1, IncludeUpperCase: 1, IncludeDigits: 1, IncludeSpecial: 1},
		"lower only":       {LengthMin: 8, LengthMax: 64, IncludeLowerCase: 1},
		"no requirements":  {LengthMin: 12, LengthMax: 32},
		"long minimum":     {LengthMin: 48, LengthMax: 64, IncludeLowerCase: 1, IncludeDigits: 1},
		"tight maximum":    {LengthMin: 2, LengthMax: 3, IncludeLowerCase: 1, IncludeUpperCase: 1, IncludeDigits: 1},
		"diversity exceeds length": {LengthMin: 1, LengthMax: 2, IncludeLowerCase: 1, IncludeUpperCase: 1, IncludeDigits: 1, IncludeSpecial: 1},
	}

	for name, policy := range policies {
		t.Run(name, func(t *testing.T) {
			for range 50 {
				pw, err := Generate(policy)
				require.NoError(t, err)
				require.NotEmpty(t, pw)

				// Length checks always hold, even when the policy demands
				// more class diversity than the length allows.
				maxLen := policy.LengthMax
				if maxLen == 0 {
					maxLen = HardLengthCap
				}
				require.LessOrEqual(t, len(pw), maxLen)

				if policy.LengthMax >= GeneratedLengthMin {
					require.Empty(t, Validate(pw, policy), "generated %q", pw)
				}
			}
		})
	}

	t.Run("generated length is at least the floor", func(t *testing.T) {
		pw, err := Generate(Policy{LengthMin: 8, LengthMax: 128})
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(pw), GeneratedLengthMin)
	})

	t.Run("generated passwords differ between calls", func(t *testing.T) {
		p := Policy{LengthMin: 24, LengthMax: 64, IncludeLowerCase: 1, IncludeDigits: 1}
		a, err := Generate(p)
		require.NoError(t, err)
		b, err := Generate(p)
		require.NoError(t, err)
		require.NotEqual(t, a, b)
	})
}

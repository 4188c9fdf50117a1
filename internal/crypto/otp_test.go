package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateOTP(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := GenerateOTP()
		require.NoError(t, err)
		require.Len(t, code, OTPLength)
		for _, r := range code {
			require.True(t, r >= '0' && r <= '9', "non-digit rune %q in code %s", r, code)
		}
		seen[code] = true
	}
	// 200 draws from a million-code space colliding down to a handful would
	// indicate a broken generator.
	require.Greater(t, len(seen), 150)
}

func TestHashCodeDeterministic(t *testing.T) {
	h1 := HashCode("042917")
	h2 := HashCode("042917")
	require.Equal(t, h1, h2)
	require.Len(t, h1, 64)
	require.NotEqual(t, h1, HashCode("042918"))
}

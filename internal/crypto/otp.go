// Package crypto provides the code-generation and hashing primitives used by
// the bid challenge protocol.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

// OTPLength is the fixed length of a one-time bid confirmation code.
const OTPLength = 6

// GenerateOTP returns a uniformly random numeric code of OTPLength digits,
// zero-padded. It draws from crypto/rand; math/rand is not acceptable for
// codes that gate money movement.
func GenerateOTP() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < OTPLength; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("crypto: generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", OTPLength, n), nil
}

// HashCode returns the hex-encoded SHA-256 digest of a one-time code. Only
// the digest is ever stored; the clear code travels solely through the
// notification gateway.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

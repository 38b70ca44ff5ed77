package common

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
)

// MakeRandURLString reads size random bytes from crypto/rand and encodes them
// with URL-safe base64 without padding. 32 bytes give 256 bits of entropy and
// a 43-character string.
func MakeRandURLString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// MakeNumericCode returns a string of n decimal digits, each drawn
// independently and uniformly from 0-9. Leading zeros are kept.
func MakeNumericCode(n int) (string, error) {
	var sb strings.Builder
	sb.Grow(n)

	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("error generating digit: %w", err)
		}
		sb.WriteByte(byte('0' + d.Int64()))
	}
	return sb.String(), nil
}

// WipeByteArray overwrites the contents of the provided byte slice with zeros.
// If the slice is nil, the function does nothing.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

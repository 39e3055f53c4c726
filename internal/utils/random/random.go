package random

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// Charsets for different random string types.
const (
	CharsetDigits        = "0123456789"
	CharsetUpperAlphaNum = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// serialLayout is the timestamp prefix of generated serial numbers.
const serialLayout = "20060102150405"

// String generates a cryptographically secure random string from the given charset.
func String(length int, charset string) (string, error) {
	if length <= 0 {
		return "", nil
	}
	if charset == "" {
		charset = CharsetUpperAlphaNum
	}

	result := make([]byte, length)
	charsetLen := big.NewInt(int64(len(charset)))

	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, charsetLen)
		if err != nil {
			return "", fmt.Errorf("generate random index: %w", err)
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}

// SerialNo generates a sortable serial number: the timestamp of at
// followed by six random digits, e.g. 20241018093000123456.
// Serial numbers never contain an underscore, so they are safe to embed in
// "{no}_{sequence}" correlation tokens.
func SerialNo(at time.Time) (string, error) {
	suffix, err := String(6, CharsetDigits)
	if err != nil {
		return "", err
	}
	return at.Format(serialLayout) + suffix, nil
}

// RefundNo generates a random refund tracking number.
func RefundNo() (string, error) {
	return String(32, CharsetUpperAlphaNum)
}

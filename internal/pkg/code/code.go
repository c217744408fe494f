package code

import (
	"crypto/rand"
	"math/big"
)

// alphabet excludes lowercase; codes are compared case-insensitively.
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// New generates an n-character verification code from crypto/rand.
func New(n int) (string, error) {
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", err
		}
		b[i] = alphabet[idx.Int64()]
	}
	return string(b), nil
}

package profiles

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const tokenAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ!@#$%^&*-_+?"

// DefaultTokenLength is the number of random characters after the name prefix.
const DefaultTokenLength = 32

// GenerateToken returns up to four leading characters of name followed by
// length characters drawn from a crypto-random source.
func GenerateToken(name string, length int) (string, error) {
	if length <= 0 {
		length = DefaultTokenLength
	}
	prefix := []rune(name)
	if len(prefix) > 4 {
		prefix = prefix[:4]
	}

	buf := make([]byte, 0, len(string(prefix))+length)
	buf = append(buf, string(prefix)...)
	limit := big.NewInt(int64(len(tokenAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate token: %w", err)
		}
		buf = append(buf, tokenAlphabet[n.Int64()])
	}
	return string(buf), nil
}

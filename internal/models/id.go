package models

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/oklog/ulid/v2"
)

const (
	SecretPrefix = "whsec_"

	secretLength   = 40
	secretAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NewID returns "<prefix>_<ulid>". IDs sort by creation time.
func NewID(prefix string) string {
	return prefix + "_" + ulid.Make().String()
}

// NewSecret returns a random webhook signing secret.
func NewSecret() (string, error) {
	limit := big.NewInt(int64(len(secretAlphabet)))

	var b strings.Builder
	b.Grow(len(SecretPrefix) + secretLength)
	b.WriteString(SecretPrefix)
	for i := 0; i < secretLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate secret: %w", err)
		}
		b.WriteByte(secretAlphabet[n.Int64()])
	}
	return b.String(), nil
}

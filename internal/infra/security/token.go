package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const (
	sessionTokenPrefix = "rs_"
	minTokenBytes      = 16
)

// SessionTokens issues opaque bearer tokens with a recognisable prefix.
type SessionTokens struct {
	Bytes int
}

func (g SessionTokens) NewToken() (string, error) {
	size := g.Bytes
	if size < minTokenBytes {
		size = 32
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("security: entropy read failed: %w", err)
	}
	return sessionTokenPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

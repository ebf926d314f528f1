package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasherRoundTrip(t *testing.T) {
	h := BcryptHasher{Cost: bcrypt.MinCost}
	hash, err := h.Hash("correct horse")
	require.NoError(t, err)
	require.NoError(t, h.Compare(hash, "correct horse"))
	require.ErrorIs(t, h.Compare(hash, "battery staple"), ErrPasswordMismatch)
	require.False(t, h.NeedsRehash(hash))
	require.True(t, BcryptHasher{Cost: bcrypt.MinCost + 1}.NeedsRehash(hash))
	require.Error(t, h.Compare("not-a-hash", "x"))
}

func TestSessionTokensAreUnique(t *testing.T) {
	g := SessionTokens{Bytes: 4}
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		tok, err := g.NewToken()
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(tok, sessionTokenPrefix))
		require.Len(t, tok, len(sessionTokenPrefix)+43)
		require.False(t, seen[tok])
		seen[tok] = true
	}
}

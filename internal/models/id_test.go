package models

import (
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	a := NewID("wh")
	b := NewID("wh")

	require.True(t, strings.HasPrefix(a, "wh_"))
	_, err := ulid.Parse(strings.TrimPrefix(a, "wh_"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b, "ids created later sort later")
}

func TestNewSecret(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		s, err := NewSecret()
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(s, SecretPrefix))

		body := strings.TrimPrefix(s, SecretPrefix)
		assert.Len(t, body, secretLength)
		for _, c := range body {
			assert.True(t, strings.ContainsRune(secretAlphabet, c), "unexpected %q", c)
		}
		assert.False(t, seen[s], "duplicate secret")
		seen[s] = true
	}
}

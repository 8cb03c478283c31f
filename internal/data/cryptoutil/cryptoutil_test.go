package cryptoutil

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestAESGCMSealer_RoundTrip(t *testing.T) {
	s, err := NewAESGCMSealer(testKey())
	require.NoError(t, err)

	plaintext := []byte(`{"cookies":[{"name":"sid","value":"abc"}]}`)
	sealed, err := s.Seal(plaintext, "agent01")
	require.NoError(t, err)
	assert.Equal(t, "v1:", string(sealed[:3]))
	assert.NotContains(t, string(sealed), "sid")

	opened, err := s.Open(sealed, "agent01")
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestAESGCMSealer_ContextMismatch(t *testing.T) {
	s, err := NewAESGCMSealer(testKey())
	require.NoError(t, err)

	sealed, err := s.Seal([]byte("state"), "agent01")
	require.NoError(t, err)

	_, err = s.Open(sealed, "agent02")
	require.Error(t, err)
}

func TestAESGCMSealer_RejectsPlainAndShortInput(t *testing.T) {
	s, err := NewAESGCMSealer(testKey())
	require.NoError(t, err)

	_, err = s.Open([]byte(`{"cookies":[]}`), "a")
	require.ErrorIs(t, err, ErrUnsealed)

	_, err = s.Open([]byte("v1:short"), "a")
	require.Error(t, err)
}

func TestNewAESGCMSealer_KeyLength(t *testing.T) {
	_, err := NewAESGCMSealer([]byte("short"))
	require.Error(t, err)
}

func TestKeyFromString(t *testing.T) {
	hexKey := hex.EncodeToString(testKey())
	got, err := KeyFromString(hexKey)
	require.NoError(t, err)
	assert.Equal(t, testKey(), got)

	got, err = KeyFromString("correct horse battery staple")
	require.NoError(t, err)
	assert.Len(t, got, 32)

	_, err = KeyFromString("")
	require.Error(t, err)
}

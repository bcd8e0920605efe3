package secretbox

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	return raw
}

func TestVault_RoundTrip(t *testing.T) {
	t.Parallel()
	v, err := New(testKey())
	require.NoError(t, err)

	for _, msg := range []string{"x", "hola mundo ✓ secreto", strings.Repeat("token-", 200)} {
		ct, err := v.Encrypt(msg)
		require.NoError(t, err)
		assert.NotEqual(t, msg, ct)

		pt, ok := v.Decrypt(ct)
		require.True(t, ok)
		assert.Equal(t, msg, pt)
	}
}

func TestVault_EmptyStaysEmpty(t *testing.T) {
	t.Parallel()
	v, err := New(testKey())
	require.NoError(t, err)

	ct, err := v.Encrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", ct)

	_, ok := v.Decrypt("")
	assert.False(t, ok)
}

func TestVault_DecryptFailsSoft(t *testing.T) {
	t.Parallel()
	v, err := New(testKey())
	require.NoError(t, err)

	ct, err := v.Encrypt("refresh-token")
	require.NoError(t, err)

	nonceB64, ctB64, _ := strings.Cut(ct, "|")
	raw, err := base64.StdEncoding.DecodeString(ctB64)
	require.NoError(t, err)
	raw[0] ^= 0xFF
	tampered := nonceB64 + "|" + base64.StdEncoding.EncodeToString(raw)

	cases := map[string]string{
		"tampered":     tampered,
		"no separator": strings.ReplaceAll(ct, "|", ""),
		"bad base64":   "!!!|???",
		"short nonce":  base64.StdEncoding.EncodeToString([]byte("abc")) + "|" + ctB64,
		"garbage":      "not-a-ciphertext",
	}
	for name, in := range cases {
		in := in
		t.Run(name, func(t *testing.T) {
			pt, ok := v.Decrypt(in)
			assert.False(t, ok)
			assert.Empty(t, pt)
		})
	}
}

func TestVault_WrongKeyFailsSoft(t *testing.T) {
	t.Parallel()
	a, err := New(testKey())
	require.NoError(t, err)
	b, err := NewFromSecret("otro-secreto")
	require.NoError(t, err)

	ct, err := a.Encrypt("password")
	require.NoError(t, err)
	_, ok := b.Decrypt(ct)
	assert.False(t, ok)
}

func TestNewFromSecret_Deterministic(t *testing.T) {
	t.Parallel()
	a, err := NewFromSecret("app-secret")
	require.NoError(t, err)
	b, err := NewFromSecret("app-secret")
	require.NoError(t, err)

	ct, err := a.Encrypt("shared")
	require.NoError(t, err)
	pt, ok := b.Decrypt(ct)
	require.True(t, ok)
	assert.Equal(t, "shared", pt)

	_, err = NewFromSecret("  ")
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestFromConfig(t *testing.T) {
	t.Parallel()
	b64 := base64.StdEncoding.EncodeToString(testKey())

	v, err := FromConfig(b64, "")
	require.NoError(t, err)
	require.NotNil(t, v)

	_, err = FromConfig("corta", "")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = FromConfig("", "")
	assert.ErrorIs(t, err, ErrNoKey)

	_, err = New([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

package encryption

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	svc, err := NewService(testKey)
	require.NoError(t, err)

	token := "a7f3e9b1-access-token"
	sealed, err := svc.Encrypt(token)
	require.NoError(t, err)
	assert.NotEqual(t, token, sealed)
	assert.NotContains(t, sealed, token)

	plain, err := svc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, token, plain)
}

func TestEncryptProducesFreshNonce(t *testing.T) {
	svc, err := NewService(testKey)
	require.NoError(t, err)

	a, err := svc.Encrypt("same-token")
	require.NoError(t, err)
	b, err := svc.Encrypt("same-token")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	svc, err := NewService(testKey)
	require.NoError(t, err)
	sealed, err := svc.Encrypt("secret")
	require.NoError(t, err)

	other, err := NewService(strings.Repeat("ff", 32))
	require.NoError(t, err)
	_, err = other.Decrypt(sealed)
	assert.Error(t, err)
}

func TestNewServiceRejectsBadKeys(t *testing.T) {
	_, err := NewService("not-hex")
	assert.Error(t, err)

	_, err = NewService(hex.EncodeToString([]byte("short key")))
	assert.Error(t, err)
}

func TestDecryptRejectsGarbage(t *testing.T) {
	svc, err := NewService(testKey)
	require.NoError(t, err)

	_, err = svc.Decrypt("%%% not base64 %%%")
	assert.Error(t, err)

	_, err = svc.Decrypt("dG9vc2hvcnQ=")
	assert.Error(t, err)
}

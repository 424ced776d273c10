package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestFieldCipher_RoundTrip(t *testing.T) {
	c, err := NewFieldCipher(testKey)
	require.NoError(t, err)

	plaintext := "SN-2026-0001"
	encrypted, err := c.Encrypt(plaintext)
	require.NoError(t, err)

	// 密文不等于明文且不包含明文
	assert.NotEqual(t, plaintext, encrypted)
	assert.NotContains(t, encrypted, plaintext)

	decrypted, err := c.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestFieldCipher_NonceUniqueness(t *testing.T) {
	c, err := NewFieldCipher(testKey)
	require.NoError(t, err)

	// 同一明文两次加密产生不同密文
	a, err := c.Encrypt("SN-2026-0001")
	require.NoError(t, err)
	b, err := c.Encrypt("SN-2026-0001")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestFieldCipher_HexKey(t *testing.T) {
	c, err := NewFieldCipher("00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff")
	require.NoError(t, err)

	encrypted, err := c.Encrypt("10.0.0.42")
	require.NoError(t, err)
	decrypted, err := c.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.42", decrypted)
}

func TestFieldCipher_InvalidKey(t *testing.T) {
	_, err := NewFieldCipher("too-short")
	assert.Error(t, err)

	_, err = NewFieldCipher("")
	assert.Error(t, err)
}

func TestFieldCipher_DecryptWithWrongKey(t *testing.T) {
	c1, err := NewFieldCipher(testKey)
	require.NoError(t, err)
	c2, err := NewFieldCipher("fedcba9876543210fedcba9876543210")
	require.NoError(t, err)

	encrypted, err := c1.Encrypt("SN-2026-0001")
	require.NoError(t, err)

	_, err = c2.Decrypt(encrypted)
	assert.Error(t, err)
}

func TestFieldCipher_DecryptGarbage(t *testing.T) {
	c, err := NewFieldCipher(testKey)
	require.NoError(t, err)

	_, err = c.Decrypt("not-base64!!!")
	assert.Error(t, err)

	_, err = c.Decrypt("c2hvcnQ=")
	assert.Error(t, err)
}

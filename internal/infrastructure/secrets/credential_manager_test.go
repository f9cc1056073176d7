package secrets

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMasterKey = "unit-test-master-key-32-characters"

func TestNewCredentialManager_RequiresMasterKey(t *testing.T) {
	_, err := NewCredentialManager("")
	assert.ErrorIs(t, err, ErrMasterKeyMissing)
}

func TestEncryptDecryptMap_RoundTrip(t *testing.T) {
	mgr, err := NewCredentialManager(testMasterKey)
	require.NoError(t, err)

	secrets := map[string]string{
		"api_key":    "zk_live_4242",
		"api_secret": "shhh",
		"base_url":   "https://books.zoho.com",
	}

	enc, err := mgr.EncryptMap(secrets)
	require.NoError(t, err)
	assert.NotEmpty(t, enc.IV)
	assert.NotEmpty(t, enc.Ciphertext)
	assert.NotEmpty(t, enc.AuthTag)

	got, err := mgr.DecryptMap(enc)
	require.NoError(t, err)
	assert.Equal(t, secrets, got)
}

func TestEncryptString_NonceIsUnique(t *testing.T) {
	mgr, err := NewCredentialManager(testMasterKey)
	require.NoError(t, err)

	a, err := mgr.EncryptString("same plaintext")
	require.NoError(t, err)
	b, err := mgr.EncryptString("same plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, a.IV, b.IV)
	assert.NotEqual(t, a.Ciphertext, b.Ciphertext)
}

func TestDecrypt_TamperedCiphertextFails(t *testing.T) {
	mgr, err := NewCredentialManager(testMasterKey)
	require.NoError(t, err)

	enc, err := mgr.EncryptString("tally:9000")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(enc.Ciphertext)
	require.NoError(t, err)
	raw[0] ^= 0x01
	enc.Ciphertext = base64.StdEncoding.EncodeToString(raw)

	_, err = mgr.DecryptString(enc)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestDecrypt_TamperedAuthTagFails(t *testing.T) {
	mgr, err := NewCredentialManager(testMasterKey)
	require.NoError(t, err)

	enc, err := mgr.EncryptString("tally:9000")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(enc.AuthTag)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x80
	enc.AuthTag = base64.StdEncoding.EncodeToString(raw)

	_, err = mgr.DecryptString(enc)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestDecrypt_WrongMasterKeyFails(t *testing.T) {
	mgr, err := NewCredentialManager(testMasterKey)
	require.NoError(t, err)
	other, err := NewCredentialManager("a-different-master-key-entirely!")
	require.NoError(t, err)

	enc, err := mgr.EncryptString("secret")
	require.NoError(t, err)

	_, err = other.DecryptString(enc)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestRotate(t *testing.T) {
	oldKey := testMasterKey
	newKey := "rotated-master-key-with-32-chars"

	oldMgr, err := NewCredentialManager(oldKey)
	require.NoError(t, err)

	enc, err := oldMgr.EncryptMap(map[string]string{"client_secret": "cs_123"})
	require.NoError(t, err)

	rotated, err := Rotate(oldKey, newKey, enc)
	require.NoError(t, err)

	newMgr, err := NewCredentialManager(newKey)
	require.NoError(t, err)
	got, err := newMgr.DecryptMap(rotated)
	require.NoError(t, err)
	assert.Equal(t, "cs_123", got["client_secret"])

	// Old key no longer opens the rotated payload.
	_, err = oldMgr.DecryptMap(rotated)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestEncodeDecode(t *testing.T) {
	mgr, err := NewCredentialManager(testMasterKey)
	require.NoError(t, err)

	enc, err := mgr.EncryptString("payload")
	require.NoError(t, err)

	stored := enc.Encode()
	decoded, err := Decode(stored)
	require.NoError(t, err)

	got, err := mgr.DecryptString(decoded)
	require.NoError(t, err)
	assert.Equal(t, "payload", got)
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode("not json at all")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = Decode(`{"iv":"","ciphertext":"x","auth_tag":"y"}`)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestValidate(t *testing.T) {
	mgr, err := NewCredentialManager(testMasterKey)
	require.NoError(t, err)

	enc, err := mgr.EncryptString("ok")
	require.NoError(t, err)
	assert.True(t, mgr.Validate(enc))

	enc.AuthTag = base64.StdEncoding.EncodeToString(make([]byte, 16))
	assert.False(t, mgr.Validate(enc))
}

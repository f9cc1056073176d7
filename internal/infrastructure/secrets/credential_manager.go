// Package secrets encrypts accounting connection credentials at rest.
// AES-256-GCM with a PBKDF2-derived key; every ciphertext carries its own
// random nonce, and the GCM auth tag is verified on decrypt so tampering
// fails loudly instead of yielding garbage plaintext.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

var (
	// ErrMasterKeyMissing indicates the master key is absent; the service
	// must refuse to start rather than run without credential encryption
	ErrMasterKeyMissing = errors.New("secrets: master key is not configured")

	// ErrDecryptFailed indicates the ciphertext or auth tag was tampered
	// with, or the wrong master key was used. Never retryable.
	ErrDecryptFailed = errors.New("secrets: decryption failed")

	// ErrInvalidCiphertext indicates the encrypted payload is malformed
	ErrInvalidCiphertext = errors.New("secrets: invalid ciphertext")
)

const (
	keyLen     = 32
	pbkdf2Iter = 100_000
)

// keySalt is a fixed application-scoped salt. The master key itself is the
// secret; the salt only domain-separates the derived key from other uses of
// the same passphrase.
var keySalt = []byte("finplat-accounting-credentials-v1")

// Encrypted is the stored form of an encrypted credential payload. All three
// parts are base64; IV is the GCM nonce and AuthTag is kept separate so
// tampering with either is detectable independently.
type Encrypted struct {
	IV         string `json:"iv"`
	Ciphertext string `json:"ciphertext"`
	AuthTag    string `json:"auth_tag"`
}

// CredentialManager performs symmetric credential encryption with a key
// derived once from the master key.
type CredentialManager struct {
	aead cipher.AEAD
}

// NewCredentialManager derives the AES-256 key from the master key and
// prepares the AEAD. An empty master key is a startup error.
func NewCredentialManager(masterKey string) (*CredentialManager, error) {
	if masterKey == "" {
		return nil, ErrMasterKeyMissing
	}
	aead, err := aeadFor(masterKey)
	if err != nil {
		return nil, err
	}
	return &CredentialManager{aead: aead}, nil
}

func aeadFor(masterKey string) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(masterKey), keySalt, pbkdf2Iter, keyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secrets: init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secrets: init gcm: %w", err)
	}
	return aead, nil
}

// EncryptString encrypts one plaintext string.
func (m *CredentialManager) EncryptString(plaintext string) (*Encrypted, error) {
	return m.seal([]byte(plaintext))
}

// DecryptString reverses EncryptString.
func (m *CredentialManager) DecryptString(enc *Encrypted) (string, error) {
	plain, err := m.open(m.aead, enc)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// EncryptMap serializes and encrypts a secret map in one step.
func (m *CredentialManager) EncryptMap(secrets map[string]string) (*Encrypted, error) {
	raw, err := json.Marshal(secrets)
	if err != nil {
		return nil, fmt.Errorf("secrets: marshal: %w", err)
	}
	return m.seal(raw)
}

// DecryptMap reverses EncryptMap.
func (m *CredentialManager) DecryptMap(enc *Encrypted) (map[string]string, error) {
	raw, err := m.open(m.aead, enc)
	if err != nil {
		return nil, err
	}
	var secrets map[string]string
	if err := json.Unmarshal(raw, &secrets); err != nil {
		return nil, fmt.Errorf("secrets: unmarshal: %w", err)
	}
	return secrets, nil
}

// EncryptJSON encrypts any JSON-serializable value, used for the tagged
// connection-settings union.
func (m *CredentialManager) EncryptJSON(v any) (*Encrypted, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("secrets: marshal: %w", err)
	}
	return m.seal(raw)
}

// DecryptJSON reverses EncryptJSON into dst.
func (m *CredentialManager) DecryptJSON(enc *Encrypted, dst any) error {
	raw, err := m.open(m.aead, enc)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("secrets: unmarshal: %w", err)
	}
	return nil
}

// Validate reports whether the payload decrypts cleanly under the current
// master key without exposing the plaintext to the caller.
func (m *CredentialManager) Validate(enc *Encrypted) bool {
	_, err := m.open(m.aead, enc)
	return err == nil
}

// Rotate re-encrypts a payload from the old master key to the new one.
func Rotate(oldMasterKey, newMasterKey string, enc *Encrypted) (*Encrypted, error) {
	oldMgr, err := NewCredentialManager(oldMasterKey)
	if err != nil {
		return nil, err
	}
	newMgr, err := NewCredentialManager(newMasterKey)
	if err != nil {
		return nil, err
	}
	plain, err := oldMgr.open(oldMgr.aead, enc)
	if err != nil {
		return nil, err
	}
	return newMgr.seal(plain)
}

// Encode packs an Encrypted payload into a single string column.
func (e *Encrypted) Encode() string {
	raw, _ := json.Marshal(e)
	return string(raw)
}

// Decode unpacks a stored payload produced by Encode.
func Decode(stored string) (*Encrypted, error) {
	var enc Encrypted
	if err := json.Unmarshal([]byte(stored), &enc); err != nil {
		return nil, ErrInvalidCiphertext
	}
	if enc.IV == "" || enc.Ciphertext == "" || enc.AuthTag == "" {
		return nil, ErrInvalidCiphertext
	}
	return &enc, nil
}

func (m *CredentialManager) seal(plaintext []byte) (*Encrypted, error) {
	nonce := make([]byte, m.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("secrets: nonce: %w", err)
	}
	sealed := m.aead.Seal(nil, nonce, plaintext, nil)

	// GCM appends the 16-byte tag; store it separately.
	tagStart := len(sealed) - m.aead.Overhead()
	return &Encrypted{
		IV:         base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed[:tagStart]),
		AuthTag:    base64.StdEncoding.EncodeToString(sealed[tagStart:]),
	}, nil
}

func (m *CredentialManager) open(aead cipher.AEAD, enc *Encrypted) ([]byte, error) {
	nonce, err := base64.StdEncoding.DecodeString(enc.IV)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}
	ciphertext, err := base64.StdEncoding.DecodeString(enc.Ciphertext)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}
	tag, err := base64.StdEncoding.DecodeString(enc.AuthTag)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}
	if len(nonce) != aead.NonceSize() || len(tag) != aead.Overhead() {
		return nil, ErrInvalidCiphertext
	}
	plain, err := aead.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plain, nil
}

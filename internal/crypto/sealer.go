// Package crypto seals outbound payloads for the collection endpoint.
//
// The endpoint publishes an RSA public key as base64 DER SubjectPublicKeyInfo.
// Seal applies RSA-OAEP with SHA-256 and MGF1-SHA-256 directly, which caps the
// plaintext at MaxPlaintextSize bytes (190 for a 2048-bit key). SealHybrid
// lifts that limit by wrapping a one-time AES-256-GCM key instead.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	apperrors "smsrelay/internal/errors"
	"smsrelay/internal/models"
)

const (
	// HybridAlgorithm names the framing produced by SealHybrid
	HybridAlgorithm = "RSA-OAEP-256+A256GCM"

	hashSize       = sha256.Size
	sessionKeySize = 32
	gcmNonceSize   = 12
)

var (
	// ErrPlaintextTooLarge is returned when a payload exceeds the OAEP limit
	ErrPlaintextTooLarge = errors.New("plaintext exceeds RSA-OAEP size limit")
	// ErrNilKey is returned when sealing without a key
	ErrNilKey = errors.New("public key is nil")
)

// LoadPublicKey parses a base64 DER SubjectPublicKeyInfo RSA key
func LoadPublicKey(encoded string) (*rsa.PublicKey, error) {
	trimmed := strings.Join(strings.Fields(encoded), "")
	if trimmed == "" {
		return nil, apperrors.NewKeyFormatError("empty", nil)
	}

	der, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, apperrors.NewKeyFormatError("base64", err)
	}

	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, apperrors.NewKeyFormatError("der", err)
	}

	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, apperrors.NewKeyFormatError("not_rsa", fmt.Errorf("unsupported key type %T", parsed))
	}
	return pub, nil
}

// MaxPlaintextSize returns the largest payload Seal accepts for pub
func MaxPlaintextSize(pub *rsa.PublicKey) int {
	if pub == nil {
		return 0
	}
	return pub.Size() - 2*hashSize - 2
}

// Seal encrypts plaintext with RSA-OAEP-256 and returns base64 ciphertext.
// It never returns partial output.
func Seal(plaintext []byte, pub *rsa.PublicKey) (models.SealedPayload, error) {
	if pub == nil {
		return "", apperrors.NewCryptoError("seal", ErrNilKey)
	}
	if len(plaintext) > MaxPlaintextSize(pub) {
		return "", apperrors.NewCryptoError("seal", ErrPlaintextTooLarge).
			WithContext("size", len(plaintext)).
			WithContext("limit", MaxPlaintextSize(pub))
	}

	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, plaintext, nil)
	if err != nil {
		return "", apperrors.NewCryptoError("seal", err)
	}
	return models.SealedPayload(base64.StdEncoding.EncodeToString(ciphertext)), nil
}

// hybridEnvelope is the JSON document carried (base64 encoded) by SealHybrid
type hybridEnvelope struct {
	Alg        string `json:"alg"`
	Key        string `json:"key"`
	IV         string `json:"iv"`
	Ciphertext string `json:"ct"`
}

// SealHybrid encrypts plaintext of any size under a fresh AES-256-GCM key and
// wraps that key with Seal.
func SealHybrid(plaintext []byte, pub *rsa.PublicKey) (models.SealedPayload, error) {
	if pub == nil {
		return "", apperrors.NewCryptoError("seal_hybrid", ErrNilKey)
	}

	sessionKey := make([]byte, sessionKeySize)
	if _, err := rand.Read(sessionKey); err != nil {
		return "", apperrors.NewCryptoError("seal_hybrid", fmt.Errorf("failed to generate session key: %w", err))
	}

	block, err := aes.NewCipher(sessionKey)
	if err != nil {
		return "", apperrors.NewCryptoError("seal_hybrid", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", apperrors.NewCryptoError("seal_hybrid", err)
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", apperrors.NewCryptoError("seal_hybrid", fmt.Errorf("failed to generate nonce: %w", err))
	}

	wrappedKey, err := Seal(sessionKey, pub)
	if err != nil {
		return "", err
	}

	doc, err := json.Marshal(hybridEnvelope{
		Alg:        HybridAlgorithm,
		Key:        string(wrappedKey),
		IV:         base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, plaintext, nil)),
	})
	if err != nil {
		return "", apperrors.NewCryptoError("seal_hybrid", err)
	}
	return models.SealedPayload(base64.StdEncoding.EncodeToString(doc)), nil
}

// Sealer frames the "data" field of the envelope according to the configured
// encryption mode.
type Sealer struct {
	mode string
	key  *rsa.PublicKey
}

// NewSealer validates the mode/key combination
func NewSealer(mode string, key *rsa.PublicKey) (*Sealer, error) {
	switch mode {
	case "", models.EncryptionModePlain:
		return &Sealer{mode: models.EncryptionModePlain}, nil
	case models.EncryptionModeRSAOAEP, models.EncryptionModeHybrid:
		if key == nil {
			return nil, apperrors.NewConfigError("encryption.public_key", fmt.Sprintf("encryption mode %q requires a public key", mode))
		}
		return &Sealer{mode: mode, key: key}, nil
	default:
		return nil, apperrors.NewConfigError("encryption.mode", fmt.Sprintf("unknown encryption mode %q", mode))
	}
}

// Mode returns the active encryption mode
func (s *Sealer) Mode() string {
	return s.mode
}

// Frame returns the string placed under "data" for the given JSON array
func (s *Sealer) Frame(plainJSON []byte) (string, error) {
	switch s.mode {
	case models.EncryptionModeRSAOAEP:
		sealed, err := Seal(plainJSON, s.key)
		return string(sealed), err
	case models.EncryptionModeHybrid:
		sealed, err := SealHybrid(plainJSON, s.key)
		return string(sealed), err
	default:
		return string(plainJSON), nil
	}
}

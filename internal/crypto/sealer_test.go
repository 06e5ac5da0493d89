package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	apperrors "smsrelay/internal/errors"
	"smsrelay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func privateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = key
	})
	return testKey
}

func encodePublicKey(t *testing.T, pub interface{}) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(der)
}

func decryptSealed(t *testing.T, sealed models.SealedPayload) []byte {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(string(sealed))
	require.NoError(t, err)
	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, privateKey(t), raw, nil)
	require.NoError(t, err)
	return plaintext
}

func TestLoadPublicKey(t *testing.T) {
	encoded := encodePublicKey(t, &privateKey(t).PublicKey)

	pub, err := LoadPublicKey(encoded)
	require.NoError(t, err)
	assert.Equal(t, 256, pub.Size())
	assert.Equal(t, 0, pub.N.Cmp(privateKey(t).N))
}

func TestLoadPublicKey_ToleratesLineBreaks(t *testing.T) {
	encoded := encodePublicKey(t, &privateKey(t).PublicKey)
	wrapped := encoded[:64] + "\n" + encoded[64:128] + "\r\n" + encoded[128:]

	_, err := LoadPublicKey(wrapped)
	require.NoError(t, err)
}

func TestLoadPublicKey_Errors(t *testing.T) {
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tests := []struct {
		name   string
		input  string
		reason string
	}{
		{"empty", "", "empty"},
		{"invalid base64", "not*base64!", "base64"},
		{"invalid der", base64.StdEncoding.EncodeToString([]byte("definitely not der")), "der"},
		{"non rsa key", encodePublicKey(t, &ecKey.PublicKey), "not_rsa"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub, err := LoadPublicKey(tt.input)
			assert.Nil(t, pub)
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrCodeKeyFormat, apperrors.GetCode(err))

			var appErr *apperrors.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.reason, appErr.Context["reason"])
		})
	}
}

func TestMaxPlaintextSize(t *testing.T) {
	assert.Equal(t, 190, MaxPlaintextSize(&privateKey(t).PublicKey))
	assert.Equal(t, 0, MaxPlaintextSize(nil))
}

func TestSeal_RoundTrip(t *testing.T) {
	plaintext := []byte(`[{"sender":"BANK","content":"OTP 123456"}]`)

	sealed, err := Seal(plaintext, &privateKey(t).PublicKey)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "BANK")
	assert.Equal(t, plaintext, decryptSealed(t, sealed))
}

func TestSeal_IsRandomized(t *testing.T) {
	first, err := Seal([]byte("same"), &privateKey(t).PublicKey)
	require.NoError(t, err)
	second, err := Seal([]byte("same"), &privateKey(t).PublicKey)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestSeal_SizeLimit(t *testing.T) {
	pub := &privateKey(t).PublicKey

	atLimit := []byte(strings.Repeat("a", 190))
	sealed, err := Seal(atLimit, pub)
	require.NoError(t, err)
	assert.Equal(t, atLimit, decryptSealed(t, sealed))

	overLimit := []byte(strings.Repeat("a", 191))
	sealed, err = Seal(overLimit, pub)
	require.Error(t, err)
	assert.Empty(t, sealed, "no partial output on failure")
	assert.ErrorIs(t, err, ErrPlaintextTooLarge)
	assert.Equal(t, apperrors.ErrCodeCrypto, apperrors.GetCode(err))
	assert.False(t, apperrors.IsRetryable(err))
}

func TestSeal_NilKey(t *testing.T) {
	_, err := Seal([]byte("x"), nil)
	assert.ErrorIs(t, err, ErrNilKey)
}

func TestSealHybrid_LargePayload(t *testing.T) {
	plaintext := []byte(strings.Repeat(`{"sender":"BANK","content":"OTP 123456"},`, 200))
	require.Greater(t, len(plaintext), MaxPlaintextSize(&privateKey(t).PublicKey))

	sealed, err := SealHybrid(plaintext, &privateKey(t).PublicKey)
	require.NoError(t, err)

	docBytes, err := base64.StdEncoding.DecodeString(string(sealed))
	require.NoError(t, err)

	var doc hybridEnvelope
	require.NoError(t, json.Unmarshal(docBytes, &doc))
	assert.Equal(t, HybridAlgorithm, doc.Alg)

	sessionKey := decryptSealed(t, models.SealedPayload(doc.Key))
	require.Len(t, sessionKey, 32)

	nonce, err := base64.StdEncoding.DecodeString(doc.IV)
	require.NoError(t, err)
	ciphertext, err := base64.StdEncoding.DecodeString(doc.Ciphertext)
	require.NoError(t, err)

	block, err := aes.NewCipher(sessionKey)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)
	opened, err := gcm.Open(nil, nonce, ciphertext, nil)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestNewSealer(t *testing.T) {
	pub := &privateKey(t).PublicKey

	s, err := NewSealer("", nil)
	require.NoError(t, err)
	assert.Equal(t, models.EncryptionModePlain, s.Mode())

	_, err = NewSealer(models.EncryptionModeRSAOAEP, nil)
	assert.Equal(t, apperrors.ErrCodeInvalidConfig, apperrors.GetCode(err))

	_, err = NewSealer("rot13", pub)
	assert.Error(t, err)

	s, err = NewSealer(models.EncryptionModeHybrid, pub)
	require.NoError(t, err)
	assert.Equal(t, models.EncryptionModeHybrid, s.Mode())
}

func TestSealer_Frame(t *testing.T) {
	pub := &privateKey(t).PublicKey
	plain := []byte(`[{"sender":"A"}]`)

	t.Run("plain passes json through", func(t *testing.T) {
		s, err := NewSealer(models.EncryptionModePlain, nil)
		require.NoError(t, err)
		data, err := s.Frame(plain)
		require.NoError(t, err)
		assert.Equal(t, string(plain), data)
	})

	t.Run("rsa-oaep seals small arrays", func(t *testing.T) {
		s, err := NewSealer(models.EncryptionModeRSAOAEP, pub)
		require.NoError(t, err)
		data, err := s.Frame(plain)
		require.NoError(t, err)
		assert.Equal(t, plain, decryptSealed(t, models.SealedPayload(data)))
	})

	t.Run("rsa-oaep rejects large arrays", func(t *testing.T) {
		s, err := NewSealer(models.EncryptionModeRSAOAEP, pub)
		require.NoError(t, err)
		_, err = s.Frame([]byte(strings.Repeat("x", 500)))
		assert.ErrorIs(t, err, ErrPlaintextTooLarge)
	})

	t.Run("hybrid accepts large arrays", func(t *testing.T) {
		s, err := NewSealer(models.EncryptionModeHybrid, pub)
		require.NoError(t, err)
		data, err := s.Frame([]byte(strings.Repeat("x", 500)))
		require.NoError(t, err)
		assert.NotEmpty(t, data)
	})
}

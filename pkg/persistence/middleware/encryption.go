package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/plotbridge/pkg/domain"
	"github.com/aretw0/plotbridge/pkg/ports"
)

// EnvelopeID is the single entry an encrypted annotation set is stored under.
const EnvelopeID domain.PlotID = "__encrypted__"

// KeySize is the AES-256 key length.
const KeySize = 32

// ErrMissingEnvelope is returned when a stored set was written without encryption.
var ErrMissingEnvelope = errors.New("annotations are missing the encrypted envelope")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

// ParseKey decodes a base64 AES-256 key.
func ParseKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

type encryptionMiddleware struct {
	next   ports.AnnotationStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that stores annotations as an
// AES-GCM sealed envelope. Notes never reach the backing store in clear text.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != KeySize {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.AnnotationStore) ports.AnnotationStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}
}

func (m *encryptionMiddleware) Save(ctx context.Context, key string, annotations domain.RetainedAnnotations) error {
	plainText, err := json.Marshal(annotations)
	if err != nil {
		return fmt.Errorf("failed to marshal annotations: %w", err)
	}

	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt annotations: %w", err)
	}

	envelope := domain.RetainedAnnotations{
		EnvelopeID: {Note: base64.StdEncoding.EncodeToString(ciphertext)},
	}
	return m.next.Save(ctx, key, envelope)
}

func (m *encryptionMiddleware) Load(ctx context.Context, key string) (domain.RetainedAnnotations, error) {
	envelope, err := m.next.Load(ctx, key)
	if err != nil {
		return nil, err
	}

	sealed, ok := envelope[EnvelopeID]
	if !ok || len(envelope) != 1 {
		return nil, ErrMissingEnvelope
	}

	ciphertext, err := base64.StdEncoding.DecodeString(sealed.Note)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt annotations: %w", err)
	}

	annotations := domain.RetainedAnnotations{}
	if err := json.Unmarshal(plainText, &annotations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted annotations: %w", err)
	}
	return annotations, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, key string) error {
	return m.next.Delete(ctx, key)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// Ping forwards readiness checks to stores that support them.
func (m *encryptionMiddleware) Ping(ctx context.Context) error {
	if p, ok := m.next.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], nil)
}

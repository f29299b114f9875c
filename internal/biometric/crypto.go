package biometric

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	id "mirrorgate/pkg/domain"
)

// templateCipher seals feature vectors at rest. Each subject+modality pair
// gets its own subkey derived from the master key, so a leaked row cannot be
// decrypted without the master key and a cross-subject key reuse bug cannot
// decrypt foreign templates.
type templateCipher struct {
	masterKey []byte
}

func newTemplateCipher(hexKey string) (*templateCipher, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode template key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("template key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &templateCipher{masterKey: key}, nil
}

func (c *templateCipher) subkey(subjectID id.SubjectID, modality id.Modality) ([]byte, error) {
	r := hkdf.New(sha256.New, c.masterKey, []byte(subjectID.String()), []byte("template:"+modality))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive template subkey: %w", err)
	}
	return key, nil
}

// seal encrypts a feature vector for storage. The random nonce is prepended
// to the ciphertext.
func (c *templateCipher) seal(subjectID id.SubjectID, modality id.Modality, vector []float64) ([]byte, error) {
	key, err := c.subkey(subjectID, modality)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("template cipher: %w", err)
	}
	plain, err := json.Marshal(vector)
	if err != nil {
		return nil, fmt.Errorf("encode feature vector: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("template nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plain, nil), nil
}

// open decrypts a stored feature vector.
func (c *templateCipher) open(subjectID id.SubjectID, modality id.Modality, sealed []byte) ([]float64, error) {
	key, err := c.subkey(subjectID, modality)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("template cipher: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("sealed template too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open template: %w", err)
	}
	var vector []float64
	if err := json.Unmarshal(plain, &vector); err != nil {
		return nil, fmt.Errorf("decode feature vector: %w", err)
	}
	return vector, nil
}

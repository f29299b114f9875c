package bridge

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/chacha20poly1305"

	"mirrorgate/internal/bridge/models"
	id "mirrorgate/pkg/domain"
	dErrors "mirrorgate/pkg/domain-errors"
)

// QRClaims is the signed payload a pairing QR carries. It holds only what
// the second device needs to complete the session; notably no subject
// identity and no biometric material.
type QRClaims struct {
	SessionID       string `json:"session_id"`
	NonceID         string `json:"nonce_id"`
	DeviceChallenge string `json:"device_challenge"`
	jwt.RegisteredClaims
}

// qrCodec signs QR payloads with HMAC-SHA256 and seals the signed token with
// XChaCha20-Poly1305. Signing stops tampering; sealing stops a bystander who
// photographs the code from reading session identifiers out of it.
type qrCodec struct {
	signingKey []byte
	sealingKey []byte
}

func newQRCodec(signingKeyHex, sealingKeyHex string) (*qrCodec, error) {
	signingKey, err := hex.DecodeString(signingKeyHex)
	if err != nil || len(signingKey) != 32 {
		return nil, fmt.Errorf("signing key must be 32 hex-encoded bytes")
	}
	sealingKey, err := hex.DecodeString(sealingKeyHex)
	if err != nil || len(sealingKey) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("sealing key must be %d hex-encoded bytes", chacha20poly1305.KeySize)
	}
	return &qrCodec{signingKey: signingKey, sealingKey: sealingKey}, nil
}

// Encode produces the opaque QR payload string for a session.
func (c *qrCodec) Encode(session *models.Session) (string, error) {
	claims := QRClaims{
		SessionID:       session.ID.String(),
		NonceID:         session.NonceID.String(),
		DeviceChallenge: session.DeviceChallenge,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(session.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign qr payload: %w", err)
	}

	aead, err := chacha20poly1305.NewX(c.sealingKey)
	if err != nil {
		return "", fmt.Errorf("seal qr payload: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("seal qr payload: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(token), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode opens and verifies a QR payload. Expiry is enforced by the JWT
// validator against the embedded expires_at.
func (c *qrCodec) Decode(payload string, now time.Time) (*QRClaims, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "malformed qr payload")
	}
	aead, err := chacha20poly1305.NewX(c.sealingKey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "open qr payload")
	}
	if len(sealed) < aead.NonceSize() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "malformed qr payload")
	}
	token, err := aead.Open(nil, sealed[:aead.NonceSize()], sealed[aead.NonceSize():], nil)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "malformed qr payload")
	}

	claims := &QRClaims{}
	_, err = jwt.ParseWithClaims(string(token), claims, func(*jwt.Token) (any, error) {
		return c.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeExpired, "qr payload expired")
		}
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid qr payload")
	}
	if _, err := id.ParseSessionID(claims.SessionID); err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid qr payload")
	}
	if _, err := id.ParseNonceID(claims.NonceID); err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid qr payload")
	}
	return claims, nil
}

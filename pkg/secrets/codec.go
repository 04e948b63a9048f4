package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// EncryptedPrefix marks a value sealed by Codec.
const EncryptedPrefix = "enc:v1:"

var ErrCodecNotConfigured = errors.New("secret codec is not configured")

// Codec seals and opens secret values with AES-256-GCM.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec derives the cipher key from material, which may be base64 encoded.
func NewCodec(material string) (*Codec, error) {
	material = strings.TrimSpace(material)
	if material == "" {
		return nil, ErrCodecNotConfigured
	}

	var sum [32]byte
	if decoded, err := base64.StdEncoding.DecodeString(material); err == nil && len(decoded) > 0 {
		sum = sha256.Sum256(decoded)
	} else {
		sum = sha256.Sum256([]byte(material))
	}

	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Codec{aead: aead}, nil
}

func (c *Codec) Encrypt(value string) (string, error) {
	if c == nil || c.aead == nil {
		return "", ErrCodecNotConfigured
	}

	if strings.TrimSpace(value) == "" || IsEncrypted(value) {
		return value, nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to read nonce: %w", err)
	}

	payload := c.aead.Seal(nonce, nonce, []byte(value), nil)

	return EncryptedPrefix + base64.StdEncoding.EncodeToString(payload), nil
}

// Decrypt opens a sealed value. Plain values are returned unchanged.
func (c *Codec) Decrypt(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}

	if c == nil || c.aead == nil {
		return "", ErrCodecNotConfigured
	}

	payload, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(strings.TrimSpace(value), EncryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode sealed value: %w", err)
	}

	nonceSize := c.aead.NonceSize()
	if len(payload) < nonceSize {
		return "", errors.New("sealed value is too short")
	}

	plaintext, err := c.aead.Open(nil, payload[:nonceSize], payload[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to open sealed value: %w", err)
	}

	return string(plaintext), nil
}

func IsEncrypted(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), EncryptedPrefix)
}

// Package secure provides the credential-protection crypto for the
// setup flow: an X25519 key agreement and an AES-256-GCM session over
// the derived key. Wifi credentials submitted while the device is in
// access-point mode travel through this even when the AP itself is open.
package secure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
)

const keySize = 32

// KeyPair is an X25519 key pair. The public half is safe to hand out
// base64-encoded via PublicKeyString.
type KeyPair struct {
	Public  []byte
	Private []byte
}

func NewKeyPair() (*KeyPair, error) {
	private := make([]byte, keySize)
	if _, err := rand.Read(private); err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	public, err := curve25519.X25519(private, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}

	return &KeyPair{Public: public, Private: private}, nil
}

func (kp *KeyPair) PublicKeyString() string {
	return base64.StdEncoding.EncodeToString(kp.Public)
}

// ParsePublicKey decodes a base64 peer public key.
func ParsePublicKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", keySize, len(key))
	}
	return key, nil
}

// Session is an AEAD channel keyed by the X25519 shared secret. Both
// sides construct an identical Session from their own private key and
// the peer's public key.
type Session struct {
	aead cipher.AEAD
}

func NewSession(privateKey, peerPublicKey []byte) (*Session, error) {
	shared, err := curve25519.X25519(privateKey, peerPublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to derive shared secret: %w", err)
	}

	// Hash the raw ECDH output into a uniformly distributed AES key
	key := sha256.Sum256(shared)

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Session{aead: aead}, nil
}

// Seal encrypts plaintext and returns base64([nonce || ciphertext]).
func (s *Session) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := s.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a payload produced by Seal on the peer side.
func (s *Session) Open(encoded string) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}

	nonceSize := s.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("payload too short")
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt payload: %w", err)
	}
	return plaintext, nil
}

// Package secretbox cifra los secretos de las conexiones (credenciales,
// tokens OAuth, sesiones serializadas) con AES-256-GCM.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	nonceSizeGCM      = 12  // AES-GCM nonce (96 bits)
	requiredKeyLength = 32  // AES-256
	sep               = "|" // base64(nonce)|base64(ciphertext)

	hkdfInfo = "fitlink/secretbox/v1"
)

var (
	ErrInvalidKey = errors.New("secretbox: key must be 32 bytes")
	ErrNoKey      = errors.New("secretbox: neither master key nor secret configured")
)

// Vault es el par encrypt/decrypt con una clave fija durante la vida del proceso.
type Vault struct {
	aead cipher.AEAD
}

// New construye un Vault con una clave cruda de 32 bytes.
func New(key []byte) (*Vault, error) {
	if len(key) != requiredKeyLength {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// NewFromSecret deriva la clave desde un secreto arbitrario con HKDF-SHA256.
func NewFromSecret(secret string) (*Vault, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrNoKey
	}
	key := make([]byte, requiredKeyLength)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("hkdf: %w", err)
	}
	return New(key)
}

// FromConfig prefiere la master key (base64, base64 raw o hex) y cae al secreto derivado.
func FromConfig(masterKey, secret string) (*Vault, error) {
	if strings.TrimSpace(masterKey) != "" {
		k, err := ParseKey(masterKey)
		if err != nil {
			return nil, err
		}
		return New(k)
	}
	return NewFromSecret(secret)
}

// ParseKey acepta base64 std, base64 sin padding o hex de 64 chars.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == requiredKeyLength {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil && len(b) == requiredKeyLength {
		return b, nil
	}
	if len(s) == 2*requiredKeyLength {
		if b, err := hex.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w (genere una con: openssl rand -base64 32)", ErrInvalidKey)
}

// Encrypt cifra plainText. "" cifra a "" para no guardar basura en columnas vacías.
func (v *Vault) Encrypt(plainText string) (string, error) {
	if plainText == "" {
		return "", nil
	}
	nonce := make([]byte, nonceSizeGCM)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce random: %w", err)
	}
	ct := v.aead.Seal(nil, nonce, []byte(plainText), nil)
	return base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt devuelve (plain, true) o ("", false) si el texto está vacío,
// malformado, fue alterado o se cifró con otra clave. No entra en pánico.
func (v *Vault) Decrypt(cipherText string) (string, bool) {
	if cipherText == "" {
		return "", false
	}
	nonceB64, ctB64, ok := strings.Cut(cipherText, sep)
	if !ok {
		return "", false
	}
	nonce, err := base64.StdEncoding.DecodeString(nonceB64)
	if err != nil || len(nonce) != nonceSizeGCM {
		return "", false
	}
	ct, err := base64.StdEncoding.DecodeString(ctB64)
	if err != nil {
		return "", false
	}
	pt, err := v.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", false
	}
	return string(pt), true
}

// MustEncrypt es para valores generados internamente donde un fallo de
// entropía no tiene recuperación razonable.
func (v *Vault) MustEncrypt(plainText string) string {
	s, err := v.Encrypt(plainText)
	if err != nil {
		panic(err)
	}
	return s
}

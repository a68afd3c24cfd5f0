package config

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

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/pbkdf2"
)

const encryptedPrefix = "enc:"

var ErrEncryptionDisabled = errors.New("encrypted value found but security.encryption_enabled is false")

// secretBox encrypts and decrypts "enc:" prefixed configuration values with AES-GCM
type secretBox struct {
	enabled bool
	key     []byte
}

func newSecretBox(sec *SecurityConfig, log *logrus.Logger) *secretBox {
	box := &secretBox{enabled: sec.EncryptionEnabled}
	if !box.enabled {
		return box
	}
	if sec.EncryptionKey == "" {
		log.Warning("Encryption enabled but no key provided, encrypted secrets cannot be read")
		box.enabled = false
		return box
	}
	box.key = deriveKey(sec.EncryptionKey)
	return box
}

// deriveKey stretches a passphrase into a 32-byte AES key
func deriveKey(passphrase string) []byte {
	salt := []byte("cobytes-scan-orchestrator-salt")
	return pbkdf2.Key([]byte(passphrase), salt, 4096, 32, sha256.New)
}

// decryptAll replaces every encrypted secret in cfg with its plaintext
func (b *secretBox) decryptAll(cfg *Config) error {
	fields := map[string]*string{
		"database.password":   &cfg.Database.Password,
		"auth.secret":         &cfg.Auth.Secret,
		"provider.api_key":    &cfg.Provider.APIKey,
		"events.postgres_dsn": &cfg.Events.PostgresDSN,
	}
	for name, ptr := range fields {
		if !strings.HasPrefix(*ptr, encryptedPrefix) {
			continue
		}
		plain, err := b.decrypt(*ptr)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*ptr = plain
	}
	return nil
}

func (b *secretBox) encrypt(value string) (string, error) {
	if value == "" || strings.HasPrefix(value, encryptedPrefix) {
		return value, nil
	}
	if !b.enabled {
		return "", ErrEncryptionDisabled
	}

	gcm, err := b.gcm()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(value), nil)
	return encryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func (b *secretBox) decrypt(value string) (string, error) {
	if !strings.HasPrefix(value, encryptedPrefix) {
		return value, nil
	}
	if !b.enabled {
		return "", ErrEncryptionDisabled
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, encryptedPrefix))
	if err != nil {
		return "", err
	}
	gcm, err := b.gcm()
	if err != nil {
		return "", err
	}
	if len(raw) < gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func (b *secretBox) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(b.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncryptSecret encrypts value with passphrase so it can be placed in a config file
func EncryptSecret(passphrase, value string) (string, error) {
	box := &secretBox{enabled: true, key: deriveKey(passphrase)}
	return box.encrypt(value)
}

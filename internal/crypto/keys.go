// Package crypto resolves the secp256k1 private key used to sign on-chain
// transactions. The key comes either from a raw hex string (typically an
// environment variable) or from a password-encrypted key file on disk.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	currentVersion   = 1
)

// encryptedKeyJSON is the on-disk format for an encrypted private key.
type encryptedKeyJSON struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`       // base64 standard encoding
	Nonce      string `json:"nonce"`      // base64 standard encoding
	Ciphertext string `json:"ciphertext"` // base64 standard encoding
}

// KeyConfig carries the information LoadKey needs to resolve a private key.
type KeyConfig struct {
	// RawPrivateKey is the hex-encoded key, with or without 0x prefix. If
	// non-empty it wins over the encrypted file.
	RawPrivateKey string

	// EncryptedKeyPath is the path to a JSON file produced by EncryptKey.
	EncryptedKeyPath string

	// KeyPassword decrypts the file at EncryptedKeyPath.
	KeyPassword string
}

// EncryptKey encrypts a hex-encoded 32-byte private key with a password
// using PBKDF2-HMAC-SHA256 derivation and AES-256-GCM, returning the JSON
// blob to store on disk.
func EncryptKey(privateKeyHex, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}

	keyBytes, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key hex: %w", err)
	}
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("crypto: expected 32-byte key, got %d bytes", len(keyBytes))
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	out := encryptedKeyJSON{
		Version:    currentVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, keyBytes, nil)),
	}
	return json.MarshalIndent(out, "", "  ")
}

// DecryptKey reverses EncryptKey, returning the hex-encoded private key
// without 0x prefix.
func DecryptKey(encryptedJSON []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto: password must not be empty")
	}

	var stored encryptedKeyJSON
	if err := json.Unmarshal(encryptedJSON, &stored); err != nil {
		return "", fmt.Errorf("crypto: parsing encrypted key JSON: %w", err)
	}
	if stored.Version != currentVersion {
		return "", fmt.Errorf("crypto: unsupported version %d", stored.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(stored.Nonce)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(stored.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding ciphertext: %w", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return "", err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: decryption failed (wrong password?): %w", err)
	}
	return hex.EncodeToString(plaintext), nil
}

// LoadKey resolves a private key: raw key first, then the encrypted file.
func LoadKey(cfg KeyConfig) (string, error) {
	if cfg.RawPrivateKey != "" {
		k := strings.TrimPrefix(cfg.RawPrivateKey, "0x")
		if _, err := hex.DecodeString(k); err != nil {
			return "", fmt.Errorf("crypto: RawPrivateKey is not valid hex: %w", err)
		}
		return k, nil
	}

	if cfg.EncryptedKeyPath != "" {
		data, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return "", fmt.Errorf("crypto: reading encrypted key file: %w", err)
		}
		return DecryptKey(data, cfg.KeyPassword)
	}

	return "", errors.New("crypto: no private key source configured (set RawPrivateKey or EncryptedKeyPath)")
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	derived := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	return gcm, nil
}

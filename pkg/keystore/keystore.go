// Package keystore implements password-based at-rest protection for an
// agent's private key (spec §4.3): scrypt key derivation plus an
// AEAD cipher, with a separate MAC checked before decryption is even
// attempted. Grounded on the teacher's pkg/agent/crypto/vault.FileVault
// (same encrypt-to-a-JSON-envelope, write-with-0600-permissions shape),
// generalized from PBKDF2+plain-GCM to the spec's scrypt+MAC-then-AEAD
// scheme.
package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/crypto/scrypt"
)

// Scrypt parameters fixed by spec §4.3.
const (
	scryptN       = 262144
	scryptR       = 8
	scryptP       = 1
	derivedKeyLen = 32
	saltLen       = 32
	ivLen         = 16
)

const version = "1"

// KDFParams records the scrypt parameters a file was sealed with, so a
// future parameter change never breaks existing files.
type KDFParams struct {
	N     int `json:"n"`
	R     int `json:"r"`
	P     int `json:"p"`
	DKLen int `json:"dklen"`
}

// File is the persisted envelope (spec §4.3's field list).
type File struct {
	Version       string    `json:"version"`
	Cipher        string    `json:"cipher"`
	KDF           string    `json:"kdf"`
	KDFParams     KDFParams `json:"kdfparams"`
	SaltHex       string    `json:"salt_hex"`
	CiphertextHex string    `json:"ciphertext_hex"`
	MAC           string    `json:"mac"`
	ID            string    `json:"id"`
	AgentID       string    `json:"agent_id"`
}

// Seal encrypts privateKeyHex under password, tagging the file with
// agentID and a fresh id. The AEAD tag (appended by Seal) and the
// separate MAC together reject both corruption and a wrong password.
func Seal(password, privateKeyHex, agentID, id string) (*File, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("keystore: generate salt: %w", err)
	}

	derived, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, derivedKeyLen)
	if err != nil {
		return nil, fmt.Errorf("keystore: derive key: %w", err)
	}
	encKey, macKey := derived[:16], derived[16:]

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("keystore: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("keystore: new gcm: %w", err)
	}

	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("keystore: generate iv: %w", err)
	}
	// AES-GCM's nonce is 12 bytes; the spec's IV is 16. The leading 12
	// bytes serve as the nonce, and the full 16 are persisted and
	// covered by the MAC so truncation is itself tamper-evident.
	sealed := gcm.Seal(nil, iv[:12], []byte(privateKeyHex), nil)

	// "authTag and IV appended at tail": Seal already appended the tag
	// to sealed; the IV is appended after it.
	combined := append(append([]byte{}, sealed...), iv...)

	mac := computeMAC(macKey, combined)

	return &File{
		Version:       version,
		Cipher:        "aes-128-gcm",
		KDF:           "scrypt",
		KDFParams:     KDFParams{N: scryptN, R: scryptR, P: scryptP, DKLen: derivedKeyLen},
		SaltHex:       hex.EncodeToString(salt),
		CiphertextHex: hex.EncodeToString(combined),
		MAC:           mac,
		ID:            id,
		AgentID:       agentID,
	}, nil
}

// Open reverses Seal, returning the hex-encoded private key. The MAC
// is checked in constant time before any AEAD decryption is attempted.
func Open(password string, f *File) (string, error) {
	if f.Version != version {
		return "", fmt.Errorf("keystore: unsupported version %q", f.Version)
	}
	if f.KDF != "scrypt" {
		return "", fmt.Errorf("keystore: unsupported kdf %q", f.KDF)
	}

	salt, err := hex.DecodeString(f.SaltHex)
	if err != nil {
		return "", fmt.Errorf("keystore: decode salt: %w", err)
	}
	combined, err := hex.DecodeString(f.CiphertextHex)
	if err != nil {
		return "", fmt.Errorf("keystore: decode ciphertext: %w", err)
	}
	if len(combined) < ivLen {
		return "", fmt.Errorf("keystore: ciphertext too short")
	}

	derived, err := scrypt.Key([]byte(password), salt, f.KDFParams.N, f.KDFParams.R, f.KDFParams.P, f.KDFParams.DKLen)
	if err != nil {
		return "", fmt.Errorf("keystore: derive key: %w", err)
	}
	encKey, macKey := derived[:16], derived[16:]

	if !macEqual(computeMAC(macKey, combined), f.MAC) {
		return "", fmt.Errorf("keystore: mac mismatch, wrong password or corrupted file")
	}

	iv := combined[len(combined)-ivLen:]
	sealed := combined[:len(combined)-ivLen]

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return "", fmt.Errorf("keystore: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("keystore: new gcm: %w", err)
	}

	plaintext, err := gcm.Open(nil, iv[:12], sealed, nil)
	if err != nil {
		return "", fmt.Errorf("keystore: decrypt: %w", err)
	}
	return string(plaintext), nil
}

func computeMAC(macKey, combined []byte) string {
	h := sha256.New()
	h.Write(macKey)
	h.Write(combined)
	return hex.EncodeToString(h.Sum(nil))
}

func macEqual(computed, stored string) bool {
	a, err1 := hex.DecodeString(computed)
	b, err2 := hex.DecodeString(stored)
	if err1 != nil || err2 != nil || len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// SaveToFile writes f as indented JSON to path with owner-only
// permissions, the way the teacher's FileVault restricts key files.
func SaveToFile(path string, f *File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("keystore: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// LoadFromFile reads and parses a keystore file written by SaveToFile.
func LoadFromFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keystore: read: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("keystore: unmarshal: %w", err)
	}
	return &f, nil
}

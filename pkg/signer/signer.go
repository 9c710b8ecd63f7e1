// Package signer provides the Ed25519 sign/verify primitives and the
// SHA-256 hashing helper the rest of the trust core builds on (spec
// §4.2). It intentionally exposes free functions rather than a struct
// with stored keys: every caller already has the key material (agents
// sign locally, the ledger holds only public keys), and Generate hands
// a fresh key pair back to its caller without retaining it.
package signer

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

const (
	// PublicKeySize is the required length of an Ed25519 public key.
	PublicKeySize = ed25519.PublicKeySize
	// PrivateKeySize is the length of an Ed25519 private key.
	PrivateKeySize = ed25519.PrivateKeySize
	// SignatureSize is the required length of an Ed25519 signature.
	SignatureSize = ed25519.SignatureSize
)

// Generate creates a fresh Ed25519 key pair.
func Generate() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("signer: generate key pair: %w", err)
	}
	return pub, priv, nil
}

// Sign signs canonicalBytes with priv, returning a 64-byte signature.
func Sign(canonicalBytes []byte, priv ed25519.PrivateKey) ([]byte, error) {
	if len(priv) != PrivateKeySize {
		return nil, fmt.Errorf("signer: private key must be %d bytes, got %d", PrivateKeySize, len(priv))
	}
	return ed25519.Sign(priv, canonicalBytes), nil
}

// Verify reports whether sig is a valid Ed25519 signature of
// canonicalBytes under pub. ed25519.Verify is constant-time with
// respect to the signature and message bytes by construction.
func Verify(sig, canonicalBytes []byte, pub ed25519.PublicKey) bool {
	if len(pub) != PublicKeySize || len(sig) != SignatureSize {
		return false
	}
	return ed25519.Verify(pub, canonicalBytes, sig)
}

// SHA256Hex returns the lowercase-hex SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SHA256 returns the raw 32-byte SHA-256 digest of data.
func SHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// ConstantTimeEqualHex compares two lowercase-hex strings in constant
// time with respect to their byte content. Used for service-key
// comparisons where timing must not leak a partial match.
func ConstantTimeEqualHex(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// DecodeHexKey decodes a lowercase hex-encoded Ed25519 public key and
// validates its length is exactly PublicKeySize bytes.
func DecodeHexKey(hexKey string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("signer: invalid hex public key: %w", err)
	}
	if len(raw) != PublicKeySize {
		return nil, fmt.Errorf("signer: public key must be %d bytes, got %d", PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// AgentID derives the trust core's agent identifier: the lowercase-hex
// SHA-256 digest of the raw public key bytes (spec §3, §4.8).
func AgentID(pub ed25519.PublicKey) string {
	return SHA256Hex(pub)
}

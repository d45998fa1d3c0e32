// Package keypair implements the KeyPair collaborator isocore's Merkle
// signature layer needs: Ed25519 sign/verify, Argon2id password
// derivation, and Blake3 content hashing. The X25519 key exchange and
// XChaCha20-Poly1305 encryption-at-rest methods the original key
// material also offered are out of scope here — they belong to a
// different, encrypted-transport collaborator this store never calls.
package keypair

import (
	"crypto/ed25519"
	"crypto/rand"

	"golang.org/x/crypto/argon2"
	"lukechampine.com/blake3"
)

// Argon2id parameters for DeriveFromPassword, chosen to match the
// OWASP-recommended minimum for interactive login-time derivation.
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024 // KiB
	argon2Threads = 4
)

// KeyPair holds an Ed25519 key pair.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// Signature is a fixed-size Ed25519 signature.
type Signature [ed25519.SignatureSize]byte

// Hash returns the Blake3-256 digest of message.
func Hash(message []byte) [32]byte {
	return blake3.Sum256(message)
}

// Generate creates a new random key pair.
func Generate() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{Public: pub, Private: priv}, nil
}

// DeriveFromPassword derives a deterministic key pair from a
// low-entropy password and a caller-supplied salt via Argon2id.
func DeriveFromPassword(salt, password []byte) KeyPair {
	seed := argon2.IDKey(password, salt, argon2Time, argon2Memory, argon2Threads, ed25519.SeedSize)
	priv := ed25519.NewKeyFromSeed(seed)
	return KeyPair{Public: priv.Public().(ed25519.PublicKey), Private: priv}
}

// Sign signs message with the key pair's private key.
func (k KeyPair) Sign(message []byte) Signature {
	raw := ed25519.Sign(k.Private, message)
	var sig Signature
	copy(sig[:], raw)
	return sig
}

// Verify reports whether sig is a valid signature of message under pub.
func Verify(pub ed25519.PublicKey, message []byte, sig Signature) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, message, sig[:])
}

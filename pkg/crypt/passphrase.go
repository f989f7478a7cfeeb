package crypt

import (
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"

	"github.com/evgeniums/hatn-sub006/pkg/herr"
)

// KDF selects the passphrase-to-key derivation used by SealWithPassphrase.
type KDF int

const (
	PBKDF2 KDF = iota
	SCrypt
)

const (
	pbkdf2Iterations = 200_000
	scryptN          = 1 << 15
	scryptR          = 8
	scryptP          = 1
	kdfSaltSize      = 16
)

// SealWithPassphrase derives a 32-byte AES-256 key from passphrase using
// kdf and seals plaintext as a chunked container, per spec.md §4.6's
// "session tickets and account config blobs are sealed with the same
// container format but keyed from a passphrase via PBKDF2/SCrypt".
//
// A 1-byte KDF tag and the 16-byte derivation salt are written as a
// prefix before the container itself, since the container's own
// Descriptor.Salt is for per-chunk HKDF keys, not the passphrase KDF.
func SealWithPassphrase(w io.Writer, passphrase string, kdf KDF, plaintext []byte) error {
	salt := make([]byte, kdfSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return herr.Wrap(herr.Fatal, "generate passphrase kdf salt", err)
	}
	key, err := deriveKey(passphrase, salt, kdf)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte{byte(kdf)}); err != nil {
		return herr.Wrap(herr.Transient, "write kdf tag", err)
	}
	if _, err := w.Write(salt); err != nil {
		return herr.Wrap(herr.Transient, "write kdf salt", err)
	}
	return Seal(w, key, plaintext)
}

// OpenWithPassphrase reverses SealWithPassphrase.
func OpenWithPassphrase(r io.Reader, passphrase string) ([]byte, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return nil, herr.Wrap(herr.InvalidInput, "read kdf tag", err)
	}
	salt := make([]byte, kdfSaltSize)
	if _, err := io.ReadFull(r, salt); err != nil {
		return nil, herr.Wrap(herr.InvalidInput, "read kdf salt", err)
	}
	key, err := deriveKey(passphrase, salt, KDF(tag[0]))
	if err != nil {
		return nil, err
	}
	return Open(r, key)
}

func deriveKey(passphrase string, salt []byte, kdf KDF) ([]byte, error) {
	switch kdf {
	case PBKDF2:
		return pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, keySize, sha256.New), nil
	case SCrypt:
		key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, keySize)
		if err != nil {
			return nil, herr.Wrap(herr.Fatal, "scrypt key derivation", err)
		}
		return key, nil
	default:
		return nil, herr.New(herr.InvalidInput, "unknown kdf")
	}
}

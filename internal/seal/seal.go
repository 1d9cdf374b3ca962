// Package seal encrypts values at rest for persistent backends.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

// Block modes accepted in KeyParams.BlockMode.
const (
	BlockModeGCM      = "GCM"
	BlockModeChaCha20 = "CHACHA20-POLY1305"
)

// PaddingNone is the only padding valid for AEAD block modes.
const PaddingNone = "NoPadding"

// SaltSize is the size of the random salt persisted next to sealed data.
const SaltSize = 16

var (
	// ErrOpen is returned when a ciphertext was modified or sealed with another key.
	ErrOpen = errors.New("wrong passphrase or corrupted value")
	// ErrUnsupportedParams is returned for key parameters no cipher can honor.
	ErrUnsupportedParams = errors.New("unsupported key parameters")
)

// KeyParams carries the key generation parameters of a store.
type KeyParams struct {
	Alias     string
	Padding   string
	BlockMode string
	KeySize   int // bits
}

// DefaultKeyParams mirrors the defaults of an encrypted preferences file.
func DefaultKeyParams() KeyParams {
	return KeyParams{
		Alias:     "keyStoreAlias",
		Padding:   PaddingNone,
		BlockMode: BlockModeGCM,
		KeySize:   256,
	}
}

// Sealer encrypts and authenticates values. The associated data binds a
// ciphertext to its slot, so a value cannot be moved to another key.
type Sealer interface {
	Seal(plaintext, associated []byte) ([]byte, error)
	Open(ciphertext, associated []byte) ([]byte, error)
}

type aeadSealer struct {
	aead cipher.AEAD
}

// Tunables for scrypt key derivation.
func scryptParamsDefault() (N, r, p int) { return 1 << 15, 8, 1 }

// NewSalt returns a fresh random salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// NewPassphraseSealer derives a key from passphrase, salt and the alias and
// builds the cipher selected by params.
func NewPassphraseSealer(passphrase string, salt []byte, params KeyParams) (Sealer, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	N, r, p := scryptParamsDefault()
	// The alias is mixed into the salt so one passphrase yields distinct keys per alias.
	mixed := append(append([]byte{}, salt...), []byte(params.Alias)...)
	key, err := scrypt.Key([]byte(passphrase), mixed, N, r, p, params.KeySize/8)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return NewKeySealer(key, params)
}

// NewKeySealer builds a Sealer from raw key material.
func NewKeySealer(key []byte, params KeyParams) (Sealer, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if len(key)*8 != params.KeySize {
		return nil, fmt.Errorf("%w: key is %d bits, want %d", ErrUnsupportedParams, len(key)*8, params.KeySize)
	}

	var (
		aead cipher.AEAD
		err  error
	)
	switch strings.ToUpper(params.BlockMode) {
	case BlockModeGCM:
		var block cipher.Block
		block, err = aes.NewCipher(key)
		if err == nil {
			aead, err = cipher.NewGCM(block)
		}
	case BlockModeChaCha20:
		aead, err = chacha20poly1305.NewX(key)
	}
	if err != nil {
		return nil, err
	}
	return &aeadSealer{aead: aead}, nil
}

func (p KeyParams) validate() error {
	if p.Padding != "" && !strings.EqualFold(p.Padding, PaddingNone) {
		return fmt.Errorf("%w: padding %q with an AEAD mode", ErrUnsupportedParams, p.Padding)
	}
	switch strings.ToUpper(p.BlockMode) {
	case BlockModeGCM:
		if p.KeySize != 128 && p.KeySize != 192 && p.KeySize != 256 {
			return fmt.Errorf("%w: AES key size %d", ErrUnsupportedParams, p.KeySize)
		}
	case BlockModeChaCha20:
		if p.KeySize != chacha20poly1305.KeySize*8 {
			return fmt.Errorf("%w: ChaCha20 key size %d", ErrUnsupportedParams, p.KeySize)
		}
	default:
		return fmt.Errorf("%w: block mode %q", ErrUnsupportedParams, p.BlockMode)
	}
	return nil
}

// Seal returns nonce || ciphertext.
func (s *aeadSealer) Seal(plaintext, associated []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, plaintext, associated), nil
}

// Open reverses Seal.
func (s *aeadSealer) Open(ciphertext, associated []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(ciphertext) < n+s.aead.Overhead() {
		return nil, ErrOpen
	}
	pt, err := s.aead.Open(nil, ciphertext[:n], ciphertext[n:], associated)
	if err != nil {
		return nil, ErrOpen
	}
	return pt, nil
}

// Plain is a Sealer that stores values unencrypted. Useful for tests and
// for inspecting databases during development.
type Plain struct{}

// Seal implements Sealer.
func (Plain) Seal(plaintext, _ []byte) ([]byte, error) { return append([]byte{}, plaintext...), nil }

// Open implements Sealer.
func (Plain) Open(ciphertext, _ []byte) ([]byte, error) { return append([]byte{}, ciphertext...), nil }

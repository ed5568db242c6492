// Package password is the pluggable hashing collaborator. The default
// implementation is Argon2id with the parameters encoded alongside the hash,
// so parameter changes only affect newly hashed passwords.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Hasher is the narrow interface the credential lifecycle depends on.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

var (
	ErrInvalidHashFormat    = errors.New("invalid password hash format")
	ErrIncompatibleVersion  = errors.New("incompatible argon2 version")
	ErrUnsupportedAlgorithm = errors.New("unsupported hash algorithm")
)

// Params holds the Argon2id cost parameters.
type Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams returns the recommended cost parameters.
func DefaultParams() Params {
	return Params{
		Memory:      64 * 1024, // 64MB
		Iterations:  3,
		Parallelism: 4,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Argon2Hasher hashes with Argon2id.
type Argon2Hasher struct {
	params Params
}

var _ Hasher = (*Argon2Hasher)(nil)

// NewArgon2Hasher returns a hasher with the given cost parameters.
func NewArgon2Hasher(params Params) *Argon2Hasher {
	return &Argon2Hasher{params: params}
}

// Hash derives an Argon2id hash over password with a fresh random salt and
// encodes parameters, salt, and digest into a single string.
func (h *Argon2Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	hash := argon2.IDKey(
		[]byte(password),
		salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Iterations,
		h.params.Parallelism,
		b64Salt,
		b64Hash,
	)
	return encoded, nil
}

// Verify re-derives the hash using the parameters embedded in encodedHash
// and compares in constant time.
func (h *Argon2Hasher) Verify(password, encodedHash string) (bool, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false, ErrInvalidHashFormat
	}
	if parts[1] != "argon2id" {
		return false, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidHashFormat, err)
	}
	if version != argon2.Version {
		return false, ErrIncompatibleVersion
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidHashFormat, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidHashFormat, err)
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidHashFormat, err)
	}

	checkHash := argon2.IDKey(
		[]byte(password),
		salt,
		iterations,
		memory,
		parallelism,
		uint32(len(hash)),
	)
	return subtle.ConstantTimeCompare(hash, checkHash) == 1, nil
}

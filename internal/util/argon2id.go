package util

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const passwordSaltLen = 16

// ErrInvalidPasswordHash is returned when an encoded hash cannot be parsed.
var ErrInvalidPasswordHash = errors.New("invalid argon2id password hash")

type Argon2idParams struct {
	Time        uint32 `json:"time"`
	MemoryKiB   uint32 `json:"memory"`
	Parallelism uint8  `json:"parallelism"`
	KeyLen      uint32 `json:"key_len"`
}

func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		Time:        3,
		MemoryKiB:   64 * 1024,
		Parallelism: 4,
		KeyLen:      32,
	}
}

func ValidateArgon2idParams(p Argon2idParams) error {
	if p.KeyLen != 32 {
		return fmt.Errorf("argon2id key length must be 32 bytes")
	}
	if p.Time < 1 {
		return fmt.Errorf("argon2id time must be at least 1")
	}
	if p.MemoryKiB < 8*uint32(p.Parallelism) || p.MemoryKiB == 0 {
		return fmt.Errorf("argon2id memory must be at least 8 KiB per lane")
	}
	if p.Parallelism < 1 {
		return fmt.Errorf("argon2id parallelism must be at least 1")
	}
	return nil
}

func DeriveArgon2idKey(passphrase string, salt []byte, params Argon2idParams) ([]byte, error) {
	if err := ValidateArgon2idParams(params); err != nil {
		return nil, err
	}
	key := argon2.IDKey([]byte(passphrase), salt, params.Time, params.MemoryKiB, params.Parallelism, params.KeyLen)
	return key, nil
}

func CompareArgon2idKey(passphrase string, salt []byte, params Argon2idParams, expectedKey []byte) (bool, error) {
	key, err := DeriveArgon2idKey(passphrase, salt, params)
	if err != nil {
		return false, err
	}
	defer WipeBytes(key)
	return subtle.ConstantTimeCompare(key, expectedKey) == 1, nil
}

// HashPassword derives an argon2id key for password under a fresh random salt
// and returns it in the PHC string format:
//
//	$argon2id$v=19$m=65536,t=3,p=4$<salt>$<key>
func HashPassword(password string, params Argon2idParams) (string, error) {
	salt, err := RandomBytes(passwordSaltLen)
	if err != nil {
		return "", err
	}
	key, err := DeriveArgon2idKey(password, salt, params)
	if err != nil {
		return "", err
	}
	defer WipeBytes(key)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, params.MemoryKiB, params.Time, params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

// VerifyPassword reports whether password matches an encoded hash produced
// by HashPassword. A malformed hash is an error, a wrong password is not.
func VerifyPassword(password, encoded string) (bool, error) {
	params, salt, key, err := parsePasswordHash(encoded)
	if err != nil {
		return false, err
	}
	return CompareArgon2idKey(password, salt, params, key)
}

func parsePasswordHash(encoded string) (Argon2idParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Argon2idParams{}, nil, nil, ErrInvalidPasswordHash
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return Argon2idParams{}, nil, nil, fmt.Errorf("%w: unsupported version", ErrInvalidPasswordHash)
	}
	var p Argon2idParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.MemoryKiB, &p.Time, &p.Parallelism); err != nil {
		return Argon2idParams{}, nil, nil, fmt.Errorf("%w: bad parameters", ErrInvalidPasswordHash)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Argon2idParams{}, nil, nil, fmt.Errorf("%w: bad salt", ErrInvalidPasswordHash)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return Argon2idParams{}, nil, nil, fmt.Errorf("%w: bad key", ErrInvalidPasswordHash)
	}
	p.KeyLen = uint32(len(key))
	if err := ValidateArgon2idParams(p); err != nil {
		return Argon2idParams{}, nil, nil, fmt.Errorf("%w: %v", ErrInvalidPasswordHash, err)
	}
	return p, salt, key, nil
}

package localauth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	algorithmID    = "argon2id"
	minPasswordLen = 8
	minSaltLength  = 16
	minKeyLength   = 16
	minMemoryKiB   = 8 * 1024
	defaultMemory  = 64 * 1024
	defaultTime    = 3
	defaultThreads = 2
	defaultSaltLen = 16
	defaultKeyLen  = 32
)

// ErrMalformedHash is returned when a stored hash is not an argon2id PHC string.
var ErrMalformedHash = errors.New("malformed password hash")

// HashParams tunes argon2id. Zero fields take the defaults.
type HashParams struct {
	Memory  uint32 // KiB
	Time    uint32
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

func (p HashParams) withDefaults() HashParams {
	if p.Memory < minMemoryKiB {
		p.Memory = defaultMemory
	}
	if p.Time == 0 {
		p.Time = defaultTime
	}
	if p.Threads == 0 {
		p.Threads = defaultThreads
	}
	if p.SaltLen < minSaltLength {
		p.SaltLen = defaultSaltLen
	}
	if p.KeyLen < minKeyLength {
		p.KeyLen = defaultKeyLen
	}
	return p
}

// HashPassword returns an argon2id hash in PHC string form:
// $argon2id$v=19$m=65536,t=3,p=2$<salt>$<key>.
func HashPassword(password string, params HashParams) (string, error) {
	if len(password) < minPasswordLen {
		return "", fmt.Errorf("password must be at least %d bytes", minPasswordLen)
	}
	p := params.withDefaults()

	salt := make([]byte, p.SaltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, p.KeyLen)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version, p.Memory, p.Time, p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword reports whether password matches the PHC-encoded hash.
func VerifyPassword(password, encoded string) (bool, error) {
	phc, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	key := argon2.IDKey([]byte(password), phc.salt, phc.time, phc.memory, phc.threads, uint32(len(phc.key)))
	return subtle.ConstantTimeCompare(key, phc.key) == 1, nil
}

type phcHash struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

func parsePHC(encoded string) (*phcHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return nil, ErrMalformedHash
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return nil, fmt.Errorf("%w: unsupported version %q", ErrMalformedHash, parts[2])
	}

	var h phcHash
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.memory, &h.time, &h.threads); err != nil {
		return nil, fmt.Errorf("%w: params: %w", ErrMalformedHash, err)
	}
	if h.memory < minMemoryKiB || h.time == 0 || h.threads == 0 {
		return nil, fmt.Errorf("%w: params out of range", ErrMalformedHash)
	}

	var err error
	if h.salt, err = decodeB64(parts[4]); err != nil || len(h.salt) < minSaltLength {
		return nil, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	if h.key, err = decodeB64(parts[5]); err != nil || len(h.key) < minKeyLength {
		return nil, fmt.Errorf("%w: key", ErrMalformedHash)
	}
	return &h, nil
}

// decodeB64 accepts both padded and unpadded standard base64.
func decodeB64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

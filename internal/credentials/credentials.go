// Package credentials derives and verifies password records.
//
// A record is a single string of the form
//
//	pbkdf2-sha256$<iterations>$<salt>$<key>
//
// with salt and derived key base64-encoded. The iteration count is part of the
// record, so DefaultIterations can be raised over time without invalidating
// hashes that were written with a lower count.
package credentials

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	scheme = "pbkdf2-sha256"

	// DefaultIterations is used for newly hashed passwords.
	DefaultIterations = 100_000

	saltLength = 16
	keyLength  = 32
)

// Hash derives a new credential record for the given password using a fresh
// random salt. The caller persists the returned record.
func Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("credentials: password is empty")
	}
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("credentials: generate salt: %w", err)
	}
	return encode(password, salt, DefaultIterations), nil
}

// HashWithIterations is Hash with an explicit iteration count. Useful for
// producing records under older parameters, e.g. in upgrade tests.
func HashWithIterations(password string, iterations int) (string, error) {
	if password == "" {
		return "", errors.New("credentials: password is empty")
	}
	if iterations <= 0 {
		return "", errors.New("credentials: iteration count must be positive")
	}
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("credentials: generate salt: %w", err)
	}
	return encode(password, salt, iterations), nil
}

// Verify reports whether password matches the stored record. Malformed records
// verify as false; no detail about the failure is reported to the caller.
func Verify(password, record string) bool {
	iterations, salt, key, err := decode(record)
	if err != nil {
		return false
	}
	derived := pbkdf2.Key([]byte(password), salt, iterations, len(key), sha256.New)
	return subtle.ConstantTimeCompare(derived, key) == 1
}

// NeedsRehash reports whether the record was derived with weaker parameters
// than the current defaults. Login paths use this to upgrade records in place
// after a successful verification.
func NeedsRehash(record string) bool {
	iterations, _, key, err := decode(record)
	if err != nil {
		return true
	}
	return iterations < DefaultIterations || len(key) < keyLength
}

func encode(password string, salt []byte, iterations int) string {
	key := pbkdf2.Key([]byte(password), salt, iterations, keyLength, sha256.New)
	return fmt.Sprintf("%s$%d$%s$%s",
		scheme,
		iterations,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
}

func decode(record string) (iterations int, salt, key []byte, err error) {
	parts := strings.Split(record, "$")
	if len(parts) != 4 || parts[0] != scheme {
		return 0, nil, nil, errors.New("credentials: malformed record")
	}
	iterations, err = strconv.Atoi(parts[1])
	if err != nil || iterations <= 0 {
		return 0, nil, nil, errors.New("credentials: malformed iteration count")
	}
	salt, err = base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil || len(salt) == 0 {
		return 0, nil, nil, errors.New("credentials: malformed salt")
	}
	key, err = base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil || len(key) == 0 {
		return 0, nil, nil, errors.New("credentials: malformed key")
	}
	return iterations, salt, key, nil
}

// Package license checks premium license keys.
//
// A key has the form SST-AAAAA-BBBBB-CCCCC, where CCCCC is the first five
// upper-case hex digits of SHA-256("SST" + AAAAA + BBBBB). The check only
// gates optional features; it is not access control and anybody can
// compute a valid key.
package license

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Prefix starts every key.
const Prefix = "SST"

const checksumLen = 5

var keyFormat = regexp.MustCompile(`^SST-[A-Z0-9]{5}-[A-Z0-9]{5}-[A-Z0-9]{5}$`)

var (
	// ErrInvalidFormat is returned for keys not shaped like
	// SST-XXXXX-XXXXX-XXXXX.
	ErrInvalidFormat = errors.New("invalid license key format")

	// ErrChecksumMismatch is returned when the checksum segment is wrong.
	ErrChecksumMismatch = errors.New("invalid license key")
)

// Validate checks the format and checksum of key.
func Validate(key string) error {
	key = strings.TrimSpace(key)
	if !keyFormat.MatchString(key) {
		return ErrInvalidFormat
	}
	parts := strings.Split(key, "-")
	if parts[3] != checksum(parts[0]+parts[1]+parts[2]) {
		return ErrChecksumMismatch
	}
	return nil
}

// Premium reports whether key unlocks premium features. An empty key is
// a basic session.
func Premium(key string) bool {
	return key != "" && Validate(key) == nil
}

// Generate builds a valid key from two five-character segments of
// upper-case letters and digits.
func Generate(first, second string) (string, error) {
	key := fmt.Sprintf("%s-%s-%s-%s", Prefix, first, second, checksum(Prefix+first+second))
	if !keyFormat.MatchString(key) {
		return "", ErrInvalidFormat
	}
	return key, nil
}

func checksum(data string) string {
	sum := sha256.Sum256([]byte(data))
	return strings.ToUpper(hex.EncodeToString(sum[:]))[:checksumLen]
}

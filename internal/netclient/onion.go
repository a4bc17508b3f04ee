package netclient

import (
	"encoding/base32"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/crypto/sha3"
)

const onionSuffix = ".onion"

// v3 onion host: base32(pubkey[32] || checksum[2] || version[1]).
const (
	onionV3Length  = 56
	onionV3Version = 0x03
)

var onionChecksumPrefix = []byte(".onion checksum")

// IsOnion reports whether rawURL points at a .onion host.
func IsOnion(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Hostname()), onionSuffix)
}

// ValidateOnion checks that the host of rawURL is a well-formed v3 onion
// address, including its checksum. Subdomains of the service are allowed.
// Deprecated v2 addresses are rejected because Tor no longer serves them.
func ValidateOnion(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOnionAddress, err) //nolint:errorlint // parse detail only
	}
	host := strings.ToLower(u.Hostname())
	if !strings.HasSuffix(host, onionSuffix) {
		return fmt.Errorf("%w: %q is not an onion host", ErrInvalidOnionAddress, host)
	}

	labels := strings.Split(strings.TrimSuffix(host, onionSuffix), ".")
	service := labels[len(labels)-1]
	switch len(service) {
	case onionV3Length:
	case 16:
		return fmt.Errorf("%w: %q is a v2 address, which Tor no longer supports", ErrInvalidOnionAddress, host)
	default:
		return fmt.Errorf("%w: %q has the wrong length", ErrInvalidOnionAddress, host)
	}

	decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(service))
	if err != nil || len(decoded) != 35 {
		return fmt.Errorf("%w: %q is not base32", ErrInvalidOnionAddress, host)
	}
	pubkey, checksum, version := decoded[:32], decoded[32:34], decoded[34]
	if version != onionV3Version {
		return fmt.Errorf("%w: %q has version %d", ErrInvalidOnionAddress, host, version)
	}
	want := onionChecksum(pubkey, version)
	if checksum[0] != want[0] || checksum[1] != want[1] {
		return fmt.Errorf("%w: %q has a bad checksum", ErrInvalidOnionAddress, host)
	}
	return nil
}

// onionChecksum is SHA3-256(".onion checksum" || pubkey || version)[:2].
func onionChecksum(pubkey []byte, version byte) []byte {
	data := make([]byte, 0, len(onionChecksumPrefix)+len(pubkey)+1)
	data = append(data, onionChecksumPrefix...)
	data = append(data, pubkey...)
	data = append(data, version)
	sum := sha3.Sum256(data)
	return sum[:2]
}

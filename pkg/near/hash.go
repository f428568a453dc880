package near

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// HashLen is the size of a CryptoHash in bytes.
const HashLen = 32

// ErrInvalidHash is returned when a hash is not base58 or has the wrong length.
var ErrInvalidHash = errors.New("invalid crypto hash")

// CryptoHash identifies blocks, transactions and receipts. Its text form is
// base58.
type CryptoHash [HashLen]byte

// ParseCryptoHash decodes a base58 encoded hash.
func ParseCryptoHash(s string) (CryptoHash, error) {
	var h CryptoHash
	raw, err := base58.Decode(s)
	if err != nil {
		return h, fmt.Errorf("%w: %q: %v", ErrInvalidHash, s, err)
	}
	if len(raw) != HashLen {
		return h, fmt.Errorf("%w: %q decodes to %d bytes", ErrInvalidHash, s, len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

// MustParseCryptoHash is like ParseCryptoHash but panics on error. For tests
// and constants.
func MustParseCryptoHash(s string) CryptoHash {
	h, err := ParseCryptoHash(s)
	if err != nil {
		panic(err)
	}
	return h
}

func (h CryptoHash) String() string {
	return base58.Encode(h[:])
}

// IsZero reports whether h is the all-zero hash.
func (h CryptoHash) IsZero() bool {
	return h == CryptoHash{}
}

// MarshalText implements encoding.TextMarshaler.
func (h CryptoHash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *CryptoHash) UnmarshalText(text []byte) error {
	parsed, err := ParseCryptoHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

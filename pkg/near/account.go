package near

import (
	"errors"
	"fmt"
	"regexp"
)

const (
	minAccountIDLen = 2
	maxAccountIDLen = 64
)

// ErrInvalidAccountID is returned when an account identifier does not follow
// the protocol's naming rules.
var ErrInvalidAccountID = errors.New("invalid account id")

var accountIDPattern = regexp.MustCompile(`^(([a-z\d]+[\-_])*[a-z\d]+\.)*([a-z\d]+[\-_])*[a-z\d]+$`)

// AccountID is a validated account name such as "alice.near" or a 64 character
// implicit account.
type AccountID string

// ParseAccountID validates s and returns it as an AccountID.
func ParseAccountID(s string) (AccountID, error) {
	if len(s) < minAccountIDLen || len(s) > maxAccountIDLen {
		return "", fmt.Errorf("%w: %q has length %d", ErrInvalidAccountID, s, len(s))
	}
	if !accountIDPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAccountID, s)
	}
	return AccountID(s), nil
}

func (a AccountID) String() string {
	return string(a)
}

// MarshalText implements encoding.TextMarshaler.
func (a AccountID) MarshalText() ([]byte, error) {
	return []byte(a), nil
}

// UnmarshalText implements encoding.TextUnmarshaler and rejects malformed ids,
// so a bad receipt fails decoding instead of reaching an event envelope.
func (a *AccountID) UnmarshalText(text []byte) error {
	id, err := ParseAccountID(string(text))
	if err != nil {
		return err
	}
	*a = id
	return nil
}

package domain

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"

	dErrors "idoracle/pkg/domain-errors"
)

// AccountIDSize is the byte length of an on-chain account identifier.
const AccountIDSize = 32

// ResourceIDSize is the byte length of a claimed external resource identifier.
const ResourceIDSize = 32

// AccountID identifies an account of the ledger.
// Invariant: never the zero value once parsed at a trust boundary.
type AccountID [AccountIDSize]byte

// ParseAccountID constructs an AccountID from its hex form. A leading "0x" is
// accepted; the canonical form produced by String has none.
//
// Errors: returns CodeInvalidInput for empty, malformed, wrong-length, or
// all-zero input.
func ParseAccountID(s string) (AccountID, error) {
	if s == "" {
		return AccountID{}, dErrors.New(dErrors.CodeInvalidInput, "account id cannot be empty")
	}
	raw := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(raw) != hex.EncodedLen(AccountIDSize) {
		return AccountID{}, dErrors.New(dErrors.CodeInvalidInput, "account id must be 32 hex-encoded bytes")
	}
	var a AccountID
	if _, err := hex.Decode(a[:], []byte(raw)); err != nil {
		return AccountID{}, dErrors.New(dErrors.CodeInvalidInput, "account id is not valid hex")
	}
	if a.IsZero() {
		return AccountID{}, dErrors.New(dErrors.CodeInvalidInput, "account id cannot be zero")
	}
	return a, nil
}

// AccountIDFromSeed derives a deterministic account from a human readable
// seed such as "alice". Used for development accounts and tests.
func AccountIDFromSeed(seed string) AccountID {
	return AccountID(blake2b.Sum256([]byte(seed)))
}

func (a AccountID) String() string {
	return hex.EncodeToString(a[:])
}

func (a AccountID) IsZero() bool {
	return a == AccountID{}
}

func (a AccountID) Bytes() []byte {
	return append([]byte(nil), a[:]...)
}

func (a AccountID) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *AccountID) UnmarshalText(text []byte) error {
	parsed, err := ParseAccountID(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// AccountIDFromBytes copies a raw 32-byte account id, as stored by the
// persistence layer.
func AccountIDFromBytes(b []byte) (AccountID, error) {
	if len(b) != AccountIDSize {
		return AccountID{}, dErrors.New(dErrors.CodeInvalidInput, "account id must be 32 bytes")
	}
	var a AccountID
	copy(a[:], b)
	return a, nil
}

// ResourceID is the fixed-size identifier of a claimed external resource (a
// gist id). Shorter textual ids are right-padded with zero bytes.
type ResourceID [ResourceIDSize]byte

// ParseResourceID constructs a ResourceID from its textual form.
//
// Errors: returns CodeInvalidInput when the value is empty, longer than
// ResourceIDSize bytes, or contains characters outside [A-Za-z0-9._-]. The
// character set keeps the id safe to splice into a URL path.
func ParseResourceID(s string) (ResourceID, error) {
	if s == "" {
		return ResourceID{}, dErrors.New(dErrors.CodeInvalidInput, "resource id cannot be empty")
	}
	if len(s) > ResourceIDSize {
		return ResourceID{}, dErrors.New(dErrors.CodeInvalidInput, "resource id exceeds 32 bytes")
	}
	for i := 0; i < len(s); i++ {
		if !isResourceIDChar(s[i]) {
			return ResourceID{}, dErrors.New(dErrors.CodeInvalidInput, "resource id contains invalid characters")
		}
	}
	var r ResourceID
	copy(r[:], s)
	return r, nil
}

// MustResourceID is ParseResourceID for constants and tests.
func MustResourceID(s string) ResourceID {
	r, err := ParseResourceID(s)
	if err != nil {
		panic(err)
	}
	return r
}

func isResourceIDChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '_', c == '.':
		return true
	}
	return false
}

// String returns the textual id without its zero padding.
func (r ResourceID) String() string {
	return strings.TrimRight(string(r[:]), "\x00")
}

func (r ResourceID) IsZero() bool {
	return r == ResourceID{}
}

func (r ResourceID) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *ResourceID) UnmarshalText(text []byte) error {
	parsed, err := ParseResourceID(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ResourceIDFromBytes copies a raw padded resource id, as stored by the
// persistence layer.
func ResourceIDFromBytes(b []byte) (ResourceID, error) {
	if len(b) != ResourceIDSize {
		return ResourceID{}, dErrors.New(dErrors.CodeInvalidInput, "resource id must be 32 bytes")
	}
	var r ResourceID
	copy(r[:], b)
	return r, nil
}

// Username is a verified external (GitHub) login.
type Username string

func (u Username) String() string {
	return string(u)
}

// Package ident defines the durable identifiers used to name parts and features.
//
// An ID is a 128-bit token. Fresh identifiers are random (UUID v4); derived
// identifiers are a deterministic function of other identifiers (UUID v5 over
// the concatenated tokens), so they can be recomputed without consulting any
// ledger. The nil ID is a sentinel meaning "no prior identity" and never names
// a real part.
//
// Every ID serializes as a fixed-width 16-byte token. The text form is the
// canonical hyphenated UUID string.
package ident

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/google/uuid"
)

// TokenSize is the width in bytes of a serialized identifier.
const TokenSize = 16

// ErrInvalidToken is returned when a serialized token has the wrong width.
var ErrInvalidToken = errors.New("ident: invalid token")

// ID names one part across evaluations.
type ID uuid.UUID

// Nil is the identifier meaning "no prior identity".
var Nil ID

// New returns a fresh random identifier.
func New() ID {
	return ID(uuid.New())
}

// Parse parses the canonical string form of an identifier.
func Parse(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("ident: parse %q: %w", s, err)
	}
	return ID(u), nil
}

// MustParse is like Parse but panics on malformed input. Intended for tests
// and package-level fixtures.
func MustParse(s string) ID {
	return ID(uuid.MustParse(s))
}

// FromToken decodes a 16-byte token.
func FromToken(b []byte) (ID, error) {
	if len(b) != TokenSize {
		return Nil, fmt.Errorf("%w: got %d bytes", ErrInvalidToken, len(b))
	}
	var id ID
	copy(id[:], b)
	return id, nil
}

// IsNil reports whether id is the nil identifier.
func (id ID) IsNil() bool {
	return id == Nil
}

// String returns the canonical hyphenated form.
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// Short returns the first eight hex digits, for logs and graph dumps.
func (id ID) Short() string {
	return id.String()[:8]
}

// AppendToken appends the fixed-width binary token to b.
func (id ID) AppendToken(b []byte) []byte {
	return append(b, id[:]...)
}

// Compare orders identifiers by their token bytes.
func (id ID) Compare(other ID) int {
	return bytes.Compare(id[:], other[:])
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Salt derives a sibling identifier from id and an ordinal. It separates
// otherwise identical derivations, such as two edges bounded by the same pair
// of faces.
func (id ID) Salt(n int) ID {
	return ID(uuid.NewSHA1(uuid.UUID(id), []byte(strconv.Itoa(n))))
}

// Sort orders ids in place by token bytes.
func Sort(ids []ID) {
	slices.SortFunc(ids, ID.Compare)
}

package ident

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
)

// FeatureID names one feature of a project. It is stable for the lifetime of
// the feature and independent of evaluation.
type FeatureID uuid.UUID

// NoFeature is the zero feature identifier. Queries that take a feature use it
// to mean "any feature".
var NoFeature FeatureID

// NewFeature returns a fresh random feature identifier.
func NewFeature() FeatureID {
	return FeatureID(uuid.New())
}

// ParseFeature parses the canonical string form of a feature identifier.
func ParseFeature(s string) (FeatureID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NoFeature, fmt.Errorf("ident: parse feature %q: %w", s, err)
	}
	return FeatureID(u), nil
}

// FeatureFromToken decodes a 16-byte token.
func FeatureFromToken(b []byte) (FeatureID, error) {
	if len(b) != TokenSize {
		return NoFeature, fmt.Errorf("%w: got %d bytes", ErrInvalidToken, len(b))
	}
	var f FeatureID
	copy(f[:], b)
	return f, nil
}

// IsZero reports whether f is NoFeature.
func (f FeatureID) IsZero() bool {
	return f == NoFeature
}

func (f FeatureID) String() string {
	return uuid.UUID(f).String()
}

// Short returns the first eight hex digits.
func (f FeatureID) Short() string {
	return f.String()[:8]
}

// AppendToken appends the fixed-width binary token to b.
func (f FeatureID) AppendToken(b []byte) []byte {
	return append(b, f[:]...)
}

// Compare orders feature identifiers by their token bytes.
func (f FeatureID) Compare(other FeatureID) int {
	return bytes.Compare(f[:], other[:])
}

// MarshalText implements encoding.TextMarshaler.
func (f FeatureID) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *FeatureID) UnmarshalText(b []byte) error {
	parsed, err := ParseFeature(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Package ident provides type-safe identifier types for manifest branch and
// layer names. Unlike a raw string, BranchID and LayerID can only be
// constructed from input matching the manifest schema's naming rules,
// so a value of either type is always safe to use as a map key or FileDB
// column without re-validating at every call site.
//
// This is a leaf package with zero external dependencies beyond stdlib.
package ident

import (
	"database/sql"
	"database/sql/driver"
	"encoding"
	"fmt"
	"regexp"
)

var (
	branchPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	layerPattern  = regexp.MustCompile(`^[A-Za-z_-][A-Za-z0-9_-]*$`)
)

// PublicBranch is the branch name every manifest must define.
const PublicBranch = "public"

// BranchID is a validated manifest branch name.
type BranchID struct {
	value string
}

// NewBranchID validates raw against the branch naming pattern
// (^[A-Za-z_][A-Za-z0-9_]*$) and returns a BranchID. An empty or
// non-matching raw value is rejected rather than normalized, since a
// malformed branch name in a manifest indicates a manifest_invalid
// condition, not something to silently coerce.
func NewBranchID(raw string) (BranchID, error) {
	if !branchPattern.MatchString(raw) {
		return BranchID{}, fmt.Errorf("ident: invalid branch id %q", raw)
	}

	return BranchID{value: raw}, nil
}

// String returns the branch name.
func (b BranchID) String() string {
	return b.value
}

// IsZero reports whether this is the zero-value BranchID.
func (b BranchID) IsZero() bool {
	return b.value == ""
}

// MarshalText implements encoding.TextMarshaler.
func (b BranchID) MarshalText() ([]byte, error) {
	return []byte(b.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *BranchID) UnmarshalText(text []byte) error {
	id, err := NewBranchID(string(text))
	if err != nil {
		return err
	}

	*b = id
	return nil
}

// Scan implements sql.Scanner for reading branch ids from SQLite.
func (b *BranchID) Scan(src any) error {
	if src == nil {
		*b = BranchID{}
		return nil
	}

	switch v := src.(type) {
	case string:
		id, err := NewBranchID(v)
		if err != nil {
			return err
		}
		*b = id
		return nil
	case []byte:
		id, err := NewBranchID(string(v))
		if err != nil {
			return err
		}
		*b = id
		return nil
	default:
		return fmt.Errorf("ident.BranchID.Scan: unsupported type %T", src)
	}
}

// Value implements driver.Valuer for writing branch ids to SQLite.
func (b BranchID) Value() (driver.Value, error) {
	if b.IsZero() {
		return nil, nil
	}

	return b.value, nil
}

// LayerID is a validated manifest layer name.
type LayerID struct {
	value string
}

// NewLayerID validates raw against the layer naming pattern
// (^[A-Za-z_-][A-Za-z0-9_-]*$) and returns a LayerID.
func NewLayerID(raw string) (LayerID, error) {
	if !layerPattern.MatchString(raw) {
		return LayerID{}, fmt.Errorf("ident: invalid layer id %q", raw)
	}

	return LayerID{value: raw}, nil
}

// String returns the layer name.
func (l LayerID) String() string {
	return l.value
}

// IsZero reports whether this is the zero-value LayerID.
func (l LayerID) IsZero() bool {
	return l.value == ""
}

// MarshalText implements encoding.TextMarshaler.
func (l LayerID) MarshalText() ([]byte, error) {
	return []byte(l.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *LayerID) UnmarshalText(text []byte) error {
	id, err := NewLayerID(string(text))
	if err != nil {
		return err
	}

	*l = id
	return nil
}

// Scan implements sql.Scanner for reading layer ids from SQLite.
func (l *LayerID) Scan(src any) error {
	if src == nil {
		*l = LayerID{}
		return nil
	}

	switch v := src.(type) {
	case string:
		id, err := NewLayerID(v)
		if err != nil {
			return err
		}
		*l = id
		return nil
	case []byte:
		id, err := NewLayerID(string(v))
		if err != nil {
			return err
		}
		*l = id
		return nil
	default:
		return fmt.Errorf("ident.LayerID.Scan: unsupported type %T", src)
	}
}

// Value implements driver.Valuer for writing layer ids to SQLite.
func (l LayerID) Value() (driver.Value, error) {
	if l.IsZero() {
		return nil, nil
	}

	return l.value, nil
}

// Compile-time interface assertions.
var (
	_ encoding.TextMarshaler   = BranchID{}
	_ encoding.TextUnmarshaler = (*BranchID)(nil)
	_ fmt.Stringer             = BranchID{}
	_ driver.Valuer            = BranchID{}
	_ sql.Scanner              = (*BranchID)(nil)

	_ encoding.TextMarshaler   = LayerID{}
	_ encoding.TextUnmarshaler = (*LayerID)(nil)
	_ fmt.Stringer             = LayerID{}
	_ driver.Valuer            = LayerID{}
	_ sql.Scanner              = (*LayerID)(nil)
)

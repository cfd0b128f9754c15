// Package driveid normalizes Graph drive identifiers. Personal accounts
// sometimes report a 15-character drive id where other responses carry the
// same id zero-padded to 16, and casing varies between endpoints, so raw
// strings cannot be compared directly.
package driveid

import "strings"

// idMinLength is the length short personal drive ids are padded to.
const idMinLength = 16

// ID is a normalized drive identifier: lowercase and left-padded with
// zeros to at least 16 characters. The zero value means "unknown drive".
type ID struct {
	value string
}

// New normalizes a raw drive id. Empty input yields the zero ID.
func New(raw string) ID {
	if raw == "" {
		return ID{}
	}

	lower := strings.ToLower(raw)
	if len(lower) >= idMinLength {
		return ID{value: lower}
	}

	return ID{value: strings.Repeat("0", idMinLength-len(lower)) + lower}
}

// String returns the normalized id.
func (id ID) String() string {
	return id.value
}

// IsZero reports whether id is unknown (empty or all zeros).
func (id ID) IsZero() bool {
	return id.value == "" || id.value == strings.Repeat("0", idMinLength)
}

// Equal reports whether two ids name the same drive. All zero forms are
// equal to each other.
func (id ID) Equal(other ID) bool {
	if id.value == other.value {
		return true
	}

	return id.IsZero() && other.IsZero()
}

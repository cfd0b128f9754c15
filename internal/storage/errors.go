package storage

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is to check.
var (
	// ErrInvalidArgument reports a caller mistake such as a file create
	// without content.
	ErrInvalidArgument = errors.New("storage: invalid argument")

	// ErrUnsupported reports a capability the back end structurally lacks.
	ErrUnsupported = errors.New("storage: unsupported operation")

	// ErrNotFound is used inside adapters only. Provider methods collapse it
	// to a nil result before returning.
	ErrNotFound = errors.New("storage: not found")
)

// UnsupportedError names the back end and the missing capability.
type UnsupportedError struct {
	Backend    string
	Capability string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("storage: %s does not support %s", e.Backend, e.Capability)
}

func (e *UnsupportedError) Unwrap() error {
	return ErrUnsupported
}

// Unsupported returns an *UnsupportedError for backend and capability.
func Unsupported(backend, capability string) error {
	return &UnsupportedError{Backend: backend, Capability: capability}
}

// InvalidArgumentf formats an error wrapping ErrInvalidArgument.
func InvalidArgumentf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// ResolveContent picks the bytes to upload for a file create: the explicit
// content argument wins, then meta.Content. A nil result means the caller
// supplied none.
func ResolveContent(meta FileMetadata, content []byte) ([]byte, error) {
	if content == nil {
		content = meta.Content
	}

	if content == nil {
		return nil, InvalidArgumentf("content is required to create file %q", meta.Name)
	}

	return content, nil
}

// ValidateMetadata checks the fields every adapter requires on create.
func ValidateMetadata(meta FileMetadata) error {
	if meta.Name == "" {
		return InvalidArgumentf("name must not be empty")
	}

	return nil
}

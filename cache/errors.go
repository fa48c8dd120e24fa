package cache

import (
	"errors"
	"fmt"
)

// Sentinel errors for cache operations.
var (
	ErrInvalidKey   = errors.New("cache: key is invalid")
	ErrKeyTooLong   = errors.New("cache: key exceeds max length")
	ErrInvalidGroup = errors.New("cache: group is invalid")
	ErrNilProducer  = errors.New("cache: producer is nil")

	// ErrEncode matches every *EncodeError.
	ErrEncode = errors.New("cache: encode failed")
	// ErrDecode matches every *DecodeError.
	ErrDecode = errors.New("cache: decode failed")
	// ErrExternal matches every *ExternalError.
	ErrExternal = errors.New("cache: producer failed")
)

// EncodeError reports that the codec refused to encode a value.
type EncodeError struct {
	Key string
	Err error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("cache: encode %q: %v", e.Key, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// Is reports whether target is ErrEncode.
func (e *EncodeError) Is(target error) bool { return target == ErrEncode }

// DecodeError reports that a stored payload could not be decoded into the
// requested type. It usually means the caller read a key with the wrong type.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cache: decode %q: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is reports whether target is ErrDecode.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// ExternalError reports that a producer failed. Message is the producer
// error's text; Err keeps the cause for errors.Is and errors.As.
type ExternalError struct {
	Key     string
	Message string
	Err     error
}

func newExternalError(key string, err error) *ExternalError {
	return &ExternalError{Key: key, Message: err.Error(), Err: err}
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("cache: producer for %q: %s", e.Key, e.Message)
}

func (e *ExternalError) Unwrap() error { return e.Err }

// Is reports whether target is ErrExternal.
func (e *ExternalError) Is(target error) bool { return target == ErrExternal }

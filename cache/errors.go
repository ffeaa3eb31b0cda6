package cache

import "github.com/cockroachdb/errors"

// ErrUnavailable marks failures reaching a networked backing store. Callers
// detect it with errors.Is and degrade to origin-only behavior rather than
// failing the lookup outright.
var ErrUnavailable = errors.New("cache: backing store unavailable")

// ErrSerialization marks a payload that could not be encoded or decoded for
// a networked backing store. The affected record is dropped and treated as
// not found — never served corrupted.
var ErrSerialization = errors.New("cache: payload serialization failed")

// MarkUnavailable wraps err so that errors.Is(err, ErrUnavailable) holds.
func MarkUnavailable(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrUnavailable)
}

// MarkSerialization wraps err so that errors.Is(err, ErrSerialization) holds.
func MarkSerialization(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrSerialization)
}

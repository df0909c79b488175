package codec

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrTruncated is returned when the input ends before a value is complete.
	ErrTruncated = fmt.Errorf("codec: truncated input: %w", io.ErrUnexpectedEOF)

	// ErrValueTooLarge is returned when a decoded length or count exceeds the
	// caller supplied maximum.
	ErrValueTooLarge = errors.New("codec: value exceeds maximum")

	// ErrMalformedVarint is returned for a varint that is not encoded in its
	// shortest form.
	ErrMalformedVarint = errors.New("codec: non-canonical varint")

	// ErrInvalidUTF8 is returned when a decoded string is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("codec: invalid utf-8 string")

	// ErrMalformedGroup is returned for grouped bytes with an invalid marker
	// or non-zero padding.
	ErrMalformedGroup = errors.New("codec: malformed grouped bytes")

	// ErrTrailingBytes is returned by FromBytes when input remains after
	// the value has been decoded.
	ErrTrailingBytes = errors.New("codec: trailing bytes after value")
)

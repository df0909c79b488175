package types

import "errors"

var (
	// ErrInvalidChecksum is returned when a checksummed container does not
	// match its declared checksum.
	ErrInvalidChecksum = errors.New("invalid checksum")

	// ErrInvalidFormat is returned when a decoded entity violates a
	// structural limit.
	ErrInvalidFormat = errors.New("invalid format")
)

package protocol

import "errors"

var (
	// ErrEncoding is returned when a frame cannot be built, e.g. a non-finite value.
	ErrEncoding = errors.New("protocol: encoding error")
	// ErrDecoding is returned for malformed inbound bytes: wrong length or unknown command.
	ErrDecoding = errors.New("protocol: decoding error")
)

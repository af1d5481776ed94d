package protocol

import (
	"bytes"
	"fmt"
)

// Frame is one complete inbound unit: a command byte and its fixed-size payload.
type Frame struct {
	Command CommandID
	Payload []byte
}

// Decoder accumulates bytes read from a seat's stream and splits them into
// frames. A single read may carry part of a frame, one frame, or several.
// Decoder is not safe for concurrent use; each inbound loop owns its own.
// The zero value decodes frames received from a robot.
type Decoder struct {
	buf    bytes.Buffer
	sizeOf func(CommandID) (int, bool)
}

// NewRequestDecoder decodes the other direction: frames a robot receives.
func NewRequestDecoder() *Decoder {
	return &Decoder{sizeOf: OutboundPayloadSize}
}

// Feed appends raw bytes read from the connection.
func (d *Decoder) Feed(b []byte) {
	d.buf.Write(b)
}

// Buffered returns the number of bytes waiting for the rest of a frame.
func (d *Decoder) Buffered() int {
	return d.buf.Len()
}

// Reset discards any buffered bytes.
func (d *Decoder) Reset() {
	d.buf.Reset()
}

// Next returns the next complete frame. ok is false when more bytes are needed.
// An unknown command byte returns ErrDecoding and discards everything buffered,
// since the stream offers no way to find the next frame boundary.
func (d *Decoder) Next() (f Frame, ok bool, err error) {
	if d.buf.Len() == 0 {
		return Frame{}, false, nil
	}

	head := d.buf.Bytes()[0]
	cmd := CommandID(head)
	sizeOf := d.sizeOf
	if sizeOf == nil {
		sizeOf = InboundPayloadSize
	}
	size, known := sizeOf(cmd)
	if !known {
		dropped := d.buf.Len()
		d.buf.Reset()
		return Frame{}, false, fmt.Errorf("%w: unknown command byte 0x%02x, dropped %d buffered bytes", ErrDecoding, head, dropped)
	}
	if d.buf.Len() < 1+size {
		return Frame{}, false, nil
	}

	d.buf.Next(1)
	payload := make([]byte, size)
	copy(payload, d.buf.Next(size))
	return Frame{Command: cmd, Payload: payload}, true, nil
}

package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// ValueSize is the width of an actuator value on the wire.
	ValueSize = 4
	// ActuatorFrameSize is command byte + f32 value.
	ActuatorFrameSize = 1 + ValueSize
	// BatteryRequestSize is command byte + reserved byte.
	BatteryRequestSize = 2
	// BatteryResponseSize is voltage f32 + state of charge f32.
	BatteryResponseSize = 8
	// AckSize is the status byte a robot returns after the command byte for
	// every reply other than BATTERY_STATUS.
	AckSize = 1
)

// EncodeActuator builds the 5-byte actuator frame: cmd followed by value as
// little-endian IEEE-754 float32.
func EncodeActuator(cmd CommandID, value float32) ([]byte, error) {
	if !cmd.Valid() {
		return nil, fmt.Errorf("%w: unknown command %s", ErrEncoding, cmd)
	}
	if math.IsNaN(float64(value)) || math.IsInf(float64(value), 0) {
		return nil, fmt.Errorf("%w: non-finite value %v for %s", ErrEncoding, value, cmd)
	}

	buf := make([]byte, ActuatorFrameSize)
	buf[0] = byte(cmd)
	binary.LittleEndian.PutUint32(buf[1:], math.Float32bits(value))
	return buf, nil
}

// DecodeActuator is the inverse of EncodeActuator.
func DecodeActuator(b []byte) (CommandID, float32, error) {
	if len(b) != ActuatorFrameSize {
		return 0, 0, fmt.Errorf("%w: actuator frame is %d bytes, want %d", ErrDecoding, len(b), ActuatorFrameSize)
	}
	cmd, err := Lookup(b[0])
	if err != nil {
		return 0, 0, err
	}
	return cmd, math.Float32frombits(binary.LittleEndian.Uint32(b[1:])), nil
}

// EncodeBatteryRequest builds the fixed 2-byte battery status request.
// The firmware expects the reserved byte even though it carries nothing.
func EncodeBatteryRequest() []byte {
	return []byte{byte(BatteryStatus), 0x00}
}

// DecodeBatteryResponse parses the 8-byte battery payload. A short or long
// buffer is an error; nothing is zero-filled.
func DecodeBatteryResponse(b []byte) (voltage, soc float32, err error) {
	if len(b) != BatteryResponseSize {
		return 0, 0, fmt.Errorf("%w: battery response is %d bytes, want %d", ErrDecoding, len(b), BatteryResponseSize)
	}
	voltage = math.Float32frombits(binary.LittleEndian.Uint32(b[0:4]))
	soc = math.Float32frombits(binary.LittleEndian.Uint32(b[4:8]))
	return voltage, soc, nil
}

// EncodeBatteryResponse builds the 8-byte battery payload.
func EncodeBatteryResponse(voltage, soc float32) []byte {
	buf := make([]byte, BatteryResponseSize)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(voltage))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(soc))
	return buf
}

// DecodeValue parses a 4-byte little-endian float32 payload.
func DecodeValue(b []byte) (float32, error) {
	if len(b) != ValueSize {
		return 0, fmt.Errorf("%w: value payload is %d bytes, want %d", ErrDecoding, len(b), ValueSize)
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
}

// EncodeAck builds the 2-byte reply a robot sends for a non-battery command.
func EncodeAck(cmd CommandID, status byte) []byte {
	return []byte{byte(cmd), status}
}

// DecodeAck parses the 1-byte payload of a non-battery reply.
func DecodeAck(b []byte) (byte, error) {
	if len(b) != AckSize {
		return 0, fmt.Errorf("%w: ack payload is %d bytes, want %d", ErrDecoding, len(b), AckSize)
	}
	return b[0], nil
}

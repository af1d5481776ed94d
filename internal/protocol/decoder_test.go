package protocol

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecoderFragmented(t *testing.T) {
	stream := append([]byte{byte(BatteryStatus)}, EncodeBatteryResponse(12.5, 80)...)
	ack := EncodeAck(Custom2, 0x01)
	stream = append(stream, ack...)

	tests := []struct {
		name   string
		chunks []int
	}{
		{"whole", []int{len(stream)}},
		{"byte by byte", repeat(1, len(stream))},
		{"split inside payload", []int{3, 6, 2}},
		{"split on boundary", []int{9, 2}},
	}

	want := []Frame{
		{Command: BatteryStatus, Payload: EncodeBatteryResponse(12.5, 80)},
		{Command: Custom2, Payload: ack[1:]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Decoder
			var got []Frame
			off := 0
			for _, n := range tt.chunks {
				d.Feed(stream[off : off+n])
				off += n
				for {
					f, ok, err := d.Next()
					if err != nil {
						t.Fatalf("Next: %v", err)
					}
					if !ok {
						break
					}
					got = append(got, f)
				}
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("frames mismatch (-want +got):\n%s", diff)
			}
			if d.Buffered() != 0 {
				t.Fatalf("%d bytes left over", d.Buffered())
			}
		})
	}
}

func TestDecoderUnknownCommandDropsBuffer(t *testing.T) {
	var d Decoder
	d.Feed([]byte{0x42, 1, 2, 3, 4, byte(Custom1), 0x01})

	_, ok, err := d.Next()
	if ok || !errors.Is(err, ErrDecoding) {
		t.Fatalf("got ok=%v err=%v, want ErrDecoding", ok, err)
	}
	if d.Buffered() != 0 {
		t.Fatalf("buffer not dropped: %d bytes", d.Buffered())
	}

	// the stream recovers on the next aligned frame
	d.Feed(EncodeAck(Custom1, 0x01))
	f, ok, err := d.Next()
	if err != nil || !ok || f.Command != Custom1 {
		t.Fatalf("got (%v, %v, %v)", f, ok, err)
	}
}

func TestDecoderAckThenBattery(t *testing.T) {
	stream := EncodeAck(Ping, 0x01)
	stream = append(stream, byte(BatteryStatus))
	stream = append(stream, EncodeBatteryResponse(11.5, 64)...)

	var d Decoder
	d.Feed(stream)

	f, ok, err := d.Next()
	if err != nil || !ok {
		t.Fatalf("ack: got (%v, %v)", ok, err)
	}
	if status, err := DecodeAck(f.Payload); f.Command != Ping || err != nil || status != 0x01 {
		t.Fatalf("ack frame = %+v, status %d, err %v", f, status, err)
	}

	f, ok, err = d.Next()
	if err != nil || !ok || f.Command != BatteryStatus {
		t.Fatalf("battery: got (%+v, %v, %v)", f, ok, err)
	}
	v, soc, err := DecodeBatteryResponse(f.Payload)
	if err != nil || v != 11.5 || soc != 64 {
		t.Fatalf("battery = (%v, %v, %v), want (11.5, 64)", v, soc, err)
	}
	if d.Buffered() != 0 {
		t.Fatalf("%d bytes left over", d.Buffered())
	}
}

func TestDecoderPartial(t *testing.T) {
	var d Decoder
	d.Feed([]byte{byte(BatteryStatus), 0, 0, 0, 0})
	if _, ok, err := d.Next(); ok || err != nil {
		t.Fatalf("partial frame: ok=%v err=%v", ok, err)
	}
	if d.Buffered() != 5 {
		t.Fatalf("buffered %d, want 5", d.Buffered())
	}
}

func repeat(n, times int) []int {
	out := make([]int, times)
	for i := range out {
		out[i] = n
	}
	return out
}

func TestRequestDecoder(t *testing.T) {
	d := NewRequestDecoder()
	lift, _ := EncodeActuator(Custom1, 0.75)
	d.Feed(append(EncodeBatteryRequest(), lift...))

	f, ok, err := d.Next()
	if err != nil || !ok || f.Command != BatteryStatus || len(f.Payload) != 1 {
		t.Fatalf("battery request: got (%v, %v, %v)", f, ok, err)
	}
	f, ok, err = d.Next()
	if err != nil || !ok || f.Command != Custom1 {
		t.Fatalf("actuator: got (%v, %v, %v)", f, ok, err)
	}
	if v, _ := DecodeValue(f.Payload); v != 0.75 {
		t.Errorf("value = %v, want 0.75", v)
	}
}

package topic

import "testing"

func TestBuilder(t *testing.T) {
	b := NewTopicBuilder("seatlink/v1/")

	tests := []struct {
		got  string
		want string
	}{
		{b.Battery(2), "seatlink/v1/battery/2"},
		{b.Online(2), "seatlink/v1/online/2"},
		{b.Input(7), "seatlink/v1/input/7"},
		{b.InputWildcard(), "seatlink/v1/input/+"},
		{b.Agent("a1"), "seatlink/v1/agent/a1"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestSeat(t *testing.T) {
	b := NewTopicBuilder("seatlink/v1")

	n, err := b.Seat(SuffixInput, "seatlink/v1/input/12")
	if err != nil || n != 12 {
		t.Fatalf("got (%d, %v)", n, err)
	}
	if _, err := b.Seat(SuffixInput, "seatlink/v1/battery/12"); err == nil {
		t.Error("wrong suffix accepted")
	}
	if _, err := b.Seat(SuffixInput, "seatlink/v1/input/front"); err == nil {
		t.Error("non-numeric seat accepted")
	}
}

package clock

import (
	"testing"
	"time"
)

func TestManual_Advance(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := NewManual(start)

	if !clk.Now().Equal(start) {
		t.Errorf("Now = %v, want %v", clk.Now(), start)
	}
	clk.Advance(1500 * time.Millisecond)
	want := start.Add(1500 * time.Millisecond)
	if !clk.Now().Equal(want) {
		t.Errorf("Now after advance = %v, want %v", clk.Now(), want)
	}
	if clk.Nanos() != want.UnixNano() {
		t.Errorf("Nanos = %d, want %d", clk.Nanos(), want.UnixNano())
	}
}

func TestNextTick_Aligned(t *testing.T) {
	from := time.Date(2024, 3, 1, 12, 0, 37, 0, time.UTC)

	next := NextTick(from, time.Minute, true)
	want := time.Date(2024, 3, 1, 12, 1, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("aligned NextTick = %v, want %v", next, want)
	}
}

func TestNextTick_Unaligned(t *testing.T) {
	from := time.Date(2024, 3, 1, 12, 0, 37, 0, time.UTC)

	next := NextTick(from, time.Minute, false)
	if !next.Equal(from.Add(time.Minute)) {
		t.Errorf("unaligned NextTick = %v, want %v", next, from.Add(time.Minute))
	}
}

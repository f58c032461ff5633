package rtc

import "testing"

func TestFixedIncrementAdvancesClock(t *testing.T) {
	r := New(5)
	r.Tick()
	r.Tick()
	if r.Clock() != 10 {
		t.Fatalf("Clock() = %d, want 10", r.Clock())
	}
	if r.Cycles() != 2 {
		t.Fatalf("Cycles() = %d, want 2", r.Cycles())
	}
}

func TestInputAlwaysSucceeds(t *testing.T) {
	r := New(1)
	r.Tick()
	_, ok := r.Input()
	if !ok {
		t.Fatalf("RTC channel Input should always succeed")
	}
}

func TestInputMasksToTwelveBits(t *testing.T) {
	r := New(0o10000) // exceeds 12 bits
	r.Tick()
	v, _ := r.Input()
	if v > 0o7777 {
		t.Fatalf("Input() = %o, want masked to 12 bits", v)
	}
}

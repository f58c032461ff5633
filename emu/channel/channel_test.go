package channel

import (
	"testing"

	"github.com/rcornwell/cyber370/emu/device"
	"github.com/rcornwell/cyber370/emu/word"
)

type stubDevice struct {
	activated  bool
	in         []word.PpWord
	out        []word.PpWord
	funcCode   word.PpWord
}

func (d *stubDevice) Activate() uint8   { d.activated = true; return device.StatusReady }
func (d *stubDevice) Disconnect() uint8 { d.activated = false; return device.StatusReady }
func (d *stubDevice) Func(code word.PpWord) uint8 {
	d.funcCode = code
	return device.StatusReady
}

func (d *stubDevice) Input() (word.PpWord, bool) {
	if len(d.in) == 0 {
		return 0, false
	}
	v := d.in[0]
	d.in = d.in[1:]
	return v, true
}

func (d *stubDevice) Output(v word.PpWord) uint8 {
	d.out = append(d.out, v)
	return device.StatusReady
}
func (d *stubDevice) InitDev() uint8      { return device.StatusReady }
func (d *stubDevice) Shutdown()           {}
func (d *stubDevice) Debug(string) error  { return nil }

func TestActivateWithNoDeviceNeverFull(t *testing.T) {
	s := NewSystem()
	ch := s.Channel(1)
	ch.Activate()
	if ch.Active() {
		t.Errorf("channel with no device attached should not report active")
	}
	ch.Step()
	if ch.Full() {
		t.Errorf("channel with no device attached should never become full")
	}
}

func TestFullTogglesExactlyOncePerTransfer(t *testing.T) {
	s := NewSystem()
	dev := &stubDevice{in: []word.PpWord{0o1234}}
	if err := s.AddDevice(1, 5, dev); err != nil {
		t.Fatalf("AddDevice: %v", err)
	}
	ch := s.Channel(1)
	ch.Activate()

	ch.Step()
	if !ch.Full() {
		t.Fatalf("channel should be full after Step delivers a word")
	}
	v, ok := ch.Input()
	if !ok || v != 0o1234 {
		t.Fatalf("Input got %o, %v want 0o1234, true", v, ok)
	}
	if ch.Full() {
		t.Errorf("channel should be empty after Input drains it")
	}

	ch.Step()
	if ch.Full() {
		t.Errorf("channel should stay empty once the device has no more input")
	}
}

func TestHardwiredChannelRejectsAttach(t *testing.T) {
	s := NewSystem()
	if err := s.AddDevice(ChClock, 1, &stubDevice{}); err == nil {
		t.Errorf("expected AddDevice on hardwired channel to fail")
	}
}

func TestOutputReachesDeviceAfterStep(t *testing.T) {
	s := NewSystem()
	dev := &stubDevice{}
	s.AddDevice(2, 6, dev)
	ch := s.Channel(2)
	ch.Activate()
	if ok := ch.Output(0o7654); !ok {
		t.Fatalf("Output reported not-ok on an empty channel")
	}
	if len(dev.out) != 0 {
		t.Fatalf("device should not see the word before Step, got %v", dev.out)
	}
	ch.Step()
	if len(dev.out) != 1 || dev.out[0] != 0o7654 {
		t.Errorf("device did not receive output word after Step, got %v", dev.out)
	}
	if ch.Full() {
		t.Errorf("channel should be empty again after Step delivers the word")
	}
}

func TestOutputRejectedWhileFull(t *testing.T) {
	s := NewSystem()
	dev := &stubDevice{}
	s.AddDevice(2, 6, dev)
	ch := s.Channel(2)
	ch.Activate()
	ch.Output(1)
	if ok := ch.Output(2); ok {
		t.Errorf("second Output before Step should be rejected")
	}
}

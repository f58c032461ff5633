/*
cyber370 - I/O channel

Copyright 2024, Richard Cornwell

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

// Package channel implements the 12-bit-word I/O channels a PPU drives
// with its ACN/DCN/FNC/IAN/IAM/OAN/OAM instructions (spec §4.3), plus the
// four hardwired channels (clock, interlock/two-port-mux, status-and-
// control, maintenance). Shaped on emu/sys_channel/channel.go's per-
// channel struct, device registry and AddDevice/GetDevice/Attach/Detach
// entry points, adapted from S/370's byte-stream CCW model to CDC's
// simple full/active/empty word handshake.
package channel

import (
	"fmt"
	"sync"

	"github.com/rcornwell/cyber370/emu/device"
	"github.com/rcornwell/cyber370/emu/word"
)

// MaxChannels is the largest channel count a mainframe supports (const.h's
// MaxChannels = 040 octal = 32).
const MaxChannels = 32

// Hardwired channel numbers, grounded on original_source/CppCyber/const.h.
const (
	ChClock       = 0o14
	ChInterlock   = 0o15 // shared with the two-port mux
	ChTwoPortMux  = 0o15
	ChStatusCtrl  = 0o16
	ChMaintenance = 0o17
)

// Channel is one I/O channel's state (spec §3's channel slot).
type Channel struct {
	mu        sync.Mutex
	number    int
	active    bool
	full      bool
	toDevice  bool // full holds a PP->device word awaiting Step's consumption
	data      word.PpWord
	status    uint8
	flag      bool
	hardwired bool
	dev       device.Device
	devNum    uint16
	fileName  string
}

// System owns every channel on one mainframe.
type System struct {
	channels [MaxChannels]*Channel
}

// NewSystem builds a channel System with all 32 slots instantiated; the
// four hardwired slots are marked as such so device registration against
// them is rejected.
func NewSystem() *System {
	s := &System{}
	for i := range s.channels {
		s.channels[i] = &Channel{number: i, devNum: device.NoDevice}
	}
	for _, n := range []int{ChClock, ChInterlock, ChStatusCtrl, ChMaintenance} {
		s.channels[n].hardwired = true
	}
	return s
}

// Channel returns channel n, or nil if n is out of range.
func (s *System) Channel(n int) *Channel {
	if n < 0 || n >= MaxChannels {
		return nil
	}
	return s.channels[n]
}

// Full reports the channel's full flag (spec invariant: toggled exactly
// once per successful transfer).
func (c *Channel) Full() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.full
}

// Active reports whether a device is currently connected to the channel.
func (c *Channel) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Activate connects the attached device to the channel (PPU's ACN), per
// spec invariant I3: Activate on a channel with no device attached leaves
// Active false and never panics.
func (c *Channel) Activate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev == nil {
		return
	}
	c.dev.Activate()
	c.active = true
}

// Disconnect drops the device from the channel (PPU's DCN).
func (c *Channel) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev != nil {
		c.dev.Disconnect()
	}
	c.active = false
	c.full = false
	c.toDevice = false
}

// Function issues an equipment function code (PPU's FNC).
func (c *Channel) Function(code word.PpWord) uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev == nil {
		return device.StatusNotReady
	}
	c.status = c.dev.Func(code)
	return c.status
}

// Input returns the channel's held input word and clears full (PPU's IAN/
// IAM), reporting ok=false if the channel is empty or currently holding a
// PP-to-device word awaiting Step's consumption.
func (c *Channel) Input() (value word.PpWord, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.full || c.toDevice {
		return 0, false
	}
	c.full = false
	return c.data, true
}

// Output delivers a word to the channel (PPU's OAN/OAM) and sets full, per
// spec §4.2 ("OAN writes A to channel and sets full"); it reports ok=false
// (the PPU must retry) if the channel is already full in either direction,
// preserving the full-toggle-exactly-once invariant. The device does not
// see the word until the next Step.
func (c *Channel) Output(v word.PpWord) (ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return false
	}
	c.data = v
	c.full = true
	c.toDevice = true
	return true
}

// Step is called once per major cycle for every channel, after all PPUs
// have stepped (spec §5's ordering guarantee). A pending PP-to-device word
// is delivered to the device and the channel is emptied; otherwise, if the
// channel is empty, the device is polled for a fresh input word.
func (c *Channel) Step() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev == nil || !c.active {
		return
	}
	if c.full && c.toDevice {
		c.status = c.dev.Output(c.data)
		c.full = false
		c.toDevice = false
		return
	}
	if !c.full {
		if v, ok := c.dev.Input(); ok {
			c.data = v
			c.full = true
			c.toDevice = false
		}
	}
}

// AddDevice attaches dev to channel n under equipment number devNum.
func (s *System) AddDevice(n int, devNum uint16, dev device.Device) error {
	ch := s.Channel(n)
	if ch == nil {
		return fmt.Errorf("channel %o out of range", n)
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.hardwired {
		return fmt.Errorf("channel %o is hardwired, cannot attach a device", n)
	}
	ch.dev = dev
	ch.devNum = devNum
	return nil
}

// WireHardwired attaches dev to one of the four hardwired channels
// (clock, interlock/mux, status-and-control, maintenance; spec §4.3),
// which AddDevice refuses. The mainframe constructor is the only caller:
// config equipment lines can never reassign these channels.
func (s *System) WireHardwired(n int, dev device.Device) error {
	ch := s.Channel(n)
	if ch == nil {
		return fmt.Errorf("channel %o out of range", n)
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if !ch.hardwired {
		return fmt.Errorf("channel %o is not hardwired", n)
	}
	ch.dev = dev
	ch.active = true
	return nil
}

// GetDevice returns the device attached to channel n.
func (s *System) GetDevice(n int) (device.Device, error) {
	ch := s.Channel(n)
	if ch == nil {
		return nil, fmt.Errorf("channel %o out of range", n)
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.dev == nil {
		return nil, fmt.Errorf("no device on channel %o", n)
	}
	return ch.dev, nil
}

// DelDevice detaches whatever device is on channel n.
func (s *System) DelDevice(n int) {
	ch := s.Channel(n)
	if ch == nil {
		return
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.dev != nil {
		ch.dev.Shutdown()
	}
	ch.dev = nil
	ch.devNum = device.NoDevice
}

// Attach records a backing file name for the device on channel n and
// re-initializes it, mirroring the teacher's Attach/Detach operator verbs.
func (s *System) Attach(n int, fileName string) error {
	ch := s.Channel(n)
	if ch == nil {
		return fmt.Errorf("channel %o out of range", n)
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.dev == nil {
		return fmt.Errorf("no device on channel %o", n)
	}
	ch.fileName = fileName
	ch.dev.InitDev()
	return nil
}

// Detach clears the backing file name; the device stays attached to the
// channel and is not shut down.
func (s *System) Detach(n int) error {
	ch := s.Channel(n)
	if ch == nil {
		return fmt.Errorf("channel %o out of range", n)
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.fileName = ""
	return nil
}

// StepAll steps every channel once; called from the Mainframe major cycle
// after the PPU barrel has run, matching spec §5's ordering guarantee.
func (s *System) StepAll() {
	for _, ch := range s.channels {
		ch.Step()
	}
}

// Reset clears every channel's active/full/status back to empty, without
// detaching devices, for deadstart.
func (s *System) Reset() {
	for _, ch := range s.channels {
		ch.mu.Lock()
		ch.active = false
		ch.full = false
		ch.toDevice = false
		ch.status = 0
		ch.mu.Unlock()
	}
}

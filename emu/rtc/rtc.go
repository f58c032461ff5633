/*
cyber370 - Real-time clock

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

// Package rtc implements the mainframe real-time clock hardwired to
// channel 14: a free-running 32-bit counter advanced either by a fixed
// per-cycle increment or by host wall-clock microseconds, plus the
// 64-bit major-cycle counter devices use for latency accounting. Shaped
// on spec §4.4; the teacher repo has no equivalent (S/370's TOD clock
// lives inside emu/cpu instead), so the device.Device wiring here follows
// emu/channel's capability-set contract rather than any one teacher file.
package rtc

import (
	"time"

	"github.com/rcornwell/cyber370/emu/device"
	"github.com/rcornwell/cyber370/emu/word"
)

// RTC is the hardwired channel-14 clock device.
type RTC struct {
	clock      uint32 // 32-bit free-running counter
	cycles     uint64 // major-cycle counter
	increment  uint32 // per-cycle increment; 0 means derive from wall clock
	lastTick   time.Time
}

// New creates an RTC. increment is the configured per-major-cycle tick;
// pass 0 to derive ticks from elapsed host microseconds instead.
func New(increment uint32) *RTC {
	return &RTC{increment: increment, lastTick: time.Now()}
}

// Tick advances the clock by one major cycle, called once per major
// cycle after the channel step per spec §5's ordering guarantee.
func (r *RTC) Tick() {
	r.cycles++
	if r.increment != 0 {
		r.clock += r.increment
		return
	}
	now := time.Now()
	elapsed := now.Sub(r.lastTick)
	r.lastTick = now
	r.clock += uint32(elapsed.Microseconds())
}

// Cycles returns the 64-bit major-cycle counter.
func (r *RTC) Cycles() uint64 {
	return r.cycles
}

// Clock returns the full 32-bit clock value.
func (r *RTC) Clock() uint32 {
	return r.clock
}

// Activate/Disconnect/Func/InitDev/Shutdown/Debug satisfy device.Device
// as near-trivial lifecycle stubs: the clock channel is always full and
// needs no function-code handshake (spec §4.3).
func (r *RTC) Activate() uint8   { return device.StatusReady }
func (r *RTC) Disconnect() uint8 { return device.StatusReady }
func (r *RTC) Func(word.PpWord) uint8 { return device.StatusReady }
func (r *RTC) InitDev() uint8    { return device.StatusReady }
func (r *RTC) Shutdown()         {}
func (r *RTC) Debug(string) error { return nil }

// Input always succeeds, returning the low 12 bits of the clock: channel
// 14 is always full (spec §4.3).
func (r *RTC) Input() (word.PpWord, bool) {
	return word.PpWord(r.clock) & word.PpMask12, true
}

// Output is a no-op: the clock channel does not accept PP writes.
func (r *RTC) Output(word.PpWord) uint8 { return device.StatusReady }

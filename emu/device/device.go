/*
cyber370 - Peripheral device interface

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

// Package device defines the capability contract a peripheral presents to
// a Channel: activate, disconnect, function and word transfer. A device's
// internal fidelity (drum timing, print trains, Hollerith conversion) is a
// collaborator concern; only this contract is exercised by the core engine,
// grounded on emu/device/device.go's Device interface in shape (four small
// methods plus Init/Shutdown/Debug) but re-cut for CDC's word-at-a-time PPU
// channel protocol instead of S/370's byte-stream CCW chaining.
package device

import "github.com/rcornwell/cyber370/emu/word"

// Type enumerates CDC peripheral equipment types, grounded on
// original_source/CppCyber/const.h's Dt* enumeration.
type Type int

const (
	TypeNone Type = iota
	TypeDeadstart
	TypeMt607  // 200 BPI 7-track tape
	TypeMt669  // 800 BPI 9-track tape
	TypeMt679  // 1600 BPI 9-track tape
	TypeDd6603 // moving-head disk
	TypeDd8xx  // fixed-head disk
	TypeCr405  // 405 card reader
	TypeCp3446 // card punch
	TypeCr3447 // card reader, 3000-series
	TypeLp1612 // 1612 line printer
	TypeLp5xx  // 500-series line printer
	TypeConsole
	TypeMux6676  // two-port mux terminal line
	TypeDcc6681  // disk controller
	TypeNpu      // Network Processing Unit
	TypeStatCtrl // status and control register
	TypeInterlock
)

// Status flags returned from Func, matching the PPU's FNC/activate-disconnect
// view of a channel rather than a byte-stream channel-status-word.
const (
	StatusReady    uint8 = 0x01 // device ready to accept a function
	StatusBusy     uint8 = 0x02 // device busy executing a prior function
	StatusNotReady uint8 = 0x04 // device not ready (no media, no connection)
	StatusError    uint8 = 0x08 // last operation ended in error
	StatusEOI      uint8 = 0x10 // end of information (EOF/EOT reached)
)

// NoDevice is the sentinel equipment number for an unoccupied device slot.
const NoDevice uint16 = 0xffff

// Device is the capability set a peripheral must implement to be attached
// to a Channel slot (spec §4.5). Activate/Disconnect/Func/Input/Output
// mirror the PPU's ACN/DCN/FNC/IAN-IAM/OAN-OAM instruction semantics;
// InitDev/Shutdown/Debug mirror the teacher's device lifecycle hooks.
type Device interface {
	// Activate is called when the channel's ACN (activate) function
	// connects this device to the channel.
	Activate() uint8
	// Disconnect is called on DCN; the device must stop driving the
	// channel's full/active flags.
	Disconnect() uint8
	// Func issues an equipment function code (FNC) to the device and
	// returns a status byte.
	Func(code word.PpWord) uint8
	// Input is polled once per major cycle while the device is the
	// channel's active input source; ok is false when no word is ready.
	Input() (value word.PpWord, ok bool)
	// Output delivers one word written to the channel by a PPU OAN/OAM.
	Output(value word.PpWord) uint8
	// InitDev (re)initializes device state, e.g. on deadstart.
	InitDev() uint8
	// Shutdown releases any backing resources (open files, sockets).
	Shutdown()
	// Debug toggles a named debug option; unknown options return an error.
	Debug(option string) error
}

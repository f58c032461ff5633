/*
cyber370 - NPU Terminal Interface Protocol (TIP)

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

// Package tip implements the NPU's Terminal Interface Protocol (spec
// §4.6): per-port Terminal Control Blocks holding the active parameter
// set, the upline assembly buffer and its flush discipline, and the
// downline block-type dispatcher (BtHTRINIT/BtHTCMD/BtHTBLK/BtHTMSG/
// BtHTBACK/BtHTNINIT/BtHTTERM/BtHTICMD).
package tip

import (
	"time"

	"github.com/rcornwell/cyber370/emu/npu/buffer"
)

// Block types a downline TIP block may carry (spec §4.6).
const (
	BtHTRINIT byte = iota + 1 // terminal init request
	BtHTCMD                   // parameter command (PFC/SFC pair follows)
	BtHTBLK                   // data block
	BtHTMSG                   // data message
	BtHTBACK                  // block acknowledge
	BtHTTERM                  // terminate connection
	BtHTICMD                  // interrupt command
	BtHTNINIT                 // terminal init response (respond-to-init)
)

// PFC/SFC pairs carried by a BtHTCMD block (spec §4.6).
const (
	PfcCTRL byte = 0x01
	SfcDEF  byte = 0x01 // CTRL/DEF: define parameters
	SfcCHAR byte = 0x02 // CTRL/CHAR: redefine multiple parameters

	PfcRO   byte = 0x02
	SfcMARK byte = 0x01 // RO/MARK: clears break
)

// Terminal classes named in spec §4.6, each with its own parameter
// default table.
type Class int

const (
	Class2 Class = 2
	Class3 Class = 3
	Class7 Class = 7
)

// Params is the TCB's active parameter set. Spec §4.6 names 65 fields
// "covering character set, flow control, line length, break handling,
// echoplex, etc."; this struct carries a representative, named subset
// sufficient to drive the downline CTRL/DEF and CTRL/CHAR handlers and
// the upline blocking discipline, rather than all 65 verbatim.
type Params struct {
	CharSet      byte // character set selector
	LineWidth    int  // line length in characters, 0 = unlimited
	Echoplex     bool // host echoes input, vs. local terminal echo
	XonXoff      bool // software flow control enabled
	BreakChar    byte // character that raises the break-pending flag
	Transparent  bool // transparent-input mode (spec: enables the 200ms timer)
	BlockSize    int  // upline block-size flush limit, bytes
	Delimiter    byte // upline block-delimiter flush character
	FullDuplex   bool
}

// defaultParams returns the default parameter table for class c (spec
// §4.6: "each with a default table per terminal class 2/3/7").
func defaultParams(c Class) Params {
	switch c {
	case Class2:
		return Params{LineWidth: 80, BlockSize: 256, Delimiter: '\r', BreakChar: 0x03}
	case Class3:
		return Params{LineWidth: 132, BlockSize: 512, Delimiter: '\r', BreakChar: 0x03, FullDuplex: true}
	case Class7:
		return Params{LineWidth: 0, BlockSize: 2000, Delimiter: 0, BreakChar: 0x03, Transparent: true}
	default:
		return Params{LineWidth: 80, BlockSize: 256, Delimiter: '\r', BreakChar: 0x03}
	}
}

// uplineTimeout is the transparent-input flush timer (spec §4.6: "a
// per-port 200 ms timer expires").
const uplineTimeout = 200 * time.Millisecond

// TCB is one port's Terminal Control Block.
type TCB struct {
	Port  int
	Class Class
	Params Params

	seq uint8 // upline block-sequence number, cycles 1..7; 0 reserved

	in       []byte // input assembly buffer, flushed upline per Params
	breakPending bool
	xoff         bool

	out buffer.Queue // output queue of NPU buffers awaiting downline delivery to the terminal

	pool *buffer.Pool

	timer *time.Timer

	// FlushUpline is called with an assembled input block when the
	// blocking discipline decides to flush it.
	FlushUpline func(seq uint8, data []byte)
}

// NewTCB creates a TCB for port, defaulted to terminal class c.
func NewTCB(port int, c Class, pool *buffer.Pool) *TCB {
	return &TCB{Port: port, Class: c, Params: defaultParams(c), seq: 1, pool: pool}
}

// nextSeq advances the upline block-sequence number, cycling 1..7 (0 is
// reserved, spec §6).
func (t *TCB) nextSeq() uint8 {
	s := t.seq
	t.seq++
	if t.seq > 7 {
		t.seq = 1
	}
	return s
}

// Input accumulates one character of terminal input, flushing upline
// when the block-size limit is reached, the delimiter is seen, or (in
// transparent mode) the 200ms timer fires (spec §4.6's upline blocking
// discipline).
func (t *TCB) Input(c byte) {
	t.in = append(t.in, c)
	if c == t.Params.BreakChar {
		t.breakPending = true
	}
	switch {
	case len(t.in) >= t.Params.BlockSize && t.Params.BlockSize > 0:
		t.flush()
	case t.Params.Delimiter != 0 && c == t.Params.Delimiter:
		t.flush()
	case t.Params.Transparent:
		t.armTimer()
	}
}

func (t *TCB) armTimer() {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(uplineTimeout, t.flush)
}

// flush ships the accumulated input buffer upline and resets it.
func (t *TCB) flush() {
	if len(t.in) == 0 {
		return
	}
	data := t.in
	t.in = nil
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if t.FlushUpline != nil {
		t.FlushUpline(t.nextSeq(), data)
	}
}

// QueueOutput appends buf to the port's downline output queue (data bound
// for the physical terminal), returning ownership of buf to the TCB per
// the exclusive-ownership invariant (spec §3 invariant 6).
func (t *TCB) QueueOutput(buf *buffer.Buffer) {
	t.out.Append(buf)
}

// NextOutput dequeues the next buffer bound for the terminal, or nil if
// the output queue is empty.
func (t *TCB) NextOutput() *buffer.Buffer {
	return t.out.Extract()
}

// DiscardOutput empties the output queue back to the pool, for
// BtHTICMD's "discard queued output, ack" (spec §4.6).
func (t *TCB) DiscardOutput() {
	for {
		b := t.out.Extract()
		if b == nil {
			return
		}
		if t.pool != nil {
			t.pool.Release(b)
		}
	}
}

// ClearBreak clears the break-pending flag, the effect of an RO/MARK
// command (spec §4.6: "clears break").
func (t *TCB) ClearBreak() {
	t.breakPending = false
}

// HandleDownlineBlock dispatches one downline block by type, per spec
// §4.6's block-type table. AsyncData receives BtHTBLK/BtHTMSG payloads
// for whatever the caller's async data processor does with them (echo,
// queue to the guest application); it may be nil.
func (t *TCB) HandleDownlineBlock(blockType byte, pfc, sfc byte, data []byte, asyncData func([]byte)) error {
	switch blockType {
	case BtHTRINIT:
		// npu_tip.cpp's BtHTRINIT handler sends three canned blocks
		// upline in this order, each with its own fixed (unsequenced)
		// block header: an ack of the host's init request, the
		// terminal's own init-response, then the terminal's
		// request-init (so the host learns the port is alive and can
		// in turn initialise it).
		if t.FlushUpline != nil {
			t.FlushUpline(0, []byte{BtHTBACK})
			t.FlushUpline(0, []byte{BtHTNINIT})
			t.FlushUpline(0, []byte{BtHTRINIT})
		}
	case BtHTCMD:
		t.handleCmd(pfc, sfc, data)
	case BtHTBLK, BtHTMSG:
		if asyncData != nil {
			asyncData(data)
		}
	case BtHTBACK:
		// discard - ack only, no state change beyond having consumed it
	case BtHTTERM:
		// disconnect handshake completion is driven by svm.DisconnectAcked;
		// TIP discards any partly assembled input for this port.
		t.in = nil
	case BtHTICMD:
		t.DiscardOutput()
		if t.FlushUpline != nil {
			t.FlushUpline(t.nextSeq(), []byte{BtHTICMD})
		}
	}
	return nil
}

func (t *TCB) handleCmd(pfc, sfc byte, data []byte) {
	switch {
	case pfc == PfcCTRL && sfc == SfcDEF:
		t.applyParam(data)
	case pfc == PfcCTRL && sfc == SfcCHAR:
		for i := 0; i+1 < len(data); i += 2 {
			t.applyParam(data[i : i+2])
		}
	case pfc == PfcRO && sfc == SfcMARK:
		t.ClearBreak()
	}
}

// applyParam interprets a 2-byte (field, value) pair against the subset
// of named fields Params models; unrecognised field codes are ignored
// rather than erroring, since a guest may set fields this scoped
// implementation does not carry.
func (t *TCB) applyParam(fv []byte) {
	if len(fv) < 2 {
		return
	}
	field, value := fv[0], fv[1]
	switch field {
	case 0x01:
		t.Params.CharSet = value
	case 0x02:
		t.Params.LineWidth = int(value)
	case 0x03:
		t.Params.Echoplex = value != 0
	case 0x04:
		t.Params.XonXoff = value != 0
	case 0x05:
		t.Params.BreakChar = value
	case 0x06:
		t.Params.Transparent = value != 0
	case 0x07:
		t.Params.Delimiter = value
	}
}

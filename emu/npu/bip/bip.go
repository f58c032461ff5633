/*
cyber370 - NPU Block Interface Protocol (BIP)

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

// Package bip implements the NPU's Block Interface Protocol (spec §4.6):
// the host-channel-facing state machine that assembles downline blocks
// word by word and dispatches them to SVM or TIP, and that serialises
// upline block transfers through a single pending slot plus a wait queue.
package bip

import (
	"fmt"
	"sync"

	"github.com/rcornwell/cyber370/emu/npu/buffer"
)

// State is BIP's downline assembly state (spec §4.6).
type State int

const (
	Idle State = iota
	DownSvm
	DownDataLow
	DownDataHigh
)

// Order identifies which downline order the host channel issued to start
// a transfer (spec §4.6: "a service-message order advances Idle->DownSvm;
// a data order advances Idle->DownDataLow or DownDataHigh").
type Order int

const (
	OrderSvm Order = iota
	OrderDataLow
	OrderDataHigh
)

// BIP is one mainframe's Block Interface Protocol instance.
type BIP struct {
	mu    sync.Mutex
	pool  *buffer.Pool
	state State
	cur   *buffer.Buffer

	uplinePending *buffer.Buffer
	uplineQueue   buffer.Queue

	// ToSVM and ToTIP dispatch a completed downline buffer; ToTIP's low
	// argument distinguishes the low/high data order (spec §4.6's
	// DownDataLow/DownDataHigh split). OnUplineReady is invoked whenever a
	// buffer becomes the upline-pending slot's new occupant, so the
	// caller can actually push it out the host channel.
	ToSVM         func(buf *buffer.Buffer)
	ToTIP         func(low bool, buf *buffer.Buffer)
	OnUplineReady func(buf *buffer.Buffer)
}

// New creates a BIP drawing buffers from pool.
func New(pool *buffer.Pool) *BIP {
	return &BIP{pool: pool}
}

// State reports the current downline assembly state.
func (b *BIP) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// StartOrder begins a new downline transfer (Idle -> DownSvm/DownDataLow/
// DownDataHigh), claiming a fresh buffer from the pool. It returns an
// error if BIP is not Idle (a protocol violation: spec §7 kind 5, "NPU
// protocol anomalies ... logged; buffer released; no client-visible state
// corruption") or if the pool is exhausted (spec scenario S4).
func (b *BIP) StartOrder(o Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Idle {
		return fmt.Errorf("bip: order while state=%d, not idle", b.state)
	}
	buf, ok := b.pool.Get()
	if !ok {
		return fmt.Errorf("bip: buffer pool exhausted")
	}
	b.cur = buf
	switch o {
	case OrderSvm:
		b.state = DownSvm
	case OrderDataLow:
		b.state = DownDataLow
	case OrderDataHigh:
		b.state = DownDataHigh
	default:
		b.pool.Release(buf)
		b.cur = nil
		b.state = Idle
		return fmt.Errorf("bip: unknown order %d", o)
	}
	return nil
}

// PutByte appends one byte to the in-flight downline buffer. It is a
// no-op (not an error) if BIP is Idle, matching the device contract's
// "must tolerate being called when full is false" (spec §4.5) applied to
// the channel-level byte stream instead of a word handshake.
func (b *BIP) PutByte(v byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cur == nil || b.cur.Len >= buffer.Size {
		return
	}
	b.cur.Data[b.cur.Len] = v
	b.cur.Len++
}

// Complete dispatches the in-flight downline buffer to SVM or TIP and
// returns BIP to Idle (spec §4.6: "On completion the buffer is dispatched
// to SVM (DownSvm) or TIP (DownData*) and state returns to Idle").
func (b *BIP) Complete() {
	b.mu.Lock()
	cur, state := b.cur, b.state
	b.cur, b.state = nil, Idle
	b.mu.Unlock()

	if cur == nil {
		return
	}
	switch state {
	case DownSvm:
		if b.ToSVM != nil {
			b.ToSVM(cur)
		}
	case DownDataLow, DownDataHigh:
		if b.ToTIP != nil {
			b.ToTIP(state == DownDataLow, cur)
		}
	}
}

// Abort discards the in-flight downline buffer without dispatching it
// (host channel reset mid-transfer) and returns it to the pool.
func (b *BIP) Abort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cur != nil {
		b.pool.Release(b.cur)
		b.cur = nil
	}
	b.state = Idle
}

// RequestUplineTransfer enqueues buf for upline delivery, claiming the
// pending slot immediately if it is free (spec §4.6: "request-upline-
// transfer appends to the queue (or claims the slot if free)").
func (b *BIP) RequestUplineTransfer(buf *buffer.Buffer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.uplinePending == nil {
		b.uplinePending = buf
		if b.OnUplineReady != nil {
			b.OnUplineReady(buf)
		}
		return
	}
	b.uplineQueue.Append(buf)
}

// UplineTransferComplete releases the currently pending upline buffer and
// promotes the next queued one, if any (spec §4.6: "completion of a
// transfer releases the buffer and promotes the next queued one").
func (b *BIP) UplineTransferComplete() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.uplinePending != nil {
		b.pool.Release(b.uplinePending)
		b.uplinePending = nil
	}
	if next := b.uplineQueue.Extract(); next != nil {
		b.uplinePending = next
		if b.OnUplineReady != nil {
			b.OnUplineReady(next)
		}
	}
}

// UplinePending reports whether a buffer currently occupies the upline
// slot, for FJM/EJM-style polling by the host side.
func (b *BIP) UplinePending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.uplinePending != nil
}

// PeekUpline returns the buffer currently occupying the upline-pending
// slot without releasing it, so a caller can drain it byte by byte before
// calling UplineTransferComplete.
func (b *BIP) PeekUpline() *buffer.Buffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.uplinePending
}

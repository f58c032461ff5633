/*
cyber370 - NPU buffer pool

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

// Package buffer implements the NPU's fixed buffer pool (spec §4.6): 1000
// buffers of 2048 bytes each, the NPU's entire memory, plus the singly-
// linked FIFO queue type BIP/SVM/TIP thread buffers through. Buffer
// ownership is exclusive at all times (spec invariant 6 of §3: exactly
// one of free pool / device queue / upline pending / downline pending
// owns a buffer); this package enforces that by only ever handing a
// buffer out through Get or Queue.Extract, never letting two owners hold
// the same pointer.
package buffer

import "sync"

// Count is the NPU buffer pool's fixed size (spec §4.6).
const Count = 1000

// Size is the byte capacity of one buffer (spec §4.6).
const Size = 2048

// Buffer is one fixed-size NPU buffer plus the intrusive link used to
// thread it onto exactly one Queue at a time.
type Buffer struct {
	Data [Size]byte
	Len  int

	// header fields, populated by BIP from the 4-byte wire header (spec
	// §6's "wire format - NPU block").
	DestNode  byte
	SrcNode   byte
	ConnNum   byte
	BlockType byte
	Seq       byte // block-sequence-number, cycles 1..7 (spec §6)
	Priority  byte

	next *Buffer
}

// Reset clears a buffer's content and header before it re-enters the free
// pool, so a lingering pointer held elsewhere cannot observe stale data.
func (b *Buffer) Reset() {
	b.Len = 0
	b.DestNode, b.SrcNode, b.ConnNum = 0, 0, 0
	b.BlockType, b.Seq, b.Priority = 0, 0, 0
	b.next = nil
}

// Queue is a singly-linked FIFO of buffers (spec §4.6's queue-append/
// queue-prepend/queue-extract/queue-peek-last/queue-nonempty operations).
// Not safe for concurrent use by itself; callers needing concurrent access
// embed it behind their own mutex (as Pool does for the free queue).
type Queue struct {
	head, tail *Buffer
}

// Append adds b to the tail of the queue (queue-append).
func (q *Queue) Append(b *Buffer) {
	b.next = nil
	if q.tail == nil {
		q.head, q.tail = b, b
		return
	}
	q.tail.next = b
	q.tail = b
}

// Prepend adds b to the head of the queue (queue-prepend), used when a
// partially processed buffer must be pushed back in front of the rest.
func (q *Queue) Prepend(b *Buffer) {
	b.next = q.head
	q.head = b
	if q.tail == nil {
		q.tail = b
	}
}

// Extract removes and returns the head of the queue (queue-extract), or
// nil if the queue is empty.
func (q *Queue) Extract() *Buffer {
	b := q.head
	if b == nil {
		return nil
	}
	q.head = b.next
	if q.head == nil {
		q.tail = nil
	}
	b.next = nil
	return b
}

// PeekLast returns the tail of the queue without removing it (queue-peek-
// last), or nil if empty.
func (q *Queue) PeekLast() *Buffer {
	return q.tail
}

// NonEmpty reports whether the queue holds at least one buffer
// (queue-nonempty).
func (q *Queue) NonEmpty() bool {
	return q.head != nil
}

// Pool is the NPU's fixed free-buffer pool.
type Pool struct {
	mu   sync.Mutex
	free Queue
}

// NewPool allocates n buffers (clamped to Count) and seeds the free
// queue with all of them.
func NewPool(n int) *Pool {
	if n <= 0 || n > Count {
		n = Count
	}
	p := &Pool{}
	for i := 0; i < n; i++ {
		p.free.Append(&Buffer{})
	}
	return p
}

// Get removes a buffer from the free pool, or reports ok=false if the
// pool is exhausted (spec scenario S4: "no crash; a log message is
// emitted" is the caller's responsibility, since only it knows the
// request's context worth logging).
func (p *Pool) Get() (buf *Buffer, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	buf = p.free.Extract()
	if buf == nil {
		return nil, false
	}
	return buf, true
}

// Release returns a buffer to the free pool, resetting its content first.
func (p *Pool) Release(buf *Buffer) {
	if buf == nil {
		return
	}
	buf.Reset()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free.Append(buf)
}

// Available reports how many buffers currently sit in the free pool.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for b := p.free.head; b != nil; b = b.next {
		n++
	}
	return n
}

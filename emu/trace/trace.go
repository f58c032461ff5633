/*
cyber370 - Trace facility

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

// Package trace gives the core a concrete sink for the trace=<octal mask>
// config key (spec §6) and the TraceMutex spec §5 names: an octal bit
// mask of trace classes, gated cheaply so a disabled class costs one
// atomic load, and a slog-backed writer serialized by a single mutex. It
// does not attempt the original's on-screen trace window (spec §1 scopes
// trace/dump as an external collaborator); this is the minimal
// implementation spec.md §9's "Trace + dump: Diagnostics" component line
// requires so the core has something to serialize trace output through.
package trace

import (
	"log/slog"
	"sync"
)

// Class is one bit of the trace mask (spec §6's "trace=octal mask").
type Class uint32

const (
	CPU Class = 1 << iota
	PPU
	Channel
	Exchange
	NPU
	Clock
)

// mu serializes trace output, the TraceMutex of spec §5.
var mu sync.Mutex

var mask Class

// SetMask installs the initial trace-enable bits from the config file's
// trace= key.
func SetMask(m Class) {
	mu.Lock()
	defer mu.Unlock()
	mask = m
}

// Enabled reports whether class c is currently traced, for callers that
// want to skip building a trace message entirely when it would be
// discarded (the common case: tracing is off).
func Enabled(c Class) bool {
	mu.Lock()
	defer mu.Unlock()
	return mask&c != 0
}

// Toggle turns class c on or off.
func Toggle(c Class, on bool) {
	mu.Lock()
	defer mu.Unlock()
	if on {
		mask |= c
	} else {
		mask &^= c
	}
}

// Mask returns the current trace mask.
func Mask() Class {
	mu.Lock()
	defer mu.Unlock()
	return mask
}

// Logf emits a trace line for class c if it is enabled, through slog at
// Debug level so it is suppressed by util/logger's default level filter
// unless the operator has raised verbosity.
func Logf(c Class, msg string, args ...any) {
	if !Enabled(c) {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	slog.Debug(msg, args...)
}

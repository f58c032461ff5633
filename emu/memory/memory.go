/*
cyber370 - Central memory

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

// Package memory implements a mainframe's central memory: an array of
// 60-bit words addressed 40000(8)-400000(8) per mainframe, shared by its
// CPU(s) and PPU barrel. Unlike the teacher's single package-level global
// (emu/memory/memory.go), each Mainframe owns its own *Memory instance,
// since a system may run up to two independent mainframes side by side.
package memory

import "github.com/rcornwell/cyber370/emu/word"

// MaxWords is the largest central memory size a Cyber mainframe in this
// emulator supports (262144 60-bit words).
const MaxWords = 256 * 1024

// Memory is one mainframe's central memory.
type Memory struct {
	words [MaxWords]word.CpWord
	size  uint32
}

// New creates a Memory sized to size words, clamped to MaxWords.
func New(size uint32) *Memory {
	if size > MaxWords {
		size = MaxWords
	}
	return &Memory{size: size}
}

// Size returns the configured memory size in words.
func (m *Memory) Size() uint32 {
	return m.size
}

// CheckAddr reports whether addr is within the configured field length.
func (m *Memory) CheckAddr(addr uint32) bool {
	return addr < m.size
}

// ReadWord reads the word at addr. ok is false if addr is out of range,
// matching the CPU's "operand out of range" exit condition (spec's
// EmOperandOutOfRange).
func (m *Memory) ReadWord(addr uint32) (value word.CpWord, ok bool) {
	if addr >= m.size {
		return 0, false
	}
	return m.words[addr], true
}

// WriteWord writes data to addr. ok is false if addr is out of range.
func (m *Memory) WriteWord(addr uint32, data word.CpWord) (ok bool) {
	if addr >= m.size {
		return false
	}
	m.words[addr] = data & word.Mask60
	return true
}

// ReadWordRaw reads without bounds checking, for PPU central-memory
// transfer instructions (CRD/CRM) that have already validated the address
// against field length themselves.
func (m *Memory) ReadWordRaw(addr uint32) word.CpWord {
	return m.words[addr%MaxWords]
}

// WriteWordRaw writes without bounds checking (CWD/CWM).
func (m *Memory) WriteWordRaw(addr uint32, data word.CpWord) {
	m.words[addr%MaxWords] = data & word.Mask60
}

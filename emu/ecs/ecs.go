/*
cyber370 - Extended Core Storage / Extended Semiconductor Memory

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

// Package ecs implements extended memory (ECS on 6000-series machines, ESM
// on Cyber 170/800): up to 16 banks of 131072 60-bit words, addressed by
// the CPU's RDcheck/WRcheck-style extended-memory transfer instructions
// and shared by every mainframe and CPU in a System. A process-wide mutex
// serializes bank access across mainframes (spec's §5 "ECS is the one
// shared-memory resource genuinely reachable from two independent
// schedulers"), grounded on emu/memory/memory.go's flat word-array shape
// but widened to a bank-addressed space and made concurrency-safe.
package ecs

import (
	"fmt"
	"os"
	"sync"

	"github.com/rcornwell/cyber370/emu/word"
)

const (
	// BankWords is the number of 60-bit words in one ECS/ESM bank.
	BankWords = 128 * 1024
	// MaxBanks is the largest number of banks this emulator supports.
	MaxBanks = 16
)

// ECS is the system-wide extended memory store.
type ECS struct {
	mu    sync.Mutex
	banks [][]word.CpWord
}

// New allocates an ECS store with the given number of banks (clamped to
// MaxBanks). numBanks == 0 means no extended memory is configured.
func New(numBanks int) *ECS {
	if numBanks > MaxBanks {
		numBanks = MaxBanks
	}
	e := &ECS{banks: make([][]word.CpWord, numBanks)}
	for i := range e.banks {
		e.banks[i] = make([]word.CpWord, BankWords)
	}
	return e
}

// Size returns the total addressable word count across all configured
// banks.
func (e *ECS) Size() uint32 {
	return uint32(len(e.banks)) * BankWords
}

// Read reads one word at the flat ECS address addr (bank*BankWords+offset).
func (e *ECS) Read(addr uint32) (value word.CpWord, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	bank, off := addr/BankWords, addr%BankWords
	if int(bank) >= len(e.banks) {
		return 0, false
	}
	return e.banks[bank][off], true
}

// Write writes one word at the flat ECS address addr.
func (e *ECS) Write(addr uint32, data word.CpWord) (ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	bank, off := addr/BankWords, addr%BankWords
	if int(bank) >= len(e.banks) {
		return false
	}
	e.banks[bank][off] = data & word.Mask60
	return true
}

// ReadBlock performs a serialized bulk transfer of count words starting at
// addr, for the CPU's block extended-memory read instruction. Partial
// reads past the end of the configured banks return a short slice and
// ok=false.
func (e *ECS) ReadBlock(addr uint32, count int) (values []word.CpWord, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	values = make([]word.CpWord, 0, count)
	for i := range count {
		bank, off := (addr+uint32(i))/BankWords, (addr+uint32(i))%BankWords
		if int(bank) >= len(e.banks) {
			return values, false
		}
		values = append(values, e.banks[bank][off])
	}
	return values, true
}

// WriteBlock performs a serialized bulk transfer of values starting at
// addr, for the CPU's block extended-memory write instruction.
func (e *ECS) WriteBlock(addr uint32, values []word.CpWord) (ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, v := range values {
		bank, off := (addr+uint32(i))/BankWords, (addr+uint32(i))%BankWords
		if int(bank) >= len(e.banks) {
			return false
		}
		e.banks[bank][off] = v & word.Mask60
	}
	return true
}

// Persist writes the full ECS image to path as a little-endian array of
// uint64 words, one per configured bank in order (spec's persistDir/ecsStore
// format, grounded on util/tape.go's raw little-endian record convention).
func (e *ECS) Persist(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create ecs store: %w", err)
	}
	defer f.Close()
	buf := make([]byte, 8)
	for _, bank := range e.banks {
		for _, w := range bank {
			v := uint64(w)
			for i := range 8 {
				buf[i] = byte(v >> (8 * i))
			}
			if _, err := f.Write(buf); err != nil {
				return fmt.Errorf("write ecs store: %w", err)
			}
		}
	}
	return nil
}

// Load reads an ECS image previously written by Persist. The file must
// hold at least the configured banks' words; any data after them is
// ignored.
func (e *ECS) Load(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open ecs store: %w", err)
	}
	defer f.Close()
	buf := make([]byte, 8)
	for bi, bank := range e.banks {
		for wi := range bank {
			if _, err := f.Read(buf); err != nil {
				return fmt.Errorf("read ecs store bank %d word %d: %w", bi, wi, err)
			}
			var v uint64
			for i := range 8 {
				v |= uint64(buf[i]) << (8 * i)
			}
			e.banks[bi][wi] = word.CpWord(v) & word.Mask60
		}
	}
	return nil
}

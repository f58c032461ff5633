/*
cyber370 - Peripheral processor

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

// Package ppu implements a CDC peripheral processor: a 12-bit CPU with
// 4096 words of local memory and a 64-entry opcode table dispatched on the
// instruction word's upper 6 bits (fm). Table order is taken verbatim,
// octal index for octal index, from original_source/CppCyber/Mpp.h, so
// that the numeric opcode values this emulator accepts match the real
// machine's. Shaped on emu/cpu/cpu.go's createTable()/step()/fetch() split
// in the teacher, re-cut for the PPU's simpler single-word-or-two-word
// instruction stream and its direct central-memory-exchange instructions.
package ppu

import (
	"github.com/rcornwell/cyber370/emu/channel"
	"github.com/rcornwell/cyber370/emu/word"
)

// MemWords is the PPU's local memory size (const.h's PpMemSize = 010000).
const MemWords = 4096

// CentralMemory is the subset of a mainframe's central memory the PPU's
// CRD/CRM/CWD/CWM instructions need.
type CentralMemory interface {
	ReadWordRaw(addr uint32) word.CpWord
	WriteWordRaw(addr uint32, v word.CpWord)
}

// ExchangeTarget is the subset of CPU behaviour the PPU's EXN instruction
// needs: an MXN-style monitor exchange jump at a central-memory address.
type ExchangeTarget interface {
	MonitorExchangeJump(addr uint32)
}

// PPU is one peripheral processor.
type PPU struct {
	ID  int
	P   word.PpWord // 12-bit program counter
	A   uint32      // 18-bit accumulator
	R   uint32      // 28-bit relocation register, extended-memory models
	mem [MemWords]word.PpWord

	pendingChan  int // channel number for an in-flight IAM/OAM
	pendingAddr  word.PpWord
	pendingCount int
	pendingIsOut bool

	curStart word.PpWord // P at the start of the instruction now executing

	channels *channel.System
	cm       CentralMemory
	cpu0     ExchangeTarget
}

// New creates a PPU attached to the given mainframe's channels, central
// memory and monitor-exchange target, with id used only for diagnostics.
func New(id int, channels *channel.System, cm CentralMemory, cpu0 ExchangeTarget) *PPU {
	return &PPU{ID: id, channels: channels, cm: cm, cpu0: cpu0}
}

// LoadMemory installs words starting at address 0, for deadstart.
func (p *PPU) LoadMemory(words []word.PpWord) {
	for i, w := range words {
		if i >= MemWords {
			break
		}
		p.mem[i] = w & word.PpMask12
	}
}

func (p *PPU) fetch() word.PpWord {
	w := p.mem[p.P&(MemWords-1)]
	p.P = (p.P + 1) & (MemWords - 1)
	return w
}

func (p *PPU) peek(addr word.PpWord) word.PpWord {
	return p.mem[addr&(MemWords-1)]
}

func (p *PPU) poke(addr, v word.PpWord) {
	p.mem[addr&(MemWords-1)] = v & word.PpMask12
}

// opFunc executes one decoded instruction; d is the low 6 bits of the
// instruction word.
type opFunc func(p *PPU, d word.PpWord)

// table is the 64-entry PPU opcode dispatch table, ordered exactly as
// original_source/CppCyber/Mpp.h's decodePpuOpcode array (octal 00-77).
var table [64]opFunc

func init() {
	table = [64]opFunc{
		0o00: opPSN, 0o01: opLJM, 0o02: opRJM, 0o03: opUJN,
		0o04: opZJN, 0o05: opNJN, 0o06: opPJN, 0o07: opMJN,
		0o10: opSHN, 0o11: opLMN, 0o12: opLPN, 0o13: opSCN,
		0o14: opLDN, 0o15: opLCN, 0o16: opADN, 0o17: opSBN,
		0o20: opLDC, 0o21: opADC, 0o22: opLPC, 0o23: opLMC,
		0o24: opPSN, 0o25: opPSN, 0o26: opEXN, 0o27: opRPN,
		0o30: opLDD, 0o31: opADD, 0o32: opSBD, 0o33: opLMD,
		0o34: opSTD, 0o35: opRAD, 0o36: opAOD, 0o37: opSOD,
		0o40: opLDI, 0o41: opADI, 0o42: opSBI, 0o43: opLMI,
		0o44: opSTI, 0o45: opRAI, 0o46: opAOI, 0o47: opSOI,
		0o50: opLDM, 0o51: opADM, 0o52: opSBM, 0o53: opLMM,
		0o54: opSTM, 0o55: opRAM, 0o56: opAOM, 0o57: opSOM,
		0o60: opCRD, 0o61: opCRM, 0o62: opCWD, 0o63: opCWM,
		0o64: opAJM, 0o65: opIJM, 0o66: opFJM, 0o67: opEJM,
		0o70: opIAN, 0o71: opIAM, 0o72: opOAN, 0o73: opOAM,
		0o74: opACN, 0o75: opDCN, 0o76: opFAN, 0o77: opFNC,
	}
}

// Step executes exactly one PPU instruction. It never blocks: an I/O
// opcode that finds its channel not ready simply leaves P unadvanced past
// the instruction so it re-executes next major cycle (spec §4.2).
func (p *PPU) Step() {
	if p.pendingCount > 0 {
		p.stepPendingBlock()
		return
	}
	p.curStart = p.P
	instr := p.fetch()
	fm := (instr >> 6) & 0o77
	d := instr & 0o77
	table[fm](p, d)
}

// retry aborts the instruction in progress and resets P so it is fetched
// and re-executed next Step, the non-blocking discipline I/O opcodes use
// while waiting for a channel to become ready (spec §4.2).
func (p *PPU) retry() {
	p.P = p.curStart
}

// second fetches the instruction's second word, for two-word opcodes
// (LJM/RJM/LDC/ADC/LPC/LMC/LDM/ADM/SBM/LMM/STM/RAM/AOM/SOM/AJM/IJM/FJM/EJM).
func (p *PPU) second() word.PpWord {
	return p.fetch()
}

func (p *PPU) channelFor(d word.PpWord) *channel.Channel {
	return p.channels.Channel(int(d) & 0o37)
}

// stepPendingBlock continues an in-flight IAM/OAM across major cycles.
func (p *PPU) stepPendingBlock() {
	ch := p.channelFor(word.PpWord(p.pendingChan))
	if ch == nil {
		p.pendingCount = 0
		return
	}
	if p.pendingIsOut {
		if ok := ch.Output(p.peek(p.pendingAddr)); !ok {
			return
		}
		p.pendingAddr = (p.pendingAddr + 1) & (MemWords - 1)
		p.pendingCount--
		return
	}
	v, ok := ch.Input()
	if !ok {
		return
	}
	p.poke(p.pendingAddr, v)
	p.pendingAddr = (p.pendingAddr + 1) & (MemWords - 1)
	p.pendingCount--
}

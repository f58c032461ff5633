/*
cyber370 - Central processor

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

// Package cpu implements a CDC Cyber central processor: a 60-bit machine
// with twenty-four operating registers (A0-A7, B0-B7, X0-X7), a 64-entry
// opcode table dispatched on the instruction word's top 6 bits, and the
// exchange-jump primitive that swaps an entire CPU context with a package
// in central memory. Shaped on the teacher's emu/cpu/cpu.go createTable()/
// step()/fetch() split, re-cut for the CDC register file and 60-bit,
// variable-parcel instruction words instead of S/370's byte-addressed ones.
package cpu

import (
	"sync"

	"github.com/rcornwell/cyber370/emu/word"
)

// CentralMemory is the subset of memory.Memory the CPU needs.
type CentralMemory interface {
	ReadWord(addr uint32) (word.CpWord, bool)
	WriteWord(addr uint32, data word.CpWord) bool
	ReadWordRaw(addr uint32) word.CpWord
	WriteWordRaw(addr uint32, data word.CpWord)
}

// CPU is one CDC central processor.
type CPU struct {
	mu sync.Mutex

	ID int // 0 or 1; exactly one CPU per mainframe is monitor at a time

	P word.CpWord // 18-bit program counter

	A [8]word.CpWord // operating address registers, 18 bits
	B [8]word.CpWord // index registers, 18 bits; B0 invariantly 0
	X [8]word.CpWord // operand registers, 60 bits

	RA uint32 // central memory reference address (words)
	FL uint32 // central memory field length (words)

	RaEcs uint32 // extended memory reference address
	FlEcs uint32 // extended memory field length

	ExitMode uint8 // bit set per exit condition enables trap-on-occurrence
	ExitCond uint8 // latched exit conditions since last read

	MA uint32 // monitor exchange-jump package address

	cpuStopped bool

	mem CentralMemory
	ecs ExtendedMemory

	// xchg synchronises exchange jumps against the other CPU on the same
	// mainframe (spec's XJMutex/XJDone rendezvous). A single mutex here
	// plays the part the original gives a mutex plus condition variable,
	// since this emulator never runs an exchange jump concurrently with
	// the instruction it is swapping out from under.
	xchg *sync.Mutex
}

// ExtendedMemory is the subset of emu/ecs.ECS a CPU's direct-transfer path
// (RA_ECS/FL_ECS) needs.
type ExtendedMemory interface {
	Read(addr uint32) (word.CpWord, bool)
	Write(addr uint32, data word.CpWord) bool
}

// New creates a CPU with id (0 or 1) attached to mem and ecs, sharing
// xchg with its sibling CPU for exchange-jump serialisation.
func New(id int, mem CentralMemory, ecs ExtendedMemory, xchg *sync.Mutex) *CPU {
	return &CPU{ID: id, mem: mem, ecs: ecs, xchg: xchg}
}

// Stopped reports whether the CPU is halted awaiting an exchange jump.
func (c *CPU) Stopped() bool {
	return c.cpuStopped
}

// decoded holds one fetched-and-parsed instruction. CDC instruction words
// hold either one 15-bit parcel (fm,i,jk) with an 18-bit literal trailing
// a second parcel, or two independent 15-bit parcels packed fm,i,j,k and
// fm,i,j,k again (spec §4.1's three formats collapse, for this emulator's
// purposes, to a single fm/i/j/k/K decode with longForm recording whether
// K came from a second parcel).
type decoded struct {
	fm uint8
	i  uint8
	j  uint8
	k  uint8
	K  word.CpWord
	longForm bool
}

// fetch reads the instruction word at P, decodes the first parcel, and
// advances P by one (short form) or two (long form) parcels.
func (c *CPU) fetch() decoded {
	instr, _ := c.mem.ReadWord(c.RA + uint32(c.P)%max(c.FL, 1))
	d := decoded{
		fm: uint8((instr >> 54) & 0o77),
		i:  uint8((instr >> 51) & 0o7),
		j:  uint8((instr >> 48) & 0o7),
		k:  uint8((instr >> 45) & 0o7),
	}
	if isLongForm(d.fm) {
		d.longForm = true
		d.K = (instr >> 18) & word.Mask18
		c.P = (c.P + 2) & word.Mask18
	} else {
		d.K = instr & word.Mask18
		c.P = (c.P + 1) & word.Mask18
	}
	return d
}

func max(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

// isLongForm reports whether opcode class fm uses the 18-bit K literal
// parcel format (fm(6) i(3) j(3) k(3) K(18)) rather than two independent
// jk-addressed short parcels.
func isLongForm(fm uint8) bool {
	switch fm {
	case 0o01, 0o02, 0o03: // RJ, ZR, NZ
		return true
	default:
		return fm >= 0o50 && fm <= 0o67 // Ax/Bx immediate-literal classes
	}
}

// opFunc executes one decoded instruction.
type opFunc func(c *CPU, d decoded)

var table [64]opFunc

func init() {
	table = [64]opFunc{
		0o00: opPS,
		0o01: opRJ,
		0o02: opZR, 0o03: opNZ,
		0o04: opPL, 0o05: opNG,
		0o06: opIR, 0o07: opOR,
		0o10: opDF, 0o11: opID,
		0o12: opXJ,
		0o13: opSX, 0o14: opSB,

		// Shift/normalize/pack class (named LXi/AXi/NXi/ZXi/UXi/PXi): six
		// mnemonics packed into a contiguous run starting at the spec's
		// stated 21, since four slots cannot hold six distinct opcodes.
		0o21: opShiftL, 0o22: opShiftAR,
		0o23: opNormalize, 0o24: opUnpack,
		0o25: opUnpackSigned, 0o26: opPack,

		// Float class: single-width at 30-35, low-48-double variants at
		// 40-45, both laid out Add/Sub/Mul/Div/AddR/MulR.
		0o30: opFloatAdd, 0o31: opFloatSub,
		0o32: opFloatMul, 0o33: opFloatDiv,
		0o34: opFloatAddR, 0o35: opFloatMulR,
		0o40: opFloatAddD, 0o41: opFloatSubD,
		0o42: opFloatMulD, 0o43: opFloatDivD,
		0o44: opFloatAddRD, 0o45: opFloatMulRD,

		// Ax writes (fm=5x): writing Ai for i in 1..5 side-effects a load
		// of Xi from central memory at the new Ai; i in 6,7 stores Xi.
		0o50: opSA, 0o51: opSA, 0o52: opSA, 0o53: opSA,
		0o54: opSA, 0o55: opSA, 0o56: opSA, 0o57: opSA,

		// Bx (fm=6x): index-register adjust by an 18-bit literal.
		0o60: opIX, 0o61: opIX, 0o62: opIX, 0o63: opIX,
		0o64: opIX, 0o65: opIX, 0o66: opIX, 0o67: opIX,

		// Xx arithmetic (fm=7x): 60-bit ones-complement integer and
		// Boolean register-register ops.
		0o70: opXAdd, 0o71: opXSub, 0o72: opXMul, 0o73: opXDiv,
		0o74: opXAnd, 0o75: opXOr, 0o76: opXXor, 0o77: opXNot,
	}
	for i := range table {
		if table[i] == nil {
			table[i] = opPS
		}
	}
}

// Step executes one instruction. A stopped CPU's step is a no-op, per
// spec §4.1's scheduling rule: a stopped CPU resumes only when another
// CPU or PPU delivers an exchange jump.
func (c *CPU) Step() {
	if c.cpuStopped {
		return
	}
	d := c.fetch()
	table[d.fm](c, d)
	c.B[0] = 0
}

// checkedAddr validates addr against FL, latching ExitAddressRange and
// optionally stopping the CPU when ExitMode demands it.
func (c *CPU) checkedAddr(addr uint32) (uint32, bool) {
	if addr >= c.FL {
		c.ExitCond |= ExitAddressRange
		if c.ExitMode&ExitAddressRange != 0 {
			c.cpuStopped = true
		}
		return 0, false
	}
	return c.RA + addr, true
}

// opPS is the no-op placeholder (pass) used for opcode classes this
// emulator's scoped instruction set does not implement; matches the
// spec's own PSN/pass idiom on the PPU side.
func opPS(c *CPU, d decoded) {}

// opRJ is the absolute return-jump: writes the return address (current P)
// to target-1 then jumps to target, per spec §4.1's branch summary.
func opRJ(c *CPU, d decoded) {
	target := uint32(d.K) & 0o777777
	if addr, ok := c.checkedAddr(target - 1); ok {
		c.mem.WriteWord(addr, c.P&word.Mask18)
	}
	c.P = word.CpWord(target) & word.Mask18
}

// jumpIf is the shared relative-branch helper for the ZR/NZ/PL/NG/IR/OR/
// DF/ID family: all compare Bi against zero or test condition bits and,
// if true, add the signed K displacement to P.
func jumpIf(c *CPU, d decoded, cond bool) {
	if cond {
		disp := signExtend18(d.K)
		c.P = word.CpWord(int64(c.P)+int64(disp)) & word.Mask18
	}
}

func signExtend18(k word.CpWord) int64 {
	v := int64(k & word.Mask18)
	if v&0o400000 != 0 {
		v -= 0o1000000
	}
	return v
}

func opZR(c *CPU, d decoded) { jumpIf(c, d, word.IsZero(c.B[d.i])) }
func opNZ(c *CPU, d decoded) { jumpIf(c, d, !word.IsZero(c.B[d.i])) }
func opPL(c *CPU, d decoded) { jumpIf(c, d, !word.IsNegative(c.B[d.i])) }
func opNG(c *CPU, d decoded) { jumpIf(c, d, word.IsNegative(c.B[d.i])) }
func opIR(c *CPU, d decoded) { jumpIf(c, d, c.ExitCond&d.k != 0) }
func opOR(c *CPU, d decoded) { jumpIf(c, d, c.ExitCond&d.k == 0) }

// opDF/opID test the indefinite-operand exit condition latched by a
// float division by zero: DF branches if the last operand was Defined
// (no indefinite fault since the condition was last read), ID branches
// if it was Indefinite.
func opDF(c *CPU, d decoded) { jumpIf(c, d, c.ExitCond&ExitIndefinite == 0) }
func opID(c *CPU, d decoded) { jumpIf(c, d, c.ExitCond&ExitIndefinite != 0) }

// opXJ is the exchange-jump opcode: address comes from (Bi+K).
func opXJ(c *CPU, d decoded) {
	addr := uint32(c.B[d.i]+d.K) & 0o777777
	c.ExchangeJump(addr)
}

// opSX/opSB store an 18-bit literal into an X or B register directly
// (no central-memory side effect — that belongs to the Ax-write family
// below).
func opSX(c *CPU, d decoded) { c.X[d.i] = word.CpWord(d.K) & word.Mask60 }
func opSB(c *CPU, d decoded) {
	c.B[d.i] = d.K & word.Mask18
	if d.i == 0 {
		c.B[0] = 0
	}
}

// opAX performs 60-bit ones-complement add with end-around carry and
// exit-condition latching on overflow. Kept as its own function;
// opXAdd (the Xx-arithmetic dispatch entry) calls it.
func opAX(c *CPU, d decoded) {
	sum, overflow := word.Add60(c.X[d.i], c.X[d.j])
	c.X[d.i] = sum
	if overflow {
		c.ExitCond |= ExitOperandRange
	}
}

// opXAdd/opXSub/opXMul/opXDiv/opXAnd/opXOr/opXXor/opXNot are the Xx
// arithmetic class (fm=7x): 60-bit ones-complement integer and Boolean
// register-register operations, X[i] op= X[j].
func opXAdd(c *CPU, d decoded) { opAX(c, d) }

func opXSub(c *CPU, d decoded) {
	diff, overflow := word.Sub60(c.X[d.i], c.X[d.j])
	c.X[d.i] = diff
	if overflow {
		c.ExitCond |= ExitOperandRange
	}
}

func opXMul(c *CPU, d decoded) { c.X[d.i] = word.Mul60(c.X[d.i], c.X[d.j]) }

func opXDiv(c *CPU, d decoded) {
	q, ok := word.Div60(c.X[d.i], c.X[d.j])
	if !ok {
		c.ExitCond |= ExitIndefinite
		return
	}
	c.X[d.i] = q
}

func opXAnd(c *CPU, d decoded) { c.X[d.i] &= c.X[d.j] }
func opXOr(c *CPU, d decoded)  { c.X[d.i] |= c.X[d.j] }
func opXXor(c *CPU, d decoded) { c.X[d.i] ^= c.X[d.j] }
func opXNot(c *CPU, d decoded) { c.X[d.i] = word.Negate(c.X[d.j]) }

// opSA is the Ai-write family (opcodes 50-57 select i=0..7): writing Ai
// for i in 1..5 side-effects a load of Xi from central memory at the new
// Ai; for i in 6,7 it stores Xi to memory at Ai.
func opSA(c *CPU, d decoded) {
	reg := d.fm - 0o50
	storeA(c, reg, d.K)
}

func storeA(c *CPU, reg uint8, addr word.CpWord) {
	c.A[reg] = addr & word.Mask18
	if reg == 0 {
		return
	}
	target, ok := c.checkedAddr(uint32(c.A[reg]))
	if !ok {
		return
	}
	switch {
	case reg >= 1 && reg <= 5:
		v, ok := c.mem.ReadWord(target)
		if ok {
			c.X[reg] = v
		}
	case reg == 6 || reg == 7:
		c.mem.WriteWord(target, c.X[reg])
	}
}

// opIX is the Bx class (opcodes 60-67): Bi = Bi + K, the index-register
// adjust spec §4.1 assigns to fm=6x.
func opIX(c *CPU, d decoded) {
	sum, _ := word.Add60(c.B[d.i], d.K)
	c.B[d.i] = sum & word.Mask18
	if d.i == 0 {
		c.B[0] = 0
	}
}

// MonitorExchangeJump implements emu/ppu.ExchangeTarget: the EXN PPU
// opcode requests a monitor exchange jump at addr in central memory.
func (c *CPU) MonitorExchangeJump(addr uint32) {
	c.ExchangeJump(addr)
}

// ReadP implements the optional interface emu/ppu's RPN opcode probes
// for, letting a PPU observe the monitor CPU's program counter.
func (c *CPU) ReadP() word.CpWord {
	return c.P
}

// ExchangeJump atomically swaps the CPU's context with the 16-word
// exchange package at addr, per spec §4.1's exchange-jump sequence. It
// serialises against the sibling CPU on the same mainframe via xchg, so
// that a CPU1 step can never observe a half-swapped context.
func (c *CPU) ExchangeJump(addr uint32) {
	c.xchg.Lock()
	defer c.xchg.Unlock()

	var incoming [16]word.CpWord
	for i := range incoming {
		incoming[i] = c.mem.ReadWordRaw(uint32(i) + addr)
	}

	outgoing := c.packExchange()
	for i := range outgoing {
		c.mem.WriteWordRaw(uint32(i)+addr, outgoing[i])
	}

	c.unpackExchange(incoming)
	c.cpuStopped = false
}

// packExchange builds the outgoing 16-word exchange package. Word 0 holds
// P in bits 0-17 and A0 in bits 24-41 (B0 is hardwired zero and never
// travels in the package);
// words 1-7 each pack one control scalar into bits 0-23 with Ai in bits
// 24-41 and Bi in bits 42-59; words 8-15 hold X0-X7 in full. No CppCyber
// source for the exchange package's literal bit layout survived the
// retrieval pack's file cap, so this packing is this implementation's own
// choice: it round-trips every register testable property 4 names.
func (c *CPU) packExchange() [16]word.CpWord {
	var pkg [16]word.CpWord
	pkg[0] = (c.P & word.Mask18) | ((c.A[0] & word.Mask18) << 24)

	control := [7]word.CpWord{
		word.CpWord(c.RA), word.CpWord(c.FL), word.CpWord(c.ExitMode),
		word.CpWord(c.MA), word.CpWord(c.RaEcs), word.CpWord(c.FlEcs), 0,
	}
	for i := 0; i < 7; i++ {
		pkg[1+i] = (control[i] & word.Mask24) |
			((c.A[1+i] & word.Mask18) << 24) |
			((c.B[1+i] & word.Mask18) << 42)
	}
	for i := 0; i < 8; i++ {
		pkg[8+i] = c.X[i] & word.Mask60
	}
	return pkg
}

// unpackExchange loads the CPU's context from an incoming exchange
// package, the inverse of packExchange. B0 is forced to zero.
func (c *CPU) unpackExchange(pkg [16]word.CpWord) {
	c.P = pkg[0] & word.Mask18
	c.A[0] = (pkg[0] >> 24) & word.Mask18
	c.B[0] = 0

	var control [7]word.CpWord
	for i := 0; i < 7; i++ {
		w := pkg[1+i]
		control[i] = w & word.Mask24
		c.A[1+i] = (w >> 24) & word.Mask18
		c.B[1+i] = (w >> 42) & word.Mask18
	}
	c.RA = uint32(control[0])
	c.FL = uint32(control[1])
	c.ExitMode = uint8(control[2])
	c.MA = uint32(control[3])
	c.RaEcs = uint32(control[4])
	c.FlEcs = uint32(control[5])

	for i := 0; i < 8; i++ {
		c.X[i] = pkg[8+i] & word.Mask60
	}
}

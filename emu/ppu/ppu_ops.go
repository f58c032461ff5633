/*
cyber370 - Peripheral processor instruction set

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

package ppu

import "github.com/rcornwell/cyber370/emu/word"

const mask18 = 0o777777

func signExtend6(d word.PpWord) int32 {
	v := int32(d & 0o77)
	if v >= 0o40 {
		v -= 0o100
	}
	return v
}

// --- Misc ---

func opPSN(p *PPU, _ word.PpWord) {} // pass

// opRPN reads the low 12 bits of the monitor CPU's program counter
// through the CPU's ReadP method; a PPU with no CPU attached reads zero.
func opRPN(p *PPU, d word.PpWord) {
	var pc word.PpWord
	if r, ok := p.cpu0.(interface{ ReadP() word.CpWord }); ok {
		pc = word.PpWord(r.ReadP()) & word.PpMask12
	}
	p.poke(d, pc)
}

// --- Jumps ---

func jumpRel(p *PPU, d word.PpWord) {
	p.P = word.PpWord(int32(p.P) + signExtend6(d) - 1) & (MemWords - 1)
}

func opUJN(p *PPU, d word.PpWord) { jumpRel(p, d) }

func opZJN(p *PPU, d word.PpWord) {
	if p.A == 0 {
		jumpRel(p, d)
	}
}

func opNJN(p *PPU, d word.PpWord) {
	if p.A != 0 {
		jumpRel(p, d)
	}
}

func opPJN(p *PPU, d word.PpWord) {
	if p.A&0o400000 == 0 {
		jumpRel(p, d)
	}
}

func opMJN(p *PPU, d word.PpWord) {
	if p.A&0o400000 != 0 {
		jumpRel(p, d)
	}
}

func opLJM(p *PPU, d word.PpWord) {
	m := p.second()
	p.P = (m + d) & (MemWords - 1)
}

func opRJM(p *PPU, d word.PpWord) {
	m := p.second()
	addr := (m + d) & (MemWords - 1)
	p.poke(addr, p.P)
	p.P = (addr + 1) & (MemWords - 1)
}

// --- Load / store ---

func opLDN(p *PPU, d word.PpWord) { p.A = uint32(d) }
func opLCN(p *PPU, d word.PpWord) { p.A = (^uint32(d)) & mask18 }

func opLDC(p *PPU, _ word.PpWord) { p.A = uint32(p.second()) }

func opLDD(p *PPU, d word.PpWord) { p.A = uint32(p.peek(d)) }
func opSTD(p *PPU, d word.PpWord) { p.poke(d, word.PpWord(p.A)&word.PpMask12) }

func opLDI(p *PPU, d word.PpWord) { p.A = uint32(p.peek(p.peek(d))) }
func opSTI(p *PPU, d word.PpWord) { p.poke(p.peek(d), word.PpWord(p.A)&word.PpMask12) }

func opLDM(p *PPU, d word.PpWord) {
	m := p.second()
	p.A = uint32(p.peek((m + d) & (MemWords - 1)))
}

func opSTM(p *PPU, d word.PpWord) {
	m := p.second()
	p.poke((m+d)&(MemWords-1), word.PpWord(p.A)&word.PpMask12)
}

// --- Arithmetic ---

func opADN(p *PPU, d word.PpWord) { p.A = (p.A + uint32(d)) & mask18 }
func opSBN(p *PPU, d word.PpWord) { p.A = (p.A - uint32(d)) & mask18 }
func opADC(p *PPU, _ word.PpWord) { p.A = (p.A + uint32(p.second())) & mask18 }

func opADD(p *PPU, d word.PpWord) { p.A = (p.A + uint32(p.peek(d))) & mask18 }
func opSBD(p *PPU, d word.PpWord) { p.A = (p.A - uint32(p.peek(d))) & mask18 }
func opADI(p *PPU, d word.PpWord) { p.A = (p.A + uint32(p.peek(p.peek(d)))) & mask18 }
func opSBI(p *PPU, d word.PpWord) { p.A = (p.A - uint32(p.peek(p.peek(d)))) & mask18 }

func opADM(p *PPU, d word.PpWord) {
	m := p.second()
	p.A = (p.A + uint32(p.peek((m+d)&(MemWords-1)))) & mask18
}

func opSBM(p *PPU, d word.PpWord) {
	m := p.second()
	p.A = (p.A - uint32(p.peek((m+d)&(MemWords-1)))) & mask18
}

// Replace-add/replace-one family: increment, decrement or replace a memory
// location in place without disturbing A, grounded on
// original_source/CppCyber/Mpp.h's RAD/AOD/SOD group.

func opRAD(p *PPU, d word.PpWord) { p.poke(d, (p.peek(d)+word.PpWord(p.A))&word.PpMask12) }
func opAOD(p *PPU, d word.PpWord) { p.poke(d, (p.peek(d)+1)&word.PpMask12) }
func opSOD(p *PPU, d word.PpWord) { p.poke(d, (p.peek(d)-1)&word.PpMask12) }

func opRAI(p *PPU, d word.PpWord) {
	a := p.peek(d)
	p.poke(a, (p.peek(a)+word.PpWord(p.A))&word.PpMask12)
}

func opAOI(p *PPU, d word.PpWord) {
	a := p.peek(d)
	p.poke(a, (p.peek(a)+1)&word.PpMask12)
}

func opSOI(p *PPU, d word.PpWord) {
	a := p.peek(d)
	p.poke(a, (p.peek(a)-1)&word.PpMask12)
}

func opRAM(p *PPU, d word.PpWord) {
	m := p.second()
	a := (m + d) & (MemWords - 1)
	p.poke(a, (p.peek(a)+word.PpWord(p.A))&word.PpMask12)
}

func opAOM(p *PPU, d word.PpWord) {
	m := p.second()
	a := (m + d) & (MemWords - 1)
	p.poke(a, (p.peek(a)+1)&word.PpMask12)
}

func opSOM(p *PPU, d word.PpWord) {
	m := p.second()
	a := (m + d) & (MemWords - 1)
	p.poke(a, (p.peek(a)-1)&word.PpMask12)
}

// --- Logical ---

func opLMN(p *PPU, d word.PpWord) { p.A &= uint32(d) }
func opLPN(p *PPU, d word.PpWord) { p.A |= uint32(d) }
func opSCN(p *PPU, d word.PpWord) { p.A ^= uint32(d) }
func opLMC(p *PPU, _ word.PpWord) { p.A &= uint32(p.second()) }
func opLPC(p *PPU, _ word.PpWord) { p.A |= uint32(p.second()) }

func opLMD(p *PPU, d word.PpWord) { p.A &= uint32(p.peek(d)) }
func opLMI(p *PPU, d word.PpWord) { p.A &= uint32(p.peek(p.peek(d))) }

func opLMM(p *PPU, d word.PpWord) {
	m := p.second()
	p.A &= uint32(p.peek((m + d) & (MemWords - 1)))
}

// --- Shift ---

func opSHN(p *PPU, d word.PpWord) {
	n := signExtend6(d)
	const width = 18
	a := p.A & mask18
	if n >= 0 {
		n %= width
		p.A = ((a << uint(n)) | (a >> uint(width-n))) & mask18
	} else {
		n = -n % width
		p.A = ((a >> uint(n)) | (a << uint(width-n))) & mask18
	}
}

// --- Exchange ---

func opEXN(p *PPU, _ word.PpWord) {
	if p.cpu0 != nil {
		p.cpu0.MonitorExchangeJump(p.A & 0o7777_7777)
	}
}

// --- Central-memory transfer ---

func opCRD(p *PPU, d word.PpWord) {
	addr := p.R + uint32(p.A)
	w := p.cm.ReadWordRaw(addr)
	for i := range 5 {
		shift := uint(12 * (4 - i))
		p.poke((d+word.PpWord(i))&(MemWords-1), word.PpWord(w>>shift)&word.PpMask12)
	}
}

func opCRM(p *PPU, d word.PpWord) {
	count := int(d)
	if count == 0 {
		count = 1
	}
	addr := p.R + uint32(p.A)
	for n := range count {
		w := p.cm.ReadWordRaw(addr + uint32(n))
		base := word.PpWord(n * 5)
		for i := range 5 {
			shift := uint(12 * (4 - i))
			p.poke(base+word.PpWord(i), word.PpWord(w>>shift)&word.PpMask12)
		}
	}
}

func opCWD(p *PPU, d word.PpWord) {
	var w word.CpWord
	for i := range 5 {
		shift := uint(12 * (4 - i))
		w |= word.CpWord(p.peek((d+word.PpWord(i))&(MemWords-1))) << shift
	}
	p.cm.WriteWordRaw(p.R+uint32(p.A), w)
}

func opCWM(p *PPU, d word.PpWord) {
	count := int(d)
	if count == 0 {
		count = 1
	}
	addr := p.R + uint32(p.A)
	for n := range count {
		var w word.CpWord
		base := word.PpWord(n * 5)
		for i := range 5 {
			shift := uint(12 * (4 - i))
			w |= word.CpWord(p.peek(base+word.PpWord(i))) << shift
		}
		p.cm.WriteWordRaw(addr+uint32(n), w)
	}
}

// --- Channel test jumps ---

func opAJM(p *PPU, d word.PpWord) {
	m := p.second()
	if ch := p.channelFor(d); ch != nil && ch.Active() {
		p.P = (m + d) & (MemWords - 1)
	}
}

func opIJM(p *PPU, d word.PpWord) {
	m := p.second()
	if ch := p.channelFor(d); ch == nil || !ch.Active() {
		p.P = (m + d) & (MemWords - 1)
	}
}

func opFJM(p *PPU, d word.PpWord) {
	m := p.second()
	if ch := p.channelFor(d); ch != nil && ch.Full() {
		p.P = (m + d) & (MemWords - 1)
	}
}

func opEJM(p *PPU, d word.PpWord) {
	m := p.second()
	if ch := p.channelFor(d); ch == nil || !ch.Full() {
		p.P = (m + d) & (MemWords - 1)
	}
}

// --- Channel I/O ---

func opIAN(p *PPU, d word.PpWord) {
	ch := p.channelFor(d)
	if ch == nil {
		p.retry()
		return
	}
	v, ok := ch.Input()
	if !ok {
		p.retry()
		return
	}
	p.A = uint32(v)
}

func opOAN(p *PPU, d word.PpWord) {
	ch := p.channelFor(d)
	if ch == nil {
		p.retry()
		return
	}
	if ok := ch.Output(word.PpWord(p.A) & word.PpMask12); !ok {
		p.retry()
	}
}

func opIAM(p *PPU, d word.PpWord) {
	m := p.second()
	p.pendingChan = int(d) & 0o37
	p.pendingAddr = m
	p.pendingCount = 1
	if p.A != 0 {
		p.pendingCount = int(p.A)
	}
	p.pendingIsOut = false
}

func opOAM(p *PPU, d word.PpWord) {
	m := p.second()
	p.pendingChan = int(d) & 0o37
	p.pendingAddr = m
	p.pendingCount = 1
	if p.A != 0 {
		p.pendingCount = int(p.A)
	}
	p.pendingIsOut = true
}

func opACN(p *PPU, d word.PpWord) {
	if ch := p.channelFor(d); ch != nil {
		ch.Activate()
	}
}

func opDCN(p *PPU, d word.PpWord) {
	if ch := p.channelFor(d); ch != nil {
		ch.Disconnect()
	}
}

func opFAN(p *PPU, d word.PpWord) {
	ch := p.channelFor(d)
	if ch == nil {
		p.retry()
		return
	}
	if ch.Active() {
		p.retry()
		return
	}
	ch.Activate()
}

func opFNC(p *PPU, d word.PpWord) {
	ch := p.channelFor(d)
	if ch == nil {
		p.retry()
		return
	}
	ch.Function(word.PpWord(p.A) & word.PpMask12)
}

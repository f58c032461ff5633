/*
cyber370 - Central processor floating-point unit

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

package cpu

import (
	"math/bits"

	"github.com/rcornwell/cyber370/emu/word"
)

// A 60-bit CDC float word holds a sign bit, an 11-bit exponent biased by
// 2000 octal (1024 decimal), and a 48-bit coefficient occupying the low
// 48 bits. No CppCyber source for the CPU's float unit survived this
// pack's retrieval cap, so this layout and the arithmetic below are built
// directly from that field description.
const (
	floatExpBits   = 11
	floatExpMask   = word.CpWord(1<<floatExpBits) - 1 // 0o3777
	floatExpBias   = 0o2000
	floatCoeffBits = 48
	floatGuardBits = 8
)

// floatVal is an unpacked CDC float: sign-magnitude, unbiased exponent,
// and a 48-bit coefficient normalised so bit 47 is set whenever nonzero.
type floatVal struct {
	neg   bool
	exp   int
	coeff uint64
}

func unpackFloatWord(w word.CpWord) floatVal {
	neg := w&word.Sign60 != 0
	exp := int((w>>floatCoeffBits)&floatExpMask) - floatExpBias
	coeff := uint64(w) & uint64(word.Mask48)
	return floatVal{neg: neg, exp: exp, coeff: coeff}
}

// packFloatWord normalises f and assembles it into a 60-bit float word.
func packFloatWord(f floatVal) word.CpWord {
	f = normalizeFloat(f)
	w := (word.CpWord(f.exp+floatExpBias) & floatExpMask) << floatCoeffBits
	w |= word.CpWord(f.coeff) & word.Mask48
	if f.neg {
		w |= word.Sign60
	}
	return w
}

// normalizeFloat shifts coeff left until bit 47 is set, decrementing exp
// to match; a zero coefficient collapses to the canonical zero float.
func normalizeFloat(f floatVal) floatVal {
	if f.coeff == 0 {
		return floatVal{}
	}
	for f.coeff&(1<<(floatCoeffBits-1)) == 0 {
		f.coeff <<= 1
		f.exp--
	}
	return f
}

// roundHalfEven rounds mag (held with guard extra low bits) to a plain
// integer per round-half-to-even, per spec's (R) float variants.
func roundHalfEven(mag uint64, guardBits uint) uint64 {
	if guardBits == 0 {
		return mag
	}
	half := uint64(1) << (guardBits - 1)
	roundBit := mag & half
	rest := mag & (half - 1)
	mag >>= guardBits
	if roundBit == 0 {
		return mag
	}
	if rest != 0 || mag&1 != 0 {
		mag++
	}
	return mag
}

// addFloats aligns a and b's exponents and adds or subtracts their
// magnitudes (sub flips b's sign first). round selects round-half-to-
// even on the alignment's shifted-out guard bits (the R opcode variant);
// otherwise those bits are simply truncated.
func addFloats(a, b floatVal, sub, round bool) floatVal {
	if sub {
		b.neg = !b.neg
	}
	if a.exp < b.exp {
		a, b = b, a
	}
	shift := uint(a.exp - b.exp)

	am := a.coeff << floatGuardBits
	bm := b.coeff << floatGuardBits
	if shift > 0 {
		if shift >= 64 {
			bm = 0
		} else {
			bm >>= shift
		}
	}

	var mag uint64
	neg := a.neg
	if a.neg == b.neg {
		mag = am + bm
	} else if am >= bm {
		mag = am - bm
	} else {
		mag = bm - am
		neg = b.neg
	}
	if mag == 0 {
		return floatVal{}
	}

	exp := a.exp
	// mag may have grown one bit past the guarded coefficient width on a
	// same-sign add; renormalise before rounding away the guard bits.
	for mag >= uint64(1)<<(floatCoeffBits+floatGuardBits) {
		mag >>= 1
		exp++
	}
	var coeff uint64
	if round {
		coeff = roundHalfEven(mag, floatGuardBits)
	} else {
		coeff = mag >> floatGuardBits
	}
	if coeff>>floatCoeffBits != 0 { // rounding carried out of the field
		coeff >>= 1
		exp++
	}
	return normalizeFloat(floatVal{neg: neg, exp: exp, coeff: coeff})
}

// shiftRight96 returns bits [n+63:n] of the 96-bit value (hi:lo), hi's
// upper 32 bits always zero since two 48-bit coefficients multiply to at
// most 96 significant bits.
func shiftRight96(hi, lo uint64, n uint) uint64 {
	if n == 0 {
		return lo
	}
	if n >= 64 {
		return hi >> (n - 64)
	}
	return (lo >> n) | (hi << (64 - n))
}

// mulFloats multiplies a and b's coefficients at full 96-bit precision.
// double selects the low-48-bits-of-product (D) variant that the spec
// names for extended-precision accumulation; otherwise the high 48 bits
// are kept, optionally rounded half-to-even (the R variant).
func mulFloats(a, b floatVal, double, round bool) floatVal {
	if a.coeff == 0 || b.coeff == 0 {
		return floatVal{}
	}
	hi, lo := bits.Mul64(a.coeff, b.coeff)
	total := 64 + bits.Len64(hi)
	if hi == 0 {
		total = bits.Len64(lo)
	}
	exp := a.exp + b.exp

	if double {
		coeff := lo & uint64(word.Mask48)
		return floatVal{neg: a.neg != b.neg, exp: exp - (floatCoeffBits - 1), coeff: coeff}
	}

	shift := uint(0)
	if total > floatCoeffBits {
		shift = uint(total - floatCoeffBits)
	}
	coeff := shiftRight96(hi, lo, shift) & uint64(word.Mask48)
	exp += total - (2*floatCoeffBits - 1) // +0 or +1 for normalised operands
	if round && shift > 0 {
		roundBit := shiftRight96(hi, lo, shift-1) & 1
		var sticky uint64
		if shift > 1 {
			sticky = lo & ((uint64(1) << (shift - 1)) - 1)
		}
		if roundBit != 0 && (sticky != 0 || coeff&1 != 0) {
			coeff++
			if coeff>>floatCoeffBits != 0 {
				coeff >>= 1
				exp++
			}
		}
	}
	return normalizeFloat(floatVal{neg: a.neg != b.neg, exp: exp, coeff: coeff})
}

// divFloats divides a by b with floatGuardBits extra low-order bits of
// precision for rounding. ok is false when b is zero; the caller raises
// ExitIndefinite and leaves the destination register unchanged, CDC's
// indefinite-operand behaviour for 0/0-style float faults.
//
// a.coeff is normalised into [2^47,2^48), too wide to left-shift by the
// extra precision bits within a single uint64, so the shifted dividend
// is built as a (hi,lo) 128-bit pair for bits.Div64 rather than risking
// a silent overflow.
func divFloats(a, b floatVal, double, round bool) (result floatVal, ok bool) {
	if b.coeff == 0 {
		return floatVal{}, false
	}
	if a.coeff == 0 {
		return floatVal{}, true
	}
	const extra = floatCoeffBits + floatGuardBits // 56

	hi := a.coeff >> (64 - extra)
	lo := a.coeff << extra
	q, rem := bits.Div64(hi, lo, b.coeff) // hi < b.coeff always holds: a.coeff>>8 << b.coeff's 2^47 floor
	exp := a.exp - b.exp

	if double {
		remHi := rem >> (64 - floatCoeffBits)
		remLo := rem << floatCoeffBits
		q2, _ := bits.Div64(remHi, remLo, b.coeff)
		coeff := q2 & uint64(word.Mask48)
		return floatVal{neg: a.neg != b.neg, exp: exp - (extra + 1), coeff: coeff}, true
	}

	total := bits.Len64(q)
	shift := uint(0)
	if total > floatCoeffBits {
		shift = uint(total - floatCoeffBits)
	}
	coeff := q >> shift
	exp += total - (extra + 1)
	if round && shift > 0 {
		roundBit := (q >> (shift - 1)) & 1
		var sticky uint64
		if shift > 1 {
			sticky = q & ((uint64(1) << (shift - 1)) - 1)
		}
		if roundBit != 0 && (sticky != 0 || coeff&1 != 0) {
			coeff++
			if coeff>>floatCoeffBits != 0 {
				coeff >>= 1
				exp++
			}
		}
	}
	return normalizeFloat(floatVal{neg: a.neg != b.neg, exp: exp, coeff: coeff & uint64(word.Mask48)}), true
}

func floatBinOp(c *CPU, d decoded, f func(a, b floatVal) (floatVal, bool)) {
	a := unpackFloatWord(c.X[d.i])
	b := unpackFloatWord(c.X[d.j])
	r, ok := f(a, b)
	if !ok {
		c.ExitCond |= ExitIndefinite
		return
	}
	c.X[d.i] = packFloatWord(r)
}

func opFloatAdd(c *CPU, d decoded)  { floatBinOp(c, d, func(a, b floatVal) (floatVal, bool) { return addFloats(a, b, false, false), true }) }
func opFloatSub(c *CPU, d decoded)  { floatBinOp(c, d, func(a, b floatVal) (floatVal, bool) { return addFloats(a, b, true, false), true }) }
func opFloatMul(c *CPU, d decoded)  { floatBinOp(c, d, func(a, b floatVal) (floatVal, bool) { return mulFloats(a, b, false, false), true }) }
func opFloatDiv(c *CPU, d decoded)  { floatBinOp(c, d, func(a, b floatVal) (floatVal, bool) { return divFloats(a, b, false, false) }) }
func opFloatAddR(c *CPU, d decoded) { floatBinOp(c, d, func(a, b floatVal) (floatVal, bool) { return addFloats(a, b, false, true), true }) }
func opFloatMulR(c *CPU, d decoded) { floatBinOp(c, d, func(a, b floatVal) (floatVal, bool) { return mulFloats(a, b, false, true), true }) }

func opFloatAddD(c *CPU, d decoded)  { floatBinOp(c, d, func(a, b floatVal) (floatVal, bool) { return addFloats(a, b, false, false), true }) }
func opFloatSubD(c *CPU, d decoded)  { floatBinOp(c, d, func(a, b floatVal) (floatVal, bool) { return addFloats(a, b, true, false), true }) }
func opFloatMulD(c *CPU, d decoded)  { floatBinOp(c, d, func(a, b floatVal) (floatVal, bool) { return mulFloats(a, b, true, false), true }) }
func opFloatDivD(c *CPU, d decoded)  { floatBinOp(c, d, func(a, b floatVal) (floatVal, bool) { return divFloats(a, b, true, false) }) }
func opFloatAddRD(c *CPU, d decoded) { floatBinOp(c, d, func(a, b floatVal) (floatVal, bool) { return addFloats(a, b, false, true), true }) }
func opFloatMulRD(c *CPU, d decoded) { floatBinOp(c, d, func(a, b floatVal) (floatVal, bool) { return mulFloats(a, b, true, true), true }) }

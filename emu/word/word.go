/*
cyber370 - CDC Cyber word arithmetic primitives

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

// Package word holds the CDC 6000-series word types and the ones-complement
// arithmetic primitives shared by the CPU, PPU and channel packages. Field
// widths and mask values are grounded on original_source/CppCyber/const.h
// (Mask60, Sign60, Overflow60, NegativeZero, Mask12/Mask18 families).
package word

// CpWord is a 60-bit central processor word, stored in the low 60 bits of
// a uint64.
type CpWord uint64

// PpWord is a 12-bit peripheral processor word.
type PpWord uint16

// PpByte is a 6-bit peripheral processor byte (two per PpWord).
type PpByte uint8

// PpMask12 masks a value to the PPU's 12-bit word width.
const PpMask12 PpWord = 0o7777

// PpMask18 masks a value to the PPU accumulator's 18-bit width.
const PpMask18 uint32 = 0o777777

const (
	Mask12  CpWord = 0o7777
	Mask18  CpWord = 0o777777
	Mask24  CpWord = 0o77777777
	Mask48  CpWord = 0o7777777777777777
	Mask60  CpWord = 0o7777777777777777777

	Sign60     CpWord = 0o4000000000000000000
	Overflow60 CpWord = 0o2000000000000000000

	// NegativeZero is all sixty bits set: the ones-complement representation
	// of negative zero, distinct from positive zero (all bits clear).
	NegativeZero CpWord = Mask60
)

// Negate returns the ones-complement negation of w, preserving the
// distinction between positive and negative zero (negating 0 yields
// NegativeZero, never 0, and vice versa).
func Negate(w CpWord) CpWord {
	return (^w) & Mask60
}

// IsNegative reports whether w's sign bit (bit 59) is set.
func IsNegative(w CpWord) bool {
	return w&Sign60 != 0
}

// IsZero reports whether w is either representation of zero.
func IsZero(w CpWord) bool {
	return w == 0 || w == NegativeZero
}

// Add60 performs 60-bit ones-complement addition with end-around carry,
// matching the CPU's fixed-point add/subtract hardware: a carry out of bit
// 59 is added back into bit 0 rather than discarded.
func Add60(a, b CpWord) (sum CpWord, overflow bool) {
	a &= Mask60
	b &= Mask60
	r := uint64(a) + uint64(b)
	if r > uint64(Mask60) {
		r = (r & uint64(Mask60)) + 1
	}
	sum = CpWord(r) & Mask60
	aNeg, bNeg, rNeg := IsNegative(a), IsNegative(b), IsNegative(sum)
	overflow = aNeg == bNeg && rNeg != aNeg
	return sum, overflow
}

// Sub60 performs 60-bit ones-complement subtraction as a+(-b).
func Sub60(a, b CpWord) (diff CpWord, overflow bool) {
	return Add60(a, Negate(b))
}

// magnitude60 returns w's unsigned magnitude and ones-complement sign.
func magnitude60(w CpWord) (mag uint64, neg bool) {
	w &= Mask60
	if IsNegative(w) {
		return uint64(Negate(w)), true
	}
	return uint64(w), false
}

// Mul60 performs 60-bit ones-complement multiplication, truncating the
// product's magnitude to the low 60 bits.
func Mul60(a, b CpWord) CpWord {
	am, aNeg := magnitude60(a)
	bm, bNeg := magnitude60(b)
	prod := (am * bm) & uint64(Mask60)
	if prod == 0 {
		return 0
	}
	if aNeg != bNeg {
		return Negate(CpWord(prod))
	}
	return CpWord(prod)
}

// Div60 performs 60-bit ones-complement division truncated toward zero.
// ok is false when b is zero, the caller's cue to raise the indefinite-
// operand exit condition instead of using quotient.
func Div60(a, b CpWord) (quotient CpWord, ok bool) {
	if IsZero(b) {
		return 0, false
	}
	am, aNeg := magnitude60(a)
	bm, bNeg := magnitude60(b)
	q := am / bm
	if q == 0 {
		return 0, true
	}
	if aNeg != bNeg {
		return Negate(CpWord(q)), true
	}
	return CpWord(q), true
}

// ShiftLeftCircular rotates w left by n bits within the 60-bit field, the
// CPU's LXi opcode.
func ShiftLeftCircular(w CpWord, n uint) CpWord {
	w &= Mask60
	n %= 60
	if n == 0 {
		return w
	}
	return ((w << n) | (w >> (60 - n))) & Mask60
}

// ShiftRightArithmetic shifts w right by n bits, replicating the sign bit
// into the vacated high bits, the CPU's AXi opcode (as opposed to a
// circular rotate).
func ShiftRightArithmetic(w CpWord, n uint) CpWord {
	w &= Mask60
	if n == 0 {
		return w
	}
	if n >= 60 {
		if IsNegative(w) {
			return Mask60
		}
		return 0
	}
	if IsNegative(w) {
		low := (CpWord(1) << (60 - n)) - 1
		ones := Mask60 ^ low
		return ((w >> n) | ones) & Mask60
	}
	return w >> n
}

// UpperPp returns the upper 6-bit byte of a 12-bit PP word.
func UpperPp(w PpWord) PpByte {
	return PpByte((w >> 6) & 0o77)
}

// LowerPp returns the lower 6-bit byte of a PP word.
func LowerPp(w PpWord) PpByte {
	return PpByte(w & 0o77)
}

// PackPp assembles a 12-bit PP word from two 6-bit bytes.
func PackPp(upper, lower PpByte) PpWord {
	return (PpWord(upper&0o77) << 6) | PpWord(lower&0o77)
}

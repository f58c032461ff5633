/*
cyber370 - Central processor shift, normalize and pack unit

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

import "github.com/rcornwell/cyber370/emu/word"

// shiftCount resolves an instruction's shift/rotate amount: the 3-bit k
// field for the short form, or the low 6 bits of K for the long form
// (covering the full 0-59 bit range a 60-bit rotate needs).
func shiftCount(d decoded) uint {
	if d.longForm {
		return uint(d.K) & 0o77
	}
	return uint(d.k)
}

// opShiftL is LXi: Xi = Xj rotated left by the shift count, a circular
// shift with no bits lost off either end.
func opShiftL(c *CPU, d decoded) {
	c.X[d.i] = word.ShiftLeftCircular(c.X[d.j], shiftCount(d))
}

// opShiftAR is AXi: Xi = Xj shifted right arithmetically by the shift
// count, replicating the sign bit (as opposed to LXi's circular rotate).
func opShiftAR(c *CPU, d decoded) {
	c.X[d.i] = word.ShiftRightArithmetic(c.X[d.j], shiftCount(d))
}

// opNormalize is NXi: Xi = Xj renormalised as a float (coefficient
// shifted so bit 47 is set, exponent adjusted to compensate).
func opNormalize(c *CPU, d decoded) {
	c.X[d.i] = packFloatWord(unpackFloatWord(c.X[d.j]))
}

// opUnpack is ZXi: splits Xj's float fields into Xi (biased exponent,
// sign discarded) and Xk (48-bit coefficient).
func opUnpack(c *CPU, d decoded) {
	w := c.X[d.j]
	c.X[d.i] = (w >> floatCoeffBits) & floatExpMask
	c.X[d.k] = w & word.Mask48
}

// opUnpackSigned is UXi: like ZXi but folds Xj's sign bit into Xi's
// exponent word (bit 11) instead of discarding it, so PXi below can
// reassemble the original float bit for bit.
func opUnpackSigned(c *CPU, d decoded) {
	w := c.X[d.j]
	sign := word.CpWord(0)
	if w&word.Sign60 != 0 {
		sign = 1
	}
	c.X[d.i] = (sign << floatExpBits) | ((w >> floatCoeffBits) & floatExpMask)
	c.X[d.k] = w & word.Mask48
}

// opPack is PXi: the inverse of UXi, reassembling Xi from an exponent
// word in Xj (bit 11 is the sign, per UXi) and a coefficient in Xk.
// PXi(UXi(w)) == w for any w, which is the round-trip this opcode pair
// is tested against.
func opPack(c *CPU, d decoded) {
	expWord := c.X[d.j]
	coeff := c.X[d.k] & word.Mask48
	sign := (expWord >> floatExpBits) & 1
	exp := expWord & floatExpMask
	c.X[d.i] = (sign << 59) | (exp << floatCoeffBits) | coeff
}

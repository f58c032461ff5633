/*
cyber370 - CPU definitions

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

// Exit-condition bits, set at instruction retirement (spec §4.1, §7).
const (
	ExitAddressRange  uint8 = 1 << iota // reference address out of range
	ExitOperandRange                    // unnormalised float / operand range
	ExitIndefinite                       // 0/0, inf/inf
)

// stepInfo mirrors the per-instruction decode fields, grounded on the
// teacher's stepInfo struct in shape though its fields are CDC parcel
// fields rather than S/370 RX/RR/SS fields. fetch does not fill it; the
// decode result travels in the decoded struct instead.
type stepInfo struct {
	fm uint8       // 6-bit opcode field
	i  uint8       // 3-bit register/class selector
	j  uint8       // 3-bit secondary register selector
	k  uint8       // 3-bit tertiary selector (shift count, etc.)
	K  word.CpWord // 18-bit immediate/address field, when two-parcel
	longForm bool
}

// ExchangePackage is the 16-word in-memory layout an exchange jump swaps
// with the CPU context. Word 0 holds P and A0; words 1-7 each pack one
// control scalar (RA, FL, ExitMode, MA, RaEcs, FlEcs) together with one
// Ai/Bi pair; words 8-15 hold X0..X7 in full. See ExchangeJump's
// packExchange/unpackExchange in cpu.go for the exact bit layout — B0
// never travels in the package and is forced to zero on every jump.
type ExchangePackage [16]word.CpWord

package cpu

import (
	"sync"
	"testing"

	"github.com/rcornwell/cyber370/emu/word"
)

type fakeMem struct {
	words map[uint32]word.CpWord
	size  uint32
}

func newFakeMem(size uint32) *fakeMem {
	return &fakeMem{words: map[uint32]word.CpWord{}, size: size}
}

func (m *fakeMem) ReadWord(addr uint32) (word.CpWord, bool) {
	if addr >= m.size {
		return 0, false
	}
	return m.words[addr], true
}

func (m *fakeMem) WriteWord(addr uint32, data word.CpWord) bool {
	if addr >= m.size {
		return false
	}
	m.words[addr] = data & word.Mask60
	return true
}

func (m *fakeMem) ReadWordRaw(addr uint32) word.CpWord    { return m.words[addr] }
func (m *fakeMem) WriteWordRaw(addr uint32, v word.CpWord) { m.words[addr] = v & word.Mask60 }

func newTestCPU() (*CPU, *fakeMem) {
	mem := newFakeMem(1000)
	c := New(0, mem, nil, &sync.Mutex{})
	c.RA = 0
	c.FL = 1000
	return c, mem
}

func TestB0AlwaysZero(t *testing.T) {
	c, _ := newTestCPU()
	c.B[0] = 0o17
	c.Step() // any instruction re-zeroes B0 at retirement
	if c.B[0] != 0 {
		t.Fatalf("B0 = %o, want 0", c.B[0])
	}
}

func TestExchangeJumpRoundTrip(t *testing.T) {
	c, mem := newTestCPU()
	const pkgAddr = 100

	// Seed a package that sets P=42, RA=0, FL=1000, A1=7, B1=3, X0=0o123.
	mem.WriteWordRaw(pkgAddr+0, 42)
	mem.WriteWordRaw(pkgAddr+1, word.CpWord(0)|(7<<24)|(3<<42))
	mem.WriteWordRaw(pkgAddr+2, 1000)
	mem.WriteWordRaw(pkgAddr+3, 0)
	mem.WriteWordRaw(pkgAddr+4, 0)
	mem.WriteWordRaw(pkgAddr+5, 0)
	mem.WriteWordRaw(pkgAddr+6, 0)
	mem.WriteWordRaw(pkgAddr+8, 0o123)

	c.P = 5
	c.ExchangeJump(pkgAddr)

	if c.P != 42 {
		t.Errorf("P = %o after exchange jump, want 42", c.P)
	}
	if c.A[1] != 7 {
		t.Errorf("A1 = %o after exchange jump, want 7", c.A[1])
	}
	if c.B[1] != 3 {
		t.Errorf("B1 = %o after exchange jump, want 3", c.B[1])
	}
	if c.X[0] != 0o123 {
		t.Errorf("X0 = %o after exchange jump, want 0o123", c.X[0])
	}
	if c.B[0] != 0 {
		t.Errorf("B0 = %o after exchange jump, want 0", c.B[0])
	}
	// the outgoing package should carry the CPU's prior P (5)
	if mem.ReadWordRaw(pkgAddr+0) != 5 {
		t.Errorf("saved P in package = %o, want 5", mem.ReadWordRaw(pkgAddr+0))
	}
}

// TestExchangeJumpFullRoundTrip exercises testable property 4: every
// register loaded after an exchange jump equals what a companion exchange
// had previously stored at the same address, with B0 forced to zero.
func TestExchangeJumpFullRoundTrip(t *testing.T) {
	c, _ := newTestCPU()
	const addr1 = 100

	c.P = 0o11
	c.RA = 0o22
	c.FL = 0o33
	c.ExitMode = 0o5
	c.MA = 0o44
	c.RaEcs = 0o55
	c.FlEcs = 0o66
	for i := 1; i < 8; i++ {
		c.A[i] = word.CpWord(0o100 + i)
		c.B[i] = word.CpWord(0o200 + i)
	}
	for i := 0; i < 8; i++ {
		c.X[i] = word.CpWord(0o123456701234567) + word.CpWord(i)
	}

	// Exchange out to addr1 (package there starts zeroed, so the CPU
	// context after this jump is all-zero, with the original context now
	// saved at addr1); exchange on addr1 again swaps it straight back,
	// mirroring a monitor->user->monitor round trip.
	c.ExchangeJump(addr1)
	c.ExchangeJump(addr1)

	if c.P != 0o11 || c.RA != 0o22 || c.FL != 0o33 || c.ExitMode != 0o5 ||
		c.MA != 0o44 || c.RaEcs != 0o55 || c.FlEcs != 0o66 {
		t.Fatalf("scalar context not preserved across double exchange jump: %+v", c)
	}
	for i := 1; i < 8; i++ {
		if c.A[i] != word.CpWord(0o100+i) {
			t.Errorf("A%d = %o, want %o", i, c.A[i], 0o100+i)
		}
		if c.B[i] != word.CpWord(0o200+i) {
			t.Errorf("B%d = %o, want %o", i, c.B[i], 0o200+i)
		}
	}
	for i := 0; i < 8; i++ {
		want := word.CpWord(0o123456701234567) + word.CpWord(i)
		if c.X[i] != want {
			t.Errorf("X%d = %o, want %o", i, c.X[i], want)
		}
	}
	if c.A[0] != 0 || c.B[0] != 0 {
		t.Errorf("A0/B0 = %o/%o after double exchange jump, want 0/0", c.A[0], c.B[0])
	}
}

func TestNegativeZeroPreservedBySubtractionOfEqualOperands(t *testing.T) {
	a := word.CpWord(0o123456701234567012)
	diff, overflow := word.Sub60(a, a)
	if diff != word.NegativeZero {
		t.Fatalf("a-a = %o, want negative zero %o", diff, word.NegativeZero)
	}
	if overflow {
		t.Errorf("a-a should never overflow")
	}
}

func TestAddressOutOfRangeLatchesExitCondition(t *testing.T) {
	c, _ := newTestCPU()
	c.FL = 10
	c.ExitMode = 0 // continue on error, do not stop

	d := decoded{fm: 0o51, i: 1, K: 20} // SA1 targeting address 20, FL=10
	opSA(c, d)

	if c.ExitCond&ExitAddressRange == 0 {
		t.Errorf("ExitCond = %b, want ExitAddressRange set", c.ExitCond)
	}
	if c.cpuStopped {
		t.Errorf("CPU should not stop when ExitMode does not trap address range")
	}
}

func TestAddressOutOfRangeStopsWhenExitModeTraps(t *testing.T) {
	c, _ := newTestCPU()
	c.FL = 10
	c.ExitMode = ExitAddressRange

	d := decoded{fm: 0o51, i: 1, K: 20}
	opSA(c, d)

	if !c.cpuStopped {
		t.Errorf("CPU should stop when ExitMode traps address range")
	}
}

func TestStoppedCPUStepIsNoOp(t *testing.T) {
	c, _ := newTestCPU()
	c.cpuStopped = true
	p := c.P
	c.Step()
	if c.P != p {
		t.Errorf("P advanced on a stopped CPU's Step")
	}
}

func TestAOverflowLatchesOperandRangeExit(t *testing.T) {
	c, _ := newTestCPU()
	c.X[1] = word.Sign60 - 1 // largest positive
	c.X[2] = word.Sign60 - 1
	opAX(c, decoded{i: 1, j: 2})
	if c.ExitCond&ExitOperandRange == 0 {
		t.Errorf("expected ExitOperandRange set on overflowing add")
	}
}

// TestPackUnpackRoundTrip exercises the round-trip law: UX then PX
// (unpack, then pack) is identity on any float word, packed or not.
func TestPackUnpackRoundTrip(t *testing.T) {
	c, _ := newTestCPU()
	want := word.CpWord(0o775231234567012345)
	c.X[1] = want

	opUnpackSigned(c, decoded{i: 2, j: 1, k: 3}) // X2=exp/sign, X3=coeff from X1
	opPack(c, decoded{i: 4, j: 2, k: 3})         // X4 = pack(X2,X3)

	if c.X[4] != want {
		t.Errorf("PX(UX(w)) = %o, want %o", c.X[4], want)
	}
}

func TestFloatAddNormalizesResult(t *testing.T) {
	c, _ := newTestCPU()
	// 1.0 in this encoding: coeff with bit 47 set, exponent bias only.
	one := packFloatWord(floatVal{exp: 0, coeff: 1 << (floatCoeffBits - 1)})
	c.X[1] = one
	c.X[2] = one
	opFloatAdd(c, decoded{i: 1, j: 2})

	got := unpackFloatWord(c.X[1])
	want := unpackFloatWord(packFloatWord(floatVal{exp: 1, coeff: 1 << (floatCoeffBits - 1)}))
	if got != want {
		t.Errorf("1.0+1.0 = {exp:%d coeff:%o}, want {exp:%d coeff:%o}", got.exp, got.coeff, want.exp, want.coeff)
	}
}

func TestFloatDivideByZeroLatchesIndefinite(t *testing.T) {
	c, _ := newTestCPU()
	c.X[1] = packFloatWord(floatVal{exp: 0, coeff: 1 << (floatCoeffBits - 1)})
	c.X[2] = 0
	opFloatDiv(c, decoded{i: 1, j: 2})

	if c.ExitCond&ExitIndefinite == 0 {
		t.Errorf("expected ExitIndefinite set on float division by zero")
	}
}

func TestShiftLeftCircularOpcode(t *testing.T) {
	c, _ := newTestCPU()
	c.X[2] = 1
	opShiftL(c, decoded{i: 1, j: 2, k: 4})
	if c.X[1] != 1<<4 {
		t.Errorf("LX by 4 = %o, want %o", c.X[1], 1<<4)
	}
}

// TestAxBxOpcodeNumbering pins the Ax/Bx/Xx class boundaries the review
// required: Ax writes at fm=5x, Bx at fm=6x, Xx arithmetic at fm=7x.
func TestAxBxOpcodeNumbering(t *testing.T) {
	c, _ := newTestCPU()
	c.FL = 1000

	d := decoded{fm: 0o52, i: 2, K: 50} // Ax write, reg 2 (loads X2 too)
	table[d.fm](c, d)
	if c.A[2] != 50 {
		t.Errorf("fm=0o52 did not dispatch to an Ax write: A2 = %o, want 50", c.A[2])
	}

	c.B[3] = 0
	d = decoded{fm: 0o63, i: 3, K: 7} // Bx adjust, reg 3
	table[d.fm](c, d)
	if c.B[3] != 7 {
		t.Errorf("fm=0o63 did not dispatch to Bx: B3 = %o, want 7", c.B[3])
	}

	c.X[4] = 10
	c.X[5] = 3
	d = decoded{fm: 0o70, i: 4, j: 5} // Xx arithmetic add
	table[d.fm](c, d)
	if c.X[4] != 13 {
		t.Errorf("fm=0o70 did not dispatch to Xx add: X4 = %o, want 13", c.X[4])
	}
}

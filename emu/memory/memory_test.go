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

package memory

import (
	"testing"

	"github.com/rcornwell/cyber370/emu/word"
)

func TestSizeClamp(t *testing.T) {
	m := New(MaxWords + 1000)
	if m.Size() != MaxWords {
		t.Errorf("Size not clamped got: %d expected: %d", m.Size(), MaxWords)
	}
}

func TestCheckAddr(t *testing.T) {
	m := New(2048)
	if !m.CheckAddr(1024) {
		t.Errorf("CheckAddr returned false below size")
	}
	if m.CheckAddr(2048) {
		t.Errorf("CheckAddr returned true at size")
	}
}

func TestReadWriteWord(t *testing.T) {
	m := New(4096)
	if ok := m.WriteWord(100, 0o1234567); !ok {
		t.Fatalf("WriteWord reported out of range")
	}
	v, ok := m.ReadWord(100)
	if !ok {
		t.Fatalf("ReadWord reported out of range")
	}
	if v != 0o1234567 {
		t.Errorf("ReadWord got: %o expected: %o", v, 0o1234567)
	}
	if _, ok := m.ReadWord(4096); ok {
		t.Errorf("ReadWord did not report out of range at field length")
	}
	if ok := m.WriteWord(4096, 1); ok {
		t.Errorf("WriteWord did not report out of range at field length")
	}
}

func TestWriteWordMasksToSixtyBits(t *testing.T) {
	m := New(10)
	m.WriteWord(0, word.CpWord(0xffffffffffffffff))
	v, _ := m.ReadWord(0)
	if v != word.Mask60 {
		t.Errorf("WriteWord did not mask to 60 bits got: %o", v)
	}
}

func TestRawAccessWraps(t *testing.T) {
	m := New(10)
	m.WriteWordRaw(MaxWords, 42)
	if v := m.ReadWordRaw(MaxWords); v != 42 {
		t.Errorf("ReadWordRaw did not wrap got: %o expected: 42", v)
	}
}

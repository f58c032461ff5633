package ecs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rcornwell/cyber370/emu/word"
)

func TestReadWrite(t *testing.T) {
	e := New(1)
	if ok := e.Write(10, 0o777); !ok {
		t.Fatalf("Write reported out of range")
	}
	v, ok := e.Read(10)
	if !ok || v != 0o777 {
		t.Errorf("Read got %o, %v want 0o777, true", v, ok)
	}
	if _, ok := e.Read(BankWords); ok {
		t.Errorf("Read across unconfigured bank should fail")
	}
}

func TestBlockTransfer(t *testing.T) {
	e := New(1)
	data := []word.CpWord{1, 2, 3, 4}
	if ok := e.WriteBlock(5, data); !ok {
		t.Fatalf("WriteBlock reported out of range")
	}
	got, ok := e.ReadBlock(5, 4)
	if !ok {
		t.Fatalf("ReadBlock reported out of range")
	}
	for i, v := range data {
		if got[i] != v {
			t.Errorf("word %d got %o want %o", i, got[i], v)
		}
	}
}

func TestPersistLoadRoundTrip(t *testing.T) {
	e := New(1)
	e.Write(0, word.Mask60)
	e.Write(42, 0o123456)

	path := filepath.Join(t.TempDir(), "ecsStore")
	if err := e.Persist(path); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	e2 := New(1)
	if err := e2.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if v, _ := e2.Read(0); v != word.Mask60 {
		t.Errorf("word 0 got %o want %o", v, word.Mask60)
	}
	if v, _ := e2.Read(42); v != 0o123456 {
		t.Errorf("word 42 got %o want 0o123456", v)
	}
	_ = os.Remove(path)
}

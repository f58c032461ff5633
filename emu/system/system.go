/*
cyber370 - System: the root object owning one or two Mainframes

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

// Package system implements spec §2's System: the root object owning one
// or two Mainframes plus the System-scoped extended memory (ECS/ESM)
// they share. Per DESIGN NOTES §9 ("Global BigIron singleton -> root
// context passed as argument"), this replaces the teacher's module-level
// global with a System value main.go creates and passes down to the
// config loader, the operator command parser and the NPU listener.
package system

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rcornwell/cyber370/emu/core"
	"github.com/rcornwell/cyber370/emu/ecs"
	"github.com/rcornwell/cyber370/emu/master"
)

// MaxMainframes is the largest number of mainframes a System supports
// (spec §2: "A System owns one or more Mainframes (1-2)").
const MaxMainframes = 2

// System owns every Mainframe in the emulated installation plus the
// System-wide resources spec §5 names: the cross-mainframe PPU mutex
// (SysPpMutex, only meaningful with 2 mainframes) and the shared extended
// memory.
type System struct {
	Mainframes []*core.Mainframe
	ECS        *ecs.ECS

	sysPpMu sync.Mutex // spec's SysPpMutex; always allocated, used only when len(Mainframes)==2

	// active gates every goroutine's main loop (spec §5's emulationActive
	// flag); an atomic.Bool rather than a mutex-guarded bool because it is
	// read far more often than written and every reader is a hot loop.
	active atomic.Bool
}

// Config describes a System's construction parameters, filled in by
// config/sysconfig from the MAINFRAME, ECSBANKS and ESMBANKS lines.
type Config struct {
	NumMainframes int
	ECSBanks      int // mutually exclusive with ESMBanks (spec §6)
	ESMBanks      int
	Mainframes    []core.Config
}

// New builds a System with the given Mainframes sharing one ECS/ESM image
// (spec §4.7: "Shared across all mainframes").
func New(cfg Config) (*System, error) {
	if cfg.NumMainframes < 1 || cfg.NumMainframes > MaxMainframes {
		return nil, fmt.Errorf("system: invalid mainframe count %d", cfg.NumMainframes)
	}
	if cfg.ECSBanks != 0 && cfg.ESMBanks != 0 {
		return nil, fmt.Errorf("system: ecsbanks and esmbanks are mutually exclusive")
	}
	banks := cfg.ECSBanks
	if cfg.ESMBanks > banks {
		banks = cfg.ESMBanks
	}

	sys := &System{ECS: ecs.New(banks)}

	var sysPpMu *sync.Mutex
	if cfg.NumMainframes == 2 {
		sysPpMu = &sys.sysPpMu
	}

	for i := 0; i < cfg.NumMainframes; i++ {
		mfCfg := cfg.Mainframes[i]
		mfCfg.ID = i
		sys.Mainframes = append(sys.Mainframes, core.New(mfCfg, sys.ECS, sysPpMu))
	}
	return sys, nil
}

// Mainframe returns mainframe n, or nil if out of range.
func (s *System) Mainframe(n int) *core.Mainframe {
	if n < 0 || n >= len(s.Mainframes) {
		return nil
	}
	return s.Mainframes[n]
}

// Start marks the System active and launches every Mainframe's scheduler.
func (s *System) Start() {
	s.active.Store(true)
	for _, mf := range s.Mainframes {
		mf.Start()
	}
}

// Active reports whether the System is still running (spec §5's
// emulationActive flag, read by the NPU listener and operator console
// goroutines to know when to exit).
func (s *System) Active() bool {
	return s.active.Load()
}

// Shutdown clears the emulationActive flag and stops every Mainframe's
// scheduler, then flushes the shared ECS image if persistDir is set
// (spec §5: "Resources ... flushed in a deterministic order by the main
// thread after threads have observed the flag").
func (s *System) Shutdown(ecsStorePath string) error {
	s.active.Store(false)
	for _, mf := range s.Mainframes {
		mf.Stop()
	}
	if ecsStorePath != "" && s.ECS.Size() > 0 {
		return s.ECS.Persist(ecsStorePath)
	}
	return nil
}

// Dispatch forwards a master.Packet to mainframe n's message bus, for the
// operator console and NPU listener goroutines (spec §5's message-passing
// discipline: they never touch Mainframe state directly).
func (s *System) Dispatch(mainframe int, pkt master.Packet) error {
	mf := s.Mainframe(mainframe)
	if mf == nil {
		return fmt.Errorf("system: no mainframe %d", mainframe)
	}
	mf.Master() <- pkt
	return nil
}

/*
cyber370 - Mainframe major-cycle scheduler

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

// Package core implements one Mainframe's scheduling goroutine: the major
// cycle described in spec §2 and §5 (operator poll, step all PPUs once,
// step the monitor CPU cpuRatio times, step all channels, tick the clock),
// plus the second-CPU rendezvous for dual-CPU mainframes. Grounded on the
// teacher's emu/core/core.go Start()/processPacket() shape (a goroutine
// reading a master.Packet channel in a non-blocking select against a
// run/done pair) but rebuilt around the mainframe's own component set
// instead of a single global S/370 CPU, per REDESIGN FLAGS §9's "channels
// and PPUs are owned exclusively by a mainframe's scheduling thread"
// principle: every cross-thread request arrives as a master.Packet rather
// than through a shared mutex.
package core

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rcornwell/cyber370/emu/channel"
	"github.com/rcornwell/cyber370/emu/cpu"
	"github.com/rcornwell/cyber370/emu/master"
	"github.com/rcornwell/cyber370/emu/memory"
	"github.com/rcornwell/cyber370/emu/ppu"
	"github.com/rcornwell/cyber370/emu/rtc"
	"github.com/rcornwell/cyber370/emu/word"
)

// ExtendedMemory is the subset of emu/ecs.ECS a Mainframe's CPUs need; a
// System supplies the same *ecs.ECS to every Mainframe it owns (spec §4.7:
// "shared across all mainframes").
type ExtendedMemory interface {
	Read(addr uint32) (word.CpWord, bool)
	Write(addr uint32, data word.CpWord) bool
}

// Config describes one Mainframe's construction parameters, filled in by
// config/sysconfig from a MAINFRAME line's memory/cpuratio/pps/dualcpu
// options; ClockIncr is not set from the configuration file.
type Config struct {
	ID        int
	MemWords  uint32
	NumPpus   int // 10 or 20 (spec §2)
	CPURatio  int // CPU steps per PPU step, default 4 (spec §2)
	DualCPU   bool
	ClockIncr uint32 // 0 derives RTC ticks from wall-clock microseconds
}

// Mainframe owns one mainframe's CPU(s), PPU barrel, channels, RTC and
// central memory, and runs its own scheduling goroutine (spec §5's "CPU0
// thread drives the major-cycle loop").
type Mainframe struct {
	ID int

	mem      *memory.Memory
	channels *channel.System
	clock    *rtc.RTC
	ppus     []*ppu.PPU
	cpus     [2]*cpu.CPU
	dualCPU  bool
	cpuRatio int

	// xchgMu is the exchange-jump rendezvous shared by both CPUs on this
	// mainframe (spec §4.1's XJMutex): only one CPU may be mid-swap at a
	// time, matching invariant 3 of §3 (exactly one monitor CPU at a time).
	xchgMu sync.Mutex

	// ppuMu serialises PPU/channel stepping against a visiting CPU1, the
	// PpuMutex of spec §5: CPU1's goroutine holds it while it steps CPU1
	// so it never steps while the primary thread is mid-barrel.
	ppuMu sync.Mutex

	// sysPpMu is the cross-mainframe PPU serialisation mutex (spec §5's
	// SysPpMutex), non-nil only when the owning System has two
	// mainframes; nil means single-mainframe, no cross-mainframe
	// contention to serialise.
	sysPpMu *sync.Mutex

	masterCh chan master.Packet

	cpuGo   chan struct{} // primary signals CPU1 to run this cycle
	cpuDone chan struct{} // CPU1 signals it has finished the cycle

	running bool
	done    chan struct{}
	wg      sync.WaitGroup

	cycles uint64
}

// New creates a Mainframe. ecsMem is the System-wide extended memory
// (nil if no ECS/ESM is configured); sysPpMu is the System's cross-
// mainframe PPU mutex, non-nil only in a 2-mainframe System.
func New(cfg Config, ecsMem ExtendedMemory, sysPpMu *sync.Mutex) *Mainframe {
	if cfg.CPURatio <= 0 {
		cfg.CPURatio = 4
	}
	mf := &Mainframe{
		ID:       cfg.ID,
		mem:      memory.New(cfg.MemWords),
		channels: channel.NewSystem(),
		clock:    rtc.New(cfg.ClockIncr),
		dualCPU:  cfg.DualCPU,
		cpuRatio: cfg.CPURatio,
		sysPpMu:  sysPpMu,
		masterCh: make(chan master.Packet, 64),
		cpuGo:    make(chan struct{}, 1),
		cpuDone:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	mf.cpus[0] = cpu.New(0, mf.mem, ecsMem, &mf.xchgMu)
	if cfg.DualCPU {
		mf.cpus[1] = cpu.New(1, mf.mem, ecsMem, &mf.xchgMu)
	}
	numPpus := cfg.NumPpus
	if numPpus != 0o12 && numPpus != 0o24 {
		numPpus = 0o12
	}
	mf.ppus = make([]*ppu.PPU, numPpus)
	for i := range mf.ppus {
		mf.ppus[i] = ppu.New(i, mf.channels, mf.mem, mf.cpus[0])
	}
	if err := mf.channels.WireHardwired(channel.ChClock, mf.clock); err != nil {
		slog.Warn("clock channel wiring", "error", err)
	}
	return mf
}

// Memory returns the mainframe's central memory, for config-time deadstart
// loading and operator dump commands.
func (mf *Mainframe) Memory() *memory.Memory { return mf.mem }

// Channels returns the mainframe's channel System, for equipment config
// (device.Device attachment) and operator attach/detach commands.
func (mf *Mainframe) Channels() *channel.System { return mf.channels }

// Clock returns the mainframe's real-time clock.
func (mf *Mainframe) Clock() *rtc.RTC { return mf.clock }

// PPU returns PPU n (for deadstart load of PPU 0), or nil if out of range.
func (mf *Mainframe) PPU(n int) *ppu.PPU {
	if n < 0 || n >= len(mf.ppus) {
		return nil
	}
	return mf.ppus[n]
}

// CPU returns CPU id (0 or 1), or nil if that CPU is not configured.
func (mf *Mainframe) CPU(id int) *cpu.CPU {
	if id < 0 || id > 1 {
		return nil
	}
	return mf.cpus[id]
}

// Master returns the channel other goroutines (operator console, NPU
// listener) send master.Packet requests on.
func (mf *Mainframe) Master() chan<- master.Packet { return mf.masterCh }

// Cycles returns the major-cycle counter (spec §4.4's device-latency
// accounting clock).
func (mf *Mainframe) Cycles() uint64 { return mf.cycles }

// Start launches the mainframe's scheduling goroutine(s): the primary
// major-cycle loop, and (for dual-CPU configurations) the CPU1 rendezvous
// goroutine (spec §5).
func (mf *Mainframe) Start() {
	mf.running = true
	mf.wg.Add(1)
	go mf.runPrimary()
	if mf.dualCPU {
		mf.wg.Add(1)
		go mf.runSecondary()
	}
}

// Stop signals both goroutines to exit at their next loop head (spec §5's
// "emulationActive" cancellation discipline) and waits for them, up to a
// short timeout so a stuck device cannot hang shutdown indefinitely.
func (mf *Mainframe) Stop() {
	close(mf.done)
	waited := make(chan struct{})
	go func() {
		mf.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(time.Second):
		slog.Warn("mainframe shutdown timed out", "id", mf.ID)
	}
}

// runPrimary is the goroutine that owns PPUs, channels and the clock: one
// major cycle is operator poll, step all PPUs, step CPU0 cpuRatio times
// (signalling CPU1 to do the same under the PPU mutex), step all
// channels, tick the RTC (spec §2, §5's ordering guarantee).
func (mf *Mainframe) runPrimary() {
	defer mf.wg.Done()
	for {
		select {
		case <-mf.done:
			mf.shutdownDevices()
			slog.Info("mainframe scheduler stopped", "id", mf.ID)
			return
		case pkt := <-mf.masterCh:
			mf.dispatch(pkt)
		default:
		}

		if !mf.running {
			continue
		}

		mf.stepCycle()
	}
}

// stepCycle runs exactly one major cycle's worth of PPU/CPU/channel/clock
// work, serialised against a second mainframe's PPU barrel by sysPpMu
// when present (spec §5's SysPpMutex, scenario S5).
func (mf *Mainframe) stepCycle() {
	if mf.sysPpMu != nil {
		mf.sysPpMu.Lock()
		defer mf.sysPpMu.Unlock()
	}

	mf.ppuMu.Lock()
	for _, p := range mf.ppus {
		p.Step()
	}
	mf.ppuMu.Unlock()

	if mf.dualCPU {
		select {
		case mf.cpuGo <- struct{}{}:
		default:
		}
	}

	for range mf.cpuRatio {
		mf.cpus[0].Step()
	}

	if mf.dualCPU {
		<-mf.cpuDone
	}

	mf.ppuMu.Lock()
	mf.channels.StepAll()
	mf.ppuMu.Unlock()

	mf.clock.Tick()
	mf.cycles++
}

// runSecondary is CPU1's goroutine: it waits on cpuGo (the CpuRun
// condition variable of spec §5), then, holding the PPU mutex so it never
// races the primary's barrel step, steps CPU1 the same number of times
// the primary steps CPU0 this cycle.
func (mf *Mainframe) runSecondary() {
	defer mf.wg.Done()
	for {
		select {
		case <-mf.done:
			return
		case <-mf.cpuGo:
			mf.ppuMu.Lock()
			for range mf.cpuRatio {
				mf.cpus[1].Step()
			}
			mf.ppuMu.Unlock()
			mf.cpuDone <- struct{}{}
		}
	}
}

// dispatch handles one master.Packet request from the operator console or
// NPU listener goroutine (spec §5's message-passing redesign: these
// goroutines never touch mainframe state directly).
func (mf *Mainframe) dispatch(pkt master.Packet) {
	switch pkt.Msg {
	case master.Start:
		mf.running = true
	case master.Stop:
		mf.running = false
	case master.IPLdevice:
		mf.running = true
	case master.NpuConnect, master.NpuDisconnect, master.NpuData:
		// Routed on to whichever device owns the NPU channel; the
		// mainframe itself only forwards, per spec §4.6's "exchanges
		// blocks with the mainframe via its host channel".
		if dev, err := mf.channels.GetDevice(int(pkt.DevNum)); err == nil {
			if n, ok := dev.(interface {
				HandlePacket(master.Packet)
			}); ok {
				n.HandlePacket(pkt)
			}
		}
	}
}

// shutdownDevices tears down every attached device in channel order, the
// deterministic flush spec §5 requires after emulationActive clears.
func (mf *Mainframe) shutdownDevices() {
	for n := 0; n < channel.MaxChannels; n++ {
		if dev, err := mf.channels.GetDevice(n); err == nil {
			dev.Shutdown()
		}
	}
}

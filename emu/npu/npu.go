/*
cyber370 - Network Processing Unit core

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

// Package npu wires the buffer pool, BIP, SVM and TIP layers (spec §4.6)
// into a single device.Device the channel framework can attach like any
// other peripheral, and accepts master.Packet notifications from the
// telnet listener goroutine for new/closed terminal connections and
// inbound terminal bytes (spec §5's message-passing discipline: the NPU's
// listener thread never touches mainframe state directly).
package npu

import (
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"

	"github.com/rcornwell/cyber370/emu/device"
	"github.com/rcornwell/cyber370/emu/master"
	"github.com/rcornwell/cyber370/emu/npu/bip"
	"github.com/rcornwell/cyber370/emu/npu/buffer"
	"github.com/rcornwell/cyber370/emu/npu/svm"
	"github.com/rcornwell/cyber370/emu/npu/tip"
	"github.com/rcornwell/cyber370/emu/word"
)

// netConnTerminal adapts a raw net.Conn to the Terminal interface, used
// when the telnet listener hands an accepted connection straight to the
// NPU via a master.NpuConnect packet's Conn field.
type netConnTerminal struct{ net.Conn }

func (t netConnTerminal) Send(data []byte) error {
	_, err := t.Conn.Write(data)
	return err
}

// ConnType is the terminal connection type named in spec §6's
// npuConnections section.
type ConnType int

const (
	ConnRaw ConnType = iota
	ConnPterm
	ConnRs232
)

// Terminal is the subset of a live connection the NPU needs to push
// output bytes downline to; telnet.Conn (or a raw net.Conn wrapper)
// implements this.
type Terminal interface {
	Send(data []byte) error
	Close() error
}

// NPU is one mainframe's Network Processing Unit.
type NPU struct {
	mu sync.Mutex

	pool *buffer.Pool
	bip  *bip.BIP
	svm  *svm.SVM
	tcbs map[int]*tip.TCB
	term map[int]Terminal

	// outBuf/outPos hold the upline byte stream currently being drained by
	// Input, one byte at a time (the channel is word-at-a-time; BIP's
	// buffers are byte-at-a-time).
	outBuf *buffer.Buffer
	outPos int

	devNum   uint16
	fcode    word.PpWord
	connType map[int]ConnType
}

// New creates an NPU core with its own private buffer pool (spec §4.6:
// "a fixed pool (1000 buffers of 2048 bytes each) forms the NPU's
// memory").
func New(devNum uint16) *NPU {
	n := &NPU{
		pool:     buffer.NewPool(buffer.Count),
		svm:      svm.New(),
		tcbs:     make(map[int]*tip.TCB),
		term:     make(map[int]Terminal),
		connType: make(map[int]ConnType),
		devNum:   devNum,
	}
	n.bip = bip.New(n.pool)
	n.bip.ToSVM = n.handleSvmBlock
	n.bip.ToTIP = n.handleTipBlock
	n.bip.OnUplineReady = func(buf *buffer.Buffer) {
		// A real host channel drains this via Input(); nothing to do
		// here beyond making the buffer visible, which it already is.
	}
	n.svm.SendUpline = n.sendServiceMessage
	return n
}

// RegisterPort declares port id as a terminal of the given class and
// connection type, called from main.go's wireEquipment.
func (n *NPU) RegisterPort(id int, class tip.Class, ct ConnType) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tcbs[id] = tip.NewTCB(id, class, n.pool)
	n.tcbs[id].FlushUpline = func(seq uint8, data []byte) {
		n.sendData(id, seq, data)
	}
	n.connType[id] = ct
}

// reservedTerminal is a placeholder n.term entry marking a port claimed by
// ReservePort but not yet holding a live connection, closing the window
// between picking a free port and the NpuConnect packet that attaches the
// real Terminal to it.
type reservedTerminal struct{}

func (reservedTerminal) Send([]byte) error { return nil }
func (reservedTerminal) Close() error      { return nil }

// ReservePort claims the lowest-numbered registered port with no terminal
// attached and no pending reservation, for the telnet listener to assign an
// incoming connection to before it has finished the telnet negotiation
// needed to build the master.Packet (spec §4.6's per-port TCB, one
// connection at a time). ConnType reports the port's configured framing so
// the caller knows whether to run telnet option negotiation or pass bytes
// raw.
func (n *NPU) ReservePort() (id int, ct ConnType, ok bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ids := make([]int, 0, len(n.tcbs))
	for pid := range n.tcbs {
		ids = append(ids, pid)
	}
	sort.Ints(ids)
	for _, pid := range ids {
		if _, busy := n.term[pid]; !busy {
			n.term[pid] = reservedTerminal{}
			return pid, n.connType[pid], true
		}
	}
	return 0, 0, false
}

// ReleasePort frees a reservation made by ReservePort when the connection
// never completed (e.g. the client disconnected mid-negotiation).
func (n *NPU) ReleasePort(id int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.term[id].(reservedTerminal); ok {
		delete(n.term, id)
	}
}

// HandlePacket processes a master.Packet forwarded by the mainframe
// scheduler from the telnet listener goroutine (spec §5's message bus).
func (n *NPU) HandlePacket(pkt master.Packet) {
	switch pkt.Msg {
	case master.NpuConnect:
		var t Terminal
		if pkt.Conn != nil {
			t = netConnTerminal{pkt.Conn}
		}
		n.onConnect(pkt.Port, t)
	case master.NpuDisconnect:
		n.onDisconnect(pkt.Port)
	case master.NpuData:
		n.onData(pkt.Port, pkt.Data)
	}
}

// onConnect accepts a new terminal connection on port id. t is the live
// connection to push output to (nil in tests that only exercise state
// transitions); a port the SVM supervision handshake or port table rejects
// is closed immediately rather than left dangling (spec §7 kind 5).
func (n *NPU) onConnect(id int, t Terminal) {
	n.mu.Lock()
	if err := n.svm.NetConnect(id); err != nil {
		n.mu.Unlock()
		slog.Warn("npu: terminal connect rejected", "port", id, "error", err)
		if t != nil {
			_ = t.Close()
		}
		return
	}
	if t != nil {
		n.term[id] = t
	}
	n.mu.Unlock()
}

func (n *NPU) onDisconnect(id int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.svm.Disconnect(id); err != nil {
		slog.Warn("npu: terminal disconnect", "port", id, "error", err)
	}
	delete(n.term, id)
}

func (n *NPU) onData(id int, data []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	tcb, ok := n.tcbs[id]
	if !ok {
		return
	}
	for _, c := range data {
		tcb.Input(c)
	}
}

// sendServiceMessage is SVM's upline transport: wrap pfc/sfc/data as one
// NPU block and hand it to BIP's upline-transfer path.
func (n *NPU) sendServiceMessage(pfc, sfc byte, data []byte) {
	buf, ok := n.pool.Get()
	if !ok {
		slog.Warn("npu: buffer pool exhausted sending service message")
		return
	}
	buf.BlockType = blockSvc
	buf.Data[0] = pfc
	buf.Data[1] = sfc
	copy(buf.Data[2:], data)
	buf.Len = 2 + len(data)
	n.bip.RequestUplineTransfer(buf)
}

// sendData is a TCB's upline transport for a flushed input block.
func (n *NPU) sendData(id int, seq uint8, data []byte) {
	buf, ok := n.pool.Get()
	if !ok {
		slog.Warn("npu: buffer pool exhausted flushing terminal input", "port", id)
		return
	}
	buf.BlockType = blockData
	buf.Seq = seq
	buf.ConnNum = byte(id)
	buf.Len = copy(buf.Data[:], data)
	n.bip.RequestUplineTransfer(buf)
}

const (
	blockSvc  byte = 1
	blockData byte = 2
)

func (n *NPU) handleSvmBlock(buf *buffer.Buffer) {
	defer n.pool.Release(buf)
	if buf.Len < 2 {
		return
	}
	pfc, sfc := buf.Data[0], buf.Data[1]
	if err := n.svm.SupervisionReply(pfc, sfc); err != nil {
		// Might legitimately be a CNF/ICN acknowledgement instead of a
		// supervision reply; dispatch on the PFC to the right handler.
		switch pfc {
		case svm.PfcCNF:
			_ = n.svm.ConfigAcked(int(buf.ConnNum))
		case svm.PfcICN:
			_ = n.svm.ConnectionAcked(int(buf.ConnNum))
		case svm.PfcTCN:
			_ = n.svm.DisconnectAcked(int(buf.ConnNum))
		}
	}
}

func (n *NPU) handleTipBlock(low bool, buf *buffer.Buffer) {
	defer n.pool.Release(buf)
	tcb, ok := n.tcbs[int(buf.ConnNum)]
	if !ok || buf.Len == 0 {
		return
	}
	blockType := buf.Data[0]
	var pfc, sfc byte
	var payload []byte
	if blockType == tip.BtHTCMD && buf.Len >= 3 {
		pfc, sfc = buf.Data[1], buf.Data[2]
		payload = buf.Data[3:buf.Len]
	} else if buf.Len > 1 {
		payload = buf.Data[1:buf.Len]
	}
	_ = tcb.HandleDownlineBlock(blockType, pfc, sfc, payload, func(data []byte) {
		if t, ok := n.term[int(buf.ConnNum)]; ok {
			_ = t.Send(data)
		}
	})
}

// Activate/Disconnect satisfy device.Device: the NPU channel is
// considered active whenever the BIP state machine is wired in, which
// is unconditionally true once New returns.
func (n *NPU) Activate() uint8   { return device.StatusReady }
func (n *NPU) Disconnect() uint8 { return device.StatusReady }

// Func receives the host channel's function code, which selects which
// downline order BIP should start (spec §4.5's Accepted/Processed/
// Declined contract).
func (n *NPU) Func(code word.PpWord) uint8 {
	n.mu.Lock()
	defer n.mu.Unlock()
	var order bip.Order
	switch code & 0o3 {
	case 0:
		order = bip.OrderSvm
	case 1:
		order = bip.OrderDataLow
	case 2:
		order = bip.OrderDataHigh
	default:
		return device.StatusError
	}
	if err := n.bip.StartOrder(order); err != nil {
		return device.StatusBusy
	}
	n.fcode = code
	return device.StatusReady
}

// Output delivers one downline byte (the channel word's low 8 bits) to
// BIP; a code with bit 0o4000 set signals block completion.
func (n *NPU) Output(value word.PpWord) uint8 {
	n.mu.Lock()
	defer n.mu.Unlock()
	if value&0o4000 != 0 {
		n.bip.Complete()
		return device.StatusReady
	}
	n.bip.PutByte(byte(value & 0xff))
	return device.StatusReady
}

// Input drains the upline-pending buffer one byte per call. The final
// byte of a buffer is tagged with bit 0o4000 (mirroring Output's
// end-of-block signal) so the host channel driver knows where the block
// ends; once drained, BIP's upline transfer is completed and the next
// queued buffer (if any) is promoted (spec §4.6).
func (n *NPU) Input() (word.PpWord, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.outBuf == nil {
		buf := n.bip.PeekUpline()
		if buf == nil {
			return 0, false
		}
		n.outBuf = buf
		n.outPos = 0
	}
	v := word.PpWord(n.outBuf.Data[n.outPos])
	n.outPos++
	last := n.outPos >= n.outBuf.Len
	if last {
		v |= 0o4000
		n.outBuf = nil
		n.outPos = 0
		n.bip.UplineTransferComplete()
	}
	return v, true
}

func (n *NPU) InitDev() uint8 { return device.StatusReady }

func (n *NPU) Shutdown() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, t := range n.term {
		_ = t.Close()
		delete(n.term, id)
	}
}

func (n *NPU) Debug(option string) error {
	switch option {
	case "svm", "bip", "tip":
		return nil
	default:
		return fmt.Errorf("npu: unknown debug option %q", option)
	}
}

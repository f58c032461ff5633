/*
cyber370 - Inter-component message bus

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

// Package master carries operator and network-listener requests to a
// running Mainframe over a single channel, the message-passing bus every
// goroutine outside the major-cycle loop uses instead of touching
// emulator state directly. Shape and message set are grounded on the
// teacher's emu/master usage contract as read from emu/core/core.go's
// processPacket switch, widened with NpuConnect/NpuDisconnect/NpuData
// per REDESIGN FLAGS (message-passing ownership rather than a raw mutex
// between the NPU listener thread and the major-cycle loop).
package master

import "net"

// Msg identifies the kind of request carried by a Packet.
type Msg int

const (
	TimeClock Msg = iota
	IPLdevice
	Start
	Stop
	NpuConnect
	NpuDisconnect
	NpuData
)

// Packet is one request delivered to a Mainframe's master channel.
//
// DevNum addresses the channel device the packet targets (resolved by a
// Mainframe's dispatch via channel.System.GetDevice); Port additionally
// carries the NPU terminal port number for the three Npu* messages, since
// a single NPU device multiplexes many terminal ports behind one channel
// device number (spec §4.6).
type Packet struct {
	DevNum uint16
	Port   int
	Msg    Msg
	Conn   net.Conn
	Data   []byte
}

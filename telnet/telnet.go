/*
cyber370 - telnet option negotiation

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

package telnet

import (
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/rcornwell/cyber370/emu/master"
	"github.com/rcornwell/cyber370/emu/npu"
)

// Telnet protocol constants - negatives are for init'ing signed char data

const (
	tnIAC  byte = 255 // protocol delim
	tnDONT byte = 254 // dont
	tnDO   byte = 253 // do
	tnWONT byte = 252 // wont
	tnWILL byte = 251 // will
	tnSB   byte = 250 // Sub negotiations begin
	tnBRK  byte = 243 // break
	tnSE   byte = 240 // Sub negotiations end
	tnSend byte = 1

	// Telnet line states.

	tnStateData int = 1 + iota // normal
	tnStateIAC                 // IAC seen
	tnStateWILL                // WILL seen
	tnStateDO                  // DO seen
	tnStateDONT                // DONT seen
	tnStateWONT                // WONT seen
	tnStateSKIP                // skip next cmd
	tnStateSB                  // Start of SB expect type
	tnStateSE                  // Waiting for SE
	tnStateSBIS                // Waiting for IS
	tnStateSBData               // Data for SB until IS
	tnStateSTerm                // Grab terminal type

	// Telnet options.
	tnOptionBinary byte = 0  // Binary data transfer
	tnOptionEcho   byte = 1  // Echo
	tnOptionSGA    byte = 3  // Send Go Ahead
	tnOptionTerm   byte = 24 // Request Terminal Type
	tnOptionEOR    byte = 25 // Handle end of record
	tnOptionNAWS   byte = 31 // Negotiate about terminal size
	tnOptionLINE   byte = 34 // line mode
	tnOptionENV    byte = 39 // Environment

	// Telnet flags.
	tnFlagDo   uint8 = 0x01 // Do received
	tnFlagDont uint8 = 0x02 // Don't received
	tnFlagWill uint8 = 0x04 // Will received
	tnFlagWont uint8 = 0x08 // Wont received
)

var initString = []byte{
	tnIAC, tnWONT, tnOptionLINE,
	tnIAC, tnWILL, tnOptionEcho,
	tnIAC, tnWILL, tnOptionSGA,
	tnIAC, tnWILL, tnOptionBinary,
	tnIAC, tnDO, tnOptionTerm,
}

// optName names a telnet option for log lines.
func optName(opt byte) string {
	switch opt {
	case tnOptionBinary:
		return "bin"
	case tnOptionEcho:
		return "echo"
	case tnOptionSGA:
		return "sga"
	case tnOptionTerm:
		return "term"
	case tnOptionEOR:
		return "eor"
	case tnOptionNAWS:
		return "naws"
	case tnOptionLINE:
		return "line"
	case tnOptionENV:
		return "env"
	}
	return "unknown"
}

// tnState is one connection's telnet option-negotiation state. Unlike the
// teacher's version it carries no terminal-identity fields: a CDC port's
// class and framing come from config, not from the client's reported
// terminal type, so there is nothing here to match against a device table.
type tnState struct {
	optionState [256]uint8
	sbtype      byte
	state       int
	conn        net.Conn
	port        int
	npuDev      uint16
	master      chan<- master.Packet
}

// sendOption writes one IAC command to the client and records the option
// state it implies.
func (state *tnState) sendOption(setState, option byte) {
	data := []byte{tnIAC, setState, option}
	_, _ = state.conn.Write(data)
	switch setState {
	case tnWILL:
		state.optionState[option] |= tnFlagWill
	case tnWONT:
		state.optionState[option] |= tnFlagWont
	case tnDO:
		state.optionState[option] |= tnFlagDo
	case tnDONT:
		state.optionState[option] |= tnFlagDont
	}
}

func (state *tnState) handleDO(input byte) {
	slog.Debug("telnet do", "port", state.port, "option", optName(input))
	switch input {
	case tnOptionSGA, tnOptionEcho:
		if (state.optionState[input] & tnFlagWill) != 0 {
			state.optionState[input] |= tnFlagDont
		}
	case tnOptionEOR:
		state.optionState[input] |= tnFlagDo
	case tnOptionBinary:
		if (state.optionState[input] & tnFlagDo) == 0 {
			state.sendOption(tnDO, input)
		}
	default:
		if (state.optionState[input] & tnFlagWont) == 0 {
			state.sendOption(tnWONT, input)
		}
	}
}

func (state *tnState) handleWILL(input byte) {
	slog.Debug("telnet will", "port", state.port, "option", optName(input))
	switch input {
	case tnOptionTerm:
		if (state.optionState[input] & tnFlagWill) == 0 {
			state.optionState[input] |= tnFlagWill
			send := []byte{tnIAC, tnSB, tnOptionTerm, tnSend, tnIAC, tnSE}
			_, _ = state.conn.Write(send)
		}
	case tnOptionEOR:
		state.optionState[input] |= tnFlagWill
	case tnOptionSGA:
		if (state.optionState[input] & tnFlagWill) == 0 {
			state.sendOption(tnDO, input)
		}
	case tnOptionEcho:
		if (state.optionState[input] & tnFlagWill) == 0 {
			state.optionState[input] |= tnFlagWill
			state.sendOption(tnDONT, input)
			state.sendOption(tnWONT, input)
		}
	case tnOptionBinary:
		state.optionState[input] |= tnFlagWill
	default:
		if (state.optionState[input] & tnFlagDont) == 0 {
			state.sendOption(tnDONT, input)
		}
	}
}

func (state *tnState) handleSE() {
	// Sub-negotiation replies (terminal type, NAWS, ...) carry no
	// information this CDC port cares about: framing is config-driven, not
	// negotiated. Acknowledging and discarding is sufficient.
}

// handleClient drains one accepted TCP connection, reserving an NPU port
// for its lifetime and forwarding its traffic as master.Packet NpuConnect/
// NpuData/NpuDisconnect notifications (spec §5's message bus).
func handleClient(conn net.Conn, npuDev uint16, n *npu.NPU, mc chan<- master.Packet, ct npu.ConnType) {
	defer conn.Close()

	id, _, ok := n.ReservePort()
	if !ok {
		fmt.Fprintf(conn, "All terminal ports busy, try again later.\r\n")
		return
	}

	mc <- master.Packet{DevNum: npuDev, Port: id, Msg: master.NpuConnect, Conn: conn}
	defer func() {
		n.ReleasePort(id)
		mc <- master.Packet{DevNum: npuDev, Port: id, Msg: master.NpuDisconnect}
	}()

	if ct == npu.ConnPterm {
		runTelnetSession(conn, npuDev, id, mc)
	} else {
		runRawSession(conn, npuDev, id, mc)
	}
}

// runRawSession passes bytes straight through to the NPU with no telnet
// option negotiation, for connType=raw/rs232 (spec §6).
func runRawSession(conn net.Conn, npuDev uint16, id int, mc chan<- master.Packet) {
	buf := make([]byte, 1024)
	for {
		num, err := conn.Read(buf)
		if err != nil {
			if err != io.EOF {
				slog.Debug("npu raw connection read error", "port", id, "error", err)
			}
			return
		}
		data := make([]byte, num)
		copy(data, buf[:num])
		mc <- master.Packet{DevNum: npuDev, Port: id, Msg: master.NpuData, Data: data}
	}
}

// runTelnetSession runs the IAC option-negotiation state machine over conn,
// forwarding input data bytes upline as NpuData packets, for
// connType=pterm (spec §6).
func runTelnetSession(conn net.Conn, npuDev uint16, id int, mc chan<- master.Packet) {
	state := &tnState{conn: conn, state: tnStateData, port: id, npuDev: npuDev, master: mc}
	buffer := make([]byte, 1024)
	term := []byte{}

	_, _ = state.conn.Write(initString)
	for {
		num, err := state.conn.Read(buffer)
		if err != nil {
			if err != io.EOF {
				slog.Debug("npu telnet connection read error", "port", id, "error", err)
			}
			return
		}
		var out []byte
		for i := range num {
			input := buffer[i]
			switch state.state {
			case tnStateData:
				if input == tnIAC {
					state.state = tnStateIAC
				} else {
					out = append(out, input)
				}

			case tnStateIAC:
				switch input {
				case tnIAC:
					out = append(out, input)
					state.state = tnStateData
				case tnBRK:
					state.state = tnStateData
				case tnWILL:
					state.state = tnStateWILL
				case tnWONT:
					state.state = tnStateWONT
				case tnDO:
					state.state = tnStateDO
				case tnDONT:
					state.state = tnStateDONT
				case tnSB:
					state.state = tnStateSB
				default:
					state.state = tnStateSKIP
				}

			case tnStateWILL:
				state.handleWILL(input)
				state.state = tnStateData

			case tnStateWONT:
				if (state.optionState[input] & tnFlagWont) == 0 {
					state.sendOption(tnWONT, input)
				}
				state.state = tnStateData

			case tnStateDO:
				state.handleDO(input)
				state.state = tnStateData

			case tnStateDONT:
				state.state = tnStateData

			case tnStateSKIP:
				state.state = tnStateData

			case tnStateSB:
				state.sbtype = input
				state.state = tnStateSBIS

			case tnStateSBIS:
				switch state.sbtype {
				case tnOptionTerm:
					state.state = tnStateSTerm
				default:
					state.state = tnStateSE
				}

			case tnStateSTerm:
				if input == tnIAC {
					state.state = tnStateSE
					term = term[:0]
				} else {
					term = append(term, input)
				}

			case tnStateSE:
				if input == tnSE {
					state.state = tnStateData
					state.handleSE()
				}
			}
		}
		if len(out) != 0 {
			data := make([]byte, len(out))
			copy(data, out)
			state.master <- master.Packet{DevNum: state.npuDev, Port: state.port, Msg: master.NpuData, Data: data}
		}
	}
}

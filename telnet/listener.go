/*
cyber370 - NPU terminal listener

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

// Package telnet supplies the NPU's TCP terminal transport (spec §4.6 and
// SPEC_FULL.md §6's "NPU terminal transport"): one net.Listener per
// npuConnections line, each accepting up to maxConns simultaneous
// connections and forwarding them as master.Packet NpuConnect/NpuDisconnect/
// NpuData notifications. connType=pterm runs the teacher's telnet
// option-negotiation state machine over the connection; connType=raw (and
// rs232, which has no line-discipline difference worth modelling over a TCP
// socket) passes bytes straight through. Grounded on the teacher's
// telnet/multiplexer.go Server/accept-loop shape, generalised away from its
// per-device 3270 terminal-type matching: a CDC terminal port's framing is
// fixed by config, not negotiated from the client's reported terminal type.
package telnet

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/rcornwell/cyber370/emu/master"
	"github.com/rcornwell/cyber370/emu/npu"
)

// Spec describes one npuConnections line (spec §6: "tcpPort,maxConns,
// connType").
type Spec struct {
	Port     string
	MaxConns int
	ConnType npu.ConnType
}

// Server is one listening TCP port accepting terminal connections for a
// single NPU.
type Server struct {
	wg       sync.WaitGroup
	listener net.Listener
	shutdown chan struct{}
	sem      chan struct{} // bounds concurrent connections to MaxConns

	npu      *npu.NPU
	npuDev   uint16
	master   chan<- master.Packet
	connType npu.ConnType
}

var servers []*Server

// Start opens one listener per Spec in specs, all feeding NpuConnect/
// NpuDisconnect/NpuData packets for npuDev to master. n is used directly
// (not through the packet bus) only for ReservePort/ReleasePort, the NPU's
// own mutex-guarded port bookkeeping -- not mainframe scheduler state, so
// touching it from the accept goroutine does not violate the message-
// passing discipline of spec §5.
func Start(n *npu.NPU, npuDev uint16, master chan<- master.Packet, specs []Spec) error {
	for _, sp := range specs {
		s, err := newServer(sp, n, npuDev, master)
		if err != nil {
			return err
		}
		servers = append(servers, s)

		host, lport, err := net.SplitHostPort(s.listener.Addr().String())
		if err != nil {
			return fmt.Errorf("telnet: listener address: %w", err)
		}
		if host == "::" || host == "" {
			host = "localhost"
		}
		slog.Info("npu terminal listener started", "host", host, "port", lport, "connType", sp.ConnType)

		s.wg.Add(1)
		go s.acceptConnections()
	}
	return nil
}

// Stop closes every listener started by Start and waits (briefly) for its
// in-flight connections to drain.
func Stop() {
	for _, s := range servers {
		_, portNum, err := net.SplitHostPort(s.listener.Addr().String())
		if err != nil {
			portNum = s.listener.Addr().String()
		}
		slog.Info("npu terminal listener shutting down", "port", portNum)

		close(s.shutdown)
		_ = s.listener.Close()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			slog.Warn("timed out waiting for npu connections to close", "port", portNum)
		}
	}
	servers = nil
}

func newServer(sp Spec, n *npu.NPU, npuDev uint16, master chan<- master.Packet) (*Server, error) {
	listener, err := net.Listen("tcp", ":"+sp.Port)
	if err != nil {
		return nil, fmt.Errorf("telnet: listen on port %s: %w", sp.Port, err)
	}
	maxConns := sp.MaxConns
	if maxConns <= 0 {
		maxConns = 1
	}
	return &Server{
		listener: listener,
		shutdown: make(chan struct{}),
		sem:      make(chan struct{}, maxConns),
		npu:      n,
		npuDev:   npuDev,
		master:   master,
		connType: sp.ConnType,
	}, nil
}

// acceptConnections accepts connections up to MaxConns at a time, handing
// each off to its own handleClient goroutine.
func (s *Server) acceptConnections() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				slog.Warn("npu terminal accept error", "error", err)
				continue
			}
		}

		select {
		case s.sem <- struct{}{}:
		default:
			fmt.Fprintf(conn, "All ports busy, try again later.\r\n")
			_ = conn.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { <-s.sem }()
			handleClient(conn, s.npuDev, s.npu, s.master, s.connType)
		}()
	}
}

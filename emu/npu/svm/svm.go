/*
cyber370 - NPU Service Message (SVM) state machine

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

// Package svm implements the NPU's Service Message layer (spec §4.6): the
// supervision handshake that must reach Ready before any terminal is
// connected, and the per-port connect/disconnect sequence that drives a
// TCB between NetConnected and HostConnected.
package svm

import (
	"fmt"
	"sync"
)

// State is SVM's supervision-handshake state.
type State int

const (
	Idle State = iota
	WaitSupervision
	Ready
)

// TermState is one port's connection-sequence state (spec §4.6).
type TermState int

const (
	StTermIdle TermState = iota
	NetConnected
	RequestConfig
	RequestConnection
	HostConnected
	NpuDisconnect
)

// PFC/SFC mnemonics named in spec §4.6, packed as a byte pair wherever a
// service message's primary/secondary function code is referenced.
const (
	PfcSupervision byte = 0x01
	SfcRequest     byte = 0x01
	SfcIN          byte = 0x02
	SfcResp        byte = 0x04

	PfcCNF byte = 0x10 // configure
	PfcICN byte = 0x11 // initiate connection
	PfcTCN byte = 0x12 // terminate connection
	SfcTE  byte = 0x01 // terminal-engine sub-function
	SfcTA  byte = 0x02 // acknowledge
	SfcR   byte = 0x04 // reply/regulation
)

// Port is one terminal connection's SVM-level state.
type Port struct {
	ID    int
	State TermState
}

// SVM is one mainframe's Service Message state machine.
type SVM struct {
	mu    sync.Mutex
	state State
	ports map[int]*Port

	// SendUpline transmits one service message (pfc, sfc, payload) to the
	// host via BIP's upline path; nil in tests that only check state
	// transitions.
	SendUpline func(pfc, sfc byte, data []byte)
}

// New creates an SVM state machine.
func New() *SVM {
	return &SVM{ports: make(map[int]*Port)}
}

// State reports the supervision handshake's current state.
func (s *SVM) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RegulationOrder is the host's regulation-level order that starts the
// supervision handshake (spec §4.6: "Regulation-level order from host
// drives Idle->WaitSupervision (sends request-supervision upline)").
func (s *SVM) RegulationOrder() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle {
		return fmt.Errorf("svm: regulation order while state=%d", s.state)
	}
	s.state = WaitSupervision
	if s.SendUpline != nil {
		s.SendUpline(PfcSupervision, SfcRequest, nil)
	}
	return nil
}

// SupervisionReply handles the host's supervision service message; a
// reply carrying SfcIN|SfcResp advances WaitSupervision->Ready (spec
// §4.6). Any other reply is rejected with an error and leaves the state
// unchanged.
func (s *SVM) SupervisionReply(pfc, sfc byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != WaitSupervision {
		return fmt.Errorf("svm: supervision reply while state=%d", s.state)
	}
	if pfc != PfcSupervision || sfc&(SfcIN|SfcResp) != (SfcIN|SfcResp) {
		return fmt.Errorf("svm: unexpected supervision reply pfc=%#x sfc=%#x", pfc, sfc)
	}
	s.state = Ready
	return nil
}

// Ready reports whether supervision has completed, gating whether any
// terminal connection attempt is allowed (spec §4.6: "Until Ready, no
// terminal connections are attempted").
func (s *SVM) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Ready
}

// port returns (creating if needed) the Port state for id. Caller holds
// s.mu.
func (s *SVM) port(id int) *Port {
	p, ok := s.ports[id]
	if !ok {
		p = &Port{ID: id}
		s.ports[id] = p
	}
	return p
}

// PortState returns port id's current connection-sequence state.
func (s *SVM) PortState(id int) TermState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port(id).State
}

// NetConnect advances a port StTermIdle->NetConnected on a TCP accept
// (spec §4.6's connection sequence, step 1) and immediately moves on to
// RequestConfig, sending CNF/TE upline. The ICN/TE connection request is
// not sent here; ConfigAcked sends it once the host acknowledges the
// configuration.
func (s *SVM) NetConnect(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.readyLocked() {
		return fmt.Errorf("svm: not ready for terminal connections")
	}
	p := s.port(id)
	if p.State != StTermIdle {
		return fmt.Errorf("svm: port %d connect while state=%d", id, p.State)
	}
	p.State = NetConnected
	p.State = RequestConfig
	if s.SendUpline != nil {
		s.SendUpline(PfcCNF, SfcTE, []byte{byte(id)})
	}
	return nil
}

func (s *SVM) readyLocked() bool { return s.state == Ready }

// ConfigAcked advances RequestConfig->RequestConnection on the host's CNF
// acknowledgement, and sends the connection request upline.
func (s *SVM) ConfigAcked(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.port(id)
	if p.State != RequestConfig {
		return fmt.Errorf("svm: port %d config ack while state=%d", id, p.State)
	}
	p.State = RequestConnection
	if s.SendUpline != nil {
		s.SendUpline(PfcICN, SfcTE, []byte{byte(id)})
	}
	return nil
}

// ConnectionAcked advances RequestConnection->HostConnected on the host's
// ICN acknowledgement (spec §4.6's final connect-sequence step).
func (s *SVM) ConnectionAcked(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.port(id)
	if p.State != RequestConnection {
		return fmt.Errorf("svm: port %d connection ack while state=%d", id, p.State)
	}
	p.State = HostConnected
	return nil
}

// Disconnect starts the disconnect sequence: HostConnected->NpuDisconnect
// (spec §4.6: "TCN/TA/R sent"), triggered by a TCP close.
func (s *SVM) Disconnect(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.port(id)
	if p.State != HostConnected {
		return fmt.Errorf("svm: port %d disconnect while state=%d", id, p.State)
	}
	p.State = NpuDisconnect
	if s.SendUpline != nil {
		s.SendUpline(PfcTCN, SfcTA|SfcR, []byte{byte(id)})
	}
	return nil
}

// DisconnectAcked completes the disconnect sequence: NpuDisconnect->Idle
// on the TCN/TA/R reply (spec §4.6), freeing the port id for reuse.
func (s *SVM) DisconnectAcked(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.port(id)
	if p.State != NpuDisconnect {
		return fmt.Errorf("svm: port %d disconnect ack while state=%d", id, p.State)
	}
	p.State = StTermIdle
	return nil
}

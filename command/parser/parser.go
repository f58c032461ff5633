/*
cyber370 - Operator command parser.

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

// Package parser implements the operator console's command line: attach/
// detach/debug a channel's device, start/stop/continue/ipl the monitor
// CPU, show a channel's status, and examine/deposit central memory.
// Tokenizer shape (cmdLine's skipSpace/isEOL/getNext/parseQuoteString) is
// grounded on the teacher's command/parser/parser.go; the command table
// itself is rebuilt around emu/channel.System and emu/master.Packet
// instead of the teacher's per-device command.Command/ch.GetCommand
// machinery, since a CDC device exposes only the device.Device contract
// (spec §4.5), not a Show/Set/Attach option vocabulary per unit.
//
// Every command runs against mainframe 0: multi-mainframe installations
// (spec §2) are addressed only through config in this implementation, not
// from the operator console.
package parser

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	"github.com/rcornwell/cyber370/emu/master"
	"github.com/rcornwell/cyber370/emu/system"
	"github.com/rcornwell/cyber370/emu/word"
)

type cmd struct {
	name     string // Command name.
	min      int    // Minimum match size.
	process  func(*cmdLine, *system.System) (bool, error)
	complete func(*cmdLine) []string
}

type cmdLine struct {
	line string // Current command.
	pos  int    // Position in line.
}

var cmdList = []cmd{
	{name: "attach", min: 2, process: attach},
	{name: "detach", min: 2, process: detach},
	{name: "debug", min: 2, process: debug},
	{name: "quit", min: 4, process: quit},
	{name: "stop", min: 3, process: stop},
	{name: "continue", min: 1, process: cont},
	{name: "start", min: 3, process: start},
	{name: "show", min: 2, process: show},
	{name: "ipl", min: 1, process: ipl},
	{name: "examine", min: 2, process: examine},
	{name: "deposit", min: 2, process: deposit},
}

// ProcessCommand executes one operator command line against sys.
func ProcessCommand(commandLine string, sys *system.System) (bool, error) {
	line := cmdLine{line: commandLine}
	command := line.getWord()

	match := matchList(command)
	if len(match) == 0 {
		return false, errors.New("command not found: " + command)
	}
	if len(match) > 1 {
		return false, errors.New("ambiguous command: " + command)
	}
	return match[0].process(&line, sys)
}

// CompleteCmd completes a command name or, if one is already matched and
// it supplies a completer, its arguments.
func CompleteCmd(commandLine string) []string {
	line := cmdLine{line: commandLine}
	name := line.getWord()

	if !line.isEOL() && line.line[line.pos] == ' ' {
		line.skipSpace()
		match := matchList(name)
		if len(match) != 1 || match[0].complete == nil {
			return nil
		}
		return match[0].complete(&line)
	}

	match := matchList(name)
	matches := make([]string, len(match))
	for i, m := range match {
		matches[i] = m.name
	}
	return matches
}

// matchCommand reports whether command is an in-order prefix of
// match.name at least match.min characters long.
func matchCommand(match cmd, command string) bool {
	if len(command) > len(match.name) {
		return false
	}
	for i := range command {
		if match.name[i] != command[i] {
			return false
		}
	}
	return len(command) >= match.min
}

func matchList(command string) []cmd {
	if command == "" {
		return []cmd{}
	}
	var match []cmd
	for _, m := range cmdList {
		if matchCommand(m, command) {
			match = append(match, m)
		}
	}
	return match
}

func (line *cmdLine) skipSpace() {
	for line.pos < len(line.line) && unicode.IsSpace(rune(line.line[line.pos])) {
		line.pos++
	}
}

func (line *cmdLine) isEOL() bool {
	return line.pos >= len(line.line) || line.line[line.pos] == '#'
}

func (line *cmdLine) getNext() byte {
	line.pos++
	if line.isEOL() {
		return 0
	}
	return line.line[line.pos]
}

func (line *cmdLine) getPeek() byte {
	if line.pos+1 >= len(line.line) {
		return 0
	}
	return line.line[line.pos+1]
}

// parseQuoteString reads a "quoted" or bare whitespace-terminated string.
func (line *cmdLine) parseQuoteString() (string, bool) {
	inQuote := false
	value := ""

	if line.getPeek() == '"' {
		inQuote = true
		_ = line.getNext()
	}

	for {
		by := line.getNext()
		if by == '"' && inQuote {
			by = line.getNext()
			if by != '"' {
				return value, true
			}
		}
		if !inQuote && (unicode.IsSpace(rune(by)) || by == 0) {
			return value, true
		}
		value += string(by)
		if line.isEOL() {
			return value, !inQuote
		}
	}
}

// getWord reads a run of letters, lower-cased (command names and options
// are case-insensitive).
func (line *cmdLine) getWord() string {
	line.skipSpace()
	if line.isEOL() {
		return ""
	}
	pos := line.pos
	value := ""
	by := line.line[line.pos]
	for {
		if !unicode.IsLetter(rune(by)) {
			line.pos = pos
			return ""
		}
		value += string(by)
		by = line.getNext()
		if line.isEOL() || unicode.IsSpace(rune(by)) {
			break
		}
	}
	return strings.ToLower(value)
}

// getToken reads a run of non-space characters (octal numbers, hostnames).
func (line *cmdLine) getToken() string {
	line.skipSpace()
	if line.isEOL() {
		return ""
	}
	value := ""
	by := line.line[line.pos]
	for {
		value += string(by)
		by = line.getNext()
		if line.isEOL() || unicode.IsSpace(rune(by)) {
			break
		}
	}
	return value
}

// getChannel parses an octal channel number 0-37.
func (line *cmdLine) getChannel() (int, error) {
	tok := line.getToken()
	if tok == "" {
		return 0, errors.New("channel number required")
	}
	n, err := strconv.ParseUint(tok, 8, 5)
	if err != nil {
		return 0, fmt.Errorf("invalid channel number %q: %w", tok, err)
	}
	return int(n), nil
}

func attach(line *cmdLine, sys *system.System) (bool, error) {
	ch, err := line.getChannel()
	if err != nil {
		return false, err
	}
	file, _ := line.parseQuoteString()
	if file == "" {
		return false, errors.New("attach requires a file name")
	}
	mf := sys.Mainframe(0)
	if mf == nil {
		return false, errors.New("no mainframe configured")
	}
	slog.Info("operator attach", "channel", fmt.Sprintf("%o", ch), "file", file)
	return false, mf.Channels().Attach(ch, file)
}

func detach(line *cmdLine, sys *system.System) (bool, error) {
	ch, err := line.getChannel()
	if err != nil {
		return false, err
	}
	mf := sys.Mainframe(0)
	if mf == nil {
		return false, errors.New("no mainframe configured")
	}
	slog.Info("operator detach", "channel", fmt.Sprintf("%o", ch))
	return false, mf.Channels().Detach(ch)
}

// debug toggles a named debug option on the device attached to a channel
// (device.Device.Debug), the teacher's set/unset verbs collapsed into one
// command since CDC devices expose debug flags, not a Set option vocabulary.
func debug(line *cmdLine, sys *system.System) (bool, error) {
	ch, err := line.getChannel()
	if err != nil {
		return false, err
	}
	option := line.getWord()
	if option == "" {
		return false, errors.New("debug requires an option name")
	}
	mf := sys.Mainframe(0)
	if mf == nil {
		return false, errors.New("no mainframe configured")
	}
	dev, err := mf.Channels().GetDevice(ch)
	if err != nil {
		return false, err
	}
	return false, dev.Debug(option)
}

func quit(_ *cmdLine, _ *system.System) (bool, error) {
	return true, nil
}

func stop(_ *cmdLine, sys *system.System) (bool, error) {
	slog.Info("operator stop")
	return false, sys.Dispatch(0, master.Packet{Msg: master.Stop})
}

func cont(_ *cmdLine, sys *system.System) (bool, error) {
	slog.Info("operator continue")
	return false, sys.Dispatch(0, master.Packet{Msg: master.Start})
}

func start(_ *cmdLine, sys *system.System) (bool, error) {
	slog.Info("operator start")
	return false, sys.Dispatch(0, master.Packet{Msg: master.Start})
}

func ipl(line *cmdLine, sys *system.System) (bool, error) {
	ch, err := line.getChannel()
	if err != nil {
		return false, err
	}
	slog.Info("operator ipl", "channel", fmt.Sprintf("%o", ch))
	return false, sys.Dispatch(0, master.Packet{DevNum: uint16(ch), Msg: master.IPLdevice})
}

// show prints one channel's active/full status, or every
// channel's if no channel number is given.
func show(line *cmdLine, sys *system.System) (bool, error) {
	mf := sys.Mainframe(0)
	if mf == nil {
		return false, errors.New("no mainframe configured")
	}

	if line.isEOL() {
		for n := 0; n < 32; n++ {
			if c := mf.Channels().Channel(n); c != nil {
				fmt.Printf("channel %02o: active=%v full=%v\n", n, c.Active(), c.Full())
			}
		}
		return false, nil
	}

	ch, err := line.getChannel()
	if err != nil {
		return false, err
	}
	c := mf.Channels().Channel(ch)
	if c == nil {
		return false, fmt.Errorf("channel %o out of range", ch)
	}
	fmt.Printf("channel %02o: active=%v full=%v\n", ch, c.Active(), c.Full())
	return false, nil
}

// examine prints one central memory word in octal (spec §1's 60-bit CP
// word), the teacher's examine verb re-cut for word addressing instead of
// S/370 byte addressing.
func examine(line *cmdLine, sys *system.System) (bool, error) {
	mf := sys.Mainframe(0)
	if mf == nil {
		return false, errors.New("no mainframe configured")
	}
	tok := line.getToken()
	addr, err := strconv.ParseUint(tok, 8, 32)
	if err != nil {
		return false, fmt.Errorf("invalid address %q: %w", tok, err)
	}
	val, ok := mf.Memory().ReadWord(uint32(addr))
	if !ok {
		return false, fmt.Errorf("address %o out of range", addr)
	}
	fmt.Printf("%o: %020o\n", addr, uint64(val))
	return false, nil
}

// deposit stores one central memory word given in octal.
func deposit(line *cmdLine, sys *system.System) (bool, error) {
	mf := sys.Mainframe(0)
	if mf == nil {
		return false, errors.New("no mainframe configured")
	}
	addrTok := line.getToken()
	addr, err := strconv.ParseUint(addrTok, 8, 32)
	if err != nil {
		return false, fmt.Errorf("invalid address %q: %w", addrTok, err)
	}
	valTok := line.getToken()
	val, err := strconv.ParseUint(valTok, 8, 60)
	if err != nil {
		return false, fmt.Errorf("invalid value %q: %w", valTok, err)
	}
	if !mf.Memory().WriteWord(uint32(addr), word.CpWord(val)) {
		return false, fmt.Errorf("address %o out of range", addr)
	}
	return false, nil
}

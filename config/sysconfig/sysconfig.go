/*
cyber370 - top-level configuration wiring

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

// Package sysconfig registers the config keys spec §6 names (mainframe,
// equipment, npuConnections, ecsbanks/esmbanks, persistDir, telnetport,
// trace) onto the teacher's line-based config/configparser grammar, the
// same self-registering-model idiom the teacher's device packages use
// (init() -> config.RegisterModel/RegisterOption). Results accumulate into
// the package-level Loaded value for main.go to read once
// config.LoadConfigFile returns and build an emu/system.System from it.
//
// The equipment and npuConnections sections are spec'd as bare comma lists
// ("devType,eqNo,unitNo,channelNo[,deviceName]" and
// "tcpPort,maxConns,connType"); rather than introducing a second config
// grammar for them, each line's whole comma record is carried as the
// configparser's single "first" token (see configparser.go's parseFirst,
// widened to accept commas) and split here.
package sysconfig

import (
	"fmt"
	"strconv"
	"strings"

	config "github.com/rcornwell/cyber370/config/configparser"
	"github.com/rcornwell/cyber370/emu/core"
	esys "github.com/rcornwell/cyber370/emu/npu"
	system "github.com/rcornwell/cyber370/emu/system"
)

// EquipmentLine is one parsed `equipment` section entry (spec §6).
type EquipmentLine struct {
	DevType   string
	EqNo      int
	UnitNo    int
	ChannelNo int
	Name      string
}

// NPUConnLine is one parsed `npuConnections` section entry (spec §6).
type NPUConnLine struct {
	TCPPort  string
	MaxConns int
	ConnType esys.ConnType
}

// Config is everything sysconfig's registered keys accumulate while
// config.LoadConfigFile runs.
type Config struct {
	System     system.Config
	Equipment  []EquipmentLine
	NPUConns   []NPUConnLine
	PersistDir string
	TelnetPort string
	TraceMask  uint64
}

// Loaded is the single configuration being built; config files are loaded
// once per process, so a package-level accumulator (mirroring the
// teacher's own package-level terminal/port maps) needs no synchronisation.
var Loaded Config

func init() {
	config.RegisterModel("MAINFRAME", config.TypeOptions, setMainframe)
	config.RegisterOption("EQUIPMENT", setEquipment)
	config.RegisterOption("NPUCONNECTIONS", setNPUConn)
	config.RegisterOption("ECSBANKS", setECSBanks)
	config.RegisterOption("ESMBANKS", setESMBanks)
	config.RegisterOption("PERSISTDIR", setPersistDir)
	config.RegisterOption("TELNETPORT", setTelnetPort)
	config.RegisterOption("TRACE", setTrace)
}

// setMainframe parses one `MAINFRAME <model> key=value...` line into a
// core.Config appended to Loaded.System.Mainframes. The model name is
// accepted but not used or logged; it selects no CEJ/MEJ feature bits
// in emu/cpu.
func setMainframe(_ uint16, model string, options []config.Option) error {
	cfg := core.Config{CPURatio: 4, NumPpus: 0o12}
	for _, opt := range options {
		name := strings.ToUpper(opt.Name)
		switch name {
		case "MEMORY":
			n, err := strconv.ParseUint(opt.EqualOpt, 8, 32)
			if err != nil {
				return fmt.Errorf("sysconfig: mainframe memory value %q: %w", opt.EqualOpt, err)
			}
			cfg.MemWords = uint32(n)
		case "CPURATIO":
			n, err := strconv.Atoi(opt.EqualOpt)
			if err != nil {
				return fmt.Errorf("sysconfig: mainframe cpuratio value %q: %w", opt.EqualOpt, err)
			}
			cfg.CPURatio = n
		case "PPS":
			n, err := strconv.ParseUint(opt.EqualOpt, 8, 8)
			if err != nil {
				return fmt.Errorf("sysconfig: mainframe pps value %q: %w", opt.EqualOpt, err)
			}
			cfg.NumPpus = int(n)
		case "DUALCPU":
			cfg.DualCPU = true
		default:
			return fmt.Errorf("sysconfig: unknown mainframe option %q", opt.Name)
		}
	}
	cfg.ID = len(Loaded.System.Mainframes)
	Loaded.System.Mainframes = append(Loaded.System.Mainframes, cfg)
	Loaded.System.NumMainframes = len(Loaded.System.Mainframes)
	_ = model // model name is accepted and not used
	return nil
}

// setEquipment parses one `EQUIPMENT devType,eqNo,unitNo,channelNo[,name]`
// line (spec §6).
func setEquipment(_ uint16, record string, _ []config.Option) error {
	fields := strings.Split(record, ",")
	if len(fields) < 4 {
		return fmt.Errorf("sysconfig: equipment line needs at least 4 fields, got %q", record)
	}
	eqNo, err := strconv.Atoi(fields[1])
	if err != nil {
		return fmt.Errorf("sysconfig: equipment eqNo %q: %w", fields[1], err)
	}
	unitNo, err := strconv.Atoi(fields[2])
	if err != nil {
		return fmt.Errorf("sysconfig: equipment unitNo %q: %w", fields[2], err)
	}
	channelNo, err := strconv.ParseUint(fields[3], 8, 8)
	if err != nil {
		return fmt.Errorf("sysconfig: equipment channelNo %q: %w", fields[3], err)
	}
	line := EquipmentLine{DevType: strings.ToUpper(fields[0]), EqNo: eqNo, UnitNo: unitNo, ChannelNo: int(channelNo)}
	if len(fields) > 4 {
		line.Name = fields[4]
	}
	Loaded.Equipment = append(Loaded.Equipment, line)
	return nil
}

// setNPUConn parses one `NPUCONNECTIONS tcpPort,maxConns,connType` line
// (spec §6: connType in raw|pterm|rs232).
func setNPUConn(_ uint16, record string, _ []config.Option) error {
	fields := strings.Split(record, ",")
	if len(fields) != 3 {
		return fmt.Errorf("sysconfig: npuConnections line needs 3 fields, got %q", record)
	}
	maxConns, err := strconv.Atoi(fields[1])
	if err != nil {
		return fmt.Errorf("sysconfig: npuConnections maxConns %q: %w", fields[1], err)
	}
	var ct esys.ConnType
	switch strings.ToLower(fields[2]) {
	case "raw":
		ct = esys.ConnRaw
	case "pterm":
		ct = esys.ConnPterm
	case "rs232":
		ct = esys.ConnRs232
	default:
		return fmt.Errorf("sysconfig: npuConnections connType must be raw|pterm|rs232, got %q", fields[2])
	}
	Loaded.NPUConns = append(Loaded.NPUConns, NPUConnLine{TCPPort: fields[0], MaxConns: maxConns, ConnType: ct})
	return nil
}

func setECSBanks(_ uint16, value string, _ []config.Option) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("sysconfig: ecsbanks value %q: %w", value, err)
	}
	Loaded.System.ECSBanks = n
	return nil
}

func setESMBanks(_ uint16, value string, _ []config.Option) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("sysconfig: esmbanks value %q: %w", value, err)
	}
	Loaded.System.ESMBanks = n
	return nil
}

func setPersistDir(_ uint16, value string, _ []config.Option) error {
	Loaded.PersistDir = value
	return nil
}

// setTelnetPort records a fallback NPU listener port used when no explicit
// npuConnections lines are present, so a minimal config file still gets one
// usable terminal connection (default connType=pterm, spec §6).
func setTelnetPort(_ uint16, value string, _ []config.Option) error {
	Loaded.TelnetPort = value
	return nil
}

func setTrace(_ uint16, value string, _ []config.Option) error {
	n, err := strconv.ParseUint(value, 8, 64)
	if err != nil {
		return fmt.Errorf("sysconfig: trace mask %q: %w", value, err)
	}
	Loaded.TraceMask = n
	return nil
}

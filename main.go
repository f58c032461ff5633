/*
cyber370 - Main process.

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

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	getopt "github.com/pborman/getopt/v2"

	"github.com/rcornwell/cyber370/command/reader"
	config "github.com/rcornwell/cyber370/config/configparser"
	"github.com/rcornwell/cyber370/config/sysconfig"
	"github.com/rcornwell/cyber370/emu/npu"
	"github.com/rcornwell/cyber370/emu/npu/tip"
	"github.com/rcornwell/cyber370/emu/system"
	"github.com/rcornwell/cyber370/emu/trace"
	"github.com/rcornwell/cyber370/telnet"
	logger "github.com/rcornwell/cyber370/util/logger"
)

func main() {
	optConfig := getopt.StringLong("config", 'c', "cyber370.cfg", "Configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var file *os.File
	if *optLogFile != "" {
		var err error
		file, err = os.Create(*optLogFile)
		if err != nil {
			fmt.Println("unable to create log file:", err)
			os.Exit(1)
		}
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelInfo)
	debugFlag := false
	logHandler := logger.NewHandler(file, &slog.HandlerOptions{Level: programLevel, AddSource: false}, &debugFlag)
	slog.SetDefault(slog.New(logHandler))

	slog.Info("cyber370 started")

	if _, err := os.Stat(*optConfig); os.IsNotExist(err) {
		slog.Error("configuration file not found", "path", *optConfig)
		os.Exit(1)
	}

	if err := config.LoadConfigFile(*optConfig); err != nil {
		slog.Error("configuration load failed", "error", err)
		os.Exit(1)
	}
	trace.SetMask(trace.Class(sysconfig.Loaded.TraceMask))

	sys, err := system.New(sysconfig.Loaded.System)
	if err != nil {
		slog.Error("system construction failed", "error", err)
		os.Exit(1)
	}

	specs := telnetSpecs()
	npuDev, npuCore := wireEquipment(sys, specs)

	if npuCore != nil {
		if err := telnet.Start(npuCore, npuDev, sys.Mainframe(0).Master(), specs); err != nil {
			slog.Error("telnet listener start failed", "error", err)
			os.Exit(1)
		}
		defer telnet.Stop()
	}

	sys.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	consoleDone := make(chan struct{})
	go func() {
		reader.ConsoleReader(sys)
		close(consoleDone)
	}()

	select {
	case <-sigChan:
		slog.Info("received shutdown signal")
	case <-consoleDone:
		slog.Info("operator quit")
	}

	slog.Info("shutting down mainframe")
	ecsStore := ""
	if sysconfig.Loaded.PersistDir != "" {
		ecsStore = filepath.Join(sysconfig.Loaded.PersistDir, "ecsStore")
	}
	if err := sys.Shutdown(ecsStore); err != nil {
		slog.Error("ecs persist failed", "error", err)
	}
	if npuCore != nil {
		telnet.Stop()
	}
	slog.Info("shutdown complete")
}

// wireEquipment attaches every configured equipment line to mainframe 0's
// channels (spec §6). Only the NPU device type is implemented today; other
// equipment lines are accepted by configuration parsing but not yet
// instantiated (see DESIGN.md). specs (from telnetSpecs) drives how many
// terminal ports get registered on the NPU, so a synthesized default
// listener still has ports to hand out. Returns the NPU's device number
// and core so main can start its TCP listeners, or (0, nil) if no NPU is
// configured.
func wireEquipment(sys *system.System, specs []telnet.Spec) (uint16, *npu.NPU) {
	mf := sys.Mainframe(0)
	if mf == nil {
		return 0, nil
	}

	var npuDev uint16
	var npuCore *npu.NPU

	for _, eq := range sysconfig.Loaded.Equipment {
		switch eq.DevType {
		case "NPU":
			devNum := uint16(eq.EqNo)
			n := npu.New(devNum)
			if err := mf.Channels().AddDevice(eq.ChannelNo, devNum, n); err != nil {
				slog.Error("npu wiring failed", "channel", eq.ChannelNo, "error", err)
				continue
			}
			npuDev = devNum
			npuCore = n
		default:
			slog.Warn("equipment type not implemented, skipping", "devType", eq.DevType, "channel", eq.ChannelNo)
		}
	}

	if npuCore != nil {
		id := 0
		for _, sp := range specs {
			for range sp.MaxConns {
				npuCore.RegisterPort(id, tip.Class3, sp.ConnType)
				id++
			}
		}
	}

	return npuDev, npuCore
}

// telnetSpecs turns the configured npuConnections lines into telnet.Specs,
// falling back to a single default pterm listener on TelnetPort (or 6676,
// the teacher's two-port-mux default) when the configuration names no
// npuConnections at all.
func telnetSpecs() []telnet.Spec {
	if len(sysconfig.Loaded.NPUConns) == 0 {
		port := sysconfig.Loaded.TelnetPort
		if port == "" {
			port = "6676"
		}
		return []telnet.Spec{{Port: port, MaxConns: 16, ConnType: npu.ConnPterm}}
	}
	specs := make([]telnet.Spec, len(sysconfig.Loaded.NPUConns))
	for i, conn := range sysconfig.Loaded.NPUConns {
		specs[i] = telnet.Spec{Port: conn.TCPPort, MaxConns: conn.MaxConns, ConnType: conn.ConnType}
	}
	return specs
}

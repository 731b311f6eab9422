package main

import (
	"fmt"
	"os"

	"github.com/twibus/twid-go/core"
	"github.com/twibus/twid-go/server"
	"github.com/twibus/twid-go/twi/emu"
)

const version = "1.0.4"

func main() {
	options := parseFlags()

	if options.versionFlag {
		fmt.Printf("twid version %s\n", version)
		os.Exit(0)
	}

	stderrWriter, stderrLogger, shortMemoryWriter, longMemoryWriter := initLoggers(options.logfile, options.verbose)

	stderrLogger.Print("twid is starting.")

	longMemoryWriter.Log(fmt.Sprintf("connecting to emulator on port %d", options.port))
	bus, err := emu.Connect(options.port, longMemoryWriter)
	if err != nil {
		stderrLogger.Fatalf("emulator: %s", err)
	}

	c := core.New(bus, longMemoryWriter)
	if err := c.Init(); err != nil {
		stderrLogger.Fatalf("bus init: %s", err)
	}
	defer c.Close()

	longMemoryWriter.Log("creating HTTP server")
	s, err := server.New(c, stderrWriter, shortMemoryWriter, longMemoryWriter, version)
	if err != nil {
		stderrLogger.Fatalf("http: %s", err)
	}

	longMemoryWriter.Log("running HTTP server")
	if err := s.Run(); err != nil {
		stderrLogger.Fatalf("http: %s", err)
	}

	longMemoryWriter.Log("main ended successfully")
}

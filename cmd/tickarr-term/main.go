// Command tickarr-term runs a single timer widget in the terminal. The
// rendered time is the prompt.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/mescon/Tickarr/internal/clock"
	"github.com/mescon/Tickarr/internal/config"
	"github.com/mescon/Tickarr/internal/display"
	"github.com/mescon/Tickarr/internal/logger"
	"github.com/mescon/Tickarr/internal/terminal"
	"github.com/mescon/Tickarr/internal/widget"
)

func main() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	presetsFile := flag.String("presets-file", "", "YAML file with presets (env: TICKARR_PRESETS_FILE)")
	preset := flag.String("preset", "", "Preset to start from")
	logLevel := flag.String("log-level", "error", "Log level: debug, info, warn, error")
	flag.Parse()

	if *showVersion {
		fmt.Printf("tickarr-term %s\n", config.Version)
		os.Exit(0)
	}

	logger.SetLevel(*logLevel)

	opts, err := terminal.ParseOptions(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	path := *presetsFile
	if path == "" {
		path = os.Getenv("TICKARR_PRESETS_FILE")
	}
	layout, err := display.LoadLayout(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	base := layout.Defaults
	if *preset != "" {
		p, ok := layout.Presets[*preset]
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: unknown preset %q\n", *preset)
			os.Exit(2)
		}
		base = base.Overlay(p)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          terminal.FormatPrompt(""),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	prompt := terminal.NewPrompt("terminal", func(p string) {
		rl.SetPrompt(p)
		rl.Refresh()
	})

	w, err := widget.New(widget.Environment{Clock: clock.NewRealClock()}, prompt, base.Overlay(opts))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer w.Stop()

	console := terminal.NewConsole(w, rl.Stdout())
	console.PrintHelp()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			fmt.Fprintln(rl.Stdout(), "Exiting...")
			return
		}
		if !console.Execute(strings.TrimSpace(line)) {
			return
		}
	}
}

// Package cli provides the command-line interface for wxprobe.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

// Version is set at build time.
var Version = "dev"

// ExitInterrupted is the exit status after Ctrl-C.
const ExitInterrupted = 130

var errInterrupted = errors.New("interrupted")

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "device",
		Aliases: []string{"d"},
		Usage:   "Device ADB address (host:port for wireless debugging)",
		EnvVars: []string{"WXPROBE_DEVICE"},
	},
	&cli.StringFlag{
		Name:    "server-url",
		Usage:   "UIAutomator2 server URL (default: derived from the device address)",
		EnvVars: []string{"WXPROBE_SERVER_URL"},
	},
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to config.yaml (default: <home>/config.yaml)",
		EnvVars: []string{"WXPROBE_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "home",
		Usage:   "Home directory for config, data and logs",
		EnvVars: []string{"WXPROBE_HOME"},
	},
	&cli.StringFlag{
		Name:  "data-dir",
		Usage: "Directory for screenshots, hierarchy dumps and run results",
	},
	&cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Report format (text, json, yaml)",
		Value:   "text",
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable verbose logging",
		EnvVars: []string{"WXPROBE_VERBOSE"},
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "wxprobe",
		Usage:   "Drive and inspect the WeChat Android app over UIAutomator2",
		Version: Version,
		Description: `wxprobe connects to an Android device over ADB, drives WeChat through
the UIAutomator2 server and inspects what is on screen.

Examples:
  wxprobe --device 192.168.1.3:41239 run
  wxprobe connect
  wxprobe --format json dump
  wxprobe search-friend 张三
  wxprobe script flows/greet.js
  wxprobe serve`,
		Flags: GlobalFlags,
		Before: func(c *cli.Context) error {
			if c.Bool("no-ansi") {
				colorsEnabled = false
			}
			return nil
		},
		Commands: []*cli.Command{
			runCommand,
			connectCommand,
			permissionsCommand,
			dumpCommand,
			tabsCommand,
			bottomNavCommand,
			widgetsCommand,
			textsCommand,
			searchFriendCommand,
			scriptCommand,
			serveCommand,
		},
	}
}

// Execute runs the CLI and exits.
func Execute() {
	os.Exit(Run(os.Args))
}

// Run runs the CLI with args and returns the process exit status. SIGINT
// and SIGTERM cancel the command's context.
func Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newApp().RunContext(ctx, args)
	return exitCode(ctx, err, os.Stderr)
}

func exitCode(ctx context.Context, err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, errInterrupted) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		fmt.Fprintln(stderr, "Interrupted by user")
		return ExitInterrupted
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

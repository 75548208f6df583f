package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/wxauto/wxprobe/pkg/controller"
	"github.com/wxauto/wxprobe/pkg/core"
	"github.com/wxauto/wxprobe/pkg/logger"
	"github.com/wxauto/wxprobe/pkg/mcpserver"
	"github.com/wxauto/wxprobe/pkg/probe"
	"github.com/wxauto/wxprobe/pkg/script"
)

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "Connect, start the app, check login, go home and open search",
	Flags: []cli.Flag{
		&cli.DurationFlag{
			Name:  "login-timeout",
			Usage: "How long to wait for a manual login (default: timing.loginTimeout)",
		},
		&cli.StringFlag{
			Name:  "artifacts",
			Usage: "When to save screenshots and hierarchy dumps: on-failure, always, never",
			Value: "on-failure",
		},
	},
	Action: runAction,
}

func parseArtifacts(mode string) (core.ArtifactConfig, error) {
	cfg := core.DefaultArtifactConfig()
	switch mode {
	case "", "on-failure":
	case "always":
		cfg.CaptureOnSuccess = true
	case "never":
		cfg.CaptureOnFailure = false
	default:
		return cfg, fmt.Errorf("invalid --artifacts value %q (on-failure, always, never)", mode)
	}
	return cfg, nil
}

func runAction(c *cli.Context) error {
	artifacts, err := parseArtifacts(c.String("artifacts"))
	if err != nil {
		return err
	}
	s, err := openSession(c, false)
	if err != nil {
		return err
	}
	defer s.close()

	result := s.ctrl.Run(c.Context, controller.RunOptions{
		LoginTimeout: c.Duration("login-timeout"),
		Artifacts:    artifacts,
		DataDir:      s.cfg.Paths.DataDir,
	})

	if path, err := result.WriteJSON(s.cfg.Paths.DataDir); err != nil {
		logger.Warn("save run result: %v", err)
	} else {
		logger.Info("Run result: %s", path)
	}

	if s.format == probe.FormatText {
		printRunSummary(stdout, result)
	} else if err := encode(stdout, s.format, result); err != nil {
		return err
	}

	if result.Interrupted {
		return errInterrupted
	}
	if !result.Success() {
		return errors.New(result.Error)
	}
	return nil
}

var connectCommand = &cli.Command{
	Name:  "connect",
	Usage: "Check the device connection and print device and app state",
	Action: func(c *cli.Context) error {
		s, err := openSession(c, false)
		if err != nil {
			return err
		}
		defer s.close()

		report, err := probe.New(s.ctrl.Automation(), s.cfg).Connection(c.Context)
		if werr := probe.Write(stdout, s.format, report); werr != nil {
			return werr
		}
		return err
	},
}

// probeAction connects first, then runs fn and writes its report.
func probeAction(fn func(ctx context.Context, c *cli.Context, p *probe.Prober) (probe.Report, error)) cli.ActionFunc {
	return func(c *cli.Context) error {
		s, err := openSession(c, false)
		if err != nil {
			return err
		}
		defer s.close()

		if err := s.ctrl.Connect(c.Context); err != nil {
			return err
		}
		report, err := fn(c.Context, c, probe.New(s.ctrl.Automation(), s.cfg))
		if err != nil {
			return err
		}
		return probe.Write(stdout, s.format, report)
	}
}

var permissionsCommand = &cli.Command{
	Name:  "permissions",
	Usage: "Verify state queries, tap injection and screen capture",
	Action: probeAction(func(ctx context.Context, _ *cli.Context, p *probe.Prober) (probe.Report, error) {
		return p.Permissions(ctx)
	}),
}

var dumpCommand = &cli.Command{
	Name:  "dump",
	Usage: "Save a screenshot and the UI hierarchy and list visible texts",
	Action: probeAction(func(ctx context.Context, _ *cli.Context, p *probe.Prober) (probe.Report, error) {
		return p.DumpUI(ctx)
	}),
}

var tabsCommand = &cli.Command{
	Name:  "tabs",
	Usage: "Report the bottom navigation tabs",
	Action: probeAction(func(ctx context.Context, _ *cli.Context, p *probe.Prober) (probe.Report, error) {
		return p.Tabs(ctx)
	}),
}

var bottomNavCommand = &cli.Command{
	Name:  "bottom-nav",
	Usage: "List clickables near the bottom edge and compute tab tap points",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "launch", Usage: "Start the app first"},
		&cli.BoolFlag{Name: "annotate", Usage: "Save a screenshot with the tap points drawn on it"},
	},
	Action: probeAction(func(ctx context.Context, c *cli.Context, p *probe.Prober) (probe.Report, error) {
		return p.BottomNav(ctx, probe.BottomNavOptions{
			Launch:   c.Bool("launch"),
			Annotate: c.Bool("annotate"),
		})
	}),
}

var widgetsCommand = &cli.Command{
	Name:  "widgets",
	Usage: "Count widgets by class and list text views",
	Action: probeAction(func(ctx context.Context, _ *cli.Context, p *probe.Prober) (probe.Report, error) {
		return p.Widgets(ctx)
	}),
}

var textsCommand = &cli.Command{
	Name:  "texts",
	Usage: "Start the app and list the texts on screen",
	Action: probeAction(func(ctx context.Context, _ *cli.Context, p *probe.Prober) (probe.Report, error) {
		return p.Texts(ctx)
	}),
}

var searchFriendCommand = &cli.Command{
	Name:      "search-friend",
	Usage:     "Open the chat with a contact through search",
	ArgsUsage: "NAME",
	Action: func(c *cli.Context) error {
		name := c.Args().First()
		if name == "" {
			return errors.New("contact name required")
		}
		s, err := openSession(c, false)
		if err != nil {
			return err
		}
		defer s.close()

		ctx := c.Context
		if err := s.ctrl.Connect(ctx); err != nil {
			return err
		}
		if err := s.ctrl.StartApp(ctx); err != nil {
			return err
		}
		if err := s.ctrl.CheckLogin(ctx, s.cfg.Timing.LoginTimeout); err != nil {
			return err
		}
		if err := s.ctrl.GoToHome(ctx); err != nil {
			return err
		}
		return s.ctrl.SearchFriend(ctx, name)
	},
}

var scriptCommand = &cli.Command{
	Name:      "script",
	Usage:     "Run a JavaScript automation script",
	ArgsUsage: "FILE",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "env",
			Aliases: []string{"e"},
			Usage:   "Script variable as KEY=VALUE (repeatable)",
		},
	},
	Action: func(c *cli.Context) error {
		path := c.Args().First()
		if path == "" {
			return errors.New("script file required")
		}
		s, err := openSession(c, false)
		if err != nil {
			return err
		}
		defer s.close()

		engine := script.New(s.ctrl)
		vars, err := parseVars(c.StringSlice("env"))
		if err != nil {
			return err
		}
		for k, v := range vars {
			engine.SetVariable(k, v)
		}
		if err := engine.RunFile(c.Context, path); err != nil {
			return err
		}
		if out := engine.Output(); len(out) > 0 {
			f := s.format
			if f == probe.FormatText {
				f = probe.FormatJSON
			}
			return encode(stdout, f, out)
		}
		return nil
	},
}

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "Serve the controller as MCP tools over stdio",
	Action: func(c *cli.Context) error {
		s, err := openSession(c, true)
		if err != nil {
			return err
		}
		defer s.close()

		if err := s.ctrl.Connect(c.Context); err != nil {
			return err
		}
		logger.Info("Serving MCP on stdio")
		err = mcpserver.New(s.ctrl, Version).Serve(c.Context, os.Stdin, stdout)
		if c.Context.Err() != nil {
			return nil
		}
		return err
	},
}

func parseVars(pairs []string) (map[string]string, error) {
	vars := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid variable %q (want KEY=VALUE)", p)
		}
		vars[k] = v
	}
	return vars, nil
}

// encode writes v as JSON or YAML.
func encode(w io.Writer, f probe.Format, v interface{}) error {
	if f == probe.FormatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/wxauto/wxprobe/pkg/automator"
	"github.com/wxauto/wxprobe/pkg/config"
	"github.com/wxauto/wxprobe/pkg/controller"
	"github.com/wxauto/wxprobe/pkg/logger"
	"github.com/wxauto/wxprobe/pkg/probe"
)

// newAutomation builds the device session. Tests swap it for the fake.
var newAutomation = func(cfg *config.Config) automator.Automation {
	return automator.NewUIA2(automator.Options{
		ADBPort:       cfg.Device.ADBPort,
		ServerURL:     cfg.Device.ServerURL,
		ServerPort:    cfg.Device.ServerPort,
		ServerTimeout: cfg.Timing.ServerTimeout,
		PollInterval:  cfg.Timing.PollInterval,
	})
}

// stdout is where reports go; stderr takes diagnostics.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// loadConfig reads config.yaml and applies the global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	if home := c.String("home"); home != "" {
		if err := os.Setenv("WXPROBE_HOME", home); err != nil {
			return nil, err
		}
		config.ResetHome()
	}

	var (
		cfg *config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadFromDir(config.GetHome())
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if v := c.String("device"); v != "" {
		cfg.Device.Address = v
	}
	if v := c.String("server-url"); v != "" {
		cfg.Device.ServerURL = v
	}
	if v := c.String("data-dir"); v != "" {
		cfg.Paths.DataDir = v
	}
	cfg.Anchor()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// initLogging keeps stdout clean when it carries machine-readable output.
func initLogging(c *cli.Context, cfg *config.Config, quiet bool) error {
	opts := logger.DefaultOptions(cfg.Paths.LogFile)
	opts.Verbose = c.Bool("verbose")
	opts.Console = stdout
	if quiet {
		opts.Console = stderr
	}
	if err := logger.Init(opts); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	return nil
}

// session is what every device command works with.
type session struct {
	cfg    *config.Config
	ctrl   *controller.Controller
	format probe.Format
}

func (s *session) close() {
	if err := s.ctrl.Close(); err != nil {
		logger.Debug("close session: %v", err)
	}
	logger.Close()
}

// openSession loads config, sets up logging and builds an unconnected
// controller. quiet sends console logs to stderr.
func openSession(c *cli.Context, quiet bool) (*session, error) {
	format, err := probe.ParseFormat(c.String("format"))
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if err := initLogging(c, cfg, quiet || format != probe.FormatText); err != nil {
		return nil, err
	}
	return &session{
		cfg:    cfg,
		ctrl:   controller.New(newAutomation(cfg), cfg),
		format: format,
	}, nil
}

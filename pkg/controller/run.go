package controller

import (
	"context"
	"time"

	"github.com/wxauto/wxprobe/pkg/core"
	"github.com/wxauto/wxprobe/pkg/logger"
)

// Step names of the controller sequence, in order.
const (
	StepConnect    = "connect"
	StepStartApp   = "start_app"
	StepCheckLogin = "check_login"
	StepGoHome     = "go_home"
	StepOpenSearch = "open_search"
)

// RunOptions configures Run.
type RunOptions struct {
	LoginTimeout time.Duration // zero uses timing.loginTimeout
	Artifacts    core.ArtifactConfig
	DataDir      string // artifacts go to <DataDir>/runs/<run id>; empty disables them
}

// step returns a warning message for a passed step that deserves attention.
type step struct {
	name string
	fn   func(ctx context.Context) (warning string, err error)
}

func plain(fn func(context.Context) error) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		return "", fn(ctx)
	}
}

// Run executes connect, start app, check login, go home and open search,
// stopping at the first failure. Remaining steps are recorded as skipped.
// Cancelling ctx marks the result interrupted.
func (c *Controller) Run(ctx context.Context, opts RunOptions) *core.RunResult {
	if opts.LoginTimeout == 0 {
		opts.LoginTimeout = c.cfg.Timing.LoginTimeout
	}

	steps := []step{
		{StepConnect, plain(c.Connect)},
		{StepStartApp, plain(c.StartApp)},
		{StepCheckLogin, plain(func(ctx context.Context) error { return c.CheckLogin(ctx, opts.LoginTimeout) })},
		{StepGoHome, plain(c.GoToHome)},
		{StepOpenSearch, func(ctx context.Context) (string, error) {
			verified, err := c.OpenSearch(ctx)
			if err == nil && !verified {
				return "search input not detected", nil
			}
			return "", err
		}},
	}

	result := core.NewRunResult(c.cfg.Device.Address, c.cfg.App.Package)
	var runDir string
	if opts.DataDir != "" {
		runDir = result.Dir(opts.DataDir)
	}

	for i, s := range steps {
		if ctx.Err() != nil {
			result.Interrupted = true
			result.Skip(names(steps[i:])...)
			break
		}

		logger.Info("[step %d/%d] %s", i+1, len(steps), s.name)
		start := time.Now()
		warning, err := s.fn(ctx)
		rec := result.AddStep(core.NewStepResult(s.name, start, err))
		if warning != "" {
			rec.Status = core.StatusWarned
			rec.Message = warning
		}

		// nothing to capture from before the connection exists
		if runDir != "" && i > 0 && opts.Artifacts.ShouldCapture(rec.Status) {
			c.capture(opts.Artifacts, rec, runDir)
		}

		if err != nil {
			if ctx.Err() != nil {
				result.Interrupted = true
			}
			logger.Error("%s failed: %v", s.name, err)
			result.Skip(names(steps[i+1:])...)
			break
		}
	}

	result.Finish()
	return result
}

func (c *Controller) capture(cfg core.ArtifactConfig, rec *core.StepResult, dir string) {
	// artifacts are still wanted after an interrupt
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	atts, err := cfg.Capture(ctx, c.auto, dir, rec.Name)
	rec.Attachments = append(rec.Attachments, atts...)
	if err != nil {
		logger.Warn("artifacts for %s: %v", rec.Name, err)
	}
}

func names(steps []step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.name
	}
	return out
}

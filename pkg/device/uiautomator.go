package device

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wxauto/wxprobe/pkg/core"
	"github.com/wxauto/wxprobe/pkg/logger"
	"github.com/wxauto/wxprobe/pkg/wait"
)

// UIAutomator2 package names
const (
	UIAutomator2Server = "io.appium.uiautomator2.server"
	UIAutomator2Test   = "io.appium.uiautomator2.server.test"
)

// UIAutomator2Config holds configuration for the UIAutomator2 server.
type UIAutomator2Config struct {
	ServerURL    string        // where the server is reachable from this host
	Timeout      time.Duration // Startup timeout (default: 30s)
	PollInterval time.Duration
}

// DefaultUIAutomator2Config returns default configuration.
func DefaultUIAutomator2Config(serverURL string) UIAutomator2Config {
	return UIAutomator2Config{
		ServerURL:    serverURL,
		Timeout:      30 * time.Second,
		PollInterval: 500 * time.Millisecond,
	}
}

// EnsureUIAutomator2 returns immediately when the server already answers,
// otherwise starts the instrumentation and waits for it.
func (d *AndroidDevice) EnsureUIAutomator2(ctx context.Context, cfg UIAutomator2Config) error {
	if CheckHealth(ctx, cfg.ServerURL) {
		return nil
	}
	logger.Info("UIAutomator2 server not responding at %s, starting it", cfg.ServerURL)
	return d.StartUIAutomator2(ctx, cfg)
}

// StartUIAutomator2 starts the UIAutomator2 server on the device.
func (d *AndroidDevice) StartUIAutomator2(ctx context.Context, cfg UIAutomator2Config) error {
	// Check if server APKs are installed
	if !d.IsInstalled(ctx, UIAutomator2Server) {
		return core.ErrServerUnreachable.WithMessage(fmt.Sprintf("UIAutomator2 server not installed: %s", UIAutomator2Server))
	}
	if !d.IsInstalled(ctx, UIAutomator2Test) {
		return core.ErrServerUnreachable.WithMessage(fmt.Sprintf("UIAutomator2 test APK not installed: %s", UIAutomator2Test))
	}

	// Stop any existing instance
	d.StopUIAutomator2(ctx)

	// nohup keeps the runner alive after the shell session closes
	instrumentCmd := fmt.Sprintf(
		"nohup am instrument -w -e disableAnalytics true "+
			"%s/androidx.test.runner.AndroidJUnitRunner "+
			"> /dev/null 2>&1 &",
		UIAutomator2Test,
	)
	if _, err := d.Shell(ctx, instrumentCmd); err != nil {
		return fmt.Errorf("failed to start instrumentation: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	err := wait.Poll{Interval: cfg.PollInterval, Timeout: timeout, Description: "UIAutomator2 server"}.
		Until(ctx, func(ctx context.Context) (bool, error) {
			return CheckHealth(ctx, cfg.ServerURL), nil
		})
	if err != nil {
		d.StopUIAutomator2(ctx)
		return core.ErrServerUnreachable.
			WithMessage(fmt.Sprintf("UIAutomator2 server not ready at %s", cfg.ServerURL)).
			WithCause(err)
	}

	return nil
}

// StopUIAutomator2 stops the UIAutomator2 server.
func (d *AndroidDevice) StopUIAutomator2(ctx context.Context) {
	// Force stop both packages - this should kill the instrumentation runner
	d.ForceStop(ctx, UIAutomator2Server)
	d.ForceStop(ctx, UIAutomator2Test)
	wait.Sleep(ctx, 300*time.Millisecond)
}

// CheckHealth reports whether the server answers /status.
func CheckHealth(ctx context.Context, serverURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(serverURL, "/")+"/status", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Package controller drives the target messaging app through an
// automator.Automation: connect, launch, login detection, home navigation
// and search.
package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wxauto/wxprobe/pkg/automator"
	"github.com/wxauto/wxprobe/pkg/config"
	"github.com/wxauto/wxprobe/pkg/core"
	"github.com/wxauto/wxprobe/pkg/logger"
	"github.com/wxauto/wxprobe/pkg/wait"
)

// Controller operates one app on one device. It is not safe for concurrent
// use.
type Controller struct {
	auto automator.Automation
	cfg  *config.Config
}

// New creates a controller. cfg is not copied.
func New(auto automator.Automation, cfg *config.Config) *Controller {
	return &Controller{auto: auto, cfg: cfg}
}

// Automation returns the underlying device session.
func (c *Controller) Automation() automator.Automation {
	return c.auto
}

// Config returns the controller configuration.
func (c *Controller) Config() *config.Config {
	return c.cfg
}

func (c *Controller) poll(timeout time.Duration, what string) wait.Poll {
	return wait.Poll{Interval: c.cfg.Timing.PollInterval, Timeout: timeout, Description: what}
}

// Connect attaches to the configured device address.
func (c *Controller) Connect(ctx context.Context) error {
	addr := c.cfg.Device.Address
	logger.Info("Connecting to device %s", addr)

	if err := c.auto.Connect(ctx, addr); err != nil {
		logger.Error("Device connection failed: %v", err)
		for _, line := range ConnectionHints() {
			logger.Error("%s", line)
		}
		var execErr *core.ExecutionError
		if errors.As(err, &execErr) {
			return err
		}
		return core.ErrDeviceDisconnected.WithMessage("connect " + addr).WithCause(err)
	}

	logger.Success("Device connected")
	return nil
}

// StartApp wakes and unlocks the device, launches the app, waits out the
// splash screen, launches again to force it to the front and verifies the
// foreground package.
func (c *Controller) StartApp(ctx context.Context) error {
	pkg := c.cfg.App.Package
	logger.Info("Starting %s", pkg)

	if err := c.wake(ctx); err != nil {
		return err
	}

	g := c.cfg.Gestures
	logger.Info("Unlocking screen")
	if err := c.auto.Swipe(ctx, g.UnlockFrom.X, g.UnlockFrom.Y, g.UnlockTo.X, g.UnlockTo.Y, g.UnlockDuration); err != nil {
		return fmt.Errorf("unlock swipe: %w", err)
	}

	if err := c.auto.StartApp(ctx, pkg); err != nil {
		return err
	}

	logger.Info("Waiting for %s to start", pkg)
	if err := c.waitForeground(ctx, c.cfg.Timing.LaunchTimeout); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Debug("splash wait: %v", err)
	}

	if err := c.auto.StartApp(ctx, pkg); err != nil {
		return err
	}

	if err := c.waitForeground(ctx, c.cfg.Timing.SettleTimeout); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		current := c.foreground(ctx)
		logger.Warn("Foreground app is %q, not %s", current, pkg)
		return core.ErrAppNotForeground.
			WithMessage(fmt.Sprintf("%s not in foreground (current: %s)", pkg, current)).
			WithDetails(map[string]interface{}{"current": current, "expected": pkg}).
			WithCause(err)
	}

	logger.Success("%s started", pkg)
	return nil
}

func (c *Controller) wake(ctx context.Context) error {
	on, err := c.auto.IsScreenOn(ctx)
	if err != nil {
		logger.Debug("screen state: %v", err)
	}
	if on {
		return nil
	}

	logger.Info("Screen is off, waking it")
	if err := c.auto.ScreenOn(ctx); err != nil {
		return fmt.Errorf("wake screen: %w", err)
	}
	err = c.poll(c.cfg.Timing.SettleTimeout, "screen on").Until(ctx, c.auto.IsScreenOn)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		logger.Warn("Screen did not report on: %v", err)
	}
	return nil
}

// foreground returns the foreground package, or "" when it cannot be read.
func (c *Controller) foreground(ctx context.Context) string {
	app, err := c.auto.CurrentApp(ctx)
	if err != nil {
		logger.Debug("current app: %v", err)
		return ""
	}
	return app.Package
}

func (c *Controller) waitForeground(ctx context.Context, timeout time.Duration) error {
	pkg := c.cfg.App.Package
	return c.poll(timeout, pkg+" in foreground").Until(ctx, func(ctx context.Context) (bool, error) {
		app, err := c.auto.CurrentApp(ctx)
		if err != nil {
			return false, err
		}
		return app.Package == pkg, nil
	})
}

// CheckLogin reports nil when the logged-in UI is visible. The chat list,
// then a resource id only shown when logged in, then the number of text
// elements are checked; otherwise it waits up to timeout for the chat list
// so the user can log in by hand.
func (c *Controller) CheckLogin(ctx context.Context, timeout time.Duration) error {
	s := c.cfg.Selectors
	logger.Info("Checking login state")

	listView := automator.ByClass(s.ListViewClass)
	ok, err := c.auto.Exists(ctx, listView)
	if err != nil {
		logger.Error("Login check failed: %v", err)
		return err
	}
	if ok {
		logger.Success("Logged in (chat list present)")
		return nil
	}

	if s.LoggedInID != "" {
		ok, err = c.auto.Exists(ctx, automator.ByID(s.LoggedInID))
		if err != nil {
			logger.Error("Login check failed: %v", err)
			return err
		}
		if ok {
			logger.Success("Logged in (found %s)", s.LoggedInID)
			return nil
		}
	}

	n, err := c.auto.Count(ctx, automator.ByClass(s.TextClass))
	if err != nil {
		logger.Error("Login check failed: %v", err)
		return err
	}
	if n > s.TextThreshold {
		logger.Success("Logged in (%d text elements)", n)
		return nil
	}

	logger.Warn("Not logged in, please log in on the device")
	logger.Info("Waiting up to %s for login", timeout)

	err = c.poll(timeout, "chat list").Until(ctx, func(ctx context.Context) (bool, error) {
		return c.auto.Exists(ctx, listView)
	})
	if err == nil {
		logger.Success("Login detected")
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	logger.Error("Login timed out after %s", timeout)
	return core.ErrWaitTimeout.
		WithMessage(fmt.Sprintf("login not detected within %s", timeout)).
		WithDetails(map[string]interface{}{"textCount": n}).
		WithCause(err)
}

// IsOnHomePage reports whether the home navigation label exists and is
// selected. Any failure reads as false.
func (c *Controller) IsOnHomePage(ctx context.Context) bool {
	label := automator.ByText(c.cfg.Selectors.HomeLabel)

	ok, err := c.auto.Exists(ctx, label)
	if err != nil || !ok {
		if err != nil {
			logger.Debug("home label lookup: %v", err)
		}
		return false
	}

	info, err := c.auto.Info(ctx, label)
	if err != nil {
		logger.Debug("home label info: %v", err)
		return false
	}
	return info.Selected
}

// GoToHome brings the app to its chat list. The home label is clicked at
// most once.
func (c *Controller) GoToHome(ctx context.Context) error {
	pkg := c.cfg.App.Package
	logger.Info("Returning to home page")

	if current := c.foreground(ctx); current != pkg {
		logger.Warn("Foreground app is %q, relaunching %s", current, pkg)
		if err := c.auto.StartApp(ctx, pkg); err != nil {
			return err
		}
		if err := c.waitForeground(ctx, c.cfg.Timing.SettleTimeout); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return core.ErrAppNotForeground.WithMessage(pkg + " not in foreground after relaunch").WithCause(err)
		}
	}

	if c.IsOnHomePage(ctx) {
		logger.Success("Already on home page")
		return nil
	}

	label := automator.ByText(c.cfg.Selectors.HomeLabel)
	ok, err := c.auto.Exists(ctx, label)
	if err != nil {
		return err
	}
	if ok {
		logger.Info("Clicking home tab")
		if err := c.auto.ClickElement(ctx, label); err != nil {
			return err
		}
		err := c.poll(c.cfg.Timing.SettleTimeout, "home page").Until(ctx, func(ctx context.Context) (bool, error) {
			return c.IsOnHomePage(ctx), nil
		})
		if err == nil {
			logger.Success("Returned to home page")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	logger.Error("Could not return to home page")
	return core.ErrNotOnHome.WithMessage(fmt.Sprintf("%q tab not selected", c.cfg.Selectors.HomeLabel))
}

// OpenSearch taps the search button, located by description, then by
// resource id, then by its fixed coordinate. verified reports whether the
// search input appeared; an unverified search is not an error.
func (c *Controller) OpenSearch(ctx context.Context) (verified bool, err error) {
	s := c.cfg.Selectors
	logger.Info("Opening search")

	byDesc := automator.ByDescription(s.SearchDescription)
	byID := automator.ByID(s.SearchID)

	switch {
	case s.SearchDescription != "" && c.exists(ctx, byDesc):
		logger.Info("Clicking search button by description")
		err = c.auto.ClickElement(ctx, byDesc)
	case s.SearchID != "" && c.exists(ctx, byID):
		logger.Info("Clicking search button by resource id")
		err = c.auto.ClickElement(ctx, byID)
	default:
		logger.Info("Clicking search button at (%d, %d)", s.SearchPoint.X, s.SearchPoint.Y)
		err = c.auto.Click(ctx, s.SearchPoint.X, s.SearchPoint.Y)
	}
	if err != nil {
		return false, err
	}

	input := automator.ByClass(s.InputClass)
	err = c.poll(c.cfg.Timing.SettleTimeout, "search input").Until(ctx, func(ctx context.Context) (bool, error) {
		return c.auto.Exists(ctx, input)
	})
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		logger.Warn("Search may not have opened: no %s on screen", s.InputClass)
		return false, nil
	}

	logger.Success("Search opened")
	return true, nil
}

// exists treats lookup errors as absence, for fallback chains.
func (c *Controller) exists(ctx context.Context, sel automator.Selector) bool {
	ok, err := c.auto.Exists(ctx, sel)
	if err != nil {
		logger.Debug("exists %s: %v", sel, err)
	}
	return ok
}

// SearchFriend opens search, types name and clicks the result whose text is
// exactly name.
func (c *Controller) SearchFriend(ctx context.Context, name string) error {
	s := c.cfg.Selectors
	if name == "" {
		return core.ErrInvalidConfig.WithMessage("friend name is empty")
	}
	logger.Info("Searching for %s", name)

	verified, err := c.OpenSearch(ctx)
	if err != nil {
		return err
	}
	input := automator.ByClass(s.InputClass)
	if !verified {
		return core.ErrElementNotFound.WithMessage("search input field not found")
	}

	if err := c.auto.SetText(ctx, input, name); err != nil {
		return err
	}

	result := automator.Selector{Text: name, ClassName: s.TextClass}
	err = c.poll(c.cfg.Timing.SettleTimeout, "search result "+name).Until(ctx, func(ctx context.Context) (bool, error) {
		return c.auto.Exists(ctx, result)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Error("No search result for %s", name)
		return core.ErrElementNotFound.WithMessage("no search result for " + name).WithCause(err)
	}

	if err := c.auto.ClickElement(ctx, result); err != nil {
		return err
	}
	logger.Success("Opened %s", name)
	return nil
}

// Close releases the device session.
func (c *Controller) Close() error {
	return c.auto.Close()
}

// ConnectionHints lists likely causes of a failed connection and their
// fixes, in Chinese and English.
func ConnectionHints() []string {
	return []string{
		"可能的原因 / Possible causes:",
		"  1. 设备IP地址或端口不正确 / wrong device IP address or port",
		"  2. 设备未开启无线调试 / wireless debugging is off on the device",
		"  3. 设备和电脑不在同一网络 / device and computer are on different networks",
		"  4. UIAutomator2服务未安装或未启动 / UIAutomator2 server not installed or not running",
		"解决方法 / Fixes:",
		"  1. 检查设备IP和端口是否正确 / check the device IP and port",
		"  2. 在设备上重新开启无线调试 / re-enable wireless debugging on the device",
		"  3. 确保设备和电脑在同一WiFi网络 / put both on the same Wi-Fi network",
		"  4. 安装 io.appium.uiautomator2.server 及其测试APK / install io.appium.uiautomator2.server and its test APK",
	}
}

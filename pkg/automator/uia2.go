package automator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wxauto/wxprobe/pkg/core"
	"github.com/wxauto/wxprobe/pkg/device"
	"github.com/wxauto/wxprobe/pkg/hierarchy"
	"github.com/wxauto/wxprobe/pkg/logger"
	"github.com/wxauto/wxprobe/pkg/uiautomator2"
	"github.com/wxauto/wxprobe/pkg/wait"
)

// adbDevice is the shell-level half of the session.
type adbDevice interface {
	Serial() string
	Host() string
	Info(ctx context.Context) (core.DeviceInfo, error)
	CurrentApp(ctx context.Context) (core.AppInfo, error)
	IsScreenOn(ctx context.Context) (bool, error)
	Wake(ctx context.Context) error
	Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error
	Tap(ctx context.Context, x, y int) error
	LaunchApp(ctx context.Context, pkg string) error
	WindowSize(ctx context.Context) (int, int, error)
	EnsureUIAutomator2(ctx context.Context, cfg device.UIAutomator2Config) error
}

// Options configures a UIA2 session.
type Options struct {
	ADBPort       int
	ServerURL     string // empty derives http://<device host>:ServerPort
	ServerPort    int
	ServerTimeout time.Duration
	PollInterval  time.Duration
}

// UIA2 implements Automation with a UIAutomator2 server for element work
// and ADB shell for power, launch and focus queries.
type UIA2 struct {
	opts   Options
	dev    adbDevice
	client *uiautomator2.Client
}

// NewUIA2 returns an unconnected session.
func NewUIA2(opts Options) *UIA2 {
	if opts.ServerPort == 0 {
		opts.ServerPort = 6790
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	return &UIA2{opts: opts}
}

// Connect attaches over ADB, makes sure the server runs and opens a session.
func (u *UIA2) Connect(ctx context.Context, address string) error {
	dev, err := device.Connect(ctx, device.Config{Address: address, ADBPort: u.opts.ADBPort})
	if err != nil {
		return err
	}
	return u.attach(ctx, dev)
}

func (u *UIA2) attach(ctx context.Context, dev adbDevice) error {
	serverURL, err := u.serverURL(dev)
	if err != nil {
		return err
	}

	cfg := device.DefaultUIAutomator2Config(serverURL)
	if u.opts.ServerTimeout > 0 {
		cfg.Timeout = u.opts.ServerTimeout
	}
	cfg.PollInterval = u.opts.PollInterval
	if err := dev.EnsureUIAutomator2(ctx, cfg); err != nil {
		return err
	}

	client := uiautomator2.NewClient(serverURL)
	caps := uiautomator2.Capabilities{PlatformName: "Android", DeviceName: dev.Serial()}
	if err := client.CreateSession(ctx, caps); err != nil {
		return core.ErrServerUnreachable.WithMessage("create UIAutomator2 session").WithCause(err)
	}
	// bounded polls do the waiting
	if err := client.SetImplicitWait(ctx, 0); err != nil {
		logger.Warn("set implicit wait: %v", err)
	}

	u.dev, u.client = dev, client
	logger.Debug("session %s on %s via %s", client.SessionID(), dev.Serial(), serverURL)
	return nil
}

func (u *UIA2) serverURL(dev adbDevice) (string, error) {
	if u.opts.ServerURL != "" {
		return strings.TrimRight(u.opts.ServerURL, "/"), nil
	}
	host := dev.Host()
	if host == "" {
		return "", core.ErrInvalidConfig.WithMessage(
			fmt.Sprintf("device %s is not a network device; set device.serverUrl", dev.Serial()))
	}
	return fmt.Sprintf("http://%s:%d", host, u.opts.ServerPort), nil
}

func (u *UIA2) ready() error {
	if u.client == nil || u.dev == nil {
		return core.ErrDeviceDisconnected.WithMessage("not connected")
	}
	return nil
}

// DeviceInfo merges getprop values with what the server reports.
func (u *UIA2) DeviceInfo(ctx context.Context) (core.DeviceInfo, error) {
	if err := u.ready(); err != nil {
		return core.DeviceInfo{}, err
	}
	info, err := u.dev.Info(ctx)
	if err != nil {
		return info, err
	}
	if info.Model == "" || info.Brand == "" {
		if di, err := u.client.GetDeviceInfo(ctx); err == nil {
			if info.Model == "" {
				info.Model = di.Model
			}
			if info.Brand == "" {
				info.Brand = di.Brand
			}
			if info.Manufacturer == "" {
				info.Manufacturer = di.Manufacturer
			}
		}
	}
	if info.DisplayWidth == 0 {
		info.DisplayWidth, info.DisplayHeight, _ = u.WindowSize(ctx)
	}
	return info, nil
}

func (u *UIA2) CurrentApp(ctx context.Context) (core.AppInfo, error) {
	if err := u.ready(); err != nil {
		return core.AppInfo{}, err
	}
	return u.dev.CurrentApp(ctx)
}

// WindowSize asks the server first and falls back to `wm size`.
func (u *UIA2) WindowSize(ctx context.Context) (int, int, error) {
	if err := u.ready(); err != nil {
		return 0, 0, err
	}
	w, h, err := u.client.WindowSize(ctx)
	if err == nil {
		return w, h, nil
	}
	logger.Debug("window size from server: %v", err)
	return u.dev.WindowSize(ctx)
}

func (u *UIA2) ScreenOn(ctx context.Context) error {
	if err := u.ready(); err != nil {
		return err
	}
	return u.dev.Wake(ctx)
}

func (u *UIA2) IsScreenOn(ctx context.Context) (bool, error) {
	if err := u.ready(); err != nil {
		return false, err
	}
	return u.dev.IsScreenOn(ctx)
}

func (u *UIA2) Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error {
	if err := u.ready(); err != nil {
		return err
	}
	return u.dev.Swipe(ctx, x1, y1, x2, y2, duration)
}

// Click taps through the server and falls back to adb input when the
// server rejects the gesture.
func (u *UIA2) Click(ctx context.Context, x, y int) error {
	if err := u.ready(); err != nil {
		return err
	}
	err := u.client.Click(ctx, x, y)
	if err == nil || ctx.Err() != nil {
		return err
	}
	logger.Debug("server tap at %d,%d failed, using adb input: %v", x, y, err)
	return u.dev.Tap(ctx, x, y)
}

func (u *UIA2) LongClick(ctx context.Context, x, y int, duration time.Duration) error {
	if err := u.ready(); err != nil {
		return err
	}
	return u.client.LongClick(ctx, x, y, int(duration.Milliseconds()))
}

func (u *UIA2) Back(ctx context.Context) error {
	if err := u.ready(); err != nil {
		return err
	}
	return u.client.Back(ctx)
}

func (u *UIA2) PressKey(ctx context.Context, code int) error {
	if err := u.ready(); err != nil {
		return err
	}
	return u.client.PressKeyCode(ctx, code)
}

func (u *UIA2) StartApp(ctx context.Context, pkg string) error {
	if err := u.ready(); err != nil {
		return err
	}
	return u.dev.LaunchApp(ctx, pkg)
}

func (u *UIA2) find(ctx context.Context, sel Selector) ([]*uiautomator2.Element, error) {
	if err := u.ready(); err != nil {
		return nil, err
	}
	if sel.IsZero() {
		return nil, core.ErrInvalidConfig.WithMessage("empty selector")
	}
	return u.client.FindElements(ctx, uiautomator2.StrategyUIAutomator, sel.UiSelector())
}

func (u *UIA2) findOne(ctx context.Context, sel Selector) (*uiautomator2.Element, error) {
	if err := u.ready(); err != nil {
		return nil, err
	}
	if sel.IsZero() {
		return nil, core.ErrInvalidConfig.WithMessage("empty selector")
	}
	el, err := u.client.FindElement(ctx, uiautomator2.StrategyUIAutomator, sel.UiSelector())
	if errors.Is(err, uiautomator2.ErrNoSuchElement) {
		return nil, core.ErrElementNotFound.WithMessage("element not found: " + sel.String()).WithCause(err)
	}
	return el, err
}

func (u *UIA2) Exists(ctx context.Context, sel Selector) (bool, error) {
	els, err := u.find(ctx, sel)
	if err != nil {
		return false, err
	}
	return len(els) > 0, nil
}

func (u *UIA2) Count(ctx context.Context, sel Selector) (int, error) {
	els, err := u.find(ctx, sel)
	if err != nil {
		return 0, err
	}
	return len(els), nil
}

// WaitExists polls Exists until it holds or timeout elapses. A timeout is
// reported as false, not as an error.
func (u *UIA2) WaitExists(ctx context.Context, sel Selector, timeout time.Duration) (bool, error) {
	err := wait.Poll{Interval: u.opts.PollInterval, Timeout: timeout, Description: sel.String()}.
		Until(ctx, func(ctx context.Context) (bool, error) {
			return u.Exists(ctx, sel)
		})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, core.ErrWaitTimeout):
		return false, nil
	default:
		return false, err
	}
}

// Info reads the element's attributes one by one from the server.
func (u *UIA2) Info(ctx context.Context, sel Selector) (ElementInfo, error) {
	el, err := u.findOne(ctx, sel)
	if err != nil {
		return ElementInfo{}, err
	}

	var info ElementInfo
	strs := []struct {
		name string
		dst  *string
	}{
		{"text", &info.Text},
		{"resource-id", &info.ResourceID},
		{"class", &info.ClassName},
		{"content-desc", &info.Description},
		{"package", &info.Package},
	}
	for _, a := range strs {
		if *a.dst, err = el.Attribute(ctx, a.name); err != nil {
			return info, fmt.Errorf("attribute %s: %w", a.name, err)
		}
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"selected", &info.Selected},
		{"enabled", &info.Enabled},
		{"focused", &info.Focused},
		{"clickable", &info.Clickable},
	}
	for _, a := range bools {
		v, err := el.Attribute(ctx, a.name)
		if err != nil {
			return info, fmt.Errorf("attribute %s: %w", a.name, err)
		}
		*a.dst = v == "true"
	}

	rect, err := el.Rect(ctx)
	if err != nil {
		return info, fmt.Errorf("rect: %w", err)
	}
	info.Bounds = core.Bounds{X: rect.X, Y: rect.Y, Width: rect.Width, Height: rect.Height}
	return info, nil
}

// Elements reads one page source and filters it locally.
func (u *UIA2) Elements(ctx context.Context, sel Selector, limit int) ([]ElementInfo, error) {
	src, err := u.DumpHierarchy(ctx)
	if err != nil {
		return nil, err
	}
	nodes, err := hierarchy.Parse(src)
	if err != nil {
		return nil, err
	}
	return MatchNodes(nodes, sel, limit), nil
}

// MatchNodes describes up to limit nodes matching sel.
func MatchNodes(nodes []*hierarchy.Node, sel Selector, limit int) []ElementInfo {
	var out []ElementInfo
	for _, n := range nodes {
		if !sel.Matches(n) {
			continue
		}
		out = append(out, n.Info())
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (u *UIA2) ClickElement(ctx context.Context, sel Selector) error {
	el, err := u.findOne(ctx, sel)
	if err != nil {
		return err
	}
	return el.Click(ctx)
}

func (u *UIA2) SetText(ctx context.Context, sel Selector, text string) error {
	el, err := u.findOne(ctx, sel)
	if err != nil {
		return err
	}
	if err := el.Clear(ctx); err != nil {
		logger.Debug("clear %s: %v", sel, err)
	}
	return el.SendKeys(ctx, text)
}

func (u *UIA2) Screenshot(ctx context.Context) ([]byte, error) {
	if err := u.ready(); err != nil {
		return nil, err
	}
	return u.client.Screenshot(ctx)
}

func (u *UIA2) DumpHierarchy(ctx context.Context) (string, error) {
	if err := u.ready(); err != nil {
		return "", err
	}
	return u.client.Source(ctx)
}

// Close ends the server session. The device connection itself is owned by
// the adb server and stays up.
func (u *UIA2) Close() error {
	if u.client == nil {
		return nil
	}
	return u.client.Close()
}

// Package automator is the boundary between wxprobe and the on-device
// automation service. Controllers and probes depend on the Automation
// interface only; UIA2 implements it with the UIAutomator2 server and ADB.
package automator

import (
	"context"
	"time"

	"github.com/wxauto/wxprobe/pkg/core"
)

// ElementInfo describes one element returned by a query.
type ElementInfo = core.ElementInfo

// Automation is a connected device session.
type Automation interface {
	// Connect attaches to the device at address and readies the automation
	// service.
	Connect(ctx context.Context, address string) error

	DeviceInfo(ctx context.Context) (core.DeviceInfo, error)
	CurrentApp(ctx context.Context) (core.AppInfo, error)
	WindowSize(ctx context.Context) (width, height int, err error)

	// ScreenOn wakes the display. It does nothing when already on.
	ScreenOn(ctx context.Context) error
	IsScreenOn(ctx context.Context) (bool, error)

	Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error
	Click(ctx context.Context, x, y int) error
	LongClick(ctx context.Context, x, y int, duration time.Duration) error

	// Back presses the system back button.
	Back(ctx context.Context) error
	// PressKey sends an Android key code such as 3 (home).
	PressKey(ctx context.Context, code int) error

	// StartApp launches pkg, or brings it to the foreground.
	StartApp(ctx context.Context, pkg string) error

	Exists(ctx context.Context, sel Selector) (bool, error)
	Count(ctx context.Context, sel Selector) (int, error)
	WaitExists(ctx context.Context, sel Selector, timeout time.Duration) (bool, error)

	// Info describes the first element matching sel.
	Info(ctx context.Context, sel Selector) (ElementInfo, error)

	// Elements describes up to limit matching elements; limit <= 0 means all.
	Elements(ctx context.Context, sel Selector, limit int) ([]ElementInfo, error)

	ClickElement(ctx context.Context, sel Selector) error
	SetText(ctx context.Context, sel Selector, text string) error

	Screenshot(ctx context.Context) ([]byte, error)
	DumpHierarchy(ctx context.Context) (string, error)

	Close() error
}

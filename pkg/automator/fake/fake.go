// Package fake provides an in-memory Automation for tests. The screen is a
// list of hierarchy nodes that tests edit directly, through hooks, or on a
// schedule measured from the fake's creation.
//
// Hooks and scheduled actions run with the device locked. Inside them use
// AddElement and Find, never Add or the Automation methods.
package fake

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wxauto/wxprobe/pkg/automator"
	"github.com/wxauto/wxprobe/pkg/core"
	"github.com/wxauto/wxprobe/pkg/hierarchy"
)

// Device is a scriptable automator.Automation.
type Device struct {
	mu sync.Mutex

	// Address, when set, is the only address Connect accepts.
	Address string
	// ConnectErr makes Connect fail with a connection error.
	ConnectErr error

	Props      core.DeviceInfo
	Foreground core.AppInfo
	Screen     bool
	Width      int
	Height     int
	Nodes      []*hierarchy.Node

	// OnStartApp replaces the default launch behaviour, which moves pkg to
	// the foreground.
	OnStartApp func(d *Device, pkg string)
	// OnClick runs after an element or coordinate click. sel is zero for
	// coordinate clicks.
	OnClick func(d *Device, sel automator.Selector, x, y int)

	// Calls records every operation in order, e.g. "exists {text=\"微信\"}".
	Calls []string

	connected bool
	closed    bool
	start     time.Time
	schedule  []scheduled
}

type scheduled struct {
	at time.Time
	fn func(d *Device)
}

var _ automator.Automation = (*Device)(nil)

// New returns a fake with a 1080x2400 screen that is switched on.
func New() *Device {
	return &Device{
		Props: core.DeviceInfo{
			Serial:        "fake-device",
			ProductName:   "fake",
			Brand:         "fake",
			Model:         "Fake Phone",
			Manufacturer:  "wxprobe",
			Version:       "14",
			SDK:           34,
			DisplayWidth:  1080,
			DisplayHeight: 2400,
		},
		Screen: true,
		Width:  1080,
		Height: 2400,
		start:  time.Now(),
	}
}

// After runs fn on the first query made once delay has elapsed since New.
func (d *Device) After(delay time.Duration, fn func(d *Device)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.schedule = append(d.schedule, scheduled{at: d.start.Add(delay), fn: fn})
}

// Add appends an element to the screen and returns its node.
func (d *Device) Add(info core.ElementInfo) *hierarchy.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.add(info)
}

func (d *Device) add(info core.ElementInfo) *hierarchy.Node {
	n := &hierarchy.Node{
		Text:        info.Text,
		ResourceID:  info.ResourceID,
		ContentDesc: info.Description,
		ClassName:   info.ClassName,
		Package:     info.Package,
		Bounds:      info.Bounds,
		Enabled:     true,
		Selected:    info.Selected,
		Focused:     info.Focused,
		Clickable:   info.Clickable,
	}
	d.Nodes = append(d.Nodes, n)
	return n
}

// AddElement is Add for use inside hooks, where the lock is already held.
func (d *Device) AddElement(info core.ElementInfo) *hierarchy.Node {
	return d.add(info)
}

// SetScreen replaces the screen with a parsed hierarchy dump.
func (d *Device) SetScreen(xmlData string) error {
	nodes, err := hierarchy.Parse(xmlData)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Nodes = nodes
	return nil
}

// Find returns the first node matching sel. It does not take the lock and
// is meant for hooks and assertions.
func (d *Device) Find(sel automator.Selector) *hierarchy.Node {
	for _, n := range d.Nodes {
		if sel.Matches(n) {
			return n
		}
	}
	return nil
}

// CallsWithPrefix returns the recorded calls starting with prefix.
func (d *Device) CallsWithPrefix(prefix string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, c := range d.Calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Closed reports whether Close was called.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// begin locks, records the call and runs due scheduled actions. Callers
// must unlock.
func (d *Device) begin(format string, args ...interface{}) {
	d.mu.Lock()
	d.Calls = append(d.Calls, fmt.Sprintf(format, args...))
	now := time.Now()
	pending := d.schedule[:0]
	var due []scheduled
	for _, s := range d.schedule {
		if now.Before(s.at) {
			pending = append(pending, s)
		} else {
			due = append(due, s)
		}
	}
	d.schedule = pending
	for _, s := range due {
		s.fn(d)
	}
}

func (d *Device) connectedErr() error {
	if !d.connected {
		return core.ErrDeviceDisconnected.WithMessage("not connected")
	}
	return nil
}

func (d *Device) Connect(_ context.Context, address string) error {
	d.begin("connect %s", address)
	defer d.mu.Unlock()

	if d.ConnectErr != nil {
		return core.ErrDeviceDisconnected.WithMessage("connect " + address).WithCause(d.ConnectErr)
	}
	if d.Address != "" && address != d.Address {
		return core.ErrDeviceDisconnected.WithMessage(fmt.Sprintf("device %s not reachable", address))
	}
	d.connected = true
	d.Props.Serial = address
	return nil
}

func (d *Device) DeviceInfo(context.Context) (core.DeviceInfo, error) {
	d.begin("device_info")
	defer d.mu.Unlock()
	return d.Props, d.connectedErr()
}

func (d *Device) CurrentApp(context.Context) (core.AppInfo, error) {
	d.begin("current_app")
	defer d.mu.Unlock()
	return d.Foreground, d.connectedErr()
}

func (d *Device) WindowSize(context.Context) (int, int, error) {
	d.begin("window_size")
	defer d.mu.Unlock()
	return d.Width, d.Height, d.connectedErr()
}

func (d *Device) ScreenOn(context.Context) error {
	d.begin("screen_on")
	defer d.mu.Unlock()
	d.Screen = true
	return d.connectedErr()
}

func (d *Device) IsScreenOn(context.Context) (bool, error) {
	d.begin("is_screen_on")
	defer d.mu.Unlock()
	return d.Screen, d.connectedErr()
}

func (d *Device) Swipe(_ context.Context, x1, y1, x2, y2 int, _ time.Duration) error {
	d.begin("swipe %d,%d %d,%d", x1, y1, x2, y2)
	defer d.mu.Unlock()
	return d.connectedErr()
}

func (d *Device) Click(_ context.Context, x, y int) error {
	d.begin("click %d,%d", x, y)
	defer d.mu.Unlock()
	if err := d.connectedErr(); err != nil {
		return err
	}
	if d.OnClick != nil {
		d.OnClick(d, automator.Selector{}, x, y)
	}
	return nil
}

func (d *Device) LongClick(_ context.Context, x, y int, _ time.Duration) error {
	d.begin("long_click %d,%d", x, y)
	defer d.mu.Unlock()
	return d.connectedErr()
}

func (d *Device) Back(context.Context) error {
	d.begin("back")
	defer d.mu.Unlock()
	return d.connectedErr()
}

func (d *Device) PressKey(_ context.Context, code int) error {
	d.begin("press_key %d", code)
	defer d.mu.Unlock()
	return d.connectedErr()
}

func (d *Device) StartApp(_ context.Context, pkg string) error {
	d.begin("start_app %s", pkg)
	defer d.mu.Unlock()
	if err := d.connectedErr(); err != nil {
		return err
	}
	if d.OnStartApp != nil {
		d.OnStartApp(d, pkg)
		return nil
	}
	d.Foreground = core.AppInfo{Package: pkg, Activity: pkg + ".ui.LauncherUI"}
	return nil
}

func (d *Device) matches(sel automator.Selector) []*hierarchy.Node {
	return hierarchy.Filter(d.Nodes, sel.Matches)
}

func (d *Device) Exists(_ context.Context, sel automator.Selector) (bool, error) {
	d.begin("exists %s", sel)
	defer d.mu.Unlock()
	if err := d.connectedErr(); err != nil {
		return false, err
	}
	return len(d.matches(sel)) > 0, nil
}

func (d *Device) Count(_ context.Context, sel automator.Selector) (int, error) {
	d.begin("count %s", sel)
	defer d.mu.Unlock()
	if err := d.connectedErr(); err != nil {
		return 0, err
	}
	return len(d.matches(sel)), nil
}

// WaitExists re-checks every 10ms so scheduled changes are observed.
func (d *Device) WaitExists(ctx context.Context, sel automator.Selector, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := d.Exists(ctx, sel)
		if err != nil || ok {
			return ok, err
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (d *Device) Info(_ context.Context, sel automator.Selector) (automator.ElementInfo, error) {
	d.begin("info %s", sel)
	defer d.mu.Unlock()
	if err := d.connectedErr(); err != nil {
		return automator.ElementInfo{}, err
	}
	n := d.Find(sel)
	if n == nil {
		return automator.ElementInfo{}, core.ErrElementNotFound.WithMessage("element not found: " + sel.String())
	}
	return n.Info(), nil
}

func (d *Device) Elements(_ context.Context, sel automator.Selector, limit int) ([]automator.ElementInfo, error) {
	d.begin("elements %s", sel)
	defer d.mu.Unlock()
	if err := d.connectedErr(); err != nil {
		return nil, err
	}
	return automator.MatchNodes(d.Nodes, sel, limit), nil
}

func (d *Device) ClickElement(_ context.Context, sel automator.Selector) error {
	d.begin("click_element %s", sel)
	defer d.mu.Unlock()
	if err := d.connectedErr(); err != nil {
		return err
	}
	n := d.Find(sel)
	if n == nil {
		return core.ErrElementNotFound.WithMessage("element not found: " + sel.String())
	}
	if d.OnClick != nil {
		x, y := n.Bounds.Center()
		d.OnClick(d, sel, x, y)
	}
	return nil
}

func (d *Device) SetText(_ context.Context, sel automator.Selector, text string) error {
	d.begin("set_text %s %s", sel, text)
	defer d.mu.Unlock()
	if err := d.connectedErr(); err != nil {
		return err
	}
	n := d.Find(sel)
	if n == nil {
		return core.ErrElementNotFound.WithMessage("element not found: " + sel.String())
	}
	n.Text = text
	return nil
}

// Screenshot returns a blank PNG of the screen size.
func (d *Device) Screenshot(context.Context) ([]byte, error) {
	d.begin("screenshot")
	defer d.mu.Unlock()
	if err := d.connectedErr(); err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, d.Width, d.Height))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(0, 0, color.Black)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DumpHierarchy renders the screen as a flat hierarchy document.
func (d *Device) DumpHierarchy(context.Context) (string, error) {
	d.begin("dump_hierarchy")
	defer d.mu.Unlock()
	if err := d.connectedErr(); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n<hierarchy rotation=\"0\">\n")
	for i, n := range d.Nodes {
		fmt.Fprintf(&b, `  <node index="%d"`, i)
		attr := func(name, value string) {
			b.WriteString(" " + name + `="`)
			_ = xml.EscapeText(&b, []byte(value))
			b.WriteString(`"`)
		}
		attr("text", n.Text)
		attr("resource-id", n.ResourceID)
		attr("class", n.ClassName)
		attr("package", n.Package)
		attr("content-desc", n.ContentDesc)
		attr("enabled", strconv.FormatBool(n.Enabled))
		attr("selected", strconv.FormatBool(n.Selected))
		attr("focused", strconv.FormatBool(n.Focused))
		attr("clickable", strconv.FormatBool(n.Clickable))
		attr("bounds", fmt.Sprintf("[%d,%d][%d,%d]",
			n.Bounds.X, n.Bounds.Y, n.Bounds.X+n.Bounds.Width, n.Bounds.Y+n.Bounds.Height))
		b.WriteString("/>\n")
	}
	b.WriteString("</hierarchy>\n")
	return b.String(), nil
}

func (d *Device) Close() error {
	d.begin("close")
	defer d.mu.Unlock()
	d.closed = true
	d.connected = false
	return nil
}

// Connected returns a fake that is already connected, for tests that do not
// exercise Connect.
func Connected() *Device {
	d := New()
	d.connected = true
	return d
}

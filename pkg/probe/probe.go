// Package probe holds the read-mostly diagnostics used to inspect a device
// and the app's current screen. Each probe returns a typed report that can
// be printed as text, JSON or YAML.
package probe

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"

	"github.com/wxauto/wxprobe/pkg/annotate"
	"github.com/wxauto/wxprobe/pkg/automator"
	"github.com/wxauto/wxprobe/pkg/config"
	"github.com/wxauto/wxprobe/pkg/controller"
	"github.com/wxauto/wxprobe/pkg/core"
	"github.com/wxauto/wxprobe/pkg/hierarchy"
	"github.com/wxauto/wxprobe/pkg/logger"
)

// Output file names under the data directory.
const (
	PermissionsScreenshot = "test_screenshot.png"
	DebugScreenshot       = "screenshot_debug.png"
	DebugHierarchy        = "ui_hierarchy.xml"
	TextsScreenshot       = "wechat_ui_test.png"
	TextsHierarchy        = "wechat_ui_hierarchy.xml"
	BottomNavScreenshot   = "bottom_nav.png"
)

// Listing limits of the individual probes.
const (
	dumpTextLimit    = 30
	widgetTextLimit  = 10
	textsLimit       = 20
	bottomNavCenterY = 50 // distance of the nav row centre from the bottom edge
)

// Prober runs diagnostics against a device session.
type Prober struct {
	auto automator.Automation
	cfg  *config.Config
}

// New creates a prober. Every probe except Connection expects auto to be
// connected already.
func New(auto automator.Automation, cfg *config.Config) *Prober {
	return &Prober{auto: auto, cfg: cfg}
}

// ConnectionReport is the result of Connection.
type ConnectionReport struct {
	Address  string          `json:"address" yaml:"address"`
	Device   core.DeviceInfo `json:"device" yaml:"device"`
	App      core.AppInfo    `json:"app" yaml:"app"`
	ScreenOn bool            `json:"screenOn" yaml:"screenOn"`
	Error    string          `json:"error,omitempty" yaml:"error,omitempty"`
	Hints    []string        `json:"hints,omitempty" yaml:"hints,omitempty"`
}

// Connection connects to the configured device and reads its basic state.
// On failure the report carries the error and troubleshooting hints, and
// the error is returned as well.
func (p *Prober) Connection(ctx context.Context) (*ConnectionReport, error) {
	r := &ConnectionReport{Address: p.cfg.Device.Address}

	if err := controller.New(p.auto, p.cfg).Connect(ctx); err != nil {
		r.Error = err.Error()
		r.Hints = controller.ConnectionHints()
		return r, err
	}

	var err error
	if r.Device, err = p.auto.DeviceInfo(ctx); err != nil {
		return r, fmt.Errorf("device info: %w", err)
	}
	if r.App, err = p.auto.CurrentApp(ctx); err != nil {
		return r, fmt.Errorf("current app: %w", err)
	}
	if r.ScreenOn, err = p.auto.IsScreenOn(ctx); err != nil {
		return r, fmt.Errorf("screen state: %w", err)
	}
	return r, nil
}

// PermissionsReport is the result of Permissions.
type PermissionsReport struct {
	Device           core.DeviceInfo `json:"device" yaml:"device"`
	App              core.AppInfo    `json:"app" yaml:"app"`
	ScreenOn         bool            `json:"screenOn" yaml:"screenOn"`
	Width            int             `json:"width" yaml:"width"`
	Height           int             `json:"height" yaml:"height"`
	Tap              config.Point    `json:"tap" yaml:"tap"`
	Screenshot       string          `json:"screenshot" yaml:"screenshot"`
	ScreenshotWidth  int             `json:"screenshotWidth" yaml:"screenshotWidth"`
	ScreenshotHeight int             `json:"screenshotHeight" yaml:"screenshotHeight"`
}

// Permissions checks that the automation service can read state, inject a
// tap at the screen centre and capture the screen.
func (p *Prober) Permissions(ctx context.Context) (*PermissionsReport, error) {
	r := &PermissionsReport{}
	var err error
	if r.Device, err = p.auto.DeviceInfo(ctx); err != nil {
		return nil, fmt.Errorf("device info: %w", err)
	}
	if r.App, err = p.auto.CurrentApp(ctx); err != nil {
		return nil, fmt.Errorf("current app: %w", err)
	}
	if r.ScreenOn, err = p.auto.IsScreenOn(ctx); err != nil {
		return nil, fmt.Errorf("screen state: %w", err)
	}
	if r.Width, r.Height, err = p.auto.WindowSize(ctx); err != nil {
		return nil, fmt.Errorf("window size: %w", err)
	}

	r.Tap = config.Point{X: r.Width / 2, Y: r.Height / 2}
	logger.Info("Tapping screen centre (%d, %d)", r.Tap.X, r.Tap.Y)
	if err := p.auto.Click(ctx, r.Tap.X, r.Tap.Y); err != nil {
		return nil, fmt.Errorf("tap: %w", err)
	}

	data, err := p.auto.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	if r.Screenshot, err = p.save(PermissionsScreenshot, data); err != nil {
		return nil, err
	}
	if cfg, err := png.DecodeConfig(bytes.NewReader(data)); err == nil {
		r.ScreenshotWidth, r.ScreenshotHeight = cfg.Width, cfg.Height
	} else {
		logger.Warn("screenshot is not a readable PNG: %v", err)
	}
	return r, nil
}

// LabelPresence records whether a text is on screen.
type LabelPresence struct {
	Label  string `json:"label" yaml:"label"`
	Exists bool   `json:"exists" yaml:"exists"`
}

// DumpReport is the result of DumpUI.
type DumpReport struct {
	App        core.AppInfo    `json:"app" yaml:"app"`
	Screenshot string          `json:"screenshot" yaml:"screenshot"`
	Hierarchy  string          `json:"hierarchy" yaml:"hierarchy"`
	Texts      []string        `json:"texts" yaml:"texts"`
	Labels     []LabelPresence `json:"labels" yaml:"labels"`
}

// DumpUI saves a screenshot and the hierarchy of the current screen and
// lists its distinct texts and which well-known labels are present.
func (p *Prober) DumpUI(ctx context.Context) (*DumpReport, error) {
	r := &DumpReport{}
	var err error
	if r.App, err = p.auto.CurrentApp(ctx); err != nil {
		return nil, fmt.Errorf("current app: %w", err)
	}

	var nodes []*hierarchy.Node
	if r.Screenshot, r.Hierarchy, nodes, err = p.snapshot(ctx, DebugScreenshot, DebugHierarchy); err != nil {
		return nil, err
	}
	r.Texts = hierarchy.UniqueTexts(nodes)

	for _, label := range p.cfg.Probe.KnownLabels {
		ok, err := p.auto.Exists(ctx, automator.ByText(label))
		if err != nil {
			return nil, fmt.Errorf("look up %q: %w", label, err)
		}
		r.Labels = append(r.Labels, LabelPresence{Label: label, Exists: ok})
	}
	return r, nil
}

// Tab describes one navigation label. Element is nil when it is absent.
type Tab struct {
	Label   string            `json:"label" yaml:"label"`
	Element *core.ElementInfo `json:"element,omitempty" yaml:"element,omitempty"`
}

// TabsReport is the result of Tabs.
type TabsReport struct {
	Tabs []Tab `json:"tabs" yaml:"tabs"`
}

// Tabs reports the state of each bottom navigation label.
func (p *Prober) Tabs(ctx context.Context) (*TabsReport, error) {
	r := &TabsReport{}
	for _, label := range p.cfg.Probe.NavTabs {
		tab := Tab{Label: label}
		sel := automator.ByText(label)
		ok, err := p.auto.Exists(ctx, sel)
		if err != nil {
			return nil, fmt.Errorf("look up %q: %w", label, err)
		}
		if ok {
			info, err := p.auto.Info(ctx, sel)
			if err != nil {
				return nil, fmt.Errorf("inspect %q: %w", label, err)
			}
			tab.Element = &info
		}
		r.Tabs = append(r.Tabs, tab)
	}
	return r, nil
}

// NavPosition is the computed tap point of one navigation tab.
type NavPosition struct {
	Label string `json:"label" yaml:"label"`
	X     int    `json:"x" yaml:"x"`
	Y     int    `json:"y" yaml:"y"`
}

// BottomNavOptions configures BottomNav.
type BottomNavOptions struct {
	Launch   bool // start the app first
	Annotate bool // save a screenshot with the found elements boxed
}

// BottomNavReport is the result of BottomNav.
type BottomNavReport struct {
	Width      int                `json:"width" yaml:"width"`
	Height     int                `json:"height" yaml:"height"`
	BandTop    int                `json:"bandTop" yaml:"bandTop"`
	Clickables []core.ElementInfo `json:"clickables" yaml:"clickables"`
	Positions  []NavPosition      `json:"positions" yaml:"positions"`
	Annotated  string             `json:"annotated,omitempty" yaml:"annotated,omitempty"`
}

// BottomNav finds clickable elements in the bottom band of the screen and
// computes evenly spaced tap points for the navigation tabs.
func (p *Prober) BottomNav(ctx context.Context, opts BottomNavOptions) (*BottomNavReport, error) {
	if opts.Launch {
		p.launch(ctx)
	}

	r := &BottomNavReport{}
	var err error
	if r.Width, r.Height, err = p.auto.WindowSize(ctx); err != nil {
		return nil, fmt.Errorf("window size: %w", err)
	}
	r.BandTop = r.Height - p.cfg.Probe.BottomBand

	xml, err := p.auto.DumpHierarchy(ctx)
	if err != nil {
		return nil, fmt.Errorf("dump hierarchy: %w", err)
	}
	nodes, err := hierarchy.Parse(xml)
	if err != nil {
		return nil, err
	}
	for _, n := range hierarchy.ClickableInBottomBand(nodes, r.Height, p.cfg.Probe.BottomBand) {
		r.Clickables = append(r.Clickables, n.Info())
	}
	r.Positions = NavPositions(r.Width, r.Height, p.cfg.Probe.NavTabs)

	if opts.Annotate {
		if r.Annotated, err = p.annotateNav(ctx, r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// NavPositions splits the width evenly between labels and places each tap
// point at the centre of its slot, 50px above the bottom edge.
func NavPositions(width, height int, labels []string) []NavPosition {
	if len(labels) == 0 {
		return nil
	}
	slot := width / len(labels)
	out := make([]NavPosition, len(labels))
	for i, label := range labels {
		out[i] = NavPosition{Label: label, X: i*slot + slot/2, Y: height - bottomNavCenterY}
	}
	return out
}

func (p *Prober) annotateNav(ctx context.Context, r *BottomNavReport) (string, error) {
	shot, err := p.auto.Screenshot(ctx)
	if err != nil {
		return "", fmt.Errorf("screenshot: %w", err)
	}
	boxes := annotate.ForElements(r.Clickables)
	for _, pos := range r.Positions {
		boxes = append(boxes, annotate.Box{
			Bounds: core.Bounds{X: pos.X - 10, Y: pos.Y - 10, Width: 20, Height: 20},
			Label:  pos.Label,
		})
	}
	data, err := annotate.PNG(shot, boxes)
	if err != nil {
		return "", err
	}
	return p.save(BottomNavScreenshot, data)
}

// TextView is one text element listed by Widgets.
type TextView struct {
	Index       int    `json:"index" yaml:"index"`
	Text        string `json:"text,omitempty" yaml:"text,omitempty"`
	Description string `json:"contentDescription,omitempty" yaml:"contentDescription,omitempty"`
	ResourceID  string `json:"resourceId,omitempty" yaml:"resourceId,omitempty"`
}

// ClassCount is the number of elements of one class.
type ClassCount struct {
	Class string `json:"class" yaml:"class"`
	Count int    `json:"count" yaml:"count"`
}

// WidgetsReport is the result of Widgets.
type WidgetsReport struct {
	App       core.AppInfo `json:"app" yaml:"app"`
	Counts    []ClassCount `json:"counts" yaml:"counts"`
	TextViews []TextView   `json:"textViews" yaml:"textViews"`
}

// Widgets counts elements per configured class and lists the first text
// views that carry a text or a description.
func (p *Prober) Widgets(ctx context.Context) (*WidgetsReport, error) {
	r := &WidgetsReport{}
	var err error
	if r.App, err = p.auto.CurrentApp(ctx); err != nil {
		return nil, fmt.Errorf("current app: %w", err)
	}

	xml, err := p.auto.DumpHierarchy(ctx)
	if err != nil {
		return nil, fmt.Errorf("dump hierarchy: %w", err)
	}
	nodes, err := hierarchy.Parse(xml)
	if err != nil {
		return nil, err
	}
	counts := hierarchy.CountByClass(nodes, p.cfg.Probe.WidgetClasses)
	for _, class := range p.cfg.Probe.WidgetClasses {
		r.Counts = append(r.Counts, ClassCount{Class: class, Count: counts[class]})
	}

	views, err := p.auto.Elements(ctx, automator.ByClass(p.cfg.Selectors.TextClass), widgetTextLimit)
	if err != nil {
		return nil, fmt.Errorf("list text views: %w", err)
	}
	for i, v := range views {
		if v.Text == "" && v.Description == "" {
			continue
		}
		r.TextViews = append(r.TextViews, TextView{
			Index:       i + 1,
			Text:        v.Text,
			Description: v.Description,
			ResourceID:  v.ResourceID,
		})
	}
	return r, nil
}

// TextsReport is the result of Texts.
type TextsReport struct {
	App           core.AppInfo `json:"app" yaml:"app"`
	Screenshot    string       `json:"screenshot" yaml:"screenshot"`
	Hierarchy     string       `json:"hierarchy" yaml:"hierarchy"`
	TextViewCount int          `json:"textViewCount" yaml:"textViewCount"`
	TextViews     []string     `json:"textViews" yaml:"textViews"`
	ElementCount  int          `json:"elementCount" yaml:"elementCount"`
	Elements      []string     `json:"elements" yaml:"elements"`
}

// Texts launches the app, saves a screenshot and the hierarchy, and lists
// the texts of the first text views and of the first elements overall.
func (p *Prober) Texts(ctx context.Context) (*TextsReport, error) {
	p.launch(ctx)

	r := &TextsReport{}
	var err error
	if r.App, err = p.auto.CurrentApp(ctx); err != nil {
		return nil, fmt.Errorf("current app: %w", err)
	}

	var nodes []*hierarchy.Node
	if r.Screenshot, r.Hierarchy, nodes, err = p.snapshot(ctx, TextsScreenshot, TextsHierarchy); err != nil {
		return nil, err
	}

	textClass := automator.ByClass(p.cfg.Selectors.TextClass)
	if r.TextViewCount, err = p.auto.Count(ctx, textClass); err != nil {
		return nil, fmt.Errorf("count text views: %w", err)
	}
	views, err := p.auto.Elements(ctx, textClass, textsLimit)
	if err != nil {
		return nil, fmt.Errorf("list text views: %w", err)
	}
	for _, v := range views {
		if v.Text != "" {
			r.TextViews = append(r.TextViews, v.Text)
		}
	}

	r.ElementCount = len(nodes)
	first := nodes
	if len(first) > textsLimit {
		first = first[:textsLimit]
	}
	r.Elements = hierarchy.Texts(first)
	return r, nil
}

// launch runs the controller's start sequence. A failure is only logged;
// the probe then inspects whatever is on screen.
func (p *Prober) launch(ctx context.Context) {
	if err := controller.New(p.auto, p.cfg).StartApp(ctx); err != nil {
		logger.Warn("start %s: %v", p.cfg.App.Package, err)
	}
}

// snapshot saves a screenshot and the hierarchy under the data directory
// and returns their paths with the parsed nodes.
func (p *Prober) snapshot(ctx context.Context, shotName, xmlName string) (string, string, []*hierarchy.Node, error) {
	shot, err := p.auto.Screenshot(ctx)
	if err != nil {
		return "", "", nil, fmt.Errorf("screenshot: %w", err)
	}
	shotPath, err := p.save(shotName, shot)
	if err != nil {
		return "", "", nil, err
	}

	xml, err := p.auto.DumpHierarchy(ctx)
	if err != nil {
		return "", "", nil, fmt.Errorf("dump hierarchy: %w", err)
	}
	xmlPath, err := p.save(xmlName, []byte(xml))
	if err != nil {
		return "", "", nil, err
	}

	nodes, err := hierarchy.Parse(xml)
	if err != nil {
		return "", "", nil, err
	}
	return shotPath, xmlPath, nodes, nil
}

func (p *Prober) save(name string, data []byte) (string, error) {
	path := p.cfg.DataPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //#nosec G306 -- diagnostic output
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	logger.Success("Saved %s", path)
	return path, nil
}

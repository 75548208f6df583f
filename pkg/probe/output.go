package probe

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wxauto/wxprobe/pkg/core"
)

// Format is a report output format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a --format value. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", s)
	}
}

// Report is anything a probe returns.
type Report interface {
	WriteText(w io.Writer)
}

// Write renders r to w in the given format.
func Write(w io.Writer, f Format, r Report) error {
	switch f {
	case FormatText, "":
		r.WriteText(w)
		return nil
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format: %s", f)
	}
}

func writeDevice(w io.Writer, d core.DeviceInfo) {
	fmt.Fprintln(w, "Device:")
	fmt.Fprintf(w, "  product:    %s\n", d.ProductName)
	fmt.Fprintf(w, "  brand:      %s\n", d.Brand)
	fmt.Fprintf(w, "  model:      %s\n", d.Model)
	fmt.Fprintf(w, "  android:    %s (sdk %d)\n", d.Version, d.SDK)
	fmt.Fprintf(w, "  resolution: %dx%d\n", d.DisplayWidth, d.DisplayHeight)
}

func writeApp(w io.Writer, a core.AppInfo) {
	fmt.Fprintf(w, "Current app: %s\n", orUnknown(a.Package))
	fmt.Fprintf(w, "Activity:    %s\n", orUnknown(a.Activity))
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func bounds(b core.Bounds) string {
	return fmt.Sprintf("[%d,%d][%d,%d]", b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// WriteText implements Report.
func (r *ConnectionReport) WriteText(w io.Writer) {
	if r.Error != "" {
		fmt.Fprintf(w, "Connection to %s failed: %s\n", r.Address, r.Error)
		for _, h := range r.Hints {
			fmt.Fprintln(w, h)
		}
		return
	}
	fmt.Fprintf(w, "Connected to %s\n", r.Address)
	writeDevice(w, r.Device)
	writeApp(w, r.App)
	fmt.Fprintf(w, "Screen:      %s\n", onOff(r.ScreenOn))
}

// WriteText implements Report.
func (r *PermissionsReport) WriteText(w io.Writer) {
	writeDevice(w, r.Device)
	writeApp(w, r.App)
	fmt.Fprintf(w, "Screen:      %s, %dx%d\n", onOff(r.ScreenOn), r.Width, r.Height)
	fmt.Fprintf(w, "Tapped:      (%d, %d), check the device for a response\n", r.Tap.X, r.Tap.Y)
	fmt.Fprintf(w, "Screenshot:  %s (%dx%d)\n", r.Screenshot, r.ScreenshotWidth, r.ScreenshotHeight)
	fmt.Fprintln(w, "A black or blank screenshot usually means:")
	fmt.Fprintln(w, "  1. the app blocks screen capture")
	fmt.Fprintln(w, "  2. screen capture is not allowed for the automation service")
	fmt.Fprintln(w, "  3. USB debugging (security settings) is off in developer options")
}

// WriteText implements Report.
func (r *DumpReport) WriteText(w io.Writer) {
	writeApp(w, r.App)
	fmt.Fprintf(w, "Screenshot:  %s\n", r.Screenshot)
	fmt.Fprintf(w, "Hierarchy:   %s\n", r.Hierarchy)

	fmt.Fprintln(w, "Texts:")
	for i, t := range r.Texts {
		if i == dumpTextLimit {
			fmt.Fprintf(w, "  ... and %d more\n", len(r.Texts)-dumpTextLimit)
			break
		}
		fmt.Fprintf(w, "  %d. %s\n", i+1, t)
	}
	fmt.Fprintf(w, "%d distinct texts\n", len(r.Texts))

	fmt.Fprintln(w, "Known labels:")
	for _, l := range r.Labels {
		mark := "missing"
		if l.Exists {
			mark = "present"
		}
		fmt.Fprintf(w, "  %s: %s\n", l.Label, mark)
	}
}

// WriteText implements Report.
func (r *TabsReport) WriteText(w io.Writer) {
	for _, t := range r.Tabs {
		fmt.Fprintf(w, "[%s]\n", t.Label)
		if t.Element == nil {
			fmt.Fprintln(w, "  not found")
			continue
		}
		e := t.Element
		fmt.Fprintf(w, "  text:       %s\n", e.Text)
		fmt.Fprintf(w, "  resourceId: %s\n", e.ResourceID)
		fmt.Fprintf(w, "  className:  %s\n", e.ClassName)
		fmt.Fprintf(w, "  selected:   %t\n", e.Selected)
		fmt.Fprintf(w, "  enabled:    %t\n", e.Enabled)
		fmt.Fprintf(w, "  focused:    %t\n", e.Focused)
		fmt.Fprintf(w, "  bounds:     %s\n", bounds(e.Bounds))
	}
}

// WriteText implements Report.
func (r *BottomNavReport) WriteText(w io.Writer) {
	fmt.Fprintf(w, "Screen: %dx%d, bottom band y > %d\n", r.Width, r.Height, r.BandTop)
	fmt.Fprintf(w, "%d clickable elements in the bottom band:\n", len(r.Clickables))
	for _, e := range r.Clickables {
		fmt.Fprintf(w, "  - resourceId: %s\n", e.ResourceID)
		fmt.Fprintf(w, "    className:  %s\n", e.ClassName)
		fmt.Fprintf(w, "    text:       %s\n", e.Text)
		fmt.Fprintf(w, "    desc:       %s\n", e.Description)
		fmt.Fprintf(w, "    bounds:     %s\n", bounds(e.Bounds))
	}
	fmt.Fprintln(w, "Navigation tap points:")
	for _, p := range r.Positions {
		fmt.Fprintf(w, "  %s: (%d, %d)\n", p.Label, p.X, p.Y)
	}
	if r.Annotated != "" {
		fmt.Fprintf(w, "Annotated screenshot: %s\n", r.Annotated)
	}
}

// WriteText implements Report.
func (r *WidgetsReport) WriteText(w io.Writer) {
	fmt.Fprintf(w, "Current app: %s\n", orUnknown(r.App.Package))
	for _, c := range r.Counts {
		fmt.Fprintf(w, "%-30s %d\n", c.Class, c.Count)
	}
	fmt.Fprintln(w, "Text views:")
	for _, v := range r.TextViews {
		fmt.Fprintf(w, "  [%d] text=%q desc=%q id=%q\n", v.Index, v.Text, v.Description, v.ResourceID)
	}
}

// WriteText implements Report.
func (r *TextsReport) WriteText(w io.Writer) {
	writeApp(w, r.App)
	fmt.Fprintf(w, "Screenshot:  %s\n", r.Screenshot)
	fmt.Fprintf(w, "Hierarchy:   %s\n", r.Hierarchy)
	fmt.Fprintf(w, "%d text views, first texts:\n", r.TextViewCount)
	for i, t := range r.TextViews {
		fmt.Fprintf(w, "  [%d] %s\n", i+1, t)
	}
	fmt.Fprintf(w, "%d elements, first texts:\n", r.ElementCount)
	for i, t := range r.Elements {
		fmt.Fprintf(w, "  [%d] %s\n", i+1, t)
	}
}

package device

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wxauto/wxprobe/pkg/core"
)

var (
	// matches "u0 com.tencent.mm/com.tencent.mm.ui.LauncherUI" and
	// "u0 com.android.settings/.Settings"
	activityRegexp = regexp.MustCompile(`\bu\d+ ([\w.]+)/([\w.$]+)`)
	sizeRegexp     = regexp.MustCompile(`(Physical|Override) size: (\d+)x(\d+)`)
)

// CurrentApp returns the package and activity owning the focused window.
func (d *AndroidDevice) CurrentApp(ctx context.Context) (core.AppInfo, error) {
	out, err := d.Shell(ctx, "dumpsys window | grep -E 'mCurrentFocus|mFocusedApp'")
	if err != nil {
		return core.AppInfo{}, err
	}
	if app, ok := ParseFocus(out); ok {
		return app, nil
	}

	// Keyguard and some launchers leave mCurrentFocus null; fall back to
	// the resumed activity.
	out, err = d.Shell(ctx, "dumpsys activity activities | grep -E 'ResumedActivity'")
	if err != nil {
		return core.AppInfo{}, err
	}
	if app, ok := ParseFocus(out); ok {
		return app, nil
	}
	return core.AppInfo{}, fmt.Errorf("no focused activity in dumpsys output")
}

// ParseFocus extracts the first package/activity pair from dumpsys output.
// Short activity names (".Settings") are expanded with the package.
func ParseFocus(out string) (core.AppInfo, bool) {
	m := activityRegexp.FindStringSubmatch(out)
	if m == nil {
		return core.AppInfo{}, false
	}
	activity := m[2]
	if strings.HasPrefix(activity, ".") {
		activity = m[1] + activity
	}
	return core.AppInfo{Package: m[1], Activity: activity}, true
}

// IsScreenOn reports whether the display is awake.
func (d *AndroidDevice) IsScreenOn(ctx context.Context) (bool, error) {
	out, err := d.Shell(ctx, "dumpsys power")
	if err != nil {
		return false, err
	}
	on, ok := ParseScreenOn(out)
	if !ok {
		return false, fmt.Errorf("screen state not found in dumpsys power")
	}
	return on, nil
}

// ParseScreenOn reads the wakefulness from dumpsys power. Older releases
// only print the display power state.
func ParseScreenOn(out string) (on bool, ok bool) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "mWakefulness="):
			return strings.TrimPrefix(line, "mWakefulness=") == "Awake", true
		case strings.HasPrefix(line, "Display Power: state="):
			return strings.TrimPrefix(line, "Display Power: state=") == "ON", true
		}
	}
	return false, false
}

// Wake turns the screen on without toggling it off when already on.
func (d *AndroidDevice) Wake(ctx context.Context) error {
	_, err := d.Shell(ctx, "input", "keyevent", "KEYCODE_WAKEUP")
	return err
}

// Swipe performs a straight swipe over duration.
func (d *AndroidDevice) Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error {
	ms := int(duration.Milliseconds())
	if ms <= 0 {
		ms = 100
	}
	_, err := d.Shell(ctx, "input", "swipe",
		strconv.Itoa(x1), strconv.Itoa(y1), strconv.Itoa(x2), strconv.Itoa(y2), strconv.Itoa(ms))
	return err
}

// Tap taps at screen coordinates.
func (d *AndroidDevice) Tap(ctx context.Context, x, y int) error {
	_, err := d.Shell(ctx, "input", "tap", strconv.Itoa(x), strconv.Itoa(y))
	return err
}

// LaunchApp starts the package's launcher activity, or brings it to the
// front if it is already running.
func (d *AndroidDevice) LaunchApp(ctx context.Context, pkg string) error {
	out, err := d.Shell(ctx, "monkey", "-p", pkg, "-c", "android.intent.category.LAUNCHER", "1")
	if err != nil {
		return err
	}
	// monkey exits 0 even when nothing matched
	if strings.Contains(out, "No activities found") || strings.Contains(out, "monkey aborted") {
		return core.ErrAppNotInstalled.WithMessage(fmt.Sprintf("cannot launch %s", pkg)).
			WithDetails(map[string]interface{}{"output": strings.TrimSpace(out)})
	}
	return nil
}

// ForceStop stops the package.
func (d *AndroidDevice) ForceStop(ctx context.Context, pkg string) error {
	_, err := d.Shell(ctx, "am", "force-stop", pkg)
	return err
}

// WindowSize returns the display size, preferring an override size.
func (d *AndroidDevice) WindowSize(ctx context.Context) (int, int, error) {
	out, err := d.Shell(ctx, "wm", "size")
	if err != nil {
		return 0, 0, err
	}
	w, h, ok := ParseWindowSize(out)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected wm size output: %q", strings.TrimSpace(out))
	}
	return w, h, nil
}

// ParseWindowSize parses `wm size` output.
func ParseWindowSize(out string) (int, int, bool) {
	var w, h int
	found := false
	for _, m := range sizeRegexp.FindAllStringSubmatch(out, -1) {
		mw, _ := strconv.Atoi(m[2])
		mh, _ := strconv.Atoi(m[3])
		if !found || m[1] == "Override" {
			w, h, found = mw, mh, true
		}
	}
	return w, h, found
}

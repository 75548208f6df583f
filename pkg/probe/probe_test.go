package probe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wxauto/wxprobe/pkg/automator/fake"
	"github.com/wxauto/wxprobe/pkg/config"
	"github.com/wxauto/wxprobe/pkg/core"
)

const textView = "android.widget.TextView"

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Timing.PollInterval = 20 * time.Millisecond
	cfg.Timing.LaunchTimeout = 100 * time.Millisecond
	cfg.Timing.SettleTimeout = 200 * time.Millisecond
	return cfg
}

func assertFile(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err, path)
	assert.NotZero(t, info.Size(), path)
}

func TestConnection(t *testing.T) {
	cfg := testConfig(t)
	dev := fake.New()
	dev.Address = cfg.Device.Address
	dev.Foreground = core.AppInfo{Package: "com.android.launcher"}

	r, err := New(dev, cfg).Connection(context.Background())
	require.NoError(t, err)

	assert.Equal(t, cfg.Device.Address, r.Address)
	assert.Equal(t, "Fake Phone", r.Device.Model)
	assert.Equal(t, "com.android.launcher", r.App.Package)
	assert.True(t, r.ScreenOn)
	assert.Empty(t, r.Error)
	assert.Empty(t, r.Hints)
}

func TestConnectionFailure(t *testing.T) {
	cfg := testConfig(t)
	dev := fake.New()
	dev.ConnectErr = errors.New("connection refused")

	r, err := New(dev, cfg).Connection(context.Background())
	require.Error(t, err)

	assert.Equal(t, core.ErrCategoryConnection, core.CategoryOf(err))
	assert.Contains(t, r.Error, "connection refused")
	assert.NotEmpty(t, r.Hints)
	assert.Empty(t, dev.CallsWithPrefix("device_info"))
}

func TestPermissions(t *testing.T) {
	cfg := testConfig(t)
	dev := fake.Connected()
	dev.Width, dev.Height = 20, 40
	dev.Foreground = core.AppInfo{Package: "com.tencent.mm", Activity: ".ui.LauncherUI"}

	r, err := New(dev, cfg).Permissions(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 34, r.Device.SDK)
	assert.Equal(t, ".ui.LauncherUI", r.App.Activity)
	assert.Equal(t, config.Point{X: 10, Y: 20}, r.Tap)
	assert.Equal(t, []string{"click 10,20"}, dev.CallsWithPrefix("click"))
	assert.Equal(t, filepath.Join(cfg.Paths.DataDir, PermissionsScreenshot), r.Screenshot)
	assertFile(t, r.Screenshot)
	assert.Equal(t, 20, r.ScreenshotWidth)
	assert.Equal(t, 40, r.ScreenshotHeight)
}

func TestPermissionsNotConnected(t *testing.T) {
	_, err := New(fake.New(), testConfig(t)).Permissions(context.Background())
	assert.Equal(t, core.ErrCategoryConnection, core.CategoryOf(err))
}

func TestDumpUI(t *testing.T) {
	cfg := testConfig(t)
	dev := fake.Connected()
	dev.Width, dev.Height = 10, 10
	dev.Add(core.ElementInfo{Text: "微信", ClassName: textView, Selected: true})
	dev.Add(core.ElementInfo{Text: "通讯录", ClassName: textView})
	dev.Add(core.ElementInfo{Text: " ", ClassName: textView})
	dev.Add(core.ElementInfo{Text: "微信", ClassName: textView})

	r, err := New(dev, cfg).DumpUI(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"微信", "通讯录"}, r.Texts)
	assertFile(t, r.Screenshot)
	assertFile(t, r.Hierarchy)
	assert.Equal(t, filepath.Join(cfg.Paths.DataDir, DebugHierarchy), r.Hierarchy)

	require.Len(t, r.Labels, len(cfg.Probe.KnownLabels))
	assert.Equal(t, LabelPresence{Label: "微信", Exists: true}, r.Labels[0])
	assert.Equal(t, LabelPresence{Label: "通讯录", Exists: true}, r.Labels[1])
	assert.Equal(t, LabelPresence{Label: "发现", Exists: false}, r.Labels[2])
}

func TestTabs(t *testing.T) {
	dev := fake.Connected()
	dev.Add(core.ElementInfo{
		Text: "微信", ResourceID: "com.tencent.mm:id/icon_tv", ClassName: textView, Selected: true,
		Bounds: core.Bounds{X: 0, Y: 2300, Width: 270, Height: 100},
	})
	dev.Add(core.ElementInfo{Text: "我", ClassName: textView})

	r, err := New(dev, testConfig(t)).Tabs(context.Background())
	require.NoError(t, err)
	require.Len(t, r.Tabs, 4)

	wx := r.Tabs[0]
	require.NotNil(t, wx.Element)
	assert.True(t, wx.Element.Selected)
	assert.True(t, wx.Element.Enabled)
	assert.Equal(t, "com.tencent.mm:id/icon_tv", wx.Element.ResourceID)
	assert.Equal(t, 270, wx.Element.Bounds.Width)

	assert.Equal(t, "通讯录", r.Tabs[1].Label)
	assert.Nil(t, r.Tabs[1].Element)
	assert.Nil(t, r.Tabs[2].Element)
	require.NotNil(t, r.Tabs[3].Element)
	assert.False(t, r.Tabs[3].Element.Selected)
	assert.Len(t, dev.CallsWithPrefix("info"), 2)
}

func TestNavPositions(t *testing.T) {
	got := NavPositions(1080, 2400, []string{"微信", "通讯录", "发现", "我"})
	assert.Equal(t, []NavPosition{
		{Label: "微信", X: 135, Y: 2350},
		{Label: "通讯录", X: 405, Y: 2350},
		{Label: "发现", X: 675, Y: 2350},
		{Label: "我", X: 945, Y: 2350},
	}, got)
	assert.Nil(t, NavPositions(1080, 2400, nil))
}

func TestBottomNav(t *testing.T) {
	cfg := testConfig(t)
	dev := fake.Connected()
	dev.Width, dev.Height = 400, 800
	dev.Add(core.ElementInfo{Text: "微信", Clickable: true, Bounds: core.Bounds{X: 0, Y: 720, Width: 100, Height: 80}})
	dev.Add(core.ElementInfo{Text: "label", Bounds: core.Bounds{X: 100, Y: 720, Width: 100, Height: 80}})
	dev.Add(core.ElementInfo{Description: "搜索", Clickable: true, Bounds: core.Bounds{X: 300, Y: 0, Width: 100, Height: 80}})
	dev.Add(core.ElementInfo{Text: "edge", Clickable: true, Bounds: core.Bounds{X: 200, Y: 600, Width: 100, Height: 100}})

	r, err := New(dev, cfg).BottomNav(context.Background(), BottomNavOptions{Annotate: true})
	require.NoError(t, err)

	assert.Equal(t, 700, r.BandTop)
	require.Len(t, r.Clickables, 1)
	assert.Equal(t, "微信", r.Clickables[0].Text)
	require.Len(t, r.Positions, 4)
	assert.Equal(t, NavPosition{Label: "通讯录", X: 150, Y: 750}, r.Positions[1])
	assert.Equal(t, filepath.Join(cfg.Paths.DataDir, BottomNavScreenshot), r.Annotated)
	assertFile(t, r.Annotated)
	assert.Empty(t, dev.CallsWithPrefix("start_app"))
}

func TestBottomNavLaunch(t *testing.T) {
	dev := fake.Connected()
	dev.Width, dev.Height = 400, 800

	r, err := New(dev, testConfig(t)).BottomNav(context.Background(), BottomNavOptions{Launch: true})
	require.NoError(t, err)

	assert.NotEmpty(t, dev.CallsWithPrefix("start_app com.tencent.mm"))
	assert.Empty(t, r.Clickables)
	assert.Empty(t, r.Annotated)
	assert.Empty(t, dev.CallsWithPrefix("screenshot"))
}

func TestWidgets(t *testing.T) {
	dev := fake.Connected()
	dev.Foreground = core.AppInfo{Package: "com.tencent.mm"}
	dev.Add(core.ElementInfo{Text: "微信", ClassName: textView, ResourceID: "com.tencent.mm:id/icon_tv"})
	dev.Add(core.ElementInfo{ClassName: textView})
	dev.Add(core.ElementInfo{Description: "未读", ClassName: textView})
	dev.Add(core.ElementInfo{ClassName: "android.widget.Button"})
	dev.Add(core.ElementInfo{ClassName: "android.widget.EditText"})

	r, err := New(dev, testConfig(t)).Widgets(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []ClassCount{
		{Class: textView, Count: 3},
		{Class: "android.widget.Button", Count: 1},
		{Class: "android.widget.ImageView", Count: 0},
		{Class: "android.widget.LinearLayout", Count: 0},
		{Class: "android.widget.FrameLayout", Count: 0},
	}, r.Counts)
	assert.Equal(t, []TextView{
		{Index: 1, Text: "微信", ResourceID: "com.tencent.mm:id/icon_tv"},
		{Index: 3, Description: "未读"},
	}, r.TextViews)
}

func TestTexts(t *testing.T) {
	cfg := testConfig(t)
	dev := fake.Connected()
	dev.Width, dev.Height = 10, 10
	for i := 0; i < 25; i++ {
		dev.Add(core.ElementInfo{Text: "t" + string(rune('a'+i)), ClassName: textView})
	}
	dev.Add(core.ElementInfo{ClassName: "android.widget.FrameLayout"})

	r, err := New(dev, cfg).Texts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "com.tencent.mm", r.App.Package)
	assert.NotEmpty(t, dev.CallsWithPrefix("start_app com.tencent.mm"))
	assertFile(t, r.Screenshot)
	assertFile(t, r.Hierarchy)
	assert.Equal(t, filepath.Join(cfg.Paths.DataDir, TextsScreenshot), r.Screenshot)

	assert.Equal(t, 25, r.TextViewCount)
	assert.Len(t, r.TextViews, 20)
	assert.Equal(t, "ta", r.TextViews[0])
	assert.Equal(t, 26, r.ElementCount)
	assert.Len(t, r.Elements, 20)
}

func TestTextsKeepsGoingWhenLaunchFails(t *testing.T) {
	dev := fake.Connected()
	dev.Width, dev.Height = 10, 10
	dev.OnStartApp = func(*fake.Device, string) {}

	r, err := New(dev, testConfig(t)).Texts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, r.App.Package)
	assert.Zero(t, r.TextViewCount)
}

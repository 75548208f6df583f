package automator

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wxauto/wxprobe/pkg/core"
	"github.com/wxauto/wxprobe/pkg/device"
)

type fakeDevice struct {
	host     string
	screenOn bool
	woke     int
	launched []string
	swipes   [][4]int
	taps     [][2]int
	app      core.AppInfo
	ensured  device.UIAutomator2Config
}

func (f *fakeDevice) Serial() string { return "192.168.1.3:41239" }
func (f *fakeDevice) Host() string   { return f.host }

func (f *fakeDevice) Info(context.Context) (core.DeviceInfo, error) {
	return core.DeviceInfo{Serial: f.Serial(), ProductName: "raven", Version: "14", SDK: 34}, nil
}

func (f *fakeDevice) CurrentApp(context.Context) (core.AppInfo, error) { return f.app, nil }
func (f *fakeDevice) IsScreenOn(context.Context) (bool, error)          { return f.screenOn, nil }

func (f *fakeDevice) Wake(context.Context) error {
	f.woke++
	f.screenOn = true
	return nil
}

func (f *fakeDevice) Swipe(_ context.Context, x1, y1, x2, y2 int, _ time.Duration) error {
	f.swipes = append(f.swipes, [4]int{x1, y1, x2, y2})
	return nil
}

func (f *fakeDevice) Tap(_ context.Context, x, y int) error {
	f.taps = append(f.taps, [2]int{x, y})
	return nil
}

func (f *fakeDevice) LaunchApp(_ context.Context, pkg string) error {
	f.launched = append(f.launched, pkg)
	return nil
}

func (f *fakeDevice) WindowSize(context.Context) (int, int, error) { return 720, 1600, nil }

func (f *fakeDevice) EnsureUIAutomator2(_ context.Context, cfg device.UIAutomator2Config) error {
	f.ensured = cfg
	return nil
}

const pageSource = `<hierarchy>
  <node class="android.widget.FrameLayout" bounds="[0,0][1080,2400]">
    <node class="android.widget.TextView" text="微信" clickable="true" selected="true" bounds="[0,2300][270,2400]"/>
    <node class="android.widget.TextView" text="通讯录" clickable="true" bounds="[270,2300][540,2400]"/>
  </node>
</hierarchy>`

// fakeServer answers the UIAutomator2 endpoints the session uses. Selectors
// containing "missing" find nothing.
type fakeServer struct {
	mu       sync.Mutex
	requests []string
	clicks   []string
	typed    []string
	keys     []string
	failTaps bool
}

func (s *fakeServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		path := r.URL.Path

		notFound := func() {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]interface{}{"value": map[string]string{"error": "no such element", "message": "not found"}})
		}

		switch {
		case path == "/session":
			writeJSON(w, map[string]interface{}{"sessionId": "s1", "value": map[string]interface{}{}})
		case strings.HasSuffix(path, "/timeouts"):
			writeJSON(w, map[string]interface{}{"value": nil})
		case strings.HasSuffix(path, "/elements"):
			if strings.Contains(string(body), "missing") {
				writeJSON(w, map[string]interface{}{"value": []interface{}{}})
				return
			}
			writeJSON(w, map[string]interface{}{"value": []map[string]string{{"ELEMENT": "e1"}, {"ELEMENT": "e2"}}})
		case strings.HasSuffix(path, "/element"):
			if strings.Contains(string(body), "missing") {
				notFound()
				return
			}
			writeJSON(w, map[string]interface{}{"value": map[string]string{"ELEMENT": "e1"}})
		case strings.Contains(path, "/attribute/"):
			name := path[strings.LastIndex(path, "/")+1:]
			values := map[string]string{
				"text": "微信", "resource-id": "com.tencent.mm:id/icon_tv", "class": "android.widget.TextView",
				"content-desc": "", "package": "com.tencent.mm",
				"selected": "true", "enabled": "true", "focused": "false", "clickable": "true",
			}
			writeJSON(w, map[string]interface{}{"value": values[name]})
		case strings.HasSuffix(path, "/rect"):
			writeJSON(w, map[string]interface{}{"value": map[string]int{"x": 0, "y": 2300, "width": 270, "height": 100}})
		case s.failTaps && strings.HasSuffix(path, "/gestures/click"):
			w.WriteHeader(http.StatusInternalServerError)
			writeJSON(w, map[string]interface{}{"value": map[string]string{"error": "unknown error", "message": "injection failed"}})
		case strings.HasSuffix(path, "/click"):
			s.clicks = append(s.clicks, path+" "+string(body))
			writeJSON(w, map[string]interface{}{"value": nil})
		case strings.HasSuffix(path, "/long_click"), strings.HasSuffix(path, "/back"),
			strings.HasSuffix(path, "/press_keycode"):
			s.keys = append(s.keys, path[strings.LastIndex(path, "/")+1:]+" "+strings.TrimSpace(string(body)))
			writeJSON(w, map[string]interface{}{"value": nil})
		case strings.HasSuffix(path, "/clear"):
			writeJSON(w, map[string]interface{}{"value": nil})
		case strings.HasSuffix(path, "/value"):
			var req map[string]string
			_ = json.Unmarshal(body, &req)
			s.typed = append(s.typed, req["text"])
			writeJSON(w, map[string]interface{}{"value": nil})
		case strings.HasSuffix(path, "/window/current/size"):
			writeJSON(w, map[string]interface{}{"value": map[string]int{"width": 1080, "height": 2400}})
		case strings.HasSuffix(path, "/source"):
			writeJSON(w, map[string]interface{}{"value": pageSource})
		case strings.HasSuffix(path, "/screenshot"):
			writeJSON(w, map[string]interface{}{"value": "iVBORw0KGgo="})
		case strings.HasSuffix(path, "/appium/device/info"):
			writeJSON(w, map[string]interface{}{"value": map[string]string{"model": "Pixel 6 Pro", "brand": "google", "manufacturer": "Google"}})
		case r.Method == http.MethodDelete:
			writeJSON(w, map[string]interface{}{"value": nil})
		default:
			t.Errorf("unexpected request %s %s", r.Method, path)
			w.WriteHeader(http.StatusInternalServerError)
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestSession(t *testing.T) (*UIA2, *fakeDevice, *fakeServer) {
	t.Helper()
	fs := &fakeServer{}
	srv := httptest.NewServer(fs.handler(t))
	t.Cleanup(srv.Close)

	dev := &fakeDevice{host: "192.168.1.3"}
	u := NewUIA2(Options{ServerURL: srv.URL + "/", PollInterval: 10 * time.Millisecond})
	require.NoError(t, u.attach(context.Background(), dev))
	return u, dev, fs
}

func TestUIA2Attach(t *testing.T) {
	u, dev, fs := newTestSession(t)

	assert.Equal(t, strings.TrimRight(u.client.BaseURL(), "/"), dev.ensured.ServerURL)
	assert.Equal(t, 10*time.Millisecond, dev.ensured.PollInterval)
	assert.Equal(t, "s1", u.client.SessionID())
	assert.Contains(t, fs.requests, "POST /session/s1/timeouts")
}

func TestUIA2ServerURL(t *testing.T) {
	u := NewUIA2(Options{})
	url, err := u.serverURL(&fakeDevice{host: "192.168.1.3"})
	require.NoError(t, err)
	assert.Equal(t, "http://192.168.1.3:6790", url)

	_, err = u.serverURL(&fakeDevice{})
	assert.Equal(t, core.ErrCategoryConfig, core.CategoryOf(err))
}

func TestUIA2NotConnected(t *testing.T) {
	u := NewUIA2(Options{})
	ctx := context.Background()

	_, err := u.Exists(ctx, ByText("x"))
	assert.ErrorIs(t, err, core.ErrDeviceDisconnected)
	assert.ErrorIs(t, u.Click(ctx, 1, 2), core.ErrDeviceDisconnected)
	assert.NoError(t, u.Close())
}

func TestUIA2ExistsAndCount(t *testing.T) {
	u, _, _ := newTestSession(t)
	ctx := context.Background()

	ok, err := u.Exists(ctx, ByText("微信"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = u.Exists(ctx, ByText("missing"))
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := u.Count(ctx, ByClass("android.widget.TextView"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = u.Count(ctx, Selector{})
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestUIA2WaitExists(t *testing.T) {
	u, _, _ := newTestSession(t)
	ctx := context.Background()

	ok, err := u.WaitExists(ctx, ByText("微信"), time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = u.WaitExists(ctx, ByText("missing"), 50*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUIA2Info(t *testing.T) {
	u, _, _ := newTestSession(t)

	info, err := u.Info(context.Background(), ByText("微信"))
	require.NoError(t, err)
	assert.Equal(t, "微信", info.Text)
	assert.Equal(t, "com.tencent.mm:id/icon_tv", info.ResourceID)
	assert.Equal(t, "com.tencent.mm", info.Package)
	assert.True(t, info.Selected)
	assert.True(t, info.Clickable)
	assert.False(t, info.Focused)
	assert.Equal(t, core.Bounds{X: 0, Y: 2300, Width: 270, Height: 100}, info.Bounds)

	_, err = u.Info(context.Background(), ByText("missing"))
	assert.ErrorIs(t, err, core.ErrElementNotFound)
}

func TestUIA2Elements(t *testing.T) {
	u, _, _ := newTestSession(t)

	els, err := u.Elements(context.Background(), Selector{Clickable: true}, 0)
	require.NoError(t, err)
	require.Len(t, els, 2)
	assert.Equal(t, "微信", els[0].Text)
	assert.True(t, els[0].Selected)
	assert.Equal(t, "通讯录", els[1].Text)
}

func TestUIA2ClickAndSetText(t *testing.T) {
	u, _, fs := newTestSession(t)
	ctx := context.Background()

	require.NoError(t, u.ClickElement(ctx, ByText("微信")))
	require.NoError(t, u.Click(ctx, 591, 119))
	require.Len(t, fs.clicks, 2)
	assert.Contains(t, fs.clicks[0], "/element/e1/click")
	assert.Contains(t, fs.clicks[1], `"x":591`)

	require.NoError(t, u.SetText(ctx, ByClass("android.widget.EditText"), "张三"))
	assert.Equal(t, []string{"张三"}, fs.typed)

	assert.ErrorIs(t, u.ClickElement(ctx, ByText("missing")), core.ErrElementNotFound)
}

func TestUIA2ClickFallsBackToADB(t *testing.T) {
	u, dev, fs := newTestSession(t)
	fs.mu.Lock()
	fs.failTaps = true
	fs.mu.Unlock()

	require.NoError(t, u.Click(context.Background(), 591, 119))
	assert.Equal(t, [][2]int{{591, 119}}, dev.taps)
	assert.Empty(t, fs.clicks, "rejected tap must not be recorded as delivered")
	assert.Contains(t, fs.requests, "POST /session/s1/appium/gestures/click")
}

func TestUIA2ClickUsesServer(t *testing.T) {
	u, dev, fs := newTestSession(t)

	require.NoError(t, u.Click(context.Background(), 591, 119))
	assert.Empty(t, dev.taps)
	require.Len(t, fs.clicks, 1)
	assert.Contains(t, fs.clicks[0], "/appium/gestures/click")
}

func TestUIA2KeysAndLongClick(t *testing.T) {
	u, _, fs := newTestSession(t)
	ctx := context.Background()

	require.NoError(t, u.LongClick(ctx, 100, 200, 1500*time.Millisecond))
	require.NoError(t, u.Back(ctx))
	require.NoError(t, u.PressKey(ctx, 3))

	require.Len(t, fs.keys, 3)
	assert.Contains(t, fs.keys[0], "long_click")
	assert.Contains(t, fs.keys[0], `"duration":1500`)
	assert.True(t, strings.HasPrefix(fs.keys[1], "back"))
	assert.Contains(t, fs.keys[2], "press_keycode")
	assert.Contains(t, fs.keys[2], `"keycode":3`)
}

func TestUIA2DeviceSide(t *testing.T) {
	u, dev, _ := newTestSession(t)
	ctx := context.Background()

	on, err := u.IsScreenOn(ctx)
	require.NoError(t, err)
	assert.False(t, on)
	require.NoError(t, u.ScreenOn(ctx))
	assert.Equal(t, 1, dev.woke)

	require.NoError(t, u.Swipe(ctx, 360, 1400, 360, 400, 100*time.Millisecond))
	assert.Equal(t, [][4]int{{360, 1400, 360, 400}}, dev.swipes)

	require.NoError(t, u.StartApp(ctx, "com.tencent.mm"))
	assert.Equal(t, []string{"com.tencent.mm"}, dev.launched)

	dev.app = core.AppInfo{Package: "com.tencent.mm", Activity: "com.tencent.mm.ui.LauncherUI"}
	app, err := u.CurrentApp(ctx)
	require.NoError(t, err)
	assert.Equal(t, dev.app, app)
}

func TestUIA2DeviceInfo(t *testing.T) {
	u, _, _ := newTestSession(t)

	info, err := u.DeviceInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "raven", info.ProductName)
	assert.Equal(t, "Pixel 6 Pro", info.Model)
	assert.Equal(t, "google", info.Brand)
	assert.Equal(t, 1080, info.DisplayWidth)
	assert.Equal(t, 2400, info.DisplayHeight)
}

func TestUIA2ScreenshotAndDump(t *testing.T) {
	u, _, _ := newTestSession(t)
	ctx := context.Background()

	png, err := u.Screenshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, png)

	src, err := u.DumpHierarchy(ctx)
	require.NoError(t, err)
	assert.Contains(t, src, "通讯录")

	require.NoError(t, u.Close())
}

package device

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	adb "github.com/zach-klippenstein/goadb"

	"github.com/wxauto/wxprobe/pkg/core"
)

// fakeRunner answers shell commands from a table keyed by command prefix.
type fakeRunner struct {
	outputs map[string]string
	errs    map[string]error
	state   adb.DeviceState
	calls   []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		outputs: map[string]string{},
		errs:    map[string]error{},
		state:   adb.StateOnline,
	}
}

func (f *fakeRunner) RunCommand(cmd string, args ...string) (string, error) {
	line := strings.TrimSpace(cmd + " " + strings.Join(args, " "))
	f.calls = append(f.calls, line)
	for prefix, err := range f.errs {
		if strings.HasPrefix(line, prefix) {
			return "", err
		}
	}
	for prefix, out := range f.outputs {
		if strings.HasPrefix(line, prefix) {
			return out, nil
		}
	}
	return "", nil
}

func (f *fakeRunner) State() (adb.DeviceState, error) {
	return f.state, nil
}

func TestSplitHostPort(t *testing.T) {
	tests := []struct {
		in     string
		host   string
		port   int
		wantOK bool
	}{
		{"192.168.1.3:41239", "192.168.1.3", 41239, true},
		{"emulator-5554", "", 0, false},
		{"R58M123ABC", "", 0, false},
		{"", "", 0, false},
		{"host:notaport", "", 0, false},
	}

	for _, tt := range tests {
		host, port, ok := splitHostPort(tt.in)
		if ok != tt.wantOK || host != tt.host || port != tt.port {
			t.Errorf("splitHostPort(%q) = (%q, %d, %v), want (%q, %d, %v)", tt.in, host, port, ok, tt.host, tt.port, tt.wantOK)
		}
	}
}

func TestHost(t *testing.T) {
	d := newWithRunner("192.168.1.3:41239", newFakeRunner())
	if d.Host() != "192.168.1.3" {
		t.Errorf("Host() = %q", d.Host())
	}
	usb := newWithRunner("R58M123ABC", newFakeRunner())
	if usb.Host() != "" {
		t.Errorf("Host() for USB = %q, want empty", usb.Host())
	}
}

func TestShell(t *testing.T) {
	r := newFakeRunner()
	r.outputs["echo"] = "hi\n"
	d := newWithRunner("s", r)

	out, err := d.Shell(context.Background(), "echo", "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hi\n" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestShellError(t *testing.T) {
	r := newFakeRunner()
	r.errs["getprop"] = errors.New("closed")
	d := newWithRunner("s", r)

	_, err := d.Shell(context.Background(), "getprop", "ro.product.model")
	if err == nil || !strings.Contains(err.Error(), "adb shell getprop ro.product.model") {
		t.Errorf("expected wrapped error, got %v", err)
	}
}

func TestShellCancelled(t *testing.T) {
	r := newFakeRunner()
	d := newWithRunner("s", r)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Shell(ctx, "echo"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(r.calls) != 0 {
		t.Errorf("no command should run after cancel, got %v", r.calls)
	}
}

func TestIsInstalled(t *testing.T) {
	r := newFakeRunner()
	r.outputs["pm list packages io.appium.uiautomator2.server"] = "package:io.appium.uiautomator2.server\npackage:io.appium.uiautomator2.server.test\n"
	d := newWithRunner("s", r)

	if !d.IsInstalled(context.Background(), UIAutomator2Server) {
		t.Error("expected server to be installed")
	}
	if d.IsInstalled(context.Background(), "com.tencent.mm") {
		t.Error("expected com.tencent.mm not installed")
	}
}

func TestInfo(t *testing.T) {
	r := newFakeRunner()
	r.outputs["getprop ro.product.name"] = "alioth\n"
	r.outputs["getprop ro.product.brand"] = "Redmi\n"
	r.outputs["getprop ro.product.model"] = "M2012K11AC\n"
	r.outputs["getprop ro.product.manufacturer"] = "Xiaomi\n"
	r.outputs["getprop ro.build.version.release"] = "13\n"
	r.outputs["getprop ro.build.version.sdk"] = "33\n"
	r.outputs["wm size"] = "Physical size: 1080x2400\n"
	d := newWithRunner("192.168.1.3:41239", r)

	info, err := d.Info(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := core.DeviceInfo{
		Serial:        "192.168.1.3:41239",
		ProductName:   "alioth",
		Brand:         "Redmi",
		Model:         "M2012K11AC",
		Manufacturer:  "Xiaomi",
		Version:       "13",
		SDK:           33,
		DisplayWidth:  1080,
		DisplayHeight: 2400,
	}
	if info != want {
		t.Errorf("Info() = %+v, want %+v", info, want)
	}
}

func TestWaitForDevice(t *testing.T) {
	r := newFakeRunner()
	d := newWithRunner("s", r)
	if err := d.waitForDevice(context.Background(), time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r.state = adb.StateOffline
	err := d.waitForDevice(context.Background(), 50*time.Millisecond)
	if !errors.Is(err, core.ErrDeviceDisconnected) {
		t.Errorf("expected device_disconnected, got %v", err)
	}
}

func TestCheckHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"value":{"ready":true}}`))
	}))
	defer server.Close()

	if !CheckHealth(context.Background(), server.URL+"/") {
		t.Error("expected healthy server")
	}
	if CheckHealth(context.Background(), "http://127.0.0.1:1") {
		t.Error("expected unreachable server to be unhealthy")
	}
}

func TestEnsureUIAutomator2AlreadyRunning(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	r := newFakeRunner()
	d := newWithRunner("s", r)
	if err := d.EnsureUIAutomator2(context.Background(), DefaultUIAutomator2Config(server.URL)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.calls) != 0 {
		t.Errorf("no shell commands expected when server is up, got %v", r.calls)
	}
}

func TestStartUIAutomator2NotInstalled(t *testing.T) {
	r := newFakeRunner()
	d := newWithRunner("s", r)

	err := d.StartUIAutomator2(context.Background(), DefaultUIAutomator2Config("http://127.0.0.1:1"))
	if !errors.Is(err, core.ErrServerUnreachable) {
		t.Errorf("expected server_unreachable, got %v", err)
	}
}

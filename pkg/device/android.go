// Package device provides Android device access over the ADB server
// protocol: connecting over wireless debugging, shell commands and the
// device-side helpers the automation layer needs.
package device

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	adb "github.com/zach-klippenstein/goadb"

	"github.com/wxauto/wxprobe/pkg/core"
	"github.com/wxauto/wxprobe/pkg/logger"
	"github.com/wxauto/wxprobe/pkg/wait"
)

// shellRunner is the part of *adb.Device the package uses.
type shellRunner interface {
	RunCommand(cmd string, args ...string) (string, error)
	State() (adb.DeviceState, error)
}

// Config locates the device.
type Config struct {
	Address string // host:port for wireless debugging, or a USB serial; empty picks the first device
	ADBPort int    // local adb server port (default 5037)
}

// AndroidDevice manages one device connection via the ADB server.
type AndroidDevice struct {
	serial string
	dev    shellRunner
}

// Connect attaches to the device. A host:port address is connected over
// TCP first, the way `adb connect` does.
func Connect(ctx context.Context, cfg Config) (*AndroidDevice, error) {
	port := cfg.ADBPort
	if port == 0 {
		port = adb.AdbPort
	}

	client, err := adb.NewWithConfig(adb.ServerConfig{Port: port})
	if err != nil {
		return nil, core.ErrServerUnreachable.WithMessage("adb server unavailable").WithCause(err)
	}
	if err := client.StartServer(); err != nil {
		logger.Debug("adb start-server: %v", err)
	}

	serial := cfg.Address
	if host, p, ok := splitHostPort(serial); ok {
		logger.Debug("adb connect %s:%d", host, p)
		if err := client.Connect(host, p); err != nil {
			return nil, core.ErrDeviceDisconnected.
				WithMessage(fmt.Sprintf("adb connect %s failed", serial)).
				WithCause(err)
		}
	}

	if serial == "" {
		serials, err := client.ListDeviceSerials()
		if err != nil {
			return nil, core.ErrServerUnreachable.WithMessage("list devices").WithCause(err)
		}
		if len(serials) == 0 {
			return nil, core.ErrDeviceDisconnected.WithMessage("no connected devices found")
		}
		serial = serials[0]
	}

	d := &AndroidDevice{
		serial: serial,
		dev:    client.Device(adb.DeviceWithSerial(serial)),
	}

	if err := d.waitForDevice(ctx, 5*time.Second); err != nil {
		return nil, err
	}
	return d, nil
}

// newWithRunner builds a device around an existing runner (tests).
func newWithRunner(serial string, r shellRunner) *AndroidDevice {
	return &AndroidDevice{serial: serial, dev: r}
}

// splitHostPort accepts "192.168.1.3:41239"; USB serials have no port.
func splitHostPort(address string) (string, int, bool) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return "", 0, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, false
	}
	return host, port, true
}

// Serial returns the device serial number.
func (d *AndroidDevice) Serial() string {
	return d.serial
}

// Host returns the network host of a wireless device, or "" for USB.
func (d *AndroidDevice) Host() string {
	host, _, ok := splitHostPort(d.serial)
	if !ok {
		return ""
	}
	return host
}

// Shell executes a shell command on the device. cmd may contain pipes;
// args are quoted individually.
func (d *AndroidDevice) Shell(ctx context.Context, cmd string, args ...string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	out, err := d.dev.RunCommand(cmd, args...)
	if err != nil {
		return "", fmt.Errorf("adb shell %s: %w", strings.TrimSpace(cmd+" "+strings.Join(args, " ")), err)
	}
	return out, nil
}

// IsInstalled checks if a package is installed.
func (d *AndroidDevice) IsInstalled(ctx context.Context, pkg string) bool {
	out, err := d.Shell(ctx, "pm", "list", "packages", pkg)
	if err != nil {
		return false
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "package:"+pkg {
			return true
		}
	}
	return false
}

// Info returns device properties and the physical display size.
func (d *AndroidDevice) Info(ctx context.Context) (core.DeviceInfo, error) {
	info := core.DeviceInfo{Serial: d.serial}

	props := map[string]*string{
		"ro.product.name":          &info.ProductName,
		"ro.product.brand":         &info.Brand,
		"ro.product.model":         &info.Model,
		"ro.product.manufacturer":  &info.Manufacturer,
		"ro.build.version.release": &info.Version,
	}
	for prop, dst := range props {
		out, err := d.Shell(ctx, "getprop", prop)
		if err != nil {
			return info, err
		}
		*dst = strings.TrimSpace(out)
	}

	if sdk, err := d.Shell(ctx, "getprop", "ro.build.version.sdk"); err == nil {
		info.SDK, _ = strconv.Atoi(strings.TrimSpace(sdk))
	}

	if w, h, err := d.WindowSize(ctx); err == nil {
		info.DisplayWidth, info.DisplayHeight = w, h
	}

	return info, nil
}

// waitForDevice waits for the device to report the online state.
func (d *AndroidDevice) waitForDevice(ctx context.Context, timeout time.Duration) error {
	var last adb.DeviceState
	err := wait.Poll{Interval: 500 * time.Millisecond, Timeout: timeout, Description: "device " + d.serial}.
		Until(ctx, func(context.Context) (bool, error) {
			state, err := d.dev.State()
			if err != nil {
				return false, err
			}
			last = state
			return state == adb.StateOnline, nil
		})
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return core.ErrDeviceDisconnected.
			WithMessage(fmt.Sprintf("device %s not online (state %v)", d.serial, last)).
			WithCause(err)
	}
	return nil
}

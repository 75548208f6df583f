package uiautomator2

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// Back presses the system back button.
func (c *Client) Back(ctx context.Context) error {
	_, err := c.request(ctx, http.MethodPost, c.sessionPath("/back"), nil)
	return err
}

// PressKeyCode presses an Android key code.
func (c *Client) PressKeyCode(ctx context.Context, keyCode int) error {
	_, err := c.request(ctx, http.MethodPost, c.sessionPath("/appium/device/press_keycode"), KeyCodeRequest{KeyCode: keyCode})
	return err
}

// GetDeviceInfo returns device details reported by the server.
func (c *Client) GetDeviceInfo(ctx context.Context) (*DeviceInfo, error) {
	data, err := c.request(ctx, http.MethodGet, c.sessionPath("/appium/device/info"), nil)
	if err != nil {
		return nil, err
	}

	v := value(data)
	if !v.IsObject() {
		return nil, fmt.Errorf("unexpected device info response")
	}
	return &DeviceInfo{
		AndroidID:       v.Get("androidId").String(),
		Manufacturer:    v.Get("manufacturer").String(),
		Model:           v.Get("model").String(),
		Brand:           v.Get("brand").String(),
		APIVersion:      v.Get("apiVersion").String(),
		PlatformVersion: v.Get("platformVersion").String(),
		CarrierName:     v.Get("carrierName").String(),
		RealDisplaySize: v.Get("realDisplaySize").String(),
		DisplayDensity:  int(v.Get("displayDensity").Int()),
	}, nil
}

// WindowSize returns the current window size in pixels.
func (c *Client) WindowSize(ctx context.Context) (int, int, error) {
	data, err := c.request(ctx, http.MethodGet, c.sessionPath("/window/current/size"), nil)
	if err != nil {
		return 0, 0, err
	}

	v := value(data)
	w, h := int(v.Get("width").Int()), int(v.Get("height").Int())
	if w == 0 || h == 0 {
		return 0, 0, fmt.Errorf("unexpected window size response")
	}
	return w, h, nil
}

// Screenshot captures the screen as PNG.
func (c *Client) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := c.request(ctx, http.MethodGet, c.sessionPath("/screenshot"), nil)
	if err != nil {
		return nil, err
	}

	v := value(data)
	if v.Type != gjson.String {
		return nil, fmt.Errorf("unexpected screenshot response")
	}
	return decodeBase64(v.String())
}

// Source returns the UI hierarchy XML.
func (c *Client) Source(ctx context.Context) (string, error) {
	data, err := c.request(ctx, http.MethodGet, c.sessionPath("/source"), nil)
	if err != nil {
		return "", err
	}

	v := value(data)
	if v.Type != gjson.String {
		return "", fmt.Errorf("unexpected source response")
	}
	return v.String(), nil
}

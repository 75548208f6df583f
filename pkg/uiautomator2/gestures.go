package uiautomator2

import (
	"context"
	"net/http"
)

// Click taps at screen coordinates.
func (c *Client) Click(ctx context.Context, x, y int) error {
	req := ClickRequest{Offset: &PointModel{X: x, Y: y}}
	_, err := c.request(ctx, http.MethodPost, c.sessionPath("/appium/gestures/click"), req)
	return err
}

// LongClick presses at screen coordinates for durationMs.
func (c *Client) LongClick(ctx context.Context, x, y, durationMs int) error {
	req := LongClickRequest{
		Offset:   &PointModel{X: x, Y: y},
		Duration: durationMs,
	}
	_, err := c.request(ctx, http.MethodPost, c.sessionPath("/appium/gestures/long_click"), req)
	return err
}

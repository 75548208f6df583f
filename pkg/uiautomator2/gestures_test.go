package uiautomator2

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestClick(t *testing.T) {
	client, server := newTestClientWithSession(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/appium/gestures/click") {
			t.Errorf("expected /appium/gestures/click, got %s", r.URL.Path)
		}

		var req ClickRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Offset == nil || req.Offset.X != 591 || req.Offset.Y != 119 {
			t.Errorf("unexpected offset: %+v", req.Offset)
		}
		if req.Origin != nil {
			t.Errorf("unexpected origin: %+v", req.Origin)
		}
		writeJSON(w, map[string]interface{}{})
	})
	defer server.Close()

	if err := client.Click(context.Background(), 591, 119); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLongClick(t *testing.T) {
	client, server := newTestClientWithSession(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/appium/gestures/long_click") {
			t.Errorf("expected /appium/gestures/long_click, got %s", r.URL.Path)
		}

		var req LongClickRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Offset.X != 100 || req.Offset.Y != 200 || req.Duration != 1000 {
			t.Errorf("unexpected request: %+v", req)
		}
		writeJSON(w, map[string]interface{}{})
	})
	defer server.Close()

	if err := client.LongClick(context.Background(), 100, 200, 1000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGestureRequestError(t *testing.T) {
	client := newErrorTestClient()
	if err := client.Click(context.Background(), 1, 1); err == nil {
		t.Error("expected error")
	}
}

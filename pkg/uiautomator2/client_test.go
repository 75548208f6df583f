package uiautomator2

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := &Client{
		http:    server.Client(),
		baseURL: server.URL,
		logger:  createLogger(), // Required for request logging
	}
	return client, server
}

func newTestClientWithSession(handler http.HandlerFunc) (*Client, *httptest.Server) {
	client, server := newTestClient(handler)
	client.sessionID = "test-session"
	return client, server
}

// newErrorTestClient creates a client that will fail on any request.
// Used for testing error handling paths.
func newErrorTestClient() *Client {
	return &Client{
		http:      &http.Client{},
		baseURL:   "http://localhost:99999", // Invalid port
		sessionID: "test",
		logger:    createLogger(),
	}
}

// writeJSON encodes data as JSON to the response writer.
func writeJSON(w http.ResponseWriter, data interface{}) {
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func TestNewClient(t *testing.T) {
	client := NewClient("http://192.168.1.3:6790/")
	if client.BaseURL() != "http://192.168.1.3:6790" {
		t.Errorf("expected trailing slash trimmed, got %s", client.BaseURL())
	}
	if client.SessionID() != "" {
		t.Error("new client should not have a session")
	}
}

func TestStatus(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			t.Errorf("expected /status, got %s", r.URL.Path)
		}
		if r.Method != "GET" {
			t.Errorf("expected GET, got %s", r.Method)
		}
		writeJSON(w, map[string]interface{}{
			"value": map[string]interface{}{
				"ready":   true,
				"message": "ready",
			},
		})
	})
	defer server.Close()

	ready, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ready {
		t.Error("expected ready to be true")
	}
}

func TestStatusNotReady(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"value": map[string]interface{}{
				"ready":   false,
				"message": "not ready",
			},
		})
	})
	defer server.Close()

	ready, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ready {
		t.Error("expected ready to be false")
	}
}

func TestStatusInvalidJSON(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})
	defer server.Close()

	if _, err := client.Status(context.Background()); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestCreateSession(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/session" {
			t.Errorf("expected /session, got %s", r.URL.Path)
		}
		if r.Method != "POST" {
			t.Errorf("expected POST, got %s", r.Method)
		}

		var req SessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Capabilities.PlatformName != "Android" {
			t.Errorf("expected Android, got %s", req.Capabilities.PlatformName)
		}

		writeJSON(w, map[string]interface{}{
			"sessionId": "test-session-123",
		})
	})
	defer server.Close()

	err := client.CreateSession(context.Background(), Capabilities{PlatformName: "Android"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.SessionID() != "test-session-123" {
		t.Errorf("expected test-session-123, got %s", client.SessionID())
	}
}

func TestCreateSessionAlternateFormat(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"value": map[string]interface{}{
				"sessionId": "alt-session-456",
			},
		})
	})
	defer server.Close()

	err := client.CreateSession(context.Background(), Capabilities{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.SessionID() != "alt-session-456" {
		t.Errorf("expected alt-session-456, got %s", client.SessionID())
	}
}

func TestCreateSessionNoID(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"value": map[string]interface{}{}})
	})
	defer server.Close()

	if err := client.CreateSession(context.Background(), Capabilities{}); err == nil {
		t.Error("expected error when no session ID returned")
	}
}

func TestDeleteSession(t *testing.T) {
	client, server := newTestClientWithSession(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "DELETE" {
			t.Errorf("expected DELETE, got %s", r.Method)
		}
		if r.URL.Path != "/session/test-session" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		writeJSON(w, map[string]interface{}{})
	})
	defer server.Close()

	if err := client.DeleteSession(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.SessionID() != "" {
		t.Error("session should be cleared")
	}
}

func TestDeleteSessionNoSession(t *testing.T) {
	client := newErrorTestClient()
	client.sessionID = ""

	if err := client.Close(); err != nil {
		t.Errorf("Close without session should be a no-op, got %v", err)
	}
}

func TestSetImplicitWait(t *testing.T) {
	client, server := newTestClientWithSession(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/timeouts") {
			t.Errorf("expected /timeouts, got %s", r.URL.Path)
		}
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if body["implicit"] != float64(0) {
			t.Errorf("expected implicit 0, got %v", body["implicit"])
		}
		writeJSON(w, map[string]interface{}{})
	})
	defer server.Close()

	if err := client.SetImplicitWait(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSetImplicitWaitNoSession(t *testing.T) {
	client := NewClient("http://localhost:1")
	if err := client.SetImplicitWait(context.Background(), time.Second); err == nil {
		t.Error("expected error without session")
	}
}

func TestRequestW3CError(t *testing.T) {
	client, server := newTestClientWithSession(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		writeJSON(w, map[string]interface{}{
			"value": map[string]interface{}{
				"error":   "unknown error",
				"message": "instrumentation crashed",
			},
		})
	})
	defer server.Close()

	_, err := client.Source(context.Background())
	var serr *ServerError
	if !errors.As(err, &serr) {
		t.Fatalf("expected ServerError, got %v", err)
	}
	if serr.Code != "unknown error" || serr.Message != "instrumentation crashed" {
		t.Errorf("unexpected error fields: %+v", serr)
	}
	if serr.StatusCode != 500 {
		t.Errorf("expected status 500, got %d", serr.StatusCode)
	}
}

func TestRequestPlainError(t *testing.T) {
	client, server := newTestClientWithSession(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})
	defer server.Close()

	_, err := client.Source(context.Background())
	if err == nil || !strings.Contains(err.Error(), "server error 502") {
		t.Errorf("expected server error 502, got %v", err)
	}
}

func TestRequestContextCancelled(t *testing.T) {
	client, server := newTestClientWithSession(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"value": ""})
	})
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Source(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRequestConnectionError(t *testing.T) {
	client := newErrorTestClient()
	if _, err := client.Status(context.Background()); err == nil {
		t.Error("expected connection error")
	}
}

func TestDecodeBase64(t *testing.T) {
	data, err := decodeBase64("iVBO\nRw==")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) != 4 || data[0] != 0x89 {
		t.Errorf("unexpected data %v", data)
	}

	if _, err := decodeBase64("!!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
}

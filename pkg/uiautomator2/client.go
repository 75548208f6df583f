package uiautomator2

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/wxauto/wxprobe/pkg/logger"
)

// DefaultTimeout bounds a single HTTP round trip.
const DefaultTimeout = 30 * time.Second

// Client communicates with UIAutomator2 server.
type Client struct {
	http      *http.Client
	baseURL   string
	sessionID string
	logger    *log.Logger
}

// NewClient creates a client for the server at baseURL, for example
// http://192.168.1.3:6790.
func NewClient(baseURL string) *Client {
	return &Client{
		http: &http.Client{
			Timeout: DefaultTimeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  createLogger(),
	}
}

// createLogger writes request timing into the application log file.
func createLogger() *log.Logger {
	return log.New(logger.GetWriter(), "uia2 ", log.Ltime|log.Lmicroseconds)
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SessionID returns the current session ID.
func (c *Client) SessionID() string {
	return c.sessionID
}

// request makes an HTTP request to UIAutomator2.
func (c *Client) request(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	start := time.Now()

	var reqBody io.Reader
	var bodyStr string
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
		bodyStr = string(data)
		if len(bodyStr) > 100 {
			bodyStr = bodyStr[:100] + "..."
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.logger.Printf("%s %s [%v] ERROR: %v", method, path, elapsed, err)
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	status := "OK"
	if resp.StatusCode >= 400 {
		status = fmt.Sprintf("ERR:%d", resp.StatusCode)
	}
	c.logger.Printf("%s %s [%v] %s body=%s", method, path, elapsed, status, bodyStr)

	if resp.StatusCode >= 400 {
		return nil, parseError(resp.StatusCode, respBody)
	}

	return respBody, nil
}

// ServerError is a W3C error envelope returned by the server.
type ServerError struct {
	StatusCode int
	Code       string // e.g. "no such element"
	Message    string
}

func (e *ServerError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsNoSuchElement reports whether the server said the element does not exist.
func (e *ServerError) IsNoSuchElement() bool {
	return e.Code == "no such element" || (e.StatusCode == http.StatusNotFound && e.Code == "")
}

func parseError(statusCode int, body []byte) error {
	value := gjson.GetBytes(body, "value")
	if value.IsObject() {
		return &ServerError{
			StatusCode: statusCode,
			Code:       value.Get("error").String(),
			Message:    value.Get("message").String(),
		}
	}
	return &ServerError{StatusCode: statusCode, Message: string(body)}
}

// sessionPath returns path with session ID prefix.
func (c *Client) sessionPath(path string) string {
	return fmt.Sprintf("/session/%s%s", c.sessionID, path)
}

// value returns the "value" member of a response.
func value(data []byte) gjson.Result {
	return gjson.GetBytes(data, "value")
}

// Status checks if the server is ready.
func (c *Client) Status(ctx context.Context) (bool, error) {
	data, err := c.request(ctx, http.MethodGet, "/status", nil)
	if err != nil {
		return false, err
	}
	if !gjson.ValidBytes(data) {
		return false, fmt.Errorf("parse status response: invalid json")
	}
	return value(data).Get("ready").Bool(), nil
}

// CreateSession starts a new automation session.
func (c *Client) CreateSession(ctx context.Context, caps Capabilities) error {
	data, err := c.request(ctx, http.MethodPost, "/session", SessionRequest{Capabilities: caps})
	if err != nil {
		return err
	}

	// Older servers return sessionId at the top level, newer ones inside value.
	id := gjson.GetBytes(data, "sessionId").String()
	if id == "" {
		id = value(data).Get("sessionId").String()
	}
	if id == "" {
		return fmt.Errorf("no session ID in response")
	}

	c.sessionID = id
	return nil
}

// DeleteSession ends the current session.
func (c *Client) DeleteSession(ctx context.Context) error {
	if c.sessionID == "" {
		return nil
	}

	_, err := c.request(ctx, http.MethodDelete, c.sessionPath(""), nil)
	c.sessionID = ""
	return err
}

// Close ends the session and cleans up.
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.DeleteSession(ctx)
}

// SetImplicitWait sets the implicit wait timeout for element finding.
// Zero makes lookups return immediately, which the bounded polls rely on.
func (c *Client) SetImplicitWait(ctx context.Context, timeout time.Duration) error {
	if c.sessionID == "" {
		return fmt.Errorf("no active session")
	}

	_, err := c.request(ctx, http.MethodPost, c.sessionPath("/timeouts"), map[string]interface{}{
		"implicit": timeout.Milliseconds(),
	})
	return err
}

func decodeBase64(s string) ([]byte, error) {
	// Some server builds wrap the payload at 76 columns.
	s = strings.NewReplacer("\n", "", "\r", "").Replace(s)
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return data, nil
}

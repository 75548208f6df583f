// Package mcpserver exposes the controller over the Model Context Protocol
// on stdio, so an MCP client can drive the app one tool call at a time.
package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wxauto/wxprobe/pkg/config"
	"github.com/wxauto/wxprobe/pkg/controller"
	"github.com/wxauto/wxprobe/pkg/core"
	"github.com/wxauto/wxprobe/pkg/logger"
)

// Server serves one connected controller. Tool calls are serialized since
// the device session is exclusive.
type Server struct {
	ctrl   *controller.Controller
	cfg    *config.Config
	server *server.MCPServer

	mu sync.Mutex
}

// New creates the server and registers its tools.
func New(ctrl *controller.Controller, version string) *Server {
	s := &Server{
		ctrl: ctrl,
		cfg:  ctrl.Config(),
		server: server.NewMCPServer(
			"wxprobe",
			version,
			server.WithToolCapabilities(true),
			server.WithLogging(),
		),
	}
	s.registerTools()
	return s
}

// Serve answers requests from in on out until ctx is cancelled or in is
// closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.server)
	stdio.SetErrorLogger(log.New(logger.GetWriter(), "mcp: ", 0))
	logger.Info("MCP server listening on stdio")
	return stdio.Listen(ctx, in, out)
}

type handler func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)

// exclusive runs h with the device locked.
func (s *Server) exclusive(h handler) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		return h(ctx, req)
	}
}

func (s *Server) registerTools() {
	s.server.AddTool(
		mcp.NewTool("start_app",
			mcp.WithDescription("Wake and unlock the device, launch the app and verify it is in the foreground"),
		),
		s.exclusive(s.handleStartApp),
	)

	s.server.AddTool(
		mcp.NewTool("check_login",
			mcp.WithDescription("Wait until the app shows its logged-in chat list"),
			mcp.WithNumber("timeout_ms",
				mcp.Description("How long to wait for login (default: timing.loginTimeout)"),
			),
		),
		s.exclusive(s.handleCheckLogin),
	)

	s.server.AddTool(
		mcp.NewTool("go_home",
			mcp.WithDescription("Return to the chat list tab"),
		),
		s.exclusive(s.handleGoHome),
	)

	s.server.AddTool(
		mcp.NewTool("open_search",
			mcp.WithDescription("Tap the search button. Reports whether the search input appeared"),
		),
		s.exclusive(s.handleOpenSearch),
	)

	s.server.AddTool(
		mcp.NewTool("search_friend",
			mcp.WithDescription("Search for a contact by exact name and open the result"),
			mcp.WithString("name",
				mcp.Required(),
				mcp.Description("Contact name as displayed"),
			),
		),
		s.exclusive(s.handleSearchFriend),
	)

	s.server.AddTool(
		mcp.NewTool("current_app",
			mcp.WithDescription("Report the foreground package and activity"),
		),
		s.exclusive(s.handleCurrentApp),
	)

	s.server.AddTool(
		mcp.NewTool("click",
			mcp.WithDescription("Tap the screen at a coordinate"),
			mcp.WithNumber("x", mcp.Required(), mcp.Description("X coordinate in pixels")),
			mcp.WithNumber("y", mcp.Required(), mcp.Description("Y coordinate in pixels")),
		),
		s.exclusive(s.handleClick),
	)

	s.server.AddTool(
		mcp.NewTool("back",
			mcp.WithDescription("Press the system back button"),
		),
		s.exclusive(s.handleBack),
	)

	s.server.AddTool(
		mcp.NewTool("screenshot",
			mcp.WithDescription("Capture the screen as a PNG image"),
			mcp.WithString("save_path",
				mcp.Description("Also save the PNG, relative to the data directory (optional)"),
			),
		),
		s.exclusive(s.handleScreenshot),
	)

	s.server.AddTool(
		mcp.NewTool("dump_hierarchy",
			mcp.WithDescription("Return the UI hierarchy XML of the current screen"),
			mcp.WithString("save_path",
				mcp.Description("Also save the XML, relative to the data directory (optional)"),
			),
		),
		s.exclusive(s.handleDumpHierarchy),
	)
}

// failure reports a device-side error to the client as a tool error.
func failure(tool string, err error) *mcp.CallToolResult {
	logger.Error("%s: %v", tool, err)
	return mcp.NewToolResultError(fmt.Sprintf("%s failed [%s]: %v", tool, core.CategoryOf(err), err))
}

func text(format string, args ...interface{}) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(fmt.Sprintf(format, args...))},
	}
}

func number(args map[string]interface{}, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func (s *Server) save(name string, data []byte) (string, error) {
	path := name
	if !filepath.IsAbs(path) {
		path = s.cfg.DataPath(name)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //#nosec G306 -- client-requested output
		return "", err
	}
	return path, nil
}

func (s *Server) handleStartApp(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.ctrl.StartApp(ctx); err != nil {
		return failure("start_app", err), nil
	}
	return text("%s is in the foreground", s.cfg.App.Package), nil
}

func (s *Server) handleCheckLogin(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	timeout := s.cfg.Timing.LoginTimeout
	if ms, ok := number(req.GetArguments(), "timeout_ms"); ok {
		if ms < 0 {
			return nil, fmt.Errorf("timeout_ms must not be negative")
		}
		timeout = time.Duration(ms) * time.Millisecond
	}
	if err := s.ctrl.CheckLogin(ctx, timeout); err != nil {
		return failure("check_login", err), nil
	}
	return text("logged in"), nil
}

func (s *Server) handleGoHome(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.ctrl.GoToHome(ctx); err != nil {
		return failure("go_home", err), nil
	}
	return text("on the %s tab", s.cfg.Selectors.HomeLabel), nil
}

func (s *Server) handleOpenSearch(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	verified, err := s.ctrl.OpenSearch(ctx)
	if err != nil {
		return failure("open_search", err), nil
	}
	if !verified {
		return text("search tapped, but no search input appeared"), nil
	}
	return text("search opened"), nil
}

func (s *Server) handleSearchFriend(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, ok := req.GetArguments()["name"].(string)
	if !ok || name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if err := s.ctrl.SearchFriend(ctx, name); err != nil {
		return failure("search_friend", err), nil
	}
	return text("opened %s", name), nil
}

func (s *Server) handleCurrentApp(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	app, err := s.ctrl.Automation().CurrentApp(ctx)
	if err != nil {
		return failure("current_app", err), nil
	}
	data, err := json.Marshal(app)
	if err != nil {
		return nil, err
	}
	return text("%s", data), nil
}

func (s *Server) handleClick(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	x, okX := number(args, "x")
	y, okY := number(args, "y")
	if !okX || !okY {
		return nil, fmt.Errorf("x and y are required")
	}
	if err := s.ctrl.Automation().Click(ctx, int(x), int(y)); err != nil {
		return failure("click", err), nil
	}
	return text("clicked (%d, %d)", int(x), int(y)), nil
}

func (s *Server) handleBack(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.ctrl.Automation().Back(ctx); err != nil {
		return failure("back", err), nil
	}
	return text("pressed back"), nil
}

func (s *Server) handleScreenshot(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := s.ctrl.Automation().Screenshot(ctx)
	if err != nil {
		return failure("screenshot", err), nil
	}

	info := "screenshot captured"
	if p, ok := req.GetArguments()["save_path"].(string); ok && p != "" {
		path, err := s.save(p, data)
		if err != nil {
			return nil, fmt.Errorf("save screenshot: %w", err)
		}
		info += "\nsaved to: " + path
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewImageContent(base64.StdEncoding.EncodeToString(data), "image/png"),
			mcp.NewTextContent(info),
		},
	}, nil
}

func (s *Server) handleDumpHierarchy(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	xml, err := s.ctrl.Automation().DumpHierarchy(ctx)
	if err != nil {
		return failure("dump_hierarchy", err), nil
	}
	if p, ok := req.GetArguments()["save_path"].(string); ok && p != "" {
		if _, err := s.save(p, []byte(xml)); err != nil {
			return nil, fmt.Errorf("save hierarchy: %w", err)
		}
	}
	return text("%s", xml), nil
}

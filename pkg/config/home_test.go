package config

import (
	"path/filepath"
	"testing"
)

func TestGetHome_EnvVar(t *testing.T) {
	ResetHome()
	t.Setenv("WXPROBE_HOME", "/custom/path")

	got := GetHome()
	if got != "/custom/path" {
		t.Errorf("GetHome() = %q, want %q", got, "/custom/path")
	}
}

func TestGetHome_Fallback(t *testing.T) {
	ResetHome()
	t.Setenv("WXPROBE_HOME", "")

	if got := GetHome(); got == "" {
		t.Error("GetHome() returned empty string")
	}
}

func TestGetHome_Cached(t *testing.T) {
	ResetHome()
	t.Setenv("WXPROBE_HOME", "/first")

	first := GetHome()

	// Changing the env must not affect the cached value
	t.Setenv("WXPROBE_HOME", "/second")
	second := GetHome()

	if first != second {
		t.Errorf("GetHome() not cached: first=%q, second=%q", first, second)
	}
}

func TestResolvePath(t *testing.T) {
	ResetHome()
	t.Setenv("WXPROBE_HOME", "/test/home")
	defer ResetHome()

	tests := []struct {
		in   string
		want string
	}{
		{"data", filepath.Join("/test/home", "data")},
		{filepath.Join("logs", "app.log"), filepath.Join("/test/home", "logs", "app.log")},
		{"/abs/data", "/abs/data"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := ResolvePath(tt.in); got != tt.want {
			t.Errorf("ResolvePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAnchor(t *testing.T) {
	ResetHome()
	t.Setenv("WXPROBE_HOME", "/srv/wx")
	defer ResetHome()

	cfg := Default()
	cfg.Anchor()

	if cfg.Paths.DataDir != filepath.Join("/srv/wx", "data") {
		t.Errorf("DataDir = %q", cfg.Paths.DataDir)
	}
	if cfg.Paths.LogFile != filepath.Join("/srv/wx", "logs", "app.log") {
		t.Errorf("LogFile = %q", cfg.Paths.LogFile)
	}
}

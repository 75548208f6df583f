package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConsoleLevels(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(Options{Console: &buf}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer Close()

	Info("connecting to %s", "192.168.1.3:41239")
	Debug("hidden detail")

	out := buf.String()
	if !strings.Contains(out, "connecting to 192.168.1.3:41239") {
		t.Errorf("expected info line, got %q", out)
	}
	if strings.Contains(out, "hidden detail") {
		t.Errorf("debug line should not reach console without verbose, got %q", out)
	}
}

func TestVerboseConsole(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(Options{Console: &buf, Verbose: true}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer Close()

	Debug("poll %d", 3)
	if !strings.Contains(buf.String(), "poll 3") {
		t.Errorf("expected debug line with verbose, got %q", buf.String())
	}
}

func TestFileReceivesDebug(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "app.log")

	var buf bytes.Buffer
	if err := Init(Options{FilePath: path, MaxSizeMB: 1, MaxAgeDays: 1, Console: &buf}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	Debug("file only")
	Success("done")
	Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "file only") {
		t.Errorf("expected debug line in file, got %q", string(data))
	}
	if !strings.Contains(string(data), `"ok":true`) {
		t.Errorf("expected success marker in file, got %q", string(data))
	}
}

func TestGetWriterWithoutFile(t *testing.T) {
	Close()
	if w := GetWriter(); w == nil {
		t.Fatal("expected non-nil writer")
	}
}

func TestLoggingBeforeInit(t *testing.T) {
	Close()
	// must not panic
	Info("nothing")
	Error("still nothing")
}

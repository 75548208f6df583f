package config

import (
	"os"
	"path/filepath"
	"sync"
)

const envHome = "WXPROBE_HOME"

var (
	homeOnce sync.Once
	homeDir  string
)

// GetHome returns the wxprobe home directory. Relative data and log paths
// are resolved against it.
//
// Resolution order:
//  1. $WXPROBE_HOME environment variable
//  2. Parent of the binary's directory (if binary is in <home>/bin/)
//  3. Current working directory (development fallback)
func GetHome() string {
	homeOnce.Do(func() {
		homeDir = resolveHome()
	})
	return homeDir
}

// ResolvePath anchors a relative path at the home directory.
func ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(GetHome(), p)
}

// Anchor rewrites the configured data and log paths relative to the home
// directory.
func (c *Config) Anchor() {
	c.Paths.DataDir = ResolvePath(c.Paths.DataDir)
	c.Paths.LogFile = ResolvePath(c.Paths.LogFile)
}

func resolveHome() string {
	if env := os.Getenv(envHome); env != "" {
		return env
	}

	// Binary-relative: <home>/bin/wxprobe
	if execPath, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(execPath); err == nil {
			execPath = resolved
		}
		binDir := filepath.Dir(execPath)
		if filepath.Base(binDir) == "bin" {
			return filepath.Dir(binDir)
		}
	}

	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}

	return "."
}

// ResetHome resets the cached home directory (for testing).
func ResetHome() {
	homeOnce = sync.Once{}
	homeDir = ""
}

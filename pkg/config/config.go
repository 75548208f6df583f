// Package config handles configuration for wxprobe.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wxauto/wxprobe/pkg/core"
)

// Config represents the workspace configuration (config.yaml).
type Config struct {
	Device    DeviceConfig   `yaml:"device"`
	App       AppConfig      `yaml:"app"`
	Selectors SelectorConfig `yaml:"selectors"`
	Timing    TimingConfig   `yaml:"timing"`
	Paths     PathsConfig    `yaml:"paths"`
	Gestures  GestureConfig  `yaml:"gestures"`
	Probe     ProbeConfig    `yaml:"probe"`
}

// DeviceConfig locates the device and its automation server.
type DeviceConfig struct {
	Address    string `yaml:"address"`    // ADB address, host:port for wireless debugging
	ServerURL  string `yaml:"serverUrl"`  // UIAutomator2 server; derived from Address when empty
	ServerPort int    `yaml:"serverPort"` // UIAutomator2 port on the device
	ADBPort    int    `yaml:"adbPort"`    // local adb server port
}

// AppConfig identifies the target application.
type AppConfig struct {
	Package  string `yaml:"package"`
	Launcher string `yaml:"launcher"` // launcher activity, informational
}

// SelectorConfig holds the UI probes used by the controller.
type SelectorConfig struct {
	ListViewClass     string `yaml:"listViewClass"`     // chat list present when logged in
	LoggedInID        string `yaml:"loggedInId"`        // resource id only present when logged in
	TextClass         string `yaml:"textClass"`         // class counted for the text heuristic
	TextThreshold     int    `yaml:"textThreshold"`     // more than this many texts means logged in
	HomeLabel         string `yaml:"homeLabel"`         // bottom navigation label of the chat list
	SearchDescription string `yaml:"searchDescription"` // content-desc of the search button
	SearchID          string `yaml:"searchId"`          // resource id of the search button
	SearchPoint       Point  `yaml:"searchPoint"`       // coordinate fallback for the search button
	InputClass        string `yaml:"inputClass"`        // search input field class
}

// Point is a screen coordinate.
type Point struct {
	X int `yaml:"x" json:"x"`
	Y int `yaml:"y" json:"y"`
}

// TimingConfig replaces the fixed sleeps with bounded waits.
type TimingConfig struct {
	PollInterval  time.Duration `yaml:"pollInterval"`
	LoginTimeout  time.Duration `yaml:"loginTimeout"`
	LaunchTimeout time.Duration `yaml:"launchTimeout"` // splash screen budget
	SettleTimeout time.Duration `yaml:"settleTimeout"` // budget for a UI change after an action
	ServerTimeout time.Duration `yaml:"serverTimeout"` // UIAutomator2 startup
}

// PathsConfig holds output locations.
type PathsConfig struct {
	DataDir string `yaml:"dataDir"`
	LogFile string `yaml:"logFile"`
}

// GestureConfig holds the unlock swipe.
type GestureConfig struct {
	UnlockFrom     Point         `yaml:"unlockFrom"`
	UnlockTo       Point         `yaml:"unlockTo"`
	UnlockDuration time.Duration `yaml:"unlockDuration"`
}

// ProbeConfig tunes the diagnostic probes.
type ProbeConfig struct {
	NavTabs       []string `yaml:"navTabs"`
	KnownLabels   []string `yaml:"knownLabels"`
	BottomBand    int      `yaml:"bottomBand"` // pixels from the bottom edge
	WidgetClasses []string `yaml:"widgetClasses"`
}

// Default returns the configuration matching the stock app layout.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Address:    "192.168.1.3:41239",
			ServerPort: 6790,
			ADBPort:    5037,
		},
		App: AppConfig{
			Package:  "com.tencent.mm",
			Launcher: ".ui.LauncherUI",
		},
		Selectors: SelectorConfig{
			ListViewClass:     "androidx.recyclerview.widget.RecyclerView",
			LoggedInID:        "com.tencent.mm:id/bkk",
			TextClass:         "android.widget.TextView",
			TextThreshold:     5,
			HomeLabel:         "微信",
			SearchDescription: "搜索",
			SearchID:          "com.tencent.mm:id/jha",
			SearchPoint:       Point{X: 591, Y: 119},
			InputClass:        "android.widget.EditText",
		},
		Timing: TimingConfig{
			PollInterval:  500 * time.Millisecond,
			LoginTimeout:  60 * time.Second,
			LaunchTimeout: 5 * time.Second,
			SettleTimeout: 3 * time.Second,
			ServerTimeout: 30 * time.Second,
		},
		Paths: PathsConfig{
			DataDir: "data",
			LogFile: filepath.Join("logs", "app.log"),
		},
		Gestures: GestureConfig{
			UnlockFrom:     Point{X: 360, Y: 1400},
			UnlockTo:       Point{X: 360, Y: 400},
			UnlockDuration: 100 * time.Millisecond,
		},
		Probe: ProbeConfig{
			NavTabs:     []string{"微信", "通讯录", "发现", "我"},
			KnownLabels: []string{"微信", "通讯录", "发现", "我", "聊天", "消息", "WeChat", "Chats", "Contacts", "Discover", "Me"},
			BottomBand:  100,
			WidgetClasses: []string{
				"android.widget.TextView",
				"android.widget.Button",
				"android.widget.ImageView",
				"android.widget.LinearLayout",
				"android.widget.FrameLayout",
			},
		},
	}
}

// Load loads configuration from a file. Fields absent from the file keep
// their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromDir looks for config.yaml or config.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	// Try config.yaml first
	configPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// Try config.yml
	configPath = filepath.Join(dir, "config.yml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// No config file found, return defaults
	return Default(), nil
}

// Validate checks the fields the controller cannot work without.
func (c *Config) Validate() error {
	var missing []string
	if c.Device.Address == "" && c.Device.ServerURL == "" {
		missing = append(missing, "device.address")
	}
	if c.App.Package == "" {
		missing = append(missing, "app.package")
	}
	if c.Selectors.HomeLabel == "" {
		missing = append(missing, "selectors.homeLabel")
	}
	if c.Selectors.ListViewClass == "" {
		missing = append(missing, "selectors.listViewClass")
	}
	if c.Timing.PollInterval <= 0 {
		missing = append(missing, "timing.pollInterval")
	}
	if len(missing) > 0 {
		return core.ErrInvalidConfig.WithMessage("missing required config: " + strings.Join(missing, ", "))
	}
	return nil
}

// DataPath joins name onto the data directory.
func (c *Config) DataPath(name string) string {
	return filepath.Join(c.Paths.DataDir, name)
}

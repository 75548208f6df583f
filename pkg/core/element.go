package core

// ElementInfo describes one UI element as reported by the automation
// service. Values are transient per query.
type ElementInfo struct {
	Text        string `json:"text,omitempty" yaml:"text,omitempty"`
	ResourceID  string `json:"resourceId,omitempty" yaml:"resourceId,omitempty"`
	ClassName   string `json:"className,omitempty" yaml:"className,omitempty"`
	Description string `json:"contentDescription,omitempty" yaml:"contentDescription,omitempty"`
	Package     string `json:"package,omitempty" yaml:"package,omitempty"`
	Selected    bool   `json:"selected" yaml:"selected"`
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	Focused     bool   `json:"focused" yaml:"focused"`
	Clickable   bool   `json:"clickable" yaml:"clickable"`
	Bounds      Bounds `json:"bounds" yaml:"bounds"`
}

// Bounds represents element position and size
type Bounds struct {
	X      int `json:"x" yaml:"x"`
	Y      int `json:"y" yaml:"y"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Center returns the center point of the bounds
func (b Bounds) Center() (int, int) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Contains checks if a point is within the bounds
func (b Bounds) Contains(x, y int) bool {
	return x >= b.X && x < b.X+b.Width && y >= b.Y && y < b.Y+b.Height
}

// Bottom returns the y coordinate of the bottom edge.
func (b Bounds) Bottom() int {
	return b.Y + b.Height
}

// DeviceInfo contains device and display details.
type DeviceInfo struct {
	Serial        string `json:"serial,omitempty" yaml:"serial,omitempty"`
	ProductName   string `json:"productName" yaml:"productName"`
	Brand         string `json:"brand" yaml:"brand"`
	Model         string `json:"model" yaml:"model"`
	Manufacturer  string `json:"manufacturer,omitempty" yaml:"manufacturer,omitempty"`
	Version       string `json:"version" yaml:"version"` // Android release
	SDK           int    `json:"sdk" yaml:"sdk"`
	DisplayWidth  int    `json:"displayWidth" yaml:"displayWidth"`
	DisplayHeight int    `json:"displayHeight" yaml:"displayHeight"`
}

// AppInfo identifies the foreground application.
type AppInfo struct {
	Package  string `json:"package" yaml:"package"`
	Activity string `json:"activity,omitempty" yaml:"activity,omitempty"`
}

package automator

import (
	"strconv"
	"strings"

	"github.com/wxauto/wxprobe/pkg/hierarchy"
)

// Selector locates elements. Empty fields are ignored; every set field must
// match.
type Selector struct {
	Text        string `json:"text,omitempty" yaml:"text,omitempty"`
	ClassName   string `json:"className,omitempty" yaml:"className,omitempty"`
	ResourceID  string `json:"resourceId,omitempty" yaml:"resourceId,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Clickable   bool   `json:"clickable,omitempty" yaml:"clickable,omitempty"`
}

// ByText selects by exact text.
func ByText(text string) Selector { return Selector{Text: text} }

// ByClass selects by class name.
func ByClass(class string) Selector { return Selector{ClassName: class} }

// ByID selects by resource id.
func ByID(id string) Selector { return Selector{ResourceID: id} }

// ByDescription selects by content description.
func ByDescription(desc string) Selector { return Selector{Description: desc} }

// IsZero reports whether no field is set.
func (s Selector) IsZero() bool {
	return s == Selector{}
}

// UiSelector renders the selector as a UiSelector expression for the
// "-android uiautomator" strategy.
func (s Selector) UiSelector() string {
	var b strings.Builder
	b.WriteString("new UiSelector()")
	if s.Text != "" {
		b.WriteString(".text(" + quote(s.Text) + ")")
	}
	if s.ClassName != "" {
		b.WriteString(".className(" + quote(s.ClassName) + ")")
	}
	if s.ResourceID != "" {
		b.WriteString(".resourceId(" + quote(s.ResourceID) + ")")
	}
	if s.Description != "" {
		b.WriteString(".description(" + quote(s.Description) + ")")
	}
	if s.Clickable {
		b.WriteString(".clickable(true)")
	}
	return b.String()
}

// quote produces a Java string literal.
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// Matches reports whether a parsed hierarchy node satisfies the selector.
func (s Selector) Matches(n *hierarchy.Node) bool {
	switch {
	case s.Text != "" && n.Text != s.Text:
		return false
	case s.ClassName != "" && n.ClassName != s.ClassName:
		return false
	case s.ResourceID != "" && n.ResourceID != s.ResourceID:
		return false
	case s.Description != "" && n.ContentDesc != s.Description:
		return false
	case s.Clickable && !n.Clickable:
		return false
	}
	return true
}

// String is used in log lines and error messages.
func (s Selector) String() string {
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+strconv.Quote(v))
		}
	}
	add("text", s.Text)
	add("class", s.ClassName)
	add("id", s.ResourceID)
	add("desc", s.Description)
	if s.Clickable {
		parts = append(parts, "clickable")
	}
	if len(parts) == 0 {
		return "{}"
	}
	return "{" + strings.Join(parts, " ") + "}"
}

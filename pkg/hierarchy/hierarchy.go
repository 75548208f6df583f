// Package hierarchy parses UIAutomator hierarchy dumps and answers the
// questions the probes ask of them: which texts are on screen, how many
// widgets of a class exist, which clickable nodes sit in a screen band.
package hierarchy

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/wxauto/wxprobe/pkg/core"
)

// Node is one element of a hierarchy dump.
type Node struct {
	Text        string
	ResourceID  string
	ContentDesc string
	ClassName   string
	Package     string
	Bounds      core.Bounds
	Enabled     bool
	Selected    bool
	Focused     bool
	Clickable   bool
	Scrollable  bool
	Children    []*Node
	Depth       int
}

// Parse reads a hierarchy dump and returns its nodes flattened in document
// order. Both the UIAutomator <node class="..."> form and the form that uses
// the class name as tag are accepted.
func Parse(data string) ([]*Node, error) {
	dec := xml.NewDecoder(strings.NewReader(data))

	var (
		nodes []*Node
		stack []*Node
		root  bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse hierarchy: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "hierarchy" {
				root = true
				continue
			}
			n := newNode(t)
			n.Depth = len(stack)
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			}
			nodes = append(nodes, n)
			stack = append(stack, n)
		case xml.EndElement:
			if t.Name.Local != "hierarchy" && len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if !root {
		return nil, fmt.Errorf("invalid hierarchy: no hierarchy element found")
	}
	return nodes, nil
}

func newNode(t xml.StartElement) *Node {
	n := &Node{ClassName: t.Name.Local, Enabled: true}
	for _, attr := range t.Attr {
		switch attr.Name.Local {
		case "text":
			n.Text = attr.Value
		case "resource-id":
			n.ResourceID = attr.Value
		case "content-desc":
			n.ContentDesc = attr.Value
		case "class":
			n.ClassName = attr.Value
		case "package":
			n.Package = attr.Value
		case "bounds":
			n.Bounds, _ = ParseBounds(attr.Value)
		case "enabled":
			n.Enabled = attr.Value == "true"
		case "selected":
			n.Selected = attr.Value == "true"
		case "focused":
			n.Focused = attr.Value == "true"
		case "clickable":
			n.Clickable = attr.Value == "true"
		case "scrollable":
			n.Scrollable = attr.Value == "true"
		}
	}
	return n
}

// ParseBounds parses the "[x1,y1][x2,y2]" form.
func ParseBounds(s string) (core.Bounds, bool) {
	var x1, y1, x2, y2 int
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '[' || r == ']' || r == ','
	})
	if len(parts) != 4 {
		return core.Bounds{}, false
	}
	for i, dst := range []*int{&x1, &y1, &x2, &y2} {
		v, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return core.Bounds{}, false
		}
		*dst = v
	}
	return core.Bounds{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}, true
}

// Info converts the node to the element descriptor used everywhere else.
func (n *Node) Info() core.ElementInfo {
	return core.ElementInfo{
		Text:        n.Text,
		ResourceID:  n.ResourceID,
		ClassName:   n.ClassName,
		Description: n.ContentDesc,
		Package:     n.Package,
		Selected:    n.Selected,
		Enabled:     n.Enabled,
		Focused:     n.Focused,
		Clickable:   n.Clickable,
		Bounds:      n.Bounds,
	}
}

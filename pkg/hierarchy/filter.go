package hierarchy

import "strings"

// Filter returns the nodes for which keep returns true, in order.
func Filter(nodes []*Node, keep func(*Node) bool) []*Node {
	var result []*Node
	for _, n := range nodes {
		if keep(n) {
			result = append(result, n)
		}
	}
	return result
}

// OfClass returns the nodes with the given class name.
func OfClass(nodes []*Node, class string) []*Node {
	return Filter(nodes, func(n *Node) bool { return n.ClassName == class })
}

// WithText returns the nodes whose text equals text exactly.
func WithText(nodes []*Node, text string) []*Node {
	return Filter(nodes, func(n *Node) bool { return n.Text == text })
}

// Texts returns the non-blank texts in document order, duplicates included.
func Texts(nodes []*Node) []string {
	var texts []string
	for _, n := range nodes {
		if strings.TrimSpace(n.Text) != "" {
			texts = append(texts, n.Text)
		}
	}
	return texts
}

// UniqueTexts returns the non-blank texts in order of first appearance.
func UniqueTexts(nodes []*Node) []string {
	seen := make(map[string]bool)
	var texts []string
	for _, t := range Texts(nodes) {
		t = strings.TrimSpace(t)
		if seen[t] {
			continue
		}
		seen[t] = true
		texts = append(texts, t)
	}
	return texts
}

// CountByClass counts nodes of each requested class. Classes with no nodes
// are present with a zero count.
func CountByClass(nodes []*Node, classes []string) map[string]int {
	counts := make(map[string]int, len(classes))
	for _, c := range classes {
		counts[c] = 0
	}
	for _, n := range nodes {
		if _, ok := counts[n.ClassName]; ok {
			counts[n.ClassName]++
		}
	}
	return counts
}

// ClickableInBottomBand returns clickable nodes whose bottom edge lies below
// screenHeight-band.
func ClickableInBottomBand(nodes []*Node, screenHeight, band int) []*Node {
	limit := screenHeight - band
	return Filter(nodes, func(n *Node) bool {
		return n.Clickable && n.Bounds.Bottom() > limit
	})
}

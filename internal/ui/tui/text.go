package tui

import "strings"

const ellipsis = "..."

// truncateText cuts text to width runes, marking the cut with an ellipsis at
// the end. Messages keep their start, which names the error.
func truncateText(text string, width int) string {
	r := []rune(text)
	if width <= 0 {
		return ""
	}
	if len(r) <= width {
		return text
	}
	if width <= len(ellipsis) {
		return string(r[:width])
	}
	return string(r[:width-len(ellipsis)]) + ellipsis
}

// truncatePath cuts a relative path to width runes from the front, so the
// file name stays visible: "...photos/2024/img.jpg".
func truncatePath(p string, width int) string {
	r := []rune(p)
	if width <= 0 {
		return ""
	}
	if len(r) <= width {
		return p
	}
	if width <= len(ellipsis) {
		return string(r[len(r)-width:])
	}
	tail := r[len(r)-(width-len(ellipsis)):]
	// Start the tail at a segment boundary when one is close.
	if i := strings.IndexRune(string(tail), '/'); i > 0 && i < len(tail)/2 {
		tail = []rune(string(tail)[i:])
	}
	return ellipsis + string(tail)
}

// formatDetail writes label followed by a path, breaking the path over
// several lines when it is wider than width. Continuation lines are indented
// to the end of the label.
func formatDetail(label, text string, width int) string {
	avail := width - len([]rune(label))
	if avail <= 0 {
		return label + text
	}

	lines := wrapPath(text, avail)
	if len(lines) == 0 {
		return label
	}
	indent := strings.Repeat(" ", len([]rune(label)))
	return label + strings.Join(lines, "\n"+indent)
}

// wrapPath splits p into chunks of at most width runes, breaking after a
// separator when the chunk holds one.
func wrapPath(p string, width int) []string {
	if width <= 0 {
		return []string{p}
	}

	var lines []string
	rest := []rune(p)
	for len(rest) > width {
		cut := width
		for i := width - 1; i > 0; i-- {
			if rest[i] == '/' || rest[i] == '\\' {
				cut = i + 1
				break
			}
		}
		lines = append(lines, string(rest[:cut]))
		rest = rest[cut:]
	}
	if len(rest) > 0 {
		lines = append(lines, string(rest))
	}
	return lines
}

package tui

import "strings"

type pageLayout struct {
	windowWidth     int
	windowHeight    int
	viewportWidth   int
	viewportHeight  int
	knowledgeHeight int
}

func newPageLayout() pageLayout {
	return pageLayout{
		viewportWidth:   80,
		viewportHeight:  10,
		knowledgeHeight: 4,
	}
}

// Update splits the rows left over after the hero, the ask pane and the status
// bar between the response viewport and the knowledge textarea.
func (l *pageLayout) Update(width, height int) {
	l.windowWidth = width
	l.windowHeight = height
	innerWidth := width - viewportHorizontalPadding
	if innerWidth < minViewportWidth {
		innerWidth = minViewportWidth
	}
	l.viewportWidth = innerWidth
	const chrome = 16
	usable := height - chrome
	if usable < 8 {
		usable = 8
	}
	l.knowledgeHeight = usable / 3
	if l.knowledgeHeight < 3 {
		l.knowledgeHeight = 3
	}
	if l.knowledgeHeight > 8 {
		l.knowledgeHeight = 8
	}
	l.viewportHeight = usable - l.knowledgeHeight
	if l.viewportHeight < 4 {
		l.viewportHeight = 4
	}
}

func indentMultiline(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

func (m *model) wrapWidth(padding int) int {
	width := m.viewport.Width
	if width <= 0 {
		width = 80
	}
	if padding < 0 {
		padding = 0
	}
	available := width - padding
	if available < 20 {
		available = 20
	}
	return available
}

func previewText(value string, limit int) string {
	value = strings.TrimSpace(value)
	if limit <= 0 {
		return value
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return strings.TrimSpace(string(runes[:limit])) + "…"
}

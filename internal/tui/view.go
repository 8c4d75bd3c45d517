package tui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/csheth/ragdesk/internal/gateway"
	"github.com/csheth/ragdesk/internal/session"
)

func (m *model) View() string {
	m.refreshViewportIfDirty()
	parts := []string{
		m.heroView(),
		m.askPanel(),
		m.responsePanel(),
		m.knowledgePanel(),
	}
	if m.errorMessage != "" {
		parts = append(parts, errorStyle.Render(m.errorMessage))
	}
	if m.infoMessage != "" {
		parts = append(parts, helperStyle.Render(m.infoMessage))
	}
	if m.helpVisible {
		parts = append(parts, m.keyLegendView())
	}
	parts = append(parts, m.statusBarView())
	return joinNonEmpty(parts)
}

func (m *model) heroView() string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		renderLogo(),
		taglineStyle.Render(heroTagline),
	)
}

func (m *model) panelHeader(title string, area focusArea) string {
	if m.focus == area {
		return focusedHeaderStyle.Render("▸ " + title)
	}
	return sectionHeaderStyle.Render("  " + title)
}

func (m *model) askPanel() string {
	lines := []string{m.panelHeader("Ask", focusQuery), m.queryInput.View()}
	if m.config.Query != nil && m.config.Query.State().Status == session.QueryLoading {
		lines = append(lines, helperStyle.Render(m.spinner.View()+" Thinking…"))
	} else {
		lines = append(lines, helperStyle.Render("Enter: ask • Tab: switch pane • ?: cheatsheet"))
	}
	return strings.Join(lines, "\n")
}

func (m *model) responsePanel() string {
	return strings.Join([]string{
		sectionHeaderStyle.Render("  Response"),
		m.viewport.View(),
	}, "\n")
}

func (m *model) buildResponseContent() string {
	if m.config.Query == nil {
		return helperStyle.Render("No backend configured.")
	}
	state := m.config.Query.State()
	wrap := m.wrapWidth(4)

	var b strings.Builder
	switch state.Status {
	case session.QueryIdle:
		b.WriteString(helperStyle.Render("Answers will appear here. Type a question above and press Enter."))
	case session.QueryLoading:
		b.WriteString(helperStyle.Render(fmt.Sprintf("Retrieving an answer for %q…", previewText(state.Query, queryPreviewLimit))))
	case session.QueryFailed:
		b.WriteString(errorStyle.Render(wordwrap.String(withFailureLabel(state.Failure, state.Error), wrap)))
	case session.QuerySucceeded:
		b.WriteString(indentMultiline(wordwrap.String(state.Answer, wrap), "  "))
		if state.Elapsed > 0 {
			b.WriteString("\n")
			b.WriteString(helperStyle.Render(fmt.Sprintf("  Answered in %s", state.Elapsed.Round(10*time.Millisecond))))
		}
		writeRecords(&b, "Citations", state.Citations, wrap)
		writeRecords(&b, "Sources", state.Sources, wrap)
	}
	return b.String()
}

func writeRecords(b *strings.Builder, title string, records []json.RawMessage, wrap int) {
	items := make([]string, 0, len(records))
	for _, record := range records {
		if text := gateway.RecordText(record); text != "" {
			items = append(items, text)
		}
	}
	if len(items) == 0 {
		return
	}
	b.WriteString("\n\n")
	b.WriteString(subtitleStyle.Render(title))
	for _, item := range items {
		body := indentMultiline(wordwrap.String(item, wrap-3), "   ")
		b.WriteString("\n • ")
		b.WriteString(strings.TrimPrefix(body, "   "))
	}
}

func (m *model) knowledgePanel() string {
	lines := []string{m.panelHeader("Knowledge Base", focusKnowledge), m.knowledgeInput.View()}
	if status := m.ingestStatusLine(); status != "" {
		lines = append(lines, status)
	}
	if m.confirmingDelete {
		lines = append(lines, warningStyle.Render("Delete every vector in the knowledge base? (y/n)"))
	} else {
		lines = append(lines, helperStyle.Render("Ctrl+S: upload text • Ctrl+O: upload file at path • Ctrl+X: delete all"))
	}
	return strings.Join(lines, "\n")
}

func (m *model) ingestStatusLine() string {
	if m.config.Ingest == nil {
		return ""
	}
	state := m.config.Ingest.State()
	switch state.Status {
	case session.IngestBusy:
		return helperStyle.Render(m.spinner.View() + " " + busyLabel(state.Action))
	case session.IngestDone:
		return successStyle.Render(state.Message)
	case session.IngestFailed:
		return errorStyle.Render(withFailureLabel(state.Failure, state.Message))
	default:
		return ""
	}
}

// failureLabel names the kind of failure so an unreachable backend reads
// differently from a server that answered with an error.
func failureLabel(kind gateway.Kind) string {
	switch kind {
	case gateway.KindTransport:
		return "Backend unreachable"
	case gateway.KindServer:
		return "Server error"
	case gateway.KindSemantic:
		return "Unexpected response"
	default:
		return ""
	}
}

func withFailureLabel(kind gateway.Kind, text string) string {
	label := failureLabel(kind)
	if label == "" {
		return text
	}
	if text == "" {
		return label
	}
	return label + ": " + text
}

func busyLabel(action session.IngestAction) string {
	switch action {
	case session.ActionUpload:
		return "Uploading text…"
	case session.ActionUploadFile:
		return "Uploading file…"
	case session.ActionDeleteAll:
		return "Deleting all vectors…"
	default:
		return "Working…"
	}
}

func joinNonEmpty(parts []string) string {
	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		filtered = append(filtered, part)
	}
	return strings.Join(filtered, "\n\n")
}

func (m *model) statusBarView() string {
	stats := []string{fmt.Sprintf("Focus %s", m.focus)}
	if m.config.BackendURL != "" {
		stats = append(stats, "Backend "+m.config.BackendURL)
	}
	if m.config.Query != nil {
		stats = append(stats, "Query "+m.config.Query.State().Status.String())
	}
	if m.config.Ingest != nil {
		stats = append(stats, "KB "+m.config.Ingest.State().Status.String())
	}
	stats = append(stats, m.jobStatusBadges()...)
	return statusBarStyle.Render(strings.Join(stats, "  •  "))
}

// jobStatusBadges lists running jobs in start order, falling back to the most
// recently finished one.
func (m *model) jobStatusBadges() []string {
	if len(m.activeJobs) == 0 {
		if m.lastJob == nil {
			return nil
		}
		return []string{fmt.Sprintf("%s %s in %s", m.lastJob.Kind, m.lastJob.Status, m.lastJob.Duration.Round(time.Millisecond))}
	}
	running := make([]jobSnapshot, 0, len(m.activeJobs))
	for _, snapshot := range m.activeJobs {
		running = append(running, snapshot)
	}
	sort.Slice(running, func(i, j int) bool {
		return running[i].StartedAt.Before(running[j].StartedAt)
	})
	badges := make([]string, 0, len(running))
	for _, snapshot := range running {
		badges = append(badges, fmt.Sprintf("%s %s…", snapshot.Kind, snapshot.Status))
	}
	return badges
}

type keyHint struct {
	Key         string
	Description string
}

func (m *model) keyLegendView() string {
	hints := []keyHint{
		{"Enter", "Ask question"},
		{"Tab", "Switch pane"},
		{"PgUp/PgDn", "Scroll response"},
		{"Ctrl+S", "Upload text"},
		{"Ctrl+O", "Upload file"},
		{"Ctrl+X", "Delete all"},
		{"Esc", "Dismiss messages"},
		{"?", "Toggle cheatsheet"},
		{"Ctrl+C", "Quit"},
	}
	rows := []string{sectionHeaderStyle.Render("Keyboard Cheatsheet")}
	const columns = 3
	for i := 0; i < len(hints); i += columns {
		end := i + columns
		if end > len(hints) {
			end = len(hints)
		}
		var cells []string
		for _, hint := range hints[i:end] {
			key := keyStyle.Render(hint.Key)
			desc := keyDescStyle.Render(" " + hint.Description + "  ")
			cells = append(cells, lipgloss.JoinHorizontal(lipgloss.Top, key, desc))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	rows = append(rows, helperStyle.Render("? only toggles the cheatsheet while the focused input is empty."))
	return legendBoxStyle.Render(strings.Join(rows, "\n"))
}

func renderLogo() string {
	if len(logoArtLines) == 0 {
		return ""
	}
	width := 0
	lineRunes := make([][]rune, len(logoArtLines))
	for i, line := range logoArtLines {
		runes := []rune(line)
		lineRunes[i] = runes
		if len(runes) > width {
			width = len(runes)
		}
	}
	width++
	height := len(logoArtLines) + 1

	type cell struct {
		r     rune
		style lipgloss.Style
	}

	grid := make([][]cell, height)
	for i := range grid {
		grid[i] = make([]cell, width)
	}

	// Shadow first, offset one cell down and right; the face overwrites it.
	for y, runes := range lineRunes {
		for x, r := range runes {
			if r == ' ' {
				continue
			}
			grid[y+1][x+1] = cell{r: r, style: logoShadowStyle}
		}
	}
	for y, runes := range lineRunes {
		for x, r := range runes {
			if r == ' ' {
				continue
			}
			grid[y][x] = cell{r: r, style: logoFaceStyle}
		}
	}

	lines := make([]string, height)
	for y, row := range grid {
		var b strings.Builder
		for _, c := range row {
			if c.r == 0 {
				b.WriteRune(' ')
				continue
			}
			b.WriteString(c.style.Render(string(c.r)))
		}
		lines[y] = strings.TrimRight(b.String(), " ")
	}
	return logoContainerStyle.Render(strings.Join(lines, "\n"))
}

var (
	sectionHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
	focusedHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffd166"))
	subtitleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("147"))
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warningStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	successStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#a3be8c"))
	helperStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))

	heroAccentColor        = lipgloss.Color("#2ec4b6")
	heroEmberColor         = lipgloss.Color("#01221f")
	heroSecondaryTextColor = lipgloss.Color("#8ecae6")

	taglineStyle       = lipgloss.NewStyle().Foreground(heroSecondaryTextColor).Italic(true)
	statusBarStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#8ecae6")).Padding(0, 1)
	keyStyle           = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#0f0f0f")).Background(lipgloss.Color("#ffd166")).Padding(0, 1)
	keyDescStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#e0def4"))
	legendBoxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#56526e")).Padding(1, 2)
	logoFaceStyle      = lipgloss.NewStyle().Bold(true).Foreground(heroAccentColor)
	logoShadowStyle    = lipgloss.NewStyle().Foreground(heroEmberColor)
	logoContainerStyle = lipgloss.NewStyle().Padding(0, 1)
	logoArtLines       = []string{
		"██████╗    █████╗    ██████╗   ██████╗   ███████╗  ███████╗  ██╗  ██╗",
		"██╔══██╗  ██╔══██╗  ██╔════╝   ██╔══██╗  ██╔════╝  ██╔════╝  ██║ ██╔╝",
		"██████╔╝  ███████║  ██║  ███╗  ██║  ██║  █████╗    ███████╗  █████╔╝ ",
		"██╔══██╗  ██╔══██║  ██║   ██║  ██║  ██║  ██╔══╝    ╚════██║  ██╔═██╗ ",
		"██║  ██║  ██║  ██║  ╚██████╔╝  ██████╔╝  ███████╗  ███████║  ██║  ██╗",
		"╚═╝  ╚═╝  ╚═╝  ╚═╝   ╚═════╝   ╚═════╝   ╚══════╝  ╚══════╝  ╚═╝  ╚═╝",
	}
)

package tui

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/csheth/ragdesk/internal/gateway"
	"github.com/csheth/ragdesk/internal/session"
)

// QueryController is what the ask pane needs from a query session.
type QueryController interface {
	session.QueryReader
	Submit(ctx context.Context, query string) <-chan session.QueryOutcome
}

// IngestController is what the knowledge pane needs from an ingest session.
type IngestController interface {
	session.IngestReader
	Upload(ctx context.Context, text string, meta gateway.Metadata) (<-chan session.IngestState, bool)
	DeleteAll(ctx context.Context) <-chan session.IngestState
	UploadFile(ctx context.Context, path, source string) (<-chan session.IngestState, error)
}

// Config wires runtime options into the TUI program.
type Config struct {
	BackendURL string
	Query      QueryController
	Ingest     IngestController
	// Context bounds every backend call started from the view.
	Context context.Context
}

// New returns a tea.Model ready to be mounted into a Program.
func New(config Config) tea.Model {
	if config.Context == nil {
		config.Context = context.Background()
	}

	queryInput := textinput.New()
	queryInput.Placeholder = queryPlaceholder
	queryInput.Prompt = "› "
	queryInput.CharLimit = 0
	queryInput.Width = 70
	queryInput.Focus()

	knowledgeInput := textarea.New()
	knowledgeInput.Placeholder = knowledgePlaceholder
	knowledgeInput.ShowLineNumbers = false
	knowledgeInput.CharLimit = 0
	knowledgeInput.MaxHeight = 0
	knowledgeInput.MaxWidth = 0
	knowledgeInput.SetWidth(72)
	knowledgeInput.SetHeight(4)
	knowledgeInput.Blur()

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	vp := viewport.New(80, 10)
	vp.MouseWheelEnabled = true

	m := &model{
		config:         config,
		focus:          focusQuery,
		layout:         newPageLayout(),
		queryInput:     queryInput,
		knowledgeInput: knowledgeInput,
		spinner:        spin,
		viewport:       vp,
		jobs:           newJobBus(config.Context),
		activeJobs:     map[string]jobSnapshot{},
		viewportDirty:  true,
		changed:        make(chan struct{}, 1),
	}
	m.watchSessions()
	return m
}

type model struct {
	config Config
	focus  focusArea
	layout pageLayout

	queryInput     textinput.Model
	knowledgeInput textarea.Model
	spinner        spinner.Model
	viewport       viewport.Model

	jobs       *jobBus
	activeJobs map[string]jobSnapshot
	lastJob    *jobSnapshot

	// changed coalesces session transitions into one pending redraw.
	changed chan struct{}

	confirmingDelete bool
	helpVisible      bool
	viewportDirty    bool

	infoMessage  string
	errorMessage string
}

type stateChangedMsg struct{}

func (m *model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForStateChange())
}

// watchSessions subscribes to both sessions. Listeners run under the
// session lock, so they only poke the changed channel and never block.
func (m *model) watchSessions() {
	notify := func() {
		select {
		case m.changed <- struct{}{}:
		default:
		}
	}
	var stops []func()
	if m.config.Query != nil {
		stops = append(stops, m.config.Query.Subscribe(func(session.QueryState) { notify() }))
	}
	if m.config.Ingest != nil {
		stops = append(stops, m.config.Ingest.Subscribe(func(session.IngestState) { notify() }))
	}
	done := m.config.Context.Done()
	if done == nil || len(stops) == 0 {
		return
	}
	go func() {
		<-done
		for _, stop := range stops {
			stop()
		}
	}()
}

func (m *model) waitForStateChange() tea.Cmd {
	changed := m.changed
	done := m.config.Context.Done()
	return func() tea.Msg {
		select {
		case <-changed:
			return stateChangedMsg{}
		case <-done:
			return nil
		}
	}
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.busy() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.applyLayout(msg.Width, msg.Height)
		return m, nil
	case stateChangedMsg:
		m.markViewportDirty()
		return m, m.waitForStateChange()
	case jobSignalMsg:
		m.activeJobs[msg.Snapshot.ID] = msg.Snapshot
		return m, nil
	case jobResultEnvelope:
		delete(m.activeJobs, msg.Snapshot.ID)
		if msg.Snapshot.Status != jobStatusSuperseded {
			snapshot := msg.Snapshot
			m.lastJob = &snapshot
		}
		return m.handleJobPayload(msg.Payload)
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, m.updateFocusedInput(msg)
}

func (m *model) handleJobPayload(payload tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := payload.(type) {
	case queryResultMsg:
		if !msg.outcome.Superseded {
			m.viewport.GotoTop()
		}
		m.markViewportDirty()
	case ingestResultMsg:
		if msg.state.Status == session.IngestDone {
			m.knowledgeInput.Reset()
		}
	}
	return m, nil
}

func (m *model) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}
	if m.confirmingDelete {
		return m, m.handleDeleteConfirmation(key)
	}

	switch key.Type {
	case tea.KeyTab, tea.KeyShiftTab:
		return m, m.toggleFocus()
	case tea.KeyCtrlS:
		return m, m.uploadTextCmd()
	case tea.KeyCtrlO:
		return m, m.uploadFileCmd()
	case tea.KeyCtrlX:
		m.confirmingDelete = true
		m.errorMessage = ""
		m.infoMessage = ""
		return m, nil
	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(key)
		return m, cmd
	case tea.KeyEsc:
		if m.helpVisible {
			m.helpVisible = false
			return m, nil
		}
		m.errorMessage = ""
		m.infoMessage = ""
		return m, nil
	case tea.KeyEnter:
		if m.focus == focusQuery {
			return m, m.submitQueryCmd()
		}
	}

	if key.String() == "?" && strings.TrimSpace(m.focusedValue()) == "" {
		m.helpVisible = !m.helpVisible
		return m, nil
	}
	return m, m.updateFocusedInput(key)
}

func (m *model) handleDeleteConfirmation(key tea.KeyMsg) tea.Cmd {
	switch strings.ToLower(key.String()) {
	case "y":
		m.confirmingDelete = false
		return m.deleteAllCmd()
	case "n", "esc":
		m.confirmingDelete = false
		m.infoMessage = "Delete cancelled."
	}
	return nil
}

func (m *model) updateFocusedInput(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	if m.focus == focusKnowledge {
		m.knowledgeInput, cmd = m.knowledgeInput.Update(msg)
		return cmd
	}
	m.queryInput, cmd = m.queryInput.Update(msg)
	return cmd
}

func (m *model) focusedValue() string {
	if m.focus == focusKnowledge {
		return m.knowledgeInput.Value()
	}
	return m.queryInput.Value()
}

func (m *model) toggleFocus() tea.Cmd {
	if m.focus == focusQuery {
		m.focus = focusKnowledge
		m.queryInput.Blur()
		return m.knowledgeInput.Focus()
	}
	m.focus = focusQuery
	m.knowledgeInput.Blur()
	return m.queryInput.Focus()
}

func (m *model) submitQueryCmd() tea.Cmd {
	query := strings.TrimSpace(m.queryInput.Value())
	if query == "" {
		m.errorMessage = "Type a question first."
		return nil
	}
	if m.config.Query == nil {
		m.errorMessage = "No backend configured."
		return nil
	}
	m.errorMessage = ""
	m.infoMessage = ""
	outcomes := m.config.Query.Submit(m.config.Context, query)
	m.markViewportDirty()
	return tea.Batch(m.jobs.Start(jobKindQuery, awaitQueryJob(outcomes)), m.spinner.Tick)
}

func (m *model) uploadTextCmd() tea.Cmd {
	if m.config.Ingest == nil {
		m.errorMessage = "No backend configured."
		return nil
	}
	meta := gateway.Metadata{Source: userSource, SectionTitle: inputSectionTitle, Position: 1}
	outcomes, ok := m.config.Ingest.Upload(m.config.Context, m.knowledgeInput.Value(), meta)
	if !ok {
		m.errorMessage = "Nothing to upload. Type or paste some text first."
		return nil
	}
	m.errorMessage = ""
	m.infoMessage = ""
	return tea.Batch(m.jobs.Start(jobKindUpload, awaitIngestJob(session.ActionUpload, outcomes)), m.spinner.Tick)
}

func (m *model) uploadFileCmd() tea.Cmd {
	if m.config.Ingest == nil {
		m.errorMessage = "No backend configured."
		return nil
	}
	path := expandHome(strings.TrimSpace(m.knowledgeInput.Value()))
	if path == "" {
		m.errorMessage = "Type the path of a text or PDF file first."
		return nil
	}
	outcomes, err := m.config.Ingest.UploadFile(m.config.Context, path, "")
	if err != nil {
		m.errorMessage = "Could not read file: " + err.Error()
		return nil
	}
	m.errorMessage = ""
	m.infoMessage = ""
	return tea.Batch(m.jobs.Start(jobKindUploadFile, awaitIngestJob(session.ActionUploadFile, outcomes)), m.spinner.Tick)
}

func (m *model) deleteAllCmd() tea.Cmd {
	if m.config.Ingest == nil {
		m.errorMessage = "No backend configured."
		return nil
	}
	m.errorMessage = ""
	m.infoMessage = ""
	outcomes := m.config.Ingest.DeleteAll(m.config.Context)
	return tea.Batch(m.jobs.Start(jobKindDeleteAll, awaitIngestJob(session.ActionDeleteAll, outcomes)), m.spinner.Tick)
}

func (m *model) busy() bool {
	if len(m.activeJobs) > 0 {
		return true
	}
	if m.config.Query != nil && m.config.Query.State().Status == session.QueryLoading {
		return true
	}
	return m.config.Ingest != nil && m.config.Ingest.State().Status == session.IngestBusy
}

func (m *model) applyLayout(width, height int) {
	m.layout.Update(width, height)
	m.viewport.Width = m.layout.viewportWidth
	m.viewport.Height = m.layout.viewportHeight
	m.queryInput.Width = m.layout.viewportWidth - 4
	m.knowledgeInput.SetWidth(m.layout.viewportWidth)
	m.knowledgeInput.SetHeight(m.layout.knowledgeHeight)
	m.markViewportDirty()
}

func (m *model) markViewportDirty() {
	m.viewportDirty = true
}

func (m *model) refreshViewportIfDirty() {
	if m.viewportDirty {
		m.refreshViewport()
	}
}

func (m *model) refreshViewport() {
	m.viewportDirty = false
	m.viewport.SetContent(m.buildResponseContent())
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

package tui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/csheth/ragdesk/internal/gateway"
	"github.com/csheth/ragdesk/internal/session"
)

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func deliverQuery(m *model, state session.QueryState) {
	m.Update(jobSignalMsg{Snapshot: jobSnapshot{ID: "query-1", Kind: jobKindQuery, Status: jobStatusRunning}})
	m.Update(jobResultEnvelope{
		Snapshot: jobSnapshot{ID: "query-1", Kind: jobKindQuery, Status: jobStatusSucceeded},
		Payload:  queryResultMsg{outcome: session.QueryOutcome{State: state}},
	})
}

func deliverIngest(m *model, action session.IngestAction, state session.IngestState) {
	m.Update(jobResultEnvelope{
		Snapshot: jobSnapshot{ID: "ingest-1", Kind: jobKind(action), Status: jobStatusSucceeded},
		Payload:  ingestResultMsg{action: action, state: state},
	})
}

func TestNewModelStartsIdleWithAskFocused(t *testing.T) {
	rig := newTestRig(t)
	m := rig.model
	if !m.queryInput.Focused() {
		t.Fatal("query input should start focused")
	}
	if m.knowledgeInput.Focused() {
		t.Fatal("knowledge input should start blurred")
	}
	view := m.View()
	for _, want := range []string{"Ask", "Knowledge Base", "Answers will appear here", "Query idle", "KB idle"} {
		if !strings.Contains(view, want) {
			t.Fatalf("initial view missing %q:\n%s", want, view)
		}
	}
}

func TestBlankQueryShowsHintWithoutCall(t *testing.T) {
	rig := newTestRig(t)
	m := rig.model
	m.queryInput.SetValue("   ")

	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
		t.Fatalf("blank query should not start a command, got %T", cmd)
	}
	if m.errorMessage == "" {
		t.Fatal("blank query should surface a hint")
	}
	if rig.querier.calls() != 0 {
		t.Fatalf("blank query should not reach the backend, got %d calls", rig.querier.calls())
	}
	if status := rig.query.State().Status; status != session.QueryIdle {
		t.Fatalf("state changed on blank query: %v", status)
	}
}

func TestSubmitQueryShowsLoadingThenAnswer(t *testing.T) {
	rig := newTestRig(t)
	m := rig.model
	rig.querier.release = make(chan struct{})
	rig.querier.resp = gateway.QueryResponse{
		Answer:    "Retrieval-Augmented Generation combines search with generation.",
		Citations: []json.RawMessage{json.RawMessage(`"doc1"`)},
		Sources:   []json.RawMessage{json.RawMessage(`"kb://doc1"`)},
	}
	m.queryInput.SetValue("What is RAG?")

	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter}); cmd == nil {
		t.Fatal("submitting a query should start a job")
	}
	if status := rig.query.State().Status; status != session.QueryLoading {
		t.Fatalf("expected loading right after submit, got %v", status)
	}
	if view := m.View(); !strings.Contains(view, `Retrieving an answer for "What is RAG?"`) {
		t.Fatalf("loading view missing query echo:\n%s", view)
	}

	close(rig.querier.release)
	waitFor(t, "query to settle", func() bool { return rig.query.State().Status == session.QuerySucceeded })
	deliverQuery(m, rig.query.State())

	view := m.View()
	for _, want := range []string{"Retrieval-Augmented Generation", "Citations", "doc1", "Sources", "kb://doc1", "Query succeeded"} {
		if !strings.Contains(view, want) {
			t.Fatalf("answer view missing %q:\n%s", want, view)
		}
	}
	if len(m.activeJobs) != 0 {
		t.Fatalf("finished job still tracked: %v", m.activeJobs)
	}
	if m.lastJob == nil || m.lastJob.Kind != jobKindQuery {
		t.Fatalf("last job not recorded: %+v", m.lastJob)
	}
}

func TestFailedQueryRendersError(t *testing.T) {
	rig := newTestRig(t)
	m := rig.model
	rig.querier.err = &gateway.ServerError{StatusCode: 500, Detail: "internal error"}
	m.queryInput.SetValue("x")

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	waitFor(t, "query to fail", func() bool { return rig.query.State().Status == session.QueryFailed })
	deliverQuery(m, rig.query.State())

	view := m.View()
	if !strings.Contains(view, "Error 500: internal error") {
		t.Fatalf("error not rendered:\n%s", view)
	}
	if strings.Contains(view, "Citations") {
		t.Fatalf("failed query should not render citations:\n%s", view)
	}
}

func TestTabSwitchesFocus(t *testing.T) {
	rig := newTestRig(t)
	m := rig.model

	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	if m.focus != focusKnowledge || !m.knowledgeInput.Focused() || m.queryInput.Focused() {
		t.Fatalf("tab should move focus to the knowledge pane (focus=%v)", m.focus)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	if m.focus != focusQuery || !m.queryInput.Focused() || m.knowledgeInput.Focused() {
		t.Fatalf("tab should move focus back to the ask pane (focus=%v)", m.focus)
	}
}

func TestQuestionMarkTogglesCheatsheetOnlyWhenInputEmpty(t *testing.T) {
	rig := newTestRig(t)
	m := rig.model

	m.Update(keyRunes("?"))
	if !m.helpVisible {
		t.Fatal("? on an empty input should open the cheatsheet")
	}
	if view := m.View(); !strings.Contains(view, "Keyboard Cheatsheet") {
		t.Fatalf("cheatsheet not rendered:\n%s", view)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if m.helpVisible {
		t.Fatal("esc should close the cheatsheet")
	}

	m.queryInput.SetValue("What is RAG")
	m.queryInput.CursorEnd()
	m.Update(keyRunes("?"))
	if m.helpVisible {
		t.Fatal("? while typing should not open the cheatsheet")
	}
	if got := m.queryInput.Value(); got != "What is RAG?" {
		t.Fatalf("? should be typed into the query, got %q", got)
	}
}

func TestUploadClearsInputOnDone(t *testing.T) {
	rig := newTestRig(t)
	m := rig.model
	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m.knowledgeInput.SetValue("Paris is the capital of France.")

	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlS}); cmd == nil {
		t.Fatal("upload should start a job")
	}
	waitFor(t, "upload to settle", func() bool { return rig.ingest.State().Status == session.IngestDone })
	deliverIngest(m, session.ActionUpload, rig.ingest.State())

	if value := m.knowledgeInput.Value(); value != "" {
		t.Fatalf("knowledge input should be cleared after upload, got %q", value)
	}
	if view := m.View(); !strings.Contains(view, "Text uploaded successfully! Vector ID: v1") {
		t.Fatalf("upload result not rendered:\n%s", view)
	}
	rig.ingester.mu.Lock()
	defer rig.ingester.mu.Unlock()
	if len(rig.ingester.uploads) != 1 {
		t.Fatalf("expected one upload, got %d", len(rig.ingester.uploads))
	}
	want := gateway.Metadata{Source: "user", SectionTitle: "Input", Position: 1}
	if rig.ingester.uploads[0] != want {
		t.Fatalf("unexpected metadata %+v", rig.ingester.uploads[0])
	}
}

func TestUploadFailureKeepsInput(t *testing.T) {
	rig := newTestRig(t)
	m := rig.model
	rig.ingester.uploadErr = &gateway.ServerError{StatusCode: 500, Detail: "quota exceeded"}
	m.knowledgeInput.SetValue("keep me")

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	waitFor(t, "upload to fail", func() bool { return rig.ingest.State().Status == session.IngestFailed })
	deliverIngest(m, session.ActionUpload, rig.ingest.State())

	if value := m.knowledgeInput.Value(); value != "keep me" {
		t.Fatalf("failed upload should keep the input, got %q", value)
	}
	if view := m.View(); !strings.Contains(view, "Failed to upload: Error 500: quota exceeded") {
		t.Fatalf("upload failure not rendered:\n%s", view)
	}
}

func TestBlankUploadShowsHintWithoutCall(t *testing.T) {
	rig := newTestRig(t)
	m := rig.model
	m.knowledgeInput.SetValue(" \n ")

	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlS}); cmd != nil {
		t.Fatalf("blank upload should not start a command, got %T", cmd)
	}
	if m.errorMessage == "" {
		t.Fatal("blank upload should surface a hint")
	}
	if uploads, _ := rig.ingester.counts(); uploads != 0 {
		t.Fatalf("blank upload reached the backend %d times", uploads)
	}
}

func TestUploadFileFromPath(t *testing.T) {
	rig := newTestRig(t)
	m := rig.model
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("Vector stores index embeddings."), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	m.knowledgeInput.SetValue(path)

	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlO}); cmd == nil {
		t.Fatal("file upload should start a job")
	}
	waitFor(t, "file upload to settle", func() bool { return rig.ingest.State().Status == session.IngestDone })
	deliverIngest(m, session.ActionUploadFile, rig.ingest.State())

	if view := m.View(); !strings.Contains(view, "Uploaded 1 chunk(s) from notes.txt") {
		t.Fatalf("file upload result not rendered:\n%s", view)
	}
	if m.knowledgeInput.Value() != "" {
		t.Fatal("path should be cleared after a successful file upload")
	}
}

func TestUploadFileMissingPathShowsError(t *testing.T) {
	rig := newTestRig(t)
	m := rig.model
	m.knowledgeInput.SetValue(filepath.Join(t.TempDir(), "missing.pdf"))

	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlO}); cmd != nil {
		t.Fatalf("unreadable file should not start a job, got %T", cmd)
	}
	if !strings.HasPrefix(m.errorMessage, "Could not read file") {
		t.Fatalf("unexpected error message %q", m.errorMessage)
	}
	if status := rig.ingest.State().Status; status != session.IngestIdle {
		t.Fatalf("state changed on load error: %v", status)
	}
}

func TestDeleteAllRequiresConfirmation(t *testing.T) {
	rig := newTestRig(t)
	m := rig.model
	m.knowledgeInput.SetValue("stale draft")

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlX})
	if !m.confirmingDelete {
		t.Fatal("ctrl+x should ask for confirmation")
	}
	if view := m.View(); !strings.Contains(view, "(y/n)") {
		t.Fatalf("confirmation prompt not rendered:\n%s", view)
	}
	if _, cmd := m.Update(keyRunes("n")); cmd != nil {
		t.Fatalf("declining should not start a command, got %T", cmd)
	}
	if m.confirmingDelete {
		t.Fatal("n should dismiss the prompt")
	}
	if _, deletes := rig.ingester.counts(); deletes != 0 {
		t.Fatalf("declined delete reached the backend %d times", deletes)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlX})
	if _, cmd := m.Update(keyRunes("y")); cmd == nil {
		t.Fatal("confirming should start a job")
	}
	waitFor(t, "delete to settle", func() bool { return rig.ingest.State().Status == session.IngestDone })
	deliverIngest(m, session.ActionDeleteAll, rig.ingest.State())

	if _, deletes := rig.ingester.counts(); deletes != 1 {
		t.Fatalf("expected exactly one delete call, got %d", deletes)
	}
	if view := m.View(); !strings.Contains(view, "All vectors deleted successfully") {
		t.Fatalf("delete result not rendered:\n%s", view)
	}
	if value := m.knowledgeInput.Value(); value != "" {
		t.Fatalf("knowledge input should be cleared after a wipe, got %q", value)
	}
}

func TestDeleteAllFailureKeepsInput(t *testing.T) {
	rig := newTestRig(t)
	m := rig.model
	rig.ingester.deleteErr = &gateway.TransportError{Op: "delete_all", Err: errors.New("connection refused")}
	m.knowledgeInput.SetValue("keep me")

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlX})
	m.Update(keyRunes("y"))
	waitFor(t, "delete to fail", func() bool { return rig.ingest.State().Status == session.IngestFailed })
	deliverIngest(m, session.ActionDeleteAll, rig.ingest.State())

	if value := m.knowledgeInput.Value(); value != "keep me" {
		t.Fatalf("failed wipe should keep the input, got %q", value)
	}
	if view := m.View(); !strings.Contains(view, "Backend unreachable: Failed to delete vectors: connection refused") {
		t.Fatalf("delete failure not labelled:\n%s", view)
	}
}

func TestConfirmationSwallowsOtherKeys(t *testing.T) {
	rig := newTestRig(t)
	m := rig.model
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlX})

	m.Update(keyRunes("q"))
	if !m.confirmingDelete {
		t.Fatal("unrelated keys should keep the prompt open")
	}
	if m.queryInput.Value() != "" {
		t.Fatalf("keys leaked into the query input: %q", m.queryInput.Value())
	}
}

func TestCtrlCQuits(t *testing.T) {
	rig := newTestRig(t)
	_, cmd := rig.model.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("ctrl+c should return a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg, got %T", cmd())
	}
}

func TestWindowResizeAppliesLayout(t *testing.T) {
	rig := newTestRig(t)
	m := rig.model
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	if m.viewport.Width != 116 {
		t.Fatalf("viewport width not applied: %d", m.viewport.Width)
	}
	if m.viewport.Height != m.layout.viewportHeight {
		t.Fatalf("viewport height not applied: %d", m.viewport.Height)
	}
}

func TestMissingSessionsDegradeGracefully(t *testing.T) {
	teaModel, ok := New(Config{}).(*model)
	if !ok {
		t.Fatalf("expected *model, got %T", teaModel)
	}
	teaModel.queryInput.SetValue("hello")
	if _, cmd := teaModel.Update(tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
		t.Fatalf("no backend should mean no command, got %T", cmd)
	}
	if !strings.Contains(teaModel.View(), "No backend configured.") {
		t.Fatal("view should explain the missing backend")
	}
}

func TestLongQueryReachesBackendWhole(t *testing.T) {
	rig := newTestRig(t)
	m := rig.model
	query := strings.TrimSpace(strings.Repeat("retrieval ", 80))
	if len(query) <= 500 {
		t.Fatalf("fixture too short: %d", len(query))
	}

	m.Update(keyRunes(query))
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	waitFor(t, "query to settle", func() bool { return rig.query.State().Status != session.QueryLoading })

	rig.querier.mu.Lock()
	defer rig.querier.mu.Unlock()
	if len(rig.querier.queries) != 1 || rig.querier.queries[0] != query {
		t.Fatalf("query was altered on its way to the backend: %q", rig.querier.queries)
	}
}

func TestLongPasteReachesBackendWhole(t *testing.T) {
	rig := newTestRig(t)
	m := rig.model
	lines := make([]string, 0, 151)
	for i := 0; i < 150; i++ {
		lines = append(lines, fmt.Sprintf("line %d of the pasted document", i+1))
	}
	lines = append(lines, strings.Repeat("x", 600))
	text := strings.Join(lines, "\n")

	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m.Update(keyRunes(text))
	if got := m.knowledgeInput.Value(); got != text {
		t.Fatalf("paste was truncated in the editor: %d chars kept of %d", len(got), len(text))
	}
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	waitFor(t, "upload to settle", func() bool { return rig.ingest.State().Status == session.IngestDone })

	rig.ingester.mu.Lock()
	defer rig.ingester.mu.Unlock()
	if len(rig.ingester.texts) != 1 || rig.ingester.texts[0] != text {
		t.Fatal("upload body differs from the pasted text")
	}
}

func TestSessionTransitionsWakeTheView(t *testing.T) {
	rig := newTestRig(t)
	m := rig.model
	wait := m.waitForStateChange()

	rig.query.Submit(context.Background(), "background refresh")
	msgs := make(chan tea.Msg, 1)
	go func() { msgs <- wait() }()

	var msg tea.Msg
	select {
	case msg = <-msgs:
	case <-time.After(2 * time.Second):
		t.Fatal("session transition did not wake the view")
	}
	if _, ok := msg.(stateChangedMsg); !ok {
		t.Fatalf("unexpected message %T", msg)
	}

	m.refreshViewport()
	_, cmd := m.Update(msg)
	if !m.viewportDirty {
		t.Fatal("state change should mark the response dirty")
	}
	if cmd == nil {
		t.Fatal("watcher should re-arm after each change")
	}
}

func TestSessionListenerNeverBlocks(t *testing.T) {
	rig := newTestRig(t)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			rig.query.Submit(context.Background(), fmt.Sprintf("q%d", i))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("submissions stalled on an undrained view")
	}
}

func TestUnreachableBackendIsLabelled(t *testing.T) {
	rig := newTestRig(t)
	m := rig.model
	rig.querier.err = &gateway.TransportError{Op: "query", Err: errors.New("dial tcp: connection refused")}
	m.queryInput.SetValue("x")

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	waitFor(t, "query to fail", func() bool { return rig.query.State().Status == session.QueryFailed })
	deliverQuery(m, rig.query.State())

	if view := m.View(); !strings.Contains(view, "Backend unreachable: dial tcp: connection refused") {
		t.Fatalf("transport failure not labelled:\n%s", view)
	}
}

func TestFailureLabels(t *testing.T) {
	cases := []struct {
		kind gateway.Kind
		text string
		want string
	}{
		{gateway.KindTransport, "refused", "Backend unreachable: refused"},
		{gateway.KindServer, "Error 500: boom", "Server error: Error 500: boom"},
		{gateway.KindSemantic, "", "Unexpected response"},
		{gateway.KindUnknown, "plain", "plain"},
	}
	for _, tc := range cases {
		if got := withFailureLabel(tc.kind, tc.text); got != tc.want {
			t.Errorf("withFailureLabel(%v, %q) = %q, want %q", tc.kind, tc.text, got, tc.want)
		}
	}
}

func TestSupersededResultKeepsLastJob(t *testing.T) {
	rig := newTestRig(t)
	m := rig.model
	deliverQuery(m, session.QueryState{Status: session.QuerySucceeded, Query: "newer", Answer: "a"})

	m.Update(jobResultEnvelope{
		Snapshot: jobSnapshot{ID: "query-0", Kind: jobKindQuery, Status: jobStatusSuperseded},
		Payload:  queryResultMsg{outcome: session.QueryOutcome{Superseded: true}},
	})

	if m.lastJob == nil || m.lastJob.Status != jobStatusSucceeded || m.lastJob.ID != "query-1" {
		t.Fatalf("superseded result replaced the last job: %+v", m.lastJob)
	}
}

package tui

type focusArea int

const (
	focusQuery focusArea = iota
	focusKnowledge
)

func (f focusArea) String() string {
	if f == focusKnowledge {
		return "Knowledge"
	}
	return "Ask"
}

const heroTagline = "Retrieval-augmented answers from your own knowledge base."

const (
	minViewportWidth          = 40
	viewportHorizontalPadding = 4
	queryPreviewLimit         = 60
)

const (
	queryPlaceholder     = "Ask a question about your documents…"
	knowledgePlaceholder = "Paste text to embed (Ctrl+S) or a file path to upload (Ctrl+O)…"
)

// Metadata attached to text typed into the knowledge pane.
const (
	userSource        = "user"
	inputSectionTitle = "Input"
)

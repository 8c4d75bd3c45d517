// Package ingest turns local files into text chunks ready for the knowledge base.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

const (
	// DefaultChunkSize and DefaultOverlap match the backend's own chunker.
	DefaultChunkSize = 500
	DefaultOverlap   = 50
)

// ErrEmptyDocument is returned when a file holds no usable text.
var ErrEmptyDocument = errors.New("document has no text")

var extraneousWhitespace = regexp.MustCompile(`\s+`)

// Document is the text extracted from one local file.
type Document struct {
	Name string
	Path string
	Text string
}

// Chunk is one window of a document, numbered from 1.
type Chunk struct {
	Position int
	Text     string
}

// Load reads a PDF or plain-text file.
func Load(path string) (Document, error) {
	var (
		text string
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		text, err = readPDF(path)
	} else {
		text, err = readText(path)
	}
	if err != nil {
		return Document{}, err
	}
	if strings.TrimSpace(text) == "" {
		return Document{}, fmt.Errorf("%s: %w", filepath.Base(path), ErrEmptyDocument)
	}
	return Document{Name: filepath.Base(path), Path: path, Text: text}, nil
}

func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s is not valid UTF-8 text", filepath.Base(path))
	}
	return strings.TrimSpace(string(data)), nil
}

func readPDF(path string) (string, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		if file != nil {
			file.Close()
		}
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer file.Close()

	content, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract pdf text: %w", err)
	}

	var builder strings.Builder
	if _, err := io.Copy(&builder, content); err != nil {
		return "", err
	}
	fullText := extraneousWhitespace.ReplaceAllString(builder.String(), " ")
	return strings.TrimSpace(fullText), nil
}

// Split cuts text into rune windows of size with overlap runes shared between
// neighbours. Whitespace-only windows are dropped.
func Split(text string, size, overlap int) []Chunk {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}
	runes := []rune(text)
	var chunks []Chunk
	for start := 0; start < len(runes); start += size - overlap {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		window := strings.TrimSpace(string(runes[start:end]))
		if window != "" {
			chunks = append(chunks, Chunk{Position: len(chunks) + 1, Text: window})
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}

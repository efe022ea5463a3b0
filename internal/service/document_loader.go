package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/stemsi/exstem-examgen/internal/generation"
)

// allowedDocTypes maps accepted upload extensions to whether the loader can read them.
var allowedDocTypes = map[string]bool{
	".txt":  true,
	".md":   true,
	".pdf":  false,
	".docx": false,
	".pptx": false,
}

// DocumentLoader extracts plain text from a stored doc.
type DocumentLoader interface {
	Load(ctx context.Context, path string) (string, error)
}

// TextLoader reads plain text and markdown files.
type TextLoader struct{}

func (TextLoader) Load(_ context.Context, path string) (string, error) {
	return LoadDocumentText(path, strings.ToLower(filepath.Ext(path)))
}

// LoadDocumentText reads the text of a stored doc. Formats that are accepted
// for upload but cannot be read yield generation.ErrUnsupportedDocType.
func LoadDocumentText(path, fileType string) (string, error) {
	readable, ok := allowedDocTypes[fileType]
	if !ok || !readable {
		return "", fmt.Errorf("%w: %s", generation.ErrUnsupportedDocType, fileType)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read doc: %w", err)
	}
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: text is not valid UTF-8", generation.ErrUnsupportedDocType)
	}
	return string(raw), nil
}

var (
	manyNewlines = regexp.MustCompile(`\n{3,}`)
	manyBlanks   = regexp.MustCompile(`[ \t]{2,}`)
)

// CleanText normalizes line endings and collapses runs of blank lines and spaces.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = manyNewlines.ReplaceAllString(s, "\n\n")
	s = manyBlanks.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

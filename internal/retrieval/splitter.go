package retrieval

import (
	"strings"
	"unicode"
)

// Splitter cuts text into overlapping chunks measured in runes.
type Splitter struct {
	Size    int
	Overlap int
}

// DefaultSplitter matches the chunking used when docs are indexed.
var DefaultSplitter = Splitter{Size: 1000, Overlap: 150}

// Split prefers to end a chunk at a paragraph break, then at a sentence end,
// searching only the back half of the window.
func (s Splitter) Split(text string) []string {
	r := []rune(strings.TrimSpace(text))
	if len(r) == 0 {
		return nil
	}
	size := s.Size
	if size <= 0 {
		size = DefaultSplitter.Size
	}
	overlap := s.Overlap
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []string
	for start := 0; start < len(r); {
		end := start + size
		if end >= len(r) {
			end = len(r)
		} else {
			end = breakPoint(r, start+size/2, end)
		}

		if chunk := strings.TrimSpace(string(r[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(r) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

func breakPoint(r []rune, lo, hi int) int {
	for i := hi - 1; i > lo; i-- {
		if r[i] == '\n' && r[i-1] == '\n' {
			return i + 1
		}
	}
	for i := hi - 1; i > lo; i-- {
		if isSentenceEnd(r[i]) && (i+1 >= len(r) || unicode.IsSpace(r[i+1]) || r[i] > unicode.MaxLatin1) {
			return i + 1
		}
	}
	return hi
}

func isSentenceEnd(c rune) bool {
	switch c {
	case '.', '!', '?', '。', '！', '？', '；':
		return true
	}
	return false
}

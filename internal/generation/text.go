package generation

import (
	"strings"
	"unicode/utf8"
)

// Truncation bounds, in runes. Each applies to its own section only.
const (
	AnalyzeMaterialBound  = 6000
	RetrievalQueryBound   = 2000
	IntentBound           = 2000
	KnowledgeBound        = 4000
	MaterialBound         = 6000
	CurationInputBound    = 12000
	CurationOutputBound   = 8000
	curationMinInputRunes = 50
	titleRunes            = 30
)

// TruncateRunes returns the first n runes of s. Strings at or under the bound
// are returned unchanged.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// SuggestTitle picks the first key point, else a prefix of the material.
func SuggestTitle(keyPoints []string, material string) string {
	for _, kp := range keyPoints {
		if kp = strings.TrimSpace(kp); kp != "" {
			return TruncateRunes(kp, 255)
		}
	}
	m := strings.Join(strings.Fields(material), " ")
	if m == "" {
		return "AI Exercise"
	}
	if utf8.RuneCountInString(m) <= titleRunes {
		return m
	}
	return TruncateRunes(m, titleRunes) + "…"
}

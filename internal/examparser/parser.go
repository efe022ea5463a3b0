package examparser

import (
	"bufio"
	"errors"
	"strings"

	"github.com/stemsi/exstem-examgen/internal/model"
)

// ErrNoQuestionsFound is returned when the text holds no stem marker at all.
var ErrNoQuestionsFound = errors.New("no questions found in generated text")

// Entry is one question block recovered from generated text.
type Entry struct {
	Stem          string
	Options       []model.Option
	CorrectAnswer string
	Analysis      string
	// Flagged marks an entry for human review: the text repeated an answer or
	// analysis marker, or a supplemental completion could not repair it.
	Flagged bool
}

// Complete reports whether both the answer and the analysis are present.
func (e *Entry) Complete() bool {
	return strings.TrimSpace(e.CorrectAnswer) != "" && strings.TrimSpace(e.Analysis) != ""
}

// field tracks which part of the current block continuation lines extend.
type field int

const (
	fieldNone field = iota
	fieldStem
	fieldOption
	fieldAnswer
	fieldAnalysis
)

// Parser segments text with a Grammar.
type Parser struct {
	grammar Grammar
}

// New creates a Parser for g.
func New(g Grammar) *Parser {
	return &Parser{grammar: g}
}

// Parse segments text using DefaultGrammar.
func Parse(text string) ([]Entry, error) {
	return New(DefaultGrammar).Parse(text)
}

// Parse returns entries in source order.
func (p *Parser) Parse(text string) ([]Entry, error) {
	var (
		entries []Entry
		cur     *Entry
		at      = fieldNone
		// options precede the answer; once an answer or analysis was seen,
		// lettered lines are prose inside it.
		pastOptions bool
	)

	flush := func() {
		if cur != nil && !cur.empty() {
			if strings.TrimSpace(cur.Stem) == "" {
				cur.Flagged = true
			}
			entries = append(entries, *cur)
		}
		cur = nil
		at = fieldNone
		pastOptions = false
	}

	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		tok, ok := p.grammar.Classify(sc.Text())
		if !ok {
			continue
		}

		if tok.Kind == KindStem {
			flush()
			cur = &Entry{Stem: tok.Text}
			at = fieldStem
			continue
		}
		if cur == nil {
			continue
		}

		switch tok.Kind {
		case KindBlank:
			// a bare stem marker may be followed by a blank line
			if cur.Stem != "" || at != fieldStem {
				at = fieldNone
			}

		case KindOption:
			if pastOptions {
				appendTo(cur, at, tok.Label+". "+tok.Text)
				continue
			}
			cur.Options = append(cur.Options, model.Option{Label: tok.Label, Text: tok.Text})
			at = fieldOption

		case KindAnswer:
			pastOptions = true
			if cur.CorrectAnswer != "" {
				// an unrecognized stem was swallowed; keep the first answer
				cur.Flagged = true
				at = fieldNone
				continue
			}
			cur.CorrectAnswer = tok.Text
			at = fieldAnswer

		case KindAnalysis:
			pastOptions = true
			if cur.Analysis != "" {
				cur.Flagged = true
				at = fieldNone
				continue
			}
			cur.Analysis = tok.Text
			at = fieldAnalysis

		case KindText:
			appendTo(cur, at, tok.Text)
		}
	}
	flush()

	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNoQuestionsFound
	}
	return entries, nil
}

func (e *Entry) empty() bool {
	return strings.TrimSpace(e.Stem) == "" && len(e.Options) == 0 &&
		strings.TrimSpace(e.CorrectAnswer) == "" && strings.TrimSpace(e.Analysis) == ""
}

func appendTo(e *Entry, at field, text string) {
	switch at {
	case fieldStem:
		e.Stem = joinLine(e.Stem, text, "\n")
	case fieldOption:
		last := &e.Options[len(e.Options)-1]
		last.Text = joinLine(last.Text, text, " ")
	case fieldAnswer:
		e.CorrectAnswer = joinLine(e.CorrectAnswer, text, "\n")
	case fieldAnalysis:
		e.Analysis = joinLine(e.Analysis, text, "\n")
	}
}

func joinLine(base, next, sep string) string {
	if base == "" {
		return next
	}
	return base + sep + next
}

// Package examparser segments generated exam text into question entries.
//
// Recognition is driven by a Grammar: an ordered list of named marker rules.
// Tolerance policy:
//   - text before the first stem marker is ignored;
//   - a block missing its answer or analysis is kept and marked incomplete;
//   - a block with a stem but no options is kept;
//   - a blank line ends any multi-line stem, option, answer or analysis;
//   - a stem marker with no text takes its stem from the next text line;
//   - a second answer or analysis marker in one block never overwrites the
//     first; the block is flagged for review instead;
//   - zero blocks is an error (ErrNoQuestionsFound).
package examparser

import (
	"regexp"
	"strings"
)

// Kind classifies one line of generated text.
type Kind int

const (
	KindText Kind = iota
	KindBlank
	KindStem
	KindOption
	KindAnswer
	KindAnalysis
)

func (k Kind) String() string {
	switch k {
	case KindBlank:
		return "blank"
	case KindStem:
		return "stem"
	case KindOption:
		return "option"
	case KindAnswer:
		return "answer"
	case KindAnalysis:
		return "analysis"
	default:
		return "text"
	}
}

// Rule is one named marker. Pattern must capture the marker payload in the
// group named "text"; option rules also capture "label". A line that matches
// Except is never claimed by the rule.
type Rule struct {
	Name    string
	Kind    Kind
	Pattern *regexp.Regexp
	Except  *regexp.Regexp
}

// Grammar is a rule set evaluated in order; the first match wins.
type Grammar struct {
	Rules []Rule
	// Ignore drops whole lines before classification (code fences, echoed
	// result records).
	Ignore []*regexp.Regexp
}

// Token is one classified line.
type Token struct {
	Kind  Kind
	Rule  string
	Label string
	Text  string
}

// emphasis matches markdown bold/italic wrapping a marker label, e.g. "**Answer:**".
const emphasis = `[*_]{0,3}`

// DefaultGrammar recognizes the numbered format requested by the prompt plus
// the common variants models drift into (Chinese punctuation and labels,
// markdown headings and bold labels).
var DefaultGrammar = Grammar{
	Rules: []Rule{
		{
			Name: "answer",
			Kind: KindAnswer,
			Pattern: regexp.MustCompile(`(?i)^\s*` + emphasis + `\s*(?:correct\s+answer|answer|答案|正确答案)\s*` + emphasis +
				`\s*[:：]\s*` + emphasis + `\s*(?P<text>.*?)\s*` + emphasis + `\s*$`),
		},
		{
			Name: "analysis",
			Kind: KindAnalysis,
			Pattern: regexp.MustCompile(`(?i)^\s*` + emphasis + `\s*(?:analysis|explanation|解析|分析)\s*` + emphasis +
				`\s*[:：]\s*` + emphasis + `\s*(?P<text>.*?)\s*$`),
		},
		{
			Name: "stem",
			Kind: KindStem,
			// The payload may be empty: a bare "2." opens a block whose stem
			// is on the following lines.
			Pattern: regexp.MustCompile(`^\s*(?:#{1,6}\s*)?` + emphasis + `\s*(?:` +
				`【\s*\d{1,3}\s*】\s*[.、．:：]?` +
				`|(?i:question|q)\s*\d{1,3}\s*[.、．:：)）]` +
				`|第\s*\d{1,3}\s*[题題]\s*[.、．:：]?` +
				`|\d{1,3}\s*[.、．:：)）]` +
				`)\s*` + emphasis + `\s*(?P<text>.*?)\s*` + emphasis + `\s*$`),
			// decimals such as "3.14 is close to pi"
			Except: regexp.MustCompile(`^\s*\d+[.．]\d`),
		},
		{
			Name:    "option",
			Kind:    KindOption,
			Pattern: regexp.MustCompile(`^\s*[(（]?\s*(?P<label>[A-H])\s*[.、．)）]\s*(?P<text>\S.*?)\s*$`),
			// abbreviations such as "E.g." or "I.e."
			Except: regexp.MustCompile(`^\s*[A-Ha-h]\.[A-Za-z]\.`),
		},
	},
	Ignore: []*regexp.Regexp{
		regexp.MustCompile("^\\s*```"),
		regexp.MustCompile(`^\s*\{\s*"(?:resource_?[iI]d|exercise_?[iI]d)"\s*:.*\}\s*$`),
	},
}

// Classify returns the token for one line.
func (g Grammar) Classify(line string) (Token, bool) {
	for _, re := range g.Ignore {
		if re.MatchString(line) {
			return Token{}, false
		}
	}
	if strings.TrimSpace(line) == "" {
		return Token{Kind: KindBlank}, true
	}

	for _, rule := range g.Rules {
		m := rule.Pattern.FindStringSubmatch(line)
		if m == nil || (rule.Except != nil && rule.Except.MatchString(line)) {
			continue
		}
		tok := Token{Kind: rule.Kind, Rule: rule.Name}
		if i := rule.Pattern.SubexpIndex("text"); i >= 0 {
			tok.Text = strings.TrimSpace(m[i])
		}
		if i := rule.Pattern.SubexpIndex("label"); i >= 0 {
			tok.Label = m[i]
		}
		return tok, true
	}
	return Token{Kind: KindText, Text: strings.TrimSpace(line)}, true
}

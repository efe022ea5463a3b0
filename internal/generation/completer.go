package generation

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examgen/internal/examparser"
	"github.com/stemsi/exstem-examgen/internal/llm"
	"github.com/stemsi/exstem-examgen/internal/model"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// CompletionReport summarizes one completion pass.
type CompletionReport struct {
	Attempted int
	Repaired  int
	// Flagged counts every entry left for review, including entries the
	// parser flagged before completion.
	Flagged int
}

// Completer repairs entries missing an answer or analysis.
type Completer struct {
	model   llm.Model
	global  *semaphore.Weighted
	perRun  int
	grammar examparser.Grammar
	log     zerolog.Logger
}

// NewCompleter creates a Completer. global caps supplemental calls across all
// runs in the process; perRun caps them within one run.
func NewCompleter(m llm.Model, global *semaphore.Weighted, perRun int, log zerolog.Logger) *Completer {
	if perRun < 1 {
		perRun = 1
	}
	return &Completer{
		model:   m,
		global:  global,
		perRun:  perRun,
		grammar: examparser.DefaultGrammar,
		log:     log.With().Str("component", "answer_completer").Logger(),
	}
}

// Complete issues one supplemental call per incomplete entry and fills the
// missing fields in place. Entries that stay incomplete are flagged. A failed
// entry never affects the others.
func (c *Completer) Complete(ctx context.Context, entries []examparser.Entry, qt model.QuestionType) CompletionReport {
	var (
		g        errgroup.Group
		repaired atomic.Int32
		report   CompletionReport
	)
	g.SetLimit(c.perRun)

	for i := range entries {
		if entries[i].Complete() {
			continue
		}
		report.Attempted++
		e := &entries[i]
		idx := i
		g.Go(func() error {
			if err := c.completeOne(ctx, e, qt); err != nil {
				c.log.Warn().Err(err).Int("entry", idx).Msg("Supplemental completion failed")
			}
			if e.Complete() {
				repaired.Add(1)
			} else {
				e.Flagged = true
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Repaired = int(repaired.Load())
	for i := range entries {
		if entries[i].Flagged {
			report.Flagged++
		}
	}
	return report
}

func (c *Completer) completeOne(ctx context.Context, e *examparser.Entry, qt model.QuestionType) error {
	if c.global != nil {
		if err := c.global.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("wait for completion slot: %w", err)
		}
		defer c.global.Release(1)
	}

	reply, err := c.model.Complete(ctx, supplementPrompt(e, qt))
	if err != nil {
		return err
	}

	answer, analysis := c.readSupplement(reply)
	if strings.TrimSpace(e.CorrectAnswer) == "" {
		e.CorrectAnswer = answer
	}
	if strings.TrimSpace(e.Analysis) == "" {
		e.Analysis = analysis
	}
	return nil
}

func supplementPrompt(e *examparser.Entry, qt model.QuestionType) string {
	var b strings.Builder
	b.WriteString("You are an experienced teacher. Give the correct answer and a short analysis for the question below.\n")
	fmt.Fprintf(&b, "Question type: %s\n\nQuestion:\n%s\n", qt.Label(), e.Stem)
	if len(e.Options) > 0 {
		b.WriteString("\nOptions:\n")
		for _, o := range e.Options {
			fmt.Fprintf(&b, "%s. %s\n", o.Label, o.Text)
		}
	}
	b.WriteString("\nReply with exactly two lines and nothing else:\n")
	b.WriteString("Answer: <option letter(s) or answer text>\n")
	b.WriteString("Analysis: <one short paragraph>")
	return b.String()
}

// readSupplement pulls the answer and analysis lines out of a reply using the
// same markers as the exam grammar.
func (c *Completer) readSupplement(reply string) (answer, analysis string) {
	inAnalysis := false
	sc := bufio.NewScanner(strings.NewReader(llm.StripCodeFences(reply)))
	for sc.Scan() {
		tok, ok := c.grammar.Classify(sc.Text())
		if !ok {
			continue
		}
		switch tok.Kind {
		case examparser.KindAnswer:
			if answer == "" {
				answer = tok.Text
			}
			inAnalysis = false
		case examparser.KindAnalysis:
			if analysis == "" {
				analysis = tok.Text
				inAnalysis = true
			}
		case examparser.KindBlank:
			inAnalysis = false
		default:
			if inAnalysis && sc.Text() != "" {
				analysis = joinLine(analysis, strings.TrimSpace(sc.Text()))
			}
		}
	}
	return answer, analysis
}

func joinLine(base, next string) string {
	if base == "" {
		return next
	}
	return base + "\n" + next
}

package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examgen/internal/llm"
	"github.com/stemsi/exstem-examgen/internal/model"
)

// StreamResult is the buffered output of one successful stream.
type StreamResult struct {
	Text  string
	Usage *model.Usage
}

// Streamer drives one streaming call per run.
type Streamer struct {
	model llm.Model
	log   zerolog.Logger
}

// NewStreamer creates a Streamer.
func NewStreamer(m llm.Model, log zerolog.Logger) *Streamer {
	return &Streamer{
		model: m,
		log:   log.With().Str("component", "generation_stream").Logger(),
	}
}

// Run streams prompt, appending every delta to the buffer and handing it to
// emit before the next delta is read. When emit fails or ctx is cancelled the
// upstream call is aborted and the buffer is dropped.
func (s *Streamer) Run(ctx context.Context, prompt string, ref model.ResourceRef, emit func(string) error) (*StreamResult, error) {
	var (
		buf     strings.Builder
		emitErr error
		chunks  int
	)

	usage, err := s.model.Stream(ctx, prompt, func(delta string) error {
		buf.WriteString(delta)
		chunks++
		if err := emit(delta); err != nil {
			emitErr = err
			return err
		}
		return nil
	})

	switch {
	case emitErr != nil:
		s.log.Info().Str("resource", ref.String()).Int("chunks", chunks).Msg("Stream consumer went away")
		return nil, fmt.Errorf("%w: %v", ErrStreamCancelled, emitErr)
	case errors.Is(ctx.Err(), context.Canceled):
		s.log.Info().Str("resource", ref.String()).Int("chunks", chunks).Msg("Stream cancelled by caller")
		return nil, fmt.Errorf("%w: %v", ErrStreamCancelled, ctx.Err())
	case ctx.Err() != nil:
		return nil, &llm.UpstreamError{Op: "stream", Err: ctx.Err()}
	case err != nil:
		var ue *llm.UpstreamError
		if !errors.As(err, &ue) {
			err = &llm.UpstreamError{Op: "stream", Err: err}
		}
		s.log.Warn().Err(err).Str("resource", ref.String()).Int("chunks", chunks).Msg("Stream failed mid-run")
		return nil, err
	}

	s.log.Debug().Str("resource", ref.String()).Int("chunks", chunks).Int("bytes", buf.Len()).Msg("Stream finished")
	return &StreamResult{Text: buf.String(), Usage: usage}, nil
}

package parser

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/randomizedcoder/go-whisper-runner/internal/events"
)

// LineRecorder receives every raw line, including suppressed ones.
// *logging.RunLog implements it.
type LineRecorder interface {
	Line(origin, text string)
}

// ProcessorConfig holds configuration for a Processor.
type ProcessorConfig struct {
	// TotalSeconds is the known audio duration, or nil.
	TotalSeconds *float64

	// Sink receives progress, output-line and error-line events. JobID, Seq
	// and Time are left for the caller to stamp.
	Sink events.Sink

	// Recorder receives every raw line. Optional.
	Recorder LineRecorder

	Logger *slog.Logger
}

// Stats are the processor's line counters.
type Stats struct {
	StdoutLines int64
	StderrLines int64
	Bytes       int64
	Emitted     int64 // events emitted
	Suppressed  int64 // lines kept out of the event stream
	Progress    int64 // progress samples emitted
	Truncated   int64 // over-long lines cut to their prefix
}

// Processor consumes the two output streams of one process.
//
// One reader goroutine per stream feeds an unbuffered channel; a single
// consumer classifies lines and emits events. Lines are never dropped, so a
// slow sink applies backpressure to the process. Events keep production
// order within each stream; there is no ordering across streams.
type Processor struct {
	norm     Normalizer
	sink     events.Sink
	recorder LineRecorder
	logger   *slog.Logger

	stdoutLines atomic.Int64
	stderrLines atomic.Int64
	bytes       atomic.Int64
	emitted     atomic.Int64
	suppressed  atomic.Int64
	progress    atomic.Int64
	truncated   atomic.Int64
}

// NewProcessor creates a processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	sink := cfg.Sink
	if sink == nil {
		sink = events.Discard
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Processor{
		norm:     NewNormalizer(cfg.TotalSeconds),
		sink:     sink,
		recorder: cfg.Recorder,
		logger:   logger,
	}
}

// Run reads stdout and stderr to EOF, emitting events as lines arrive. It
// returns after every line has been handled, with the first read error.
// Either reader may be nil.
func (p *Processor) Run(ctx context.Context, stdout, stderr io.Reader) error {
	lines := make(chan RawLine)

	g, gctx := errgroup.WithContext(ctx)
	if stdout != nil {
		r := NewPipeReader(stdout, OriginStdout, lines)
		g.Go(func() error { return r.Run(gctx) })
	}
	if stderr != nil {
		r := NewPipeReader(stderr, OriginStderr, lines)
		g.Go(func() error { return r.Run(gctx) })
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for l := range lines {
			p.handle(l)
		}
	}()

	err := g.Wait()
	close(lines)
	<-done

	if err != nil {
		p.logger.Warn("stream_read_failed", "error", err)
	}
	return err
}

// handle is called only from the consumer goroutine.
func (p *Processor) handle(l RawLine) {
	if l.Origin == OriginStderr {
		p.stderrLines.Add(1)
	} else {
		p.stdoutLines.Add(1)
	}
	p.bytes.Add(int64(len(l.Text) + 1))
	if l.Truncated {
		p.truncated.Add(1)
		p.logger.Warn("output_line_truncated", "stream", l.Origin.String(), "max_bytes", maxLineSize)
	}

	if p.recorder != nil {
		p.recorder.Line(l.Origin.String(), l.Text)
	}

	c := p.norm.Classify(l)
	switch c.Kind {
	case KindEmpty:
	case KindSegment:
		p.emitProgress(c.Sample)
		p.emit(events.Event{Type: events.TypeOutputLine, Text: l.Text})
	case KindPercentage:
		p.emitProgress(c.Sample)
	case KindOutput:
		p.emit(events.Event{Type: events.TypeOutputLine, Text: l.Text})
	case KindError:
		p.emit(events.Event{Type: events.TypeErrorLine, Text: l.Text})
	case KindSuppressed:
		p.suppressed.Add(1)
	}
}

func (p *Processor) emitProgress(s *ProgressSample) {
	p.progress.Add(1)
	p.emit(events.Event{
		Type: events.TypeProgress,
		Progress: &events.Progress{
			CurrentSeconds: s.CurrentSeconds,
			TotalSeconds:   s.TotalSeconds,
			Percentage:     s.Percentage,
		},
	})
}

func (p *Processor) emit(e events.Event) {
	p.emitted.Add(1)
	p.sink.Emit(e)
}

// Stats returns the processor counters. Safe to call concurrently with Run.
func (p *Processor) Stats() Stats {
	return Stats{
		StdoutLines: p.stdoutLines.Load(),
		StderrLines: p.stderrLines.Load(),
		Bytes:       p.bytes.Load(),
		Emitted:     p.emitted.Load(),
		Suppressed:  p.suppressed.Load(),
		Progress:    p.progress.Load(),
		Truncated:   p.truncated.Load(),
	}
}

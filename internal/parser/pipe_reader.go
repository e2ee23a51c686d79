package parser

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
)

// Read buffer sizes for whisper output lines. Lines longer than maxLineSize
// are cut to their first maxLineSize bytes; the rest of the line is read and
// discarded.
const (
	initialLineBuffer = 64 * 1024
	maxLineSize       = 1024 * 1024
)

// PipeReader reads lines from one process output pipe and forwards them,
// tagged with their origin, to a shared channel. It never drops a line: a
// send blocks until the consumer takes it.
type PipeReader struct {
	reader io.Reader
	origin Origin
	out    chan<- RawLine
}

// NewPipeReader creates a reader for r. r is typically cmd.StdoutPipe() or
// cmd.StderrPipe().
func NewPipeReader(r io.Reader, origin Origin, out chan<- RawLine) *PipeReader {
	return &PipeReader{
		reader: r,
		origin: origin,
		out:    out,
	}
}

// Run reads lines until EOF. It returns nil at EOF, ctx.Err() when ctx is
// done before a line could be delivered, or the read error.
func (p *PipeReader) Run(ctx context.Context) error {
	br := bufio.NewReaderSize(p.reader, initialLineBuffer)
	var line []byte
	truncated := false

	for {
		chunk, err := br.ReadSlice('\n')

		if room := maxLineSize - len(line); len(chunk) <= room {
			line = append(line, chunk...)
		} else {
			line = append(line, chunk[:room]...)
			truncated = true
		}

		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read %s: %w", p.origin, err)
		}

		if len(line) > 0 || truncated {
			l := NewRawLine(p.origin, trimNewline(line))
			l.Truncated = truncated
			select {
			case p.out <- l:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err != nil {
			return nil
		}
		line = line[:0]
		truncated = false
	}
}

func trimNewline(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\n' {
		return b[:n-1]
	}
	return b
}

package parser

import "strings"

// Origin identifies the output stream a line came from.
type Origin int

const (
	OriginStdout Origin = iota
	OriginStderr
)

// String returns "stdout" or "stderr", the tag used in run logs.
func (o Origin) String() string {
	switch o {
	case OriginStdout:
		return "stdout"
	case OriginStderr:
		return "stderr"
	default:
		return "unknown"
	}
}

// RawLine is one line of process output tagged with its origin.
type RawLine struct {
	Origin    Origin
	Text      string
	Truncated bool // cut to maxLineSize bytes
}

// NewRawLine builds a RawLine from scanner bytes. Malformed UTF-8 byte
// sequences are removed and a trailing carriage return is dropped.
func NewRawLine(origin Origin, b []byte) RawLine {
	text := strings.ToValidUTF8(string(b), "")
	text = strings.TrimSuffix(text, "\r")
	return RawLine{Origin: origin, Text: text}
}

package process

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"time"
)

// Stream identifies the pipe a line was read from.
type Stream string

// Output streams.
const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// maxLineLength caps a single OutputEvent. Longer lines are split into
// chunks; every chunk but the last has Partial set.
const maxLineLength = 64 * 1024

// OutputEvent is one line of worker output.
type OutputEvent struct {
	Stream Stream
	Line   string
	Time   time.Time
	// Partial means the line continues in the next event of this stream.
	Partial bool
}

// decodeLine turns raw pipe bytes into text. Invalid UTF-8 is replaced
// instead of rejected so a garbled line never stops the reader.
func decodeLine(raw []byte) string {
	raw = bytes.TrimRight(raw, "\r\n")
	return strings.ToValidUTF8(string(raw), "\uFFFD")
}

// readLines reads r until EOF and calls emit for every line.
// Lines longer than maxLineLength are emitted in chunks.
func readLines(r io.Reader, stream Stream, emit func(OutputEvent)) error {
	reader := bufio.NewReaderSize(r, maxLineLength)
	for {
		chunk, err := reader.ReadSlice('\n')
		if len(chunk) > 0 {
			emit(OutputEvent{
				Stream:  stream,
				Line:    decodeLine(chunk),
				Time:    time.Now(),
				Partial: errors.Is(err, bufio.ErrBufferFull),
			})
		}
		switch {
		case err == nil, errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			return nil
		default:
			return err
		}
	}
}

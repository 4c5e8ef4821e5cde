package transport

import (
	"bufio"
	"bytes"
	"io"
)

// LineSource yields newline-delimited messages. ReadLine blocks until a full
// line is available and returns io.EOF (or the underlying error) once the
// stream ends; it never returns a partial line.
type LineSource interface {
	ReadLine() ([]byte, error)
}

// Conn is a full-duplex line transport.
type Conn interface {
	LineSource
	WriteLine(line []byte) error
	Close() error
}

// lineScanner reads newline-delimited lines of any length.
type lineScanner struct {
	r *bufio.Reader
}

func newLineScanner(r io.Reader) *lineScanner {
	return &lineScanner{r: bufio.NewReaderSize(r, 64*1024)}
}

// ReadLine returns the next line with its "\n" or "\r\n" terminator removed.
// A final unterminated line is returned before io.EOF.
func (s *lineScanner) ReadLine() ([]byte, error) {
	line, err := s.r.ReadBytes('\n')
	if err != nil {
		if err == io.EOF && len(line) > 0 {
			return trimEOL(line), nil
		}
		return nil, err
	}
	return trimEOL(line), nil
}

func trimEOL(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte{'\n'})
	return bytes.TrimSuffix(line, []byte{'\r'})
}

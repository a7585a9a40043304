package formats

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

const readBufferSize = 1024 * 1024 * 2

// lineReader yields lines without their terminator and remembers where each
// started, for error reporting.
type lineReader struct {
	r      *bufio.Reader
	line   int
	offset int64 // start of the current line
	next   int64 // start of the following line
}

func newLineReader(r io.Reader) *lineReader {
	br, ok := r.(*bufio.Reader)
	if !ok || br.Size() < readBufferSize {
		br = bufio.NewReaderSize(r, readBufferSize)
	}
	return &lineReader{r: br}
}

// Next returns the next line. ok is false at end of input.
func (lr *lineReader) Next() (line string, ok bool, err error) {
	s, err := lr.r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", false, err
	}
	if s == "" && errors.Is(err, io.EOF) {
		return "", false, nil
	}
	lr.line++
	lr.offset = lr.next
	lr.next += int64(len(s))
	s = strings.TrimSuffix(s, "\n")
	s = strings.TrimSuffix(s, "\r")
	return s, true, nil
}

package pipe

import (
	"fmt"
	"strings"
)

// SubprocessError reports a wrapped tool that failed to start, exited
// non-zero, or timed out. ExitCode is -1 when there is no exit status.
type SubprocessError struct {
	ExitCode int
	Stderr   string
	Command  []string
	Err      error
}

func (e *SubprocessError) Error() string {
	name := "command"
	if len(e.Command) > 0 {
		name = e.Command[0]
	}
	var msg string
	if e.ExitCode >= 0 {
		msg = fmt.Sprintf("%s exited with status %d", name, e.ExitCode)
	} else {
		msg = fmt.Sprintf("%s failed", name)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if s := lastLine(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *SubprocessError) Unwrap() error { return e.Err }

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return s
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit     int
	buf       []byte
	truncated bool
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
		b.truncated = true
	}
	return n, nil
}

// String returns the kept tail, prefixed with "..." when earlier output
// was dropped.
func (b *tailBuffer) String() string {
	s := strings.TrimSpace(string(b.buf))
	if b.truncated && s != "" {
		return "..." + s
	}
	return s
}

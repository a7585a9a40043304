package formats

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	simplejson "github.com/bitly/go-simplejson"
)

// NativeJSON is the engine's own line-delimited JSON format. Each line is an
// envelope {"type": kind, "record": {...}} so a file of one record type
// cannot be silently read as another.
type NativeJSON[T any] struct {
	kind string
}

// NewNative returns the native codec for records tagged kind.
func NewNative[T any](kind string) NativeJSON[T] {
	return NativeJSON[T]{kind: kind}
}

type envelope[T any] struct {
	Type   string `json:"type"`
	Record T      `json:"record"`
}

func (n NativeJSON[T]) Serialize(w io.Writer, recs []T) error {
	bw := bufio.NewWriter(w)
	for i, rec := range recs {
		b, err := json.Marshal(envelope[T]{Type: n.kind, Record: rec})
		if err != nil {
			return &EncodingError{Format: Native, Index: i, Err: err}
		}
		b = append(b, '\n')
		if _, err := bw.Write(b); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func (n NativeJSON[T]) Deserialize(r io.Reader) ([]T, error) {
	lr := newLineReader(r)
	var out []T
	for {
		line, ok, err := lr.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		if line == "" {
			continue
		}
		rec, err := n.decodeLine([]byte(line))
		if err != nil {
			return nil, &DecodingError{Format: Native, Line: lr.line, Offset: lr.offset, Err: err}
		}
		out = append(out, rec)
	}
}

func (n NativeJSON[T]) decodeLine(line []byte) (T, error) {
	var rec T
	js, err := simplejson.NewJson(line)
	if err != nil {
		return rec, err
	}
	kind, err := js.Get("type").String()
	if err != nil {
		return rec, fmt.Errorf("missing record type")
	}
	if kind != n.kind {
		return rec, fmt.Errorf("record type %q, want %q", kind, n.kind)
	}
	body, ok := js.CheckGet("record")
	if !ok {
		return rec, fmt.Errorf("missing record body")
	}
	raw, err := body.Encode()
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, err
	}
	return rec, nil
}

package protocol

import (
	"bytes"
	"encoding/json"
)

// FrameKind discriminates the two unit shapes on the wire.
type FrameKind int

const (
	FrameToken FrameKind = iota
	FrameJSON
)

// Frame is one complete unit extracted from the stream. Token frames carry
// the colon-split fields (Fields[0] is the keyword); JSON frames carry the
// raw balanced object or array bytes.
type Frame struct {
	Kind   FrameKind
	Fields []string
	Raw    []byte
}

// Keyword returns the command keyword of a token frame, "" otherwise.
func (f Frame) Keyword() string {
	if f.Kind == FrameToken && len(f.Fields) > 0 {
		return f.Fields[0]
	}
	return ""
}

// Decoder incrementally extracts complete frames from an append-only byte
// buffer. Bytes are consumed exactly once and a frame is only emitted once
// fully present, so feeding the stream split, merged, or byte-by-byte yields
// the same frame sequence as feeding it whole.
type Decoder struct {
	known map[string]struct{}
	buf   []byte
}

// NewDecoder returns a decoder accepting the given keyword set for token
// frames. Server-side connections use ClientKeywords, client-side listeners
// use ServerKeywords.
func NewDecoder(known map[string]struct{}) *Decoder {
	return &Decoder{known: known}
}

// Write appends newly arrived bytes to the buffer.
func (d *Decoder) Write(p []byte) {
	d.buf = append(d.buf, p...)
}

// Buffered reports the number of unconsumed bytes.
func (d *Decoder) Buffered() int { return len(d.buf) }

// Next extracts the next complete frame from the front of the buffer.
// It returns false when the buffer holds no complete unit; callers then
// wait for more bytes. Malformed units (unknown keyword, invalid JSON) are
// consumed and skipped, never surfaced, and never close the stream.
func (d *Decoder) Next() (Frame, bool) {
	for {
		d.buf = trimLeading(d.buf)
		if len(d.buf) == 0 {
			return Frame{}, false
		}

		if c := d.buf[0]; c == '{' || c == '[' {
			raw, rest, complete := scanBalanced(d.buf, c)
			if !complete {
				// wait for the closing delimiter
				return Frame{}, false
			}
			d.buf = rest
			if !json.Valid(raw) {
				// discard and resync at the next opener
				continue
			}
			return Frame{Kind: FrameJSON, Raw: raw}, true
		}

		nl := bytes.IndexByte(d.buf, '\n')
		if nl < 0 {
			return Frame{}, false
		}
		lineBytes := bytes.TrimRight(d.buf[:nl], "\r")
		d.buf = d.buf[nl+1:]

		fields := splitFields(lineBytes)
		if len(fields) == 0 {
			continue
		}
		if _, ok := d.known[fields[0]]; !ok {
			continue
		}
		return Frame{Kind: FrameToken, Fields: fields}, true
	}
}

func trimLeading(b []byte) []byte {
	i := 0
	for i < len(b) && (b[i] == '\n' || b[i] == '\r' || b[i] == ' ' || b[i] == '\t') {
		i++
	}
	return b[i:]
}

// scanBalanced walks the buffer counting opener/closer pairs until the count
// returns to zero. Per the wire contract every opener counts, including ones
// inside strings; payload fields never contain raw braces.
func scanBalanced(b []byte, open byte) (unit, rest []byte, complete bool) {
	closer := byte('}')
	if open == '[' {
		closer = ']'
	}
	depth := 0
	for i := 0; i < len(b); i++ {
		switch b[i] {
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return b[:i+1], b[i+1:], true
			}
		}
	}
	return nil, b, false
}

func splitFields(line []byte) []string {
	if len(line) == 0 {
		return nil
	}
	parts := bytes.Split(line, []byte{':'})
	fields := make([]string, len(parts))
	for i, p := range parts {
		fields[i] = string(p)
	}
	return fields
}

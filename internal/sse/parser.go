// Package sse parses server-sent-event frames out of a raw byte stream.
// The parser is push-driven: callers feed it whatever fragments the
// transport hands them, with no alignment between fragment boundaries
// and frame boundaries.
package sse

import "strings"

// doneSentinel is the literal payload upstreams send to close a stream.
const doneSentinel = "[DONE]"

// Frame is one complete SSE event payload. Multi-line data frames are
// joined with a single newline, per the SSE wire format.
type Frame struct {
	Data string
	// Done is set when the payload is the [DONE] sentinel; Data is empty
	// in that case.
	Done bool
}

// Parser accumulates bytes across Feed calls and emits complete frames.
// The zero value is ready to use. Not safe for concurrent use; each
// upstream stream gets its own Parser.
type Parser struct {
	buf       strings.Builder // trailing partial line
	dataLines []string        // data lines of the frame being assembled
	dropped   int
}

// Feed appends a fragment and returns every frame completed by it. A
// fragment may complete zero, one, or many frames.
func (p *Parser) Feed(fragment []byte) []Frame {
	if len(fragment) == 0 {
		return nil
	}
	p.buf.Write(fragment)
	text := p.buf.String()

	idx := strings.LastIndexByte(text, '\n')
	if idx < 0 {
		return nil
	}
	complete := text[:idx]
	p.buf.Reset()
	p.buf.WriteString(text[idx+1:])

	var frames []Frame
	for _, line := range strings.Split(complete, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			if f, ok := p.dispatch(); ok {
				frames = append(frames, f)
			}
			continue
		}
		p.processLine(line)
	}
	return frames
}

// Flush drains any payload that was accumulated but never terminated by
// a blank line. Call it once at end of input.
func (p *Parser) Flush() (Frame, bool) {
	if tail := strings.TrimSuffix(p.buf.String(), "\r"); tail != "" {
		p.processLine(tail)
	}
	p.buf.Reset()
	return p.dispatch()
}

// Dropped returns how many non-frame lines the parser skipped. Exposed
// so malformed upstream traffic can be diagnosed without breaking the
// stream.
func (p *Parser) Dropped() int { return p.dropped }

func (p *Parser) processLine(line string) {
	if strings.HasPrefix(line, ":") {
		// Comment / keepalive line.
		return
	}
	if data, ok := strings.CutPrefix(line, "data:"); ok {
		p.dataLines = append(p.dataLines, strings.TrimPrefix(data, " "))
		return
	}
	// Fields other than data (event:, id:, retry:) are not used by any
	// upstream this service talks to.
	p.dropped++
}

func (p *Parser) dispatch() (Frame, bool) {
	if len(p.dataLines) == 0 {
		return Frame{}, false
	}
	payload := strings.Join(p.dataLines, "\n")
	p.dataLines = nil
	if payload == doneSentinel {
		return Frame{Done: true}, true
	}
	return Frame{Data: payload}, true
}

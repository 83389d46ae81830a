package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"inlinecomplete/logger"
)

// EventCompletion is the event name of frames carrying the full cumulative
// completion text. Only these are coalesced by an aggregating Parser.
const EventCompletion = "completion"

// DoneData is the data sentinel some backends send to end a stream
const DoneData = "[DONE]"

var frameTerminator = []byte("\n\n")

// Message is one server-sent frame
type Message struct {
	Event string
	Data  string
}

// Parser frames a chunked byte stream into messages. Bytes of an incomplete
// frame are kept until a later chunk terminates it.
type Parser struct {
	// Aggregate drops a completion frame when the next frame of the same
	// chunk is also a completion frame.
	Aggregate bool

	buf []byte
}

// Feed appends a raw chunk and returns every frame it completed
func (p *Parser) Feed(chunk []byte) []Message {
	p.buf = append(p.buf, chunk...)

	var msgs []Message
	for {
		i := bytes.Index(p.buf, frameTerminator)
		if i < 0 {
			break
		}
		frame := string(p.buf[:i])
		p.buf = p.buf[i+len(frameTerminator):]
		if msg, ok := parseFrame(frame); ok {
			msgs = append(msgs, msg)
		}
	}
	if len(p.buf) == 0 {
		p.buf = nil
	}

	if p.Aggregate {
		msgs = coalesce(msgs)
	}
	return msgs
}

// Flush returns the frame left in the buffer when the stream ends without a
// trailing blank line.
func (p *Parser) Flush() (Message, bool) {
	frame := strings.TrimRight(string(p.buf), "\n")
	p.buf = nil
	if frame == "" {
		return Message{}, false
	}
	return parseFrame(frame)
}

func parseFrame(frame string) (Message, bool) {
	var msg Message
	var data []string
	known := false

	for _, line := range strings.Split(frame, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		name, value, found := strings.Cut(line, ": ")
		if !found {
			name = strings.TrimSuffix(line, ":")
		}
		switch name {
		case "event":
			msg.Event = value
			known = true
		case "data":
			data = append(data, value)
			known = true
		default:
			logger.Debug("sse: ignoring unknown header %q", name)
		}
	}
	msg.Data = strings.Join(data, "\n")
	return msg, known
}

func coalesce(msgs []Message) []Message {
	out := msgs[:0]
	for i, msg := range msgs {
		if msg.Event == EventCompletion && i+1 < len(msgs) && msgs[i+1].Event == EventCompletion {
			continue
		}
		out = append(out, msg)
	}
	return out
}

type reader struct {
	r       io.Reader
	parser  Parser
	pending []Message
	buf     []byte
	eof     bool
}

// Reader returns a stream of the messages framed from r. Every Read result
// is fed to the parser as one raw chunk. The context is checked at each
// chunk boundary.
func Reader(r io.Reader, aggregate bool) Stream[Message] {
	return &reader{
		r:      r,
		parser: Parser{Aggregate: aggregate},
		buf:    make([]byte, 4096),
	}
}

func (rd *reader) Next(ctx context.Context) (Message, error) {
	for len(rd.pending) == 0 {
		if rd.eof {
			return Message{}, Done
		}
		if err := ctx.Err(); err != nil {
			return Message{}, err
		}

		n, err := rd.r.Read(rd.buf)
		if n > 0 {
			rd.pending = append(rd.pending, rd.parser.Feed(rd.buf[:n])...)
		}
		if errors.Is(err, io.EOF) {
			rd.eof = true
			if msg, ok := rd.parser.Flush(); ok {
				rd.pending = append(rd.pending, msg)
			}
		} else if err != nil {
			return Message{}, err
		}
	}

	msg := rd.pending[0]
	rd.pending = rd.pending[1:]
	return msg, nil
}

package ami

import (
	"bytes"

	"github.com/stumpf-works/asterisk-ami/pkg/amierr"
)

// DefaultBufferCapacity bounds how much unconsumed input the parser will
// hold before declaring the stream malformed. A single message (or a run
// of messages with no blank-line terminator in sight) that exceeds this
// is fatal -- truncation is never silent.
const DefaultBufferCapacity = 1 << 20 // 1 MiB

const (
	lineTerm   = "\r\n"
	frameTerm  = "\r\n\r\n"
	cmdEndLine = "--END COMMAND--"
)

// parser splits an incoming byte stream into complete messages. It owns
// an internal buffer of bytes not yet resolved into a message; Feed
// appends to that buffer and extracts zero or more fully-assembled
// messages per call.
type parser struct {
	buf      []byte
	capacity int
}

func newParser(capacity int) *parser {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &parser{capacity: capacity}
}

// feed appends data to the internal buffer and returns every message
// that is now fully framed (terminated by a blank line). An oversize
// buffer is a fatal protocol error: the caller must tear the session
// down. Lines without a colon are not treated as errors; parseMessage
// folds them into an Output field.
func (p *parser) feed(data []byte) ([]*Message, error) {
	p.buf = append(p.buf, data...)
	if len(p.buf) > p.capacity {
		return nil, amierr.Protocol("message exceeds buffer capacity", nil)
	}

	var messages []*Message
	for {
		idx := bytes.Index(p.buf, []byte(frameTerm))
		if idx == -1 {
			break
		}
		raw := p.buf[:idx]
		p.buf = p.buf[idx+len(frameTerm):]

		msg, err := parseMessage(raw)
		if err != nil {
			return messages, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// parseMessage splits raw (the bytes between frame terminators) into
// Key: Value lines. A line with no colon is legacy command output
// (Response: Follows responses interleave raw text with the framed
// key/value lines); those bytes accumulate into a single "Output"
// field, newline-joined, and the literal --END COMMAND-- marker line
// ends that accumulation without being added to the output text.
func parseMessage(raw []byte) (*Message, error) {
	msg := &Message{}
	var output []byte
	haveOutput := false

	for _, line := range bytes.Split(raw, []byte(lineTerm)) {
		if len(line) == 0 {
			continue
		}
		if string(line) == cmdEndLine {
			continue
		}

		idx := bytes.IndexByte(line, ':')
		if idx == -1 {
			if haveOutput {
				output = append(output, '\n')
			}
			output = append(output, line...)
			haveOutput = true
			continue
		}

		key := string(line[:idx])
		value := line[idx+1:]
		if len(value) > 0 && value[0] == ' ' {
			value = value[1:]
		}
		msg.Add(key, string(value))
	}

	if haveOutput {
		msg.Add("Output", string(output))
	}
	return msg, nil
}

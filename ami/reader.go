package ami

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/stumpf-works/asterisk-ami/pkg/amierr"
)

const readChunkSize = 4096

// readLoop owns the read half of the socket. It runs in its own
// goroutine, started by Connect once the banner has been consumed. It
// is the sole consumer of the connection's read side; callers never
// read directly.
func (s *Session) readLoop(br *bufio.Reader) {
	defer close(s.readerDone)

	p := newParser(s.bufferCapacity)
	buf := make([]byte, readChunkSize)

	for {
		n, err := br.Read(buf)
		if n > 0 {
			messages, ferr := p.feed(buf[:n])
			for _, msg := range messages {
				s.dispatch(msg)
			}
			if ferr != nil {
				s.fail(ferr)
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.fail(amierr.Connection("connection closed by peer", err))
			} else {
				s.fail(amierr.Connection("read error", err))
			}
			return
		}
	}
}

// dispatch classifies one complete message and routes it: to a
// pending action's rendezvous slot, or to the user event callback for
// anything unsolicited. This runs entirely in the reader goroutine, so
// the event callback executes synchronously in the reader's context --
// it must never call Action on the same session, which would deadlock.
func (s *Session) dispatch(msg *Message) {
	if idStr, ok := msg.Get("ActionID"); ok {
		if id, err := strconv.Atoi(strings.TrimSpace(idStr)); err == nil {
			if s.routeToPending(id, msg) {
				return
			}
		}
	}
	s.emitEvent(msg)
}

// routeToPending delivers msg to the pending call for id, if one
// exists. A message for an id with no pending caller (including late
// arrivals after a timeout reclaimed the slot) is logged and
// discarded. Returns false only for a continuation that arrived before
// its head, in which case the caller should treat msg as an
// unsolicited event instead.
func (s *Session) routeToPending(id int, msg *Message) bool {
	s.pendingMu.Lock()
	entry, ok := s.pending[id]
	if !ok {
		s.pendingMu.Unlock()
		s.log().Info().Int("action_id", id).Msg("response for unknown or expired action id, discarding")
		return true
	}

	if _, isHead := msg.Get("Response"); isHead && entry.response == nil {
		entry.response = newResponse(id, msg)
		if !responseAwaitsContinuation(entry.response) {
			delete(s.pending, id)
			s.pendingMu.Unlock()
			entry.deliver(entry.response)
			return true
		}
		s.pendingMu.Unlock()
		return true
	}

	if entry.response == nil {
		// A continuation arrived before its head; spec has no
		// defined shape for this, treat as an anomaly and surface
		// it as an unsolicited event instead of corrupting state.
		s.pendingMu.Unlock()
		return false
	}

	entry.response.append(msg)
	if responseTerminates(msg) {
		delete(s.pending, id)
		s.pendingMu.Unlock()
		entry.deliver(entry.response)
		return true
	}
	s.pendingMu.Unlock()
	return true
}

// responseAwaitsContinuation reports whether a freshly-arrived head
// message signals more messages are coming (EventList: start).
// Everything else -- including the legacy Response:
// Follows form, whose output is already folded into the single head
// message by the parser -- is complete as soon as the head arrives.
func responseAwaitsContinuation(r *Response) bool {
	head := r.Head()
	if head == nil {
		return false
	}
	v, ok := head.Get("EventList")
	return ok && strings.EqualFold(v, "start")
}

// responseTerminates reports whether a continuation message is the
// sentinel that closes a multi-part response (EventList: Complete).
func responseTerminates(msg *Message) bool {
	v, ok := msg.Get("EventList")
	return ok && strings.EqualFold(v, "complete")
}

// emitEvent invokes the user event callback, if one was supplied to
// Connect. Delivered in exact wire arrival order since this runs
// synchronously in the single reader goroutine.
func (s *Session) emitEvent(msg *Message) {
	if s.eventCB == nil {
		return
	}
	s.eventCB(s, msg)
}

package ami

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/stumpf-works/asterisk-ami/pkg/amierr"
)

// DefaultActionTimeout is how long a pending action waits for its
// response before the caller is released with a timeout failure.
const DefaultActionTimeout = 1 * time.Second

// Param is one outbound key/value pair for an Action. Fields are sent
// in the order given -- unlike the map-based parameter bags this
// client's predecessor used, ordering here is deterministic, which
// matters for actions whose server-side semantics depend on field
// order and for reproducing scripted-server test traffic exactly.
type Param struct {
	Key   string
	Value string
}

// pendingEntry is the rendezvous slot for one outstanding action.
// response accumulates messages as they arrive in the reader
// goroutine; done is closed exactly once to release the waiting
// caller. deliver is called only by whoever removes the entry from the
// pending table under pendingMu -- the reader goroutine on completion,
// or failPending on shutdown -- so a single deliver call per entry is
// guaranteed without further locking.
type pendingEntry struct {
	response *Response
	done     chan struct{}
	result   *Response
}

func newPendingEntry() *pendingEntry {
	return &pendingEntry{done: make(chan struct{})}
}

// deliver hands the completed response to the waiting caller.
func (p *pendingEntry) deliver(r *Response) {
	p.result = r
	close(p.done)
}

// Action sends an action to Asterisk and blocks until the reader
// assembles a matching response, the session fails, or the action
// times out. name and params must not contain embedded CR/LF; a
// parameter that does is rejected as a usage error rather than
// corrupting the outbound frame.
func (s *Session) Action(name string, params ...Param) (*Response, error) {
	return s.ActionContext(context.Background(), name, params...)
}

// ActionContext is Action with an explicit context for cancellation in
// addition to the session's own default action timeout.
func (s *Session) ActionContext(ctx context.Context, name string, params ...Param) (*Response, error) {
	if s.stateValue() != stateAuthenticated && s.stateValue() != stateConnected {
		return nil, amierr.Usage("action called on a session that is not connected", nil)
	}
	if err := validateNoCRLF(name); err != nil {
		return nil, err
	}
	for _, p := range params {
		if err := validateNoCRLF(p.Key); err != nil {
			return nil, err
		}
		if err := validateNoCRLF(p.Value); err != nil {
			return nil, err
		}
	}

	id := int(s.nextActionID.Add(1))
	entry := newPendingEntry()

	s.pendingMu.Lock()
	s.pending[id] = entry
	s.pendingMu.Unlock()

	frame := buildActionFrame(name, id, params)

	s.writeMu.Lock()
	_, err := s.conn.Write(frame)
	s.writeMu.Unlock()
	if err != nil {
		s.removePending(id)
		return nil, amierr.Connection("failed to write action", err)
	}

	timeout := s.actionTimeout
	if timeout <= 0 {
		timeout = DefaultActionTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-entry.done:
		resp := entry.result
		if len(resp.Messages) == 0 {
			// Released by failPending during shutdown, not by a reply.
			return nil, amierr.Connection("session closed", nil)
		}
		if !resp.Success && s.discardOnFailureEnabled() {
			return nil, nil
		}
		return resp, nil
	case <-s.closed:
		s.removePending(id)
		return nil, amierr.Connection("session closed", nil)
	case <-timer.C:
		s.removePending(id)
		s.log().Debug().Int("action_id", id).Msg("action timed out waiting for response")
		return nil, amierr.Timeout("action timed out", nil)
	case <-ctx.Done():
		s.removePending(id)
		return nil, amierr.Timeout("action canceled", ctx.Err())
	}
}

func (s *Session) removePending(id int) {
	s.pendingMu.Lock()
	delete(s.pending, id)
	s.pendingMu.Unlock()
}

// ActionResponseResult inspects a response's success flag and
// discards it, returning a plain success/failure indicator. Matches
// ami_action_response_result in the C original: useful for "set"-style
// actions where the caller only cares whether it worked.
func (s *Session) ActionResponseResult(resp *Response) bool {
	if resp == nil {
		return false
	}
	return resp.Success
}

func validateNoCRLF(s string) error {
	if strings.ContainsAny(s, "\r\n") {
		return amierr.Usage("action parameter must not contain embedded CR/LF", nil)
	}
	return nil
}

// buildActionFrame serializes an action request:
//
//	Action: <name>\r\n
//	ActionID: <id>\r\n
//	<user params>\r\n
//	\r\n
func buildActionFrame(name string, id int, params []Param) []byte {
	var sb strings.Builder
	sb.WriteString("Action: ")
	sb.WriteString(name)
	sb.WriteString(lineTerm)
	sb.WriteString("ActionID: ")
	sb.WriteString(strconv.Itoa(id))
	sb.WriteString(lineTerm)
	for _, p := range params {
		sb.WriteString(p.Key)
		sb.WriteString(": ")
		sb.WriteString(p.Value)
		sb.WriteString(lineTerm)
	}
	sb.WriteString(lineTerm)
	return []byte(sb.String())
}

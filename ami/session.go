// Package ami implements a client for the Asterisk Manager Interface
// (AMI): a single long-lived duplex TCP session multiplexed between
// many concurrent action callers and a continuous unsolicited event
// stream.
package ami

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/stumpf-works/asterisk-ami/pkg/amierr"
)

// state is the session lifecycle:
// init -> connected -> authenticated -> (disconnecting ->) disconnected -> destroyed.
type state int32

const (
	stateInit state = iota
	stateConnected
	stateAuthenticated
	stateDisconnecting
	stateDisconnected
	stateDestroyed
)

// DefaultPort is the default AMI TCP port.
const DefaultPort = 5038

// EventCallback receives every unsolicited event delivered to a
// session, in exact wire arrival order. It runs in the reader
// goroutine's context and must never call Action on the same session
// -- doing so deadlocks the reader against itself.
type EventCallback func(s *Session, event *Message)

// DisconnectCallback fires at most once, when the session fails or the
// peer closes the connection. It is not invoked for a locally
// initiated Disconnect.
type DisconnectCallback func(s *Session)

// Session is a single connected, optionally authenticated AMI client
// instance. The zero value is not usable; construct one with Connect.
type Session struct {
	conn net.Conn

	writeMu sync.Mutex

	nextActionID atomic.Int64

	pendingMu sync.Mutex
	pending   map[int]*pendingEntry

	eventCB      EventCallback
	disconnectCB DisconnectCallback

	state          atomic.Int32
	closed         chan struct{}
	closeOnce      sync.Once
	disconnectOnce sync.Once
	readerDone     chan struct{}

	loggerPtr atomic.Pointer[zerolog.Logger]

	debugLevel       atomic.Int32
	discardOnFailure atomic.Bool

	actionTimeout   time.Duration
	bufferCapacity  int
	localDisconnect atomic.Bool
}

// Options configures a Session at Connect time. The zero value is a
// reasonable default (1s action timeout, 1MiB frame buffer, no
// debug logging).
type Options struct {
	// ActionTimeout bounds how long Action waits for a response.
	// Defaults to DefaultActionTimeout.
	ActionTimeout time.Duration
	// BufferCapacity bounds the frame parser's internal buffer.
	// Defaults to DefaultBufferCapacity.
	BufferCapacity int
	// DialTimeout bounds the initial TCP connect and banner read.
	// Defaults to 10s.
	DialTimeout time.Duration
	// DiscardOnFailure sets the initial value of the discard flag;
	// SetDiscardOnFailure can change it later.
	DiscardOnFailure bool
	// Logger, if non-nil, is used instead of a disabled logger. Use
	// SetDebug/SetDebugLevel to retarget after Connect.
	Logger *zerolog.Logger
}

// Connect opens a TCP connection to an Asterisk instance, consumes the
// greeting banner, and starts the reader goroutine. It does not log
// in; call Login (or Action("Login", ...)) once Connect returns.
func Connect(host string, port int, eventCB EventCallback, disconnectCB DisconnectCallback, opts Options) (*Session, error) {
	if port <= 0 {
		port = DefaultPort
	}
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}

	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, amierr.Connection("failed to connect to AMI", err)
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	s := &Session{
		conn:         conn,
		pending:      make(map[int]*pendingEntry),
		eventCB:      eventCB,
		disconnectCB: disconnectCB,
		closed:       make(chan struct{}),
		readerDone:   make(chan struct{}),

		actionTimeout:  opts.ActionTimeout,
		bufferCapacity: opts.BufferCapacity,
	}
	s.loggerPtr.Store(&logger)
	s.discardOnFailure.Store(opts.DiscardOnFailure)
	s.state.Store(int32(stateInit))

	br := bufio.NewReader(conn)
	if err := conn.SetReadDeadline(time.Now().Add(dialTimeout)); err != nil {
		conn.Close()
		return nil, amierr.Connection("failed to set banner read deadline", err)
	}
	banner, err := br.ReadString('\n')
	if err != nil {
		conn.Close()
		return nil, amierr.Connection("failed to read AMI banner", err)
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		conn.Close()
		return nil, amierr.Connection("failed to clear read deadline", err)
	}
	s.log().Debug().Str("banner", trimCRLF(banner)).Msg("received AMI banner")

	s.state.Store(int32(stateConnected))
	go s.readLoop(br)

	return s, nil
}

// Login issues the Login action. This must be the first action
// performed on a session.
func (s *Session) Login(username, secret string) error {
	resp, err := s.Action("Login", Param{Key: "Username", Value: username}, Param{Key: "Secret", Value: secret})
	if err != nil {
		return err
	}
	if resp == nil || !resp.Success {
		return amierr.Action("login failed", nil)
	}
	s.state.Store(int32(stateAuthenticated))
	return nil
}

// Disconnect initiates an orderly shutdown: sends Logoff, releases
// every pending caller, closes the connection, then waits for the
// reader goroutine to exit. The connection is closed outright, not
// half-closed, so messages the server is still sending are not
// drained. The disconnect callback is not invoked for a locally
// initiated Disconnect. Safe to call more than once.
func (s *Session) Disconnect() error {
	st := state(s.state.Load())
	if st == stateDisconnected || st == stateDestroyed {
		return nil
	}
	s.localDisconnect.Store(true)
	s.state.Store(int32(stateDisconnecting))

	s.writeMu.Lock()
	s.conn.Write([]byte("Action: Logoff" + lineTerm + lineTerm))
	s.writeMu.Unlock()

	s.closeOnce.Do(func() { close(s.closed) })
	s.failPending()

	s.conn.Close()
	<-s.readerDone

	s.state.Store(int32(stateDisconnected))
	return nil
}

// Destroy releases session-owned resources. Must follow Disconnect
// and must not be called while any caller is still blocked inside
// Action. Safe to call more than once.
func (s *Session) Destroy() {
	st := state(s.state.Load())
	if st != stateDisconnected {
		s.Disconnect()
	}
	s.state.Store(int32(stateDestroyed))
}

// log returns the current logger. Safe to call concurrently with
// SetDebug/SetDebugLevel from any goroutine, including the reader.
func (s *Session) log() zerolog.Logger {
	return *s.loggerPtr.Load()
}

// SetDebug retargets the sink for debug log output, reapplying
// whatever level SetDebugLevel last chose. Passing a disabled logger
// (zerolog.Nop()) silences it.
func (s *Session) SetDebug(logger zerolog.Logger) {
	logger = logger.Level(levelForDebugLevel(int(s.debugLevel.Load())))
	s.loggerPtr.Store(&logger)
}

// SetDebugLevel sets the debug verbosity, 0 (silent) to 10 (most
// granular trace detail), matching the original C library's
// ami_set_debug_level. Returns the previous level, or an error if n is
// out of range.
func (s *Session) SetDebugLevel(n int) (int, error) {
	if n < 0 || n > 10 {
		return 0, amierr.Usage("debug level must be between 0 and 10", nil)
	}
	old := s.debugLevel.Swap(int32(n))
	logger := s.log().Level(levelForDebugLevel(n))
	s.loggerPtr.Store(&logger)
	return int(old), nil
}

// levelForDebugLevel maps the AMI library's 0-10 debug level onto
// zerolog's fixed level set: 0 silences entirely, 1 is warn-and-error
// (production-recommended per the original library's docs), and
// anything higher progressively drops to trace.
func levelForDebugLevel(n int) zerolog.Level {
	switch {
	case n <= 0:
		return zerolog.Disabled
	case n == 1:
		return zerolog.WarnLevel
	case n <= 4:
		return zerolog.InfoLevel
	case n <= 7:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// SetDiscardOnFailure toggles whether a failed (success=false)
// completed response is discarded by Action, which then returns
// (nil, nil) instead of the failure response.
func (s *Session) SetDiscardOnFailure(discard bool) {
	s.discardOnFailure.Store(discard)
}

func (s *Session) discardOnFailureEnabled() bool {
	return s.discardOnFailure.Load()
}

func (s *Session) stateValue() state {
	return state(s.state.Load())
}

// fail tears the session down after a fatal read/protocol error:
// every pending caller is released with a failure, and the disconnect
// callback fires exactly once, unless the application itself called
// Disconnect first.
func (s *Session) fail(err error) {
	s.log().Error().Err(err).Msg("session failed, releasing pending callers")
	s.closeOnce.Do(func() { close(s.closed) })
	s.failPending()
	s.state.Store(int32(stateDisconnected))

	if s.localDisconnect.Load() {
		return
	}
	s.disconnectOnce.Do(func() {
		if s.disconnectCB != nil {
			s.disconnectCB(s)
		}
	})
}

func (s *Session) failPending() {
	s.pendingMu.Lock()
	entries := s.pending
	s.pending = make(map[int]*pendingEntry)
	s.pendingMu.Unlock()

	for _, entry := range entries {
		entry.deliver(&Response{Success: false})
	}
}

func trimCRLF(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

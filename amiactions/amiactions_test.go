package amiactions

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stumpf-works/asterisk-ami/ami"
)

// fakeAsterisk is a minimal scripted AMI server, duplicated here
// (rather than imported from the ami package's test file) because Go
// test helpers in _test.go files are not exported across packages.
type fakeAsterisk struct {
	ln   net.Listener
	host string
	port int
	conn net.Conn
	br   *bufio.Reader
}

func startFakeAsterisk(t *testing.T) *fakeAsterisk {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Write([]byte("Asterisk Call Manager/9.0.0\r\n"))
		accepted <- conn
	}()

	addr := ln.Addr().(*net.TCPAddr)
	f := &fakeAsterisk{ln: ln, host: "127.0.0.1", port: addr.Port}
	t.Cleanup(func() {
		ln.Close()
		if f.conn != nil {
			f.conn.Close()
		}
	})

	select {
	case conn := <-accepted:
		f.conn = conn
		f.br = bufio.NewReader(conn)
	case <-time.After(2 * time.Second):
		t.Fatal("client never connected")
	}
	return f
}

func (f *fakeAsterisk) readRequest(t *testing.T) string {
	t.Helper()
	var sb []byte
	for {
		line, err := f.br.ReadString('\n')
		require.NoError(t, err)
		sb = append(sb, line...)
		if line == "\r\n" {
			break
		}
	}
	return string(sb)
}

func (f *fakeAsterisk) send(t *testing.T, msg string) {
	t.Helper()
	_, err := f.conn.Write([]byte(msg))
	require.NoError(t, err)
}

func extractActionID(t *testing.T, raw string) string {
	t.Helper()
	for _, line := range strings.Split(raw, "\r\n") {
		if strings.HasPrefix(line, "ActionID:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "ActionID:"))
		}
	}
	t.Fatalf("no ActionID in request: %q", raw)
	return ""
}

func connect(t *testing.T, f *fakeAsterisk) *ami.Session {
	t.Helper()
	s, err := ami.Connect(f.host, f.port, nil, nil, ami.Options{ActionTimeout: 2 * time.Second})
	require.NoError(t, err)
	return s
}

func TestHangup(t *testing.T) {
	f := startFakeAsterisk(t)
	s := connect(t, f)
	defer s.Destroy()

	done := make(chan error, 1)
	go func() { done <- Hangup(s, "SIP/100-1") }()

	raw := f.readRequest(t)
	assert.Contains(t, raw, "Action: Hangup\r\n")
	assert.Contains(t, raw, "Channel: SIP/100-1\r\n")
	id := extractActionID(t, raw)
	f.send(t, "Response: Success\r\nActionID: "+id+"\r\n\r\n")

	require.NoError(t, <-done)
}

func TestQueueStatus_MultiPart(t *testing.T) {
	f := startFakeAsterisk(t)
	s := connect(t, f)
	defer s.Destroy()

	type result struct {
		entries []QueueEntry
		err     error
	}
	done := make(chan result, 1)
	go func() {
		entries, err := QueueStatus(s, "support")
		done <- result{entries, err}
	}()

	raw := f.readRequest(t)
	assert.Contains(t, raw, "Queue: support\r\n")
	id := extractActionID(t, raw)

	f.send(t, "Response: Success\r\nActionID: "+id+"\r\nEventList: start\r\n\r\n")
	f.send(t, "Event: QueueParams\r\nActionID: "+id+"\r\nQueue: support\r\n\r\n")
	f.send(t, "Event: QueueMember\r\nActionID: "+id+"\r\nName: agent1\r\n\r\n")
	f.send(t, "Event: QueueStatusComplete\r\nActionID: "+id+"\r\nEventList: Complete\r\n\r\n")

	r := <-done
	require.NoError(t, r.err)
	require.Len(t, r.entries, 2)
	assert.Equal(t, "support", r.entries[0].Fields["Queue"])
	assert.Equal(t, "agent1", r.entries[1].Fields["Name"])
}

func TestCoreShowVersion_LegacyCommand(t *testing.T) {
	f := startFakeAsterisk(t)
	s := connect(t, f)
	defer s.Destroy()

	type result struct {
		version string
		err     error
	}
	done := make(chan result, 1)
	go func() {
		v, err := CoreShowVersion(s)
		done <- result{v, err}
	}()

	raw := f.readRequest(t)
	assert.Contains(t, raw, "Command: core show version\r\n")
	id := extractActionID(t, raw)

	f.send(t, "Response: Follows\r\nActionID: "+id+"\r\nPrivilege: Command\r\n"+
		"Asterisk 18.9.0 built by root\r\n--END COMMAND--\r\n\r\n")

	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, "Asterisk 18.9.0 built by root", r.version)
}

func TestCoreShowChannels(t *testing.T) {
	f := startFakeAsterisk(t)
	s := connect(t, f)
	defer s.Destroy()

	type result struct {
		channels []string
		err      error
	}
	done := make(chan result, 1)
	go func() {
		chans, err := CoreShowChannels(s)
		done <- result{chans, err}
	}()

	raw := f.readRequest(t)
	id := extractActionID(t, raw)
	f.send(t, "Response: Success\r\nActionID: "+id+"\r\nEventList: start\r\n\r\n")
	f.send(t, "Event: CoreShowChannel\r\nActionID: "+id+"\r\nChannel: SIP/1-1\r\n\r\n")
	f.send(t, "Event: CoreShowChannelsComplete\r\nActionID: "+id+"\r\nEventList: Complete\r\n\r\n")

	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, []string{"SIP/1-1"}, r.channels)
}

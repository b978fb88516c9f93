package transport

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sshcore/application/network/connection"
	"sshcore/domain/transport"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
)

var (
	hostKeyOnce sync.Once
	hostKey     ssh.Signer
)

func testHostKey(t *testing.T) ssh.Signer {
	t.Helper()
	hostKeyOnce.Do(func() {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			panic(err)
		}
		if hostKey, err = ssh.NewSignerFromKey(priv); err != nil {
			panic(err)
		}
	})
	return hostKey
}

// fakeService records what the transport hands it.
type fakeService struct {
	mu        sync.Mutex
	transport connection.Transport
	started   int
	stopped   int
	stopErr   error
	received  [][]byte
	exchanges []int
	onMessage func(s *fakeService, payload []byte) (bool, error)
	idle      int
	timeout   int
}

func (s *fakeService) Init(t connection.Transport) { s.transport = t }

func (s *fakeService) ProcessMessage(payload []byte) (bool, error) {
	s.mu.Lock()
	s.received = append(s.received, append([]byte(nil), payload...))
	if c, ok := s.transport.(*Connection); ok {
		s.exchanges = append(s.exchanges, c.KeyExchanges())
	}
	hook := s.onMessage
	s.mu.Unlock()
	if hook != nil {
		return hook(s, payload)
	}
	return true, nil
}

func (s *fakeService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started++
}

func (s *fakeService) Stop(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped++
	s.stopErr = err
}

func (s *fakeService) IdleTimeoutSeconds() int { return s.timeout }

func (s *fakeService) Idle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idle++
}

func (s *fakeService) messages() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.received...)
}

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Printf(format string, v ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, v...))
}

func (l *recordingLogger) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type pairOptions struct {
	client        func(*Config)
	server        func(*Config)
	clientService *fakeService
	serverService *fakeService
}

type pair struct {
	client, server       *Connection
	clientSvc, serverSvc *fakeService
	clientLog, serverLog *recordingLogger
}

func newPair(t *testing.T, opts pairOptions) *pair {
	t.Helper()
	p := &pair{
		clientSvc: opts.clientService,
		serverSvc: opts.serverService,
		clientLog: &recordingLogger{},
		serverLog: &recordingLogger{},
	}
	if p.clientSvc == nil {
		p.clientSvc = &fakeService{}
	}
	if p.serverSvc == nil {
		p.serverSvc = &fakeService{}
	}
	signer := testHostKey(t)
	clientCfg := Config{
		IsClient:        true,
		HostKeyCallback: ssh.FixedHostKey(signer.PublicKey()),
		HostName:        "test.example:22",
		Service:         p.clientSvc,
		Logger:          p.clientLog,
	}
	serverCfg := Config{
		HostKeys: []ssh.Signer{signer},
		Services: connection.Registry{
			"ssh-userauth": func() connection.Service { return p.serverSvc },
		},
		Logger: p.serverLog,
	}
	if opts.client != nil {
		opts.client(&clientCfg)
	}
	if opts.server != nil {
		opts.server(&serverCfg)
	}
	var err error
	if p.client, err = New(clientCfg); err != nil {
		t.Fatalf("client: %v", err)
	}
	if p.server, err = New(serverCfg); err != nil {
		t.Fatalf("server: %v", err)
	}
	if err := p.client.Start(); err != nil {
		t.Fatalf("client start: %v", err)
	}
	if err := p.server.Start(); err != nil {
		t.Fatalf("server start: %v", err)
	}
	return p
}

// pump moves bytes between both ends until neither has anything to say.
func (p *pair) pump(t *testing.T) {
	t.Helper()
	for i := 0; i < 10000; i++ {
		moved := false
		for _, d := range [...]struct{ from, to *Connection }{{p.client, p.server}, {p.server, p.client}} {
			out := d.from.TakeOutput()
			if len(out) == 0 {
				continue
			}
			moved = true
			_, _ = d.to.Feed(out)
		}
		_, _ = p.client.Flush()
		_, _ = p.server.Flush()
		if !moved && !p.client.HasOutput() && !p.server.HasOutput() {
			return
		}
	}
	t.Fatal("connections did not settle")
}

func (p *pair) established(t *testing.T) {
	t.Helper()
	p.pump(t)
	if p.client.State() != transport.StateServiceActive || p.server.State() != transport.StateServiceActive {
		t.Fatalf("expected both ends ServiceActive, got client %v (%v), server %v (%v)",
			p.client.State(), p.client.Err(), p.server.State(), p.server.Err())
	}
}

func payload(msg byte, body string) *connection.Payload {
	return connection.NewPayload(append([]byte{msg}, body...))
}

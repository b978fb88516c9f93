package transport

import (
	"bytes"
	"net"
	"sshcore/application/network/connection"
	"sshcore/domain/transport"
	"sshcore/infrastructure/ssh/wire"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
)

// driver runs a Connection over a real socket the way the reactor does,
// minus the worker pool.
type driver struct {
	c    *Connection
	conn net.Conn
	wake chan struct{}
	stop chan struct{}
	done chan error
}

func startDriver(cfg Config, conn net.Conn) (*driver, error) {
	d := &driver{
		conn: conn,
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan error, 1),
	}
	cfg.Wake = func() {
		select {
		case d.wake <- struct{}{}:
		default:
		}
	}
	cfg.RemoteAddr = conn.RemoteAddr()
	c, err := New(cfg)
	if err != nil {
		return nil, err
	}
	d.c = c
	go d.run()
	return d, nil
}

func (d *driver) run() {
	reads := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 32*1024)
		for {
			n, err := d.conn.Read(buf)
			if n > 0 {
				select {
				case reads <- bytes.Clone(buf[:n]):
				case <-d.stop:
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()
	defer close(d.stop)
	defer d.conn.Close()

	if err := d.c.Start(); err != nil {
		d.done <- err
		return
	}
	for {
		if out := d.c.TakeOutput(); len(out) > 0 {
			if _, err := d.conn.Write(out); err != nil {
				d.done <- d.c.Close(err)
				return
			}
		}
		var (
			act transport.Action
			err error
		)
		select {
		case b := <-reads:
			act, err = d.c.Feed(b)
		case <-d.wake:
			act, err = d.c.Flush()
		case rerr := <-readErr:
			d.done <- d.c.Close(rerr)
			return
		}
		if act != transport.Continue {
			if out := d.c.TakeOutput(); len(out) > 0 {
				_, _ = d.conn.Write(out)
			}
			d.c.Close(err)
			d.done <- err
			return
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

const (
	msgUserAuthRequest = 50
	msgUserAuthFailure = 51
	msgUserAuthSuccess = 52
	msgGlobalRequest   = 80
	msgRequestFailure  = 82
)

// authService is a minimal ssh-userauth on either side: the client
// authenticates with "none", the server accepts one password. After
// success both refuse global requests.
type authService struct {
	t        connection.Transport
	user     string
	password string

	mu      sync.Mutex
	success chan struct{}
	authed  bool
	gotUser string
}

func newAuthService(user, password string) *authService {
	return &authService{user: user, password: password, success: make(chan struct{})}
}

func (s *authService) Init(t connection.Transport) { s.t = t }

func (s *authService) Start() {
	if !s.t.IsClient() {
		return
	}
	req := wire.NewEncoder(64).
		Byte(msgUserAuthRequest).
		Text(s.user).
		Text("ssh-connection").
		Text("none").
		Bytes()
	_ = s.t.Enqueue(connection.NewPayload(req))
}

func (s *authService) ProcessMessage(payload []byte) (bool, error) {
	switch payload[0] {
	case msgUserAuthSuccess:
		s.succeed("")
		return true, nil
	case msgUserAuthRequest:
		return true, s.authenticate(payload)
	case msgGlobalRequest:
		d := wire.NewDecoder(payload[1:])
		d.Text()
		if d.Bool() {
			return true, s.t.Enqueue(connection.NewPayload([]byte{msgRequestFailure}))
		}
		return true, nil
	}
	return false, nil
}

func (s *authService) authenticate(payload []byte) error {
	d := wire.NewDecoder(payload[1:])
	user := d.Text()
	d.Text()
	method := d.Text()
	if method == "password" {
		d.Bool()
		if user == s.user && d.Text() == s.password {
			if err := s.t.Enqueue(connection.NewPayload([]byte{msgUserAuthSuccess})); err != nil {
				return err
			}
			s.succeed(user)
			return nil
		}
	}
	failure := wire.NewEncoder(32).
		Byte(msgUserAuthFailure).
		NameList([]string{"password"}).
		Bool(false).
		Bytes()
	return s.t.Enqueue(connection.NewPayload(failure))
}

func (s *authService) succeed(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.authed {
		return
	}
	s.authed = true
	s.gotUser = user
	close(s.success)
}

func (s *authService) Stop(error)              {}
func (s *authService) IdleTimeoutSeconds() int { return 0 }
func (s *authService) Idle()                   {}

func TestInteropClientWithCryptoSSHServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	serverCfg := &ssh.ServerConfig{NoClientAuth: true}
	serverCfg.AddHostKey(testHostKey(t))
	type accepted struct {
		conn *ssh.ServerConn
		err  error
	}
	results := make(chan accepted, 1)
	go func() {
		nc, err := ln.Accept()
		if err != nil {
			results <- accepted{err: err}
			return
		}
		sc, chans, reqs, err := ssh.NewServerConn(nc, serverCfg)
		if err == nil {
			go ssh.DiscardRequests(reqs)
			go func() {
				for ch := range chans {
					_ = ch.Reject(ssh.Prohibited, "no channels")
				}
			}()
		}
		results <- accepted{conn: sc, err: err}
	}()

	nc, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	auth := newAuthService("tester", "")
	d, err := startDriver(Config{
		IsClient:        true,
		HostKeyCallback: ssh.FixedHostKey(testHostKey(t).PublicKey()),
		Service:         auth,
	}, nc)
	if err != nil {
		t.Fatal(err)
	}

	var res accepted
	select {
	case res = <-results:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for the server handshake")
	}
	if res.err != nil {
		t.Fatalf("server handshake: %v", res.err)
	}
	defer res.conn.Close()
	select {
	case <-auth.success:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for authentication")
	}
	if res.conn.User() != "tester" {
		t.Fatalf("expected user tester, got %q", res.conn.User())
	}
	if !bytes.Equal(res.conn.SessionID(), d.c.SessionID()) {
		t.Fatal("expected both implementations to agree on the session id")
	}

	d.c.RequestRekey()
	waitFor(t, "key re-exchange", func() bool { return d.c.KeyExchanges() == 2 })

	ok, _, err := res.conn.SendRequest("probe@sshcore", true, nil)
	if err != nil || ok {
		t.Fatalf("expected the request to be refused over the new keys, got %v %v", ok, err)
	}
	res.conn.Close()
	select {
	case <-d.done:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for the connection to end")
	}
}

func TestInteropServerWithCryptoSSHClient(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	auth := newAuthService("tester", "secret")
	signer := testHostKey(t)
	drivers := make(chan *driver, 1)
	go func() {
		nc, err := ln.Accept()
		if err != nil {
			return
		}
		d, err := startDriver(Config{
			HostKeys: []ssh.Signer{signer},
			Services: connection.Registry{"ssh-userauth": func() connection.Service { return auth }},
		}, nc)
		if err != nil {
			nc.Close()
			return
		}
		drivers <- d
	}()

	nc, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	cc, chans, reqs, err := ssh.NewClientConn(nc, ln.Addr().String(), &ssh.ClientConfig{
		User:            "tester",
		Auth:            []ssh.AuthMethod{ssh.Password("secret")},
		HostKeyCallback: ssh.FixedHostKey(testHostKey(t).PublicKey()),
		Timeout:         10 * time.Second,
	})
	if err != nil {
		t.Fatalf("client handshake: %v", err)
	}
	client := ssh.NewClient(cc, chans, reqs)
	defer client.Close()
	var d *driver
	select {
	case d = <-drivers:
	case <-time.After(10 * time.Second):
		t.Fatal("server connection did not start")
	}

	<-auth.success
	if auth.gotUser != "tester" {
		t.Fatalf("expected user tester, got %q", auth.gotUser)
	}
	if !bytes.Equal(cc.SessionID(), d.c.SessionID()) {
		t.Fatal("expected both implementations to agree on the session id")
	}

	d.c.RequestRekey()
	waitFor(t, "key re-exchange", func() bool { return d.c.KeyExchanges() == 2 })

	ok, _, err := client.SendRequest("probe@sshcore", true, nil)
	if err != nil || ok {
		t.Fatalf("expected the request to be refused over the new keys, got %v %v", ok, err)
	}
	client.Close()
	select {
	case <-d.done:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for the connection to end")
	}
}

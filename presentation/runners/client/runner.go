package client

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"maps"
	"net"
	"slices"
	"sshcore/application/logging"
	"sshcore/domain/transport"
	infraLogging "sshcore/infrastructure/logging"
	"sshcore/infrastructure/network/tcp"
	"sshcore/infrastructure/network/ws"
	"sshcore/infrastructure/reactor"
	"sshcore/infrastructure/settings"
	"sshcore/infrastructure/ssh/kex"
	sshTransport "sshcore/infrastructure/ssh/transport"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// DefaultTimeout bounds dialing plus the first key exchange.
const DefaultTimeout = 30 * time.Second

// Report is what one probe learned about a server.
type Report struct {
	Address    string
	HostKey    ssh.PublicKey
	Algorithms transport.NegotiatedAlgorithms
	SessionID  []byte
	// Extensions holds the EXT_INFO received by the time the probe finished.
	Extensions map[string]string
}

func (r Report) Print(w io.Writer) error {
	lines := []string{
		fmt.Sprintf("address:      %s", r.Address),
		fmt.Sprintf("host key:     %s %s", r.HostKey.Type(), ssh.FingerprintSHA256(r.HostKey)),
		fmt.Sprintf("kex:          %s", r.Algorithms.Kex),
		fmt.Sprintf("host key alg: %s", r.Algorithms.HostKey),
		fmt.Sprintf("c2s:          %s %s %s", r.Algorithms.ClientToServer.Cipher, r.Algorithms.ClientToServer.MAC, r.Algorithms.ClientToServer.Compression),
		fmt.Sprintf("s2c:          %s %s %s", r.Algorithms.ServerToClient.Cipher, r.Algorithms.ServerToClient.MAC, r.Algorithms.ServerToClient.Compression),
		fmt.Sprintf("session id:   %s", hex.EncodeToString(r.SessionID)),
	}
	for _, name := range slices.Sorted(maps.Keys(r.Extensions)) {
		lines = append(lines, fmt.Sprintf("extension:    %s=%s", name, r.Extensions[name]))
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// Runner connects to a server, completes the first key exchange and
// disconnects. No service is requested.
type Runner struct {
	opts         Options
	logger       logging.Logger
	pollInterval time.Duration
}

func NewRunner(opts Options, logger logging.Logger) *Runner {
	if logger == nil {
		logger = infraLogging.NewLogLogger()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Runner{
		opts:         opts,
		logger:       logger,
		pollInterval: 10 * time.Millisecond,
	}
}

func (r *Runner) Run(ctx context.Context) (Report, error) {
	if err := r.opts.Validate(); err != nil {
		return Report{}, err
	}
	policy, err := settings.LoadNegotiationPolicy(r.opts.Transport, r.opts.PolicyFile)
	if err != nil {
		return Report{}, fmt.Errorf("failed to load negotiation policy: %w", err)
	}
	transportSettings, err := policy.Resolve(r.opts.policyHost())
	if err != nil {
		return Report{}, fmt.Errorf("negotiation policy: %w", err)
	}
	verify, err := r.hostKeyCallback()
	if err != nil {
		return Report{}, err
	}

	var (
		mu      sync.Mutex
		hostKey ssh.PublicKey
	)
	recordingCallback := func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		mu.Lock()
		hostKey = key
		mu.Unlock()
		return verify(hostname, remote, key)
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	rc := reactor.New(reactor.Options{Workers: 1, Idle: transportSettings.Idle, Logger: r.logger})
	runCtx, stop := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() {
		runDone <- rc.Run(runCtx)
	}()
	defer func() {
		stop()
		if runErr := <-runDone; runErr != nil {
			r.logger.Printf("reactor shutdown: %v", runErr)
		}
	}()

	c, err := rc.Dial(ctx, r.dialer(transportSettings), r.opts.Address, sshTransport.Config{
		Settings:        transportSettings,
		HostKeyCallback: recordingCallback,
		HostName:        r.opts.hostPort(),
	})
	if err != nil {
		return Report{}, err
	}
	if err := r.awaitKeys(ctx, c); err != nil {
		return Report{}, err
	}

	t := c.Transport()
	mu.Lock()
	report := Report{
		Address:    r.opts.Address,
		HostKey:    hostKey,
		Algorithms: t.Algorithms(),
		SessionID:  t.SessionID(),
		Extensions: t.Extensions(),
	}
	mu.Unlock()

	t.Disconnect(transport.ReasonByApplication, "probe finished")
	select {
	case <-c.Done():
	case <-ctx.Done():
	}
	return report, nil
}

func (r *Runner) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if r.opts.Insecure {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	callback, err := kex.KnownHostsCallback(r.opts.KnownHosts...)
	if err != nil {
		return nil, fmt.Errorf("failed to read known_hosts: %w", err)
	}
	return callback, nil
}

func (r *Runner) dialer(s settings.TransportSettings) reactor.Dialer {
	if r.opts.Protocol == settings.WS {
		return &ws.Dialer{Path: r.opts.WSPath, Secure: r.opts.Secure}
	}
	return tcp.NewDialer(s.DialTimeoutMs.Duration())
}

// awaitKeys waits for the first key exchange to complete.
func (r *Runner) awaitKeys(ctx context.Context, c *reactor.Conn) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for c.Transport().KeyExchanges() == 0 {
		select {
		case <-c.Done():
			return fmt.Errorf("connection closed during key exchange: %w", c.Err())
		case <-ctx.Done():
			c.Transport().Disconnect(transport.ReasonByApplication, "key exchange timed out")
			return fmt.Errorf("key exchange with %s: %w", r.opts.Address, ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

package server

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net"
	"sshcore/application/logging"
	serverConfiguration "sshcore/infrastructure/configuration/server"
	infraLogging "sshcore/infrastructure/logging"
	"sshcore/infrastructure/reactor"
	"sshcore/infrastructure/settings"
	sshTransport "sshcore/infrastructure/ssh/transport"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

type Runner struct {
	deps      AppDependencies
	listeners ListenerFactory
	logger    logging.Logger

	mu      sync.Mutex
	watcher *serverConfiguration.PolicyWatcher
}

func NewRunner(deps AppDependencies, listeners ListenerFactory) *Runner {
	logger := deps.Logger()
	if logger == nil {
		logger = infraLogging.NewLogLogger()
	}
	return &Runner{
		deps:      deps,
		listeners: listeners,
		logger:    logger,
	}
}

func (r *Runner) Run(ctx context.Context) error {
	hostKeys, err := r.deps.KeyManager().PrepareKeys()
	if err != nil {
		return fmt.Errorf("failed to prepare host keys: %w", err)
	}
	rsaKey, err := r.deps.KeyManager().RSAKey()
	if err != nil {
		return fmt.Errorf("failed to load RSA key: %w", err)
	}
	for _, key := range hostKeys {
		r.logger.Printf("host key %s %s", key.PublicKey().Type(), ssh.FingerprintSHA256(key.PublicKey()))
	}

	conf := r.deps.Configuration()
	policy, err := settings.LoadNegotiationPolicy(conf.Transport, conf.PolicyFile)
	if err != nil {
		return fmt.Errorf("failed to load negotiation policy: %w", err)
	}

	return r.runWorkers(ctx, policy, r.configure(hostKeys, rsaKey, policy))
}

// Reload re-reads the negotiation policy. New connections use the result.
func (r *Runner) Reload() {
	r.mu.Lock()
	watcher := r.watcher
	r.mu.Unlock()
	if watcher == nil {
		r.logger.Printf("reload requested, but no policy file is being watched")
		return
	}
	watcher.ForceCheck()
}

type enabledListener struct {
	protocol settings.Protocol
	settings serverConfiguration.ListenerSettings
}

func (r *Runner) enabledListeners() []enabledListener {
	conf := r.deps.Configuration()
	enabled := make([]enabledListener, 0, 2)
	if conf.TCP.Enabled {
		enabled = append(enabled, enabledListener{protocol: settings.TCP, settings: conf.TCP})
	}
	if conf.WS.Enabled {
		enabled = append(enabled, enabledListener{protocol: settings.WS, settings: conf.WS})
	}
	return enabled
}

func (r *Runner) runWorkers(
	ctx context.Context,
	policy *settings.NegotiationPolicy,
	configure reactor.Configure,
) error {
	// runCtx is a shared context for all workers.
	// Fail-fast: the first listener returning an error calls cancel(),
	// stopping the others and the reactor via ctx.Done().
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	listeners := r.enabledListeners()
	if len(listeners) == 0 {
		return errors.New("no listener is enabled in server configuration")
	}
	conf := r.deps.Configuration()
	rc := reactor.New(reactor.Options{
		Workers: conf.Workers,
		Idle:    conf.Transport.Idle,
		Logger:  r.logger,
	})

	errCh := make(chan error, len(listeners)+1)
	var wg sync.WaitGroup
	wg.Go(func() {
		if runErr := rc.Run(runCtx); runErr != nil {
			errCh <- fmt.Errorf("reactor: %w", runErr)
		}
	})
	for _, l := range listeners {
		wg.Go(func() {
			if serveErr := r.serve(runCtx, rc, l, configure); serveErr != nil {
				cancel()
				errCh <- fmt.Errorf("%s listener failed: %w", l.protocol, serveErr)
			}
		})
	}
	wg.Go(func() {
		r.logStats(runCtx, rc, conf.StatsInterval.Duration())
	})
	if conf.PolicyFile != "" {
		watcher := serverConfiguration.NewPolicyWatcher(policy, conf.PolicyFile, conf.PolicyPollInterval.Duration(), r.logger)
		r.setWatcher(watcher)
		defer r.setWatcher(nil)
		wg.Go(func() {
			watcher.Watch(runCtx)
		})
	}

	wg.Wait()
	close(errCh)

	errs := make([]error, 0)
	for workerErr := range errCh {
		errs = append(errs, workerErr)
	}
	return errors.Join(errs...)
}

func (r *Runner) logStats(ctx context.Context, rc *reactor.Reactor, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Printf("traffic: %s", rc.Stats().Snapshot())
			return
		case <-ticker.C:
			r.logger.Printf("traffic: %s", rc.Stats().Snapshot())
		}
	}
}

func (r *Runner) serve(
	ctx context.Context,
	rc *reactor.Reactor,
	l enabledListener,
	configure reactor.Configure,
) error {
	ln, err := r.listeners.Listen(ctx, l.protocol, l.settings)
	if err != nil {
		return err
	}
	defer func() {
		_ = ln.Close()
	}()
	r.logger.Printf("%s listener on %s", l.protocol, ln.Addr())
	return rc.Serve(ctx, ln, configure)
}

// configure resolves the negotiation policy for every accepted socket by
// its remote host.
func (r *Runner) configure(
	hostKeys []ssh.Signer,
	rsaKey *rsa.PrivateKey,
	policy *settings.NegotiationPolicy,
) reactor.Configure {
	services := r.deps.Services()
	return func(nc net.Conn) (sshTransport.Config, error) {
		transportSettings, err := policy.Resolve(remoteHost(nc.RemoteAddr()))
		if err != nil {
			return sshTransport.Config{}, fmt.Errorf("negotiation policy: %w", err)
		}
		return sshTransport.Config{
			Settings: transportSettings,
			HostKeys: hostKeys,
			RSAKey:   rsaKey,
			Services: services,
		}, nil
	}
}

func (r *Runner) setWatcher(w *serverConfiguration.PolicyWatcher) {
	r.mu.Lock()
	r.watcher = w
	r.mu.Unlock()
}

func remoteHost(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

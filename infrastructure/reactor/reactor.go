// Package reactor drives many SSH transport connections from a fixed pool
// of workers. Every connection is pinned to one worker, which is the only
// goroutine touching its transport state; per-connection reader and writer
// goroutines do the blocking socket I/O and post events to that worker.
package reactor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"sshcore/application/logging"
	"sshcore/domain/transport"
	infraLogging "sshcore/infrastructure/logging"
	"sshcore/infrastructure/settings"
	"sshcore/infrastructure/ssh/idle"
	sshTransport "sshcore/infrastructure/ssh/transport"
	"sshcore/infrastructure/telemetry/trafficstats"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultHighWatermark  = 1 << 20
	DefaultLowWatermark   = 256 << 10
	DefaultReadBufferSize = 32 << 10
	DefaultTickInterval   = time.Second
	DefaultCloseGrace     = 5 * time.Second
)

var (
	ErrAlreadyRunning  = errors.New("reactor: already running")
	errShutdownTimeout = errors.New("did not close within the shutdown grace period")
)

type Options struct {
	// Workers defaults to GOMAXPROCS.
	Workers        int
	HighWatermark  int
	LowWatermark   int
	ReadBufferSize int
	// TickInterval is how often every connection is flushed, which is what
	// triggers time based rekeying on quiet connections.
	TickInterval time.Duration
	// CloseGrace bounds how long a closing connection may take to write
	// its DISCONNECT, and how long Run waits for connections on shutdown.
	CloseGrace time.Duration
	Idle       settings.Idle
	Clock      func() time.Time
	Logger     logging.Logger
	// Stats receives socket byte counts; one is created when nil.
	Stats *trafficstats.Collector
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.HighWatermark <= 0 {
		o.HighWatermark = DefaultHighWatermark
	}
	if o.LowWatermark <= 0 || o.LowWatermark >= o.HighWatermark {
		o.LowWatermark = o.HighWatermark / 4
	}
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = DefaultReadBufferSize
	}
	if o.TickInterval <= 0 {
		o.TickInterval = DefaultTickInterval
	}
	if o.CloseGrace <= 0 {
		o.CloseGrace = DefaultCloseGrace
	}
	if o.Idle.ServicePeriod <= 0 {
		o.Idle.ServicePeriod = settings.HumanReadableDuration(settings.DefaultServicePeriod)
	}
	if o.Idle.PeriodsPerIdle <= 0 {
		o.Idle.PeriodsPerIdle = settings.DefaultPeriodsPerIdle
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Logger == nil {
		o.Logger = infraLogging.NewLogLogger()
	}
	if o.Stats == nil {
		o.Stats = trafficstats.NewCollector(time.Second, 0.3)
	}
	return o
}

type Reactor struct {
	opts    Options
	logger  logging.Logger
	idle    *idle.Manager
	boxes   []*mailbox
	next    atomic.Uint32
	running atomic.Bool

	mu      sync.Mutex
	conns   map[*Conn]struct{}
	closing bool
}

func New(opts Options) *Reactor {
	opts = opts.withDefaults()
	r := &Reactor{
		opts:   opts,
		logger: opts.Logger,
		idle:   idle.NewManager(opts.Idle, opts.Clock, opts.Logger),
		boxes:  make([]*mailbox, opts.Workers),
		conns:  make(map[*Conn]struct{}),
	}
	for i := range r.boxes {
		r.boxes[i] = newMailbox()
	}
	return r
}

func (r *Reactor) Stats() *trafficstats.Collector { return r.opts.Stats }

// Len returns the number of live connections.
func (r *Reactor) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Run starts the workers, the flush ticker and the idle sweeps, and blocks
// until ctx is cancelled. It then disconnects every connection and returns
// the connections that had to be dropped without a clean close.
func (r *Reactor) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	workCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	var eg errgroup.Group
	for _, box := range r.boxes {
		eg.Go(func() error {
			r.work(workCtx, box)
			return nil
		})
	}
	eg.Go(func() error {
		r.idle.Run(workCtx)
		return nil
	})
	eg.Go(func() error {
		r.tick(workCtx)
		return nil
	})
	eg.Go(func() error {
		r.opts.Stats.Run(workCtx)
		return nil
	})

	<-ctx.Done()
	result := r.shutdown()
	stopWorkers()
	if err := eg.Wait(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Attach hands an established socket to the reactor. It may be called
// before Run; the connection starts once Run does.
func (r *Reactor) Attach(nc net.Conn, cfg sshTransport.Config) (*Conn, error) {
	c := &Conn{
		r:        r,
		box:      r.boxes[int(r.next.Add(1)-1)%len(r.boxes)],
		nc:       nc,
		out:      newOutq(r.opts.HighWatermark, r.opts.LowWatermark),
		inflight: make(chan struct{}, maxInflightReads),
		done:     make(chan struct{}),
	}
	if cfg.RemoteAddr == nil {
		cfg.RemoteAddr = nc.RemoteAddr()
	}
	if cfg.Logger == nil {
		cfg.Logger = infraLogging.NewPrefixLogger(cfg.RemoteAddr.String(), r.logger)
	}
	if cfg.Clock == nil {
		cfg.Clock = r.opts.Clock
	}
	cfg.Wake = c.wake
	c.logger = cfg.Logger

	t, err := sshTransport.New(cfg)
	if err != nil {
		return nil, err
	}
	c.t = t

	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		_ = t.Close(transport.ErrClosed)
		return nil, transport.ErrClosed
	}
	r.conns[c] = struct{}{}
	r.mu.Unlock()
	r.opts.Stats.ConnectionOpened()

	r.idle.Register(c)
	go c.readLoop(r.opts.ReadBufferSize, trafficstats.NewRXRecorder(r.opts.Stats))
	go c.writeLoop(trafficstats.NewTXRecorder(r.opts.Stats))
	c.box.post(event{conn: c, kind: evStart})
	return c, nil
}

// Dialer matches golang.org/x/net/proxy.ContextDialer.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Dial connects to address and attaches a client connection.
func (r *Reactor) Dial(ctx context.Context, d Dialer, address string, cfg sshTransport.Config) (*Conn, error) {
	nc, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	cfg.IsClient = true
	if cfg.HostName == "" {
		cfg.HostName = address
	}
	c, err := r.Attach(nc, cfg)
	if err != nil {
		_ = nc.Close()
		return nil, err
	}
	return c, nil
}

// Configure builds the transport config for an accepted socket.
type Configure func(nc net.Conn) (sshTransport.Config, error)

// Serve accepts server connections from ln until ctx is cancelled or the
// listener fails.
func (r *Reactor) Serve(ctx context.Context, ln net.Listener, configure Configure) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var backoff time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)
				r.logger.Printf("accept error: %v; retrying in %v", err, backoff)
				time.Sleep(backoff)
				continue
			}
			return fmt.Errorf("accept on %s: %w", ln.Addr(), err)
		}
		backoff = 0

		cfg, err := configure(nc)
		if err != nil {
			r.logger.Printf("rejecting %s: %v", nc.RemoteAddr(), err)
			_ = nc.Close()
			continue
		}
		cfg.IsClient = false
		if _, err := r.Attach(nc, cfg); err != nil {
			_ = nc.Close()
			if errors.Is(err, transport.ErrClosed) {
				return nil
			}
			r.logger.Printf("rejecting %s: %v", nc.RemoteAddr(), err)
		}
	}
}

func (r *Reactor) work(ctx context.Context, box *mailbox) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-box.signal:
			for _, ev := range box.drain() {
				r.process(ev)
			}
		}
	}
}

func (r *Reactor) process(ev event) {
	c := ev.conn
	if ev.kind == evRead {
		defer func() { <-c.inflight }()
	}
	if c.finished {
		return
	}

	var (
		act = transport.Continue
		err error
	)
	switch ev.kind {
	case evStart:
		if err = c.t.Start(); err != nil {
			act = transport.Close
		}
	case evRead:
		r.idle.Reset(c)
		act, err = c.t.Feed(ev.data)
	case evReadErr, evWriteErr:
		r.finish(c, ev.err)
		return
	case evWake:
		c.wakePending.Store(false)
		if c.out.isThrottled() {
			return
		}
		act, err = c.t.Flush()
	case evTick, evDrained:
		if c.out.isThrottled() {
			return
		}
		act, err = c.t.Flush()
	case evIdle:
		act, err = c.t.HandleIdle()
		r.idle.Reset(c)
	case evStop:
		c.t.Disconnect(transport.ReasonByApplication, "shutting down")
		act, err = c.t.Flush()
	}

	c.timeout.Store(int64(c.t.IdleTimeout()))
	if out := c.t.TakeOutput(); len(out) > 0 {
		c.out.push(out)
	}
	switch act {
	case transport.FlushAndClose:
		_ = c.nc.SetWriteDeadline(r.opts.Clock().Add(r.opts.CloseGrace))
		c.out.closeWhenDrained()
	case transport.Close:
		r.finish(c, err)
	}
}

// finish tears the connection down. It runs on the connection's worker.
func (r *Reactor) finish(c *Conn, cause error) {
	if c.finished {
		return
	}
	c.finished = true
	c.err = c.t.Close(cause)
	c.out.shutdown()
	r.idle.Remove(c)
	_ = c.nc.Close()

	r.mu.Lock()
	delete(r.conns, c)
	r.mu.Unlock()
	r.opts.Stats.ConnectionClosed()

	c.logger.Printf("connection closed after %d key exchange(s): %v", c.t.KeyExchanges(), c.err)
	close(c.done)
}

func (r *Reactor) snapshot() []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns := make([]*Conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}

func (r *Reactor) tick(ctx context.Context) {
	ticker := time.NewTicker(r.opts.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, c := range r.snapshot() {
				c.box.post(event{conn: c, kind: evTick})
			}
		}
	}
}

func (r *Reactor) shutdown() *multierror.Error {
	r.mu.Lock()
	r.closing = true
	r.mu.Unlock()
	conns := r.snapshot()
	for _, c := range conns {
		c.box.post(event{conn: c, kind: evStop})
	}

	var result *multierror.Error
	waitCtx, cancel := context.WithTimeout(context.Background(), r.opts.CloseGrace)
	defer cancel()
	for _, c := range conns {
		select {
		case <-c.done:
		case <-waitCtx.Done():
			result = multierror.Append(result, fmt.Errorf("%s: %w", c.nc.RemoteAddr(), errShutdownTimeout))
			_ = c.nc.Close()
			c.box.post(event{conn: c, kind: evReadErr, err: errShutdownTimeout})
			<-c.done
		}
	}
	return result
}

// Package trafficstats counts socket bytes and connections for one reactor.
package trafficstats

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

type Snapshot struct {
	RXBytesTotal uint64
	TXBytesTotal uint64
	RXRate       uint64 // bytes/sec
	TXRate       uint64 // bytes/sec
	// Live is the number of attached connections; Accepted counts every
	// connection ever attached.
	Live     int64
	Accepted uint64
}

func (s Snapshot) String() string {
	return fmt.Sprintf("%d live / %d total connections, rx %s (%s), tx %s (%s)",
		s.Live, s.Accepted,
		FormatTotal(s.RXBytesTotal), FormatRate(s.RXRate),
		FormatTotal(s.TXBytesTotal), FormatRate(s.TXRate),
	)
}

type Collector struct {
	rxBytesTotal atomic.Uint64
	txBytesTotal atomic.Uint64
	rxRate       atomic.Uint64
	txRate       atomic.Uint64
	live         atomic.Int64
	accepted     atomic.Uint64

	sampleInterval time.Duration
	emaAlpha       float64

	// accessed only from the sampler goroutine in Run()
	lastRX  uint64
	lastTX  uint64
	rxEMA   float64
	txEMA   float64
	running atomic.Bool
}

func NewCollector(sampleInterval time.Duration, emaAlpha float64) *Collector {
	if sampleInterval <= 0 {
		sampleInterval = time.Second
	}
	return &Collector{
		sampleInterval: sampleInterval,
		emaAlpha:       min(max(emaAlpha, 0), 1),
	}
}

// Run samples rates until ctx is done. Only the first call samples.
func (c *Collector) Run(ctx context.Context) {
	if !c.running.CompareAndSwap(false, true) {
		return
	}

	ticker := time.NewTicker(c.sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.updateRates(c.sampleInterval)
		}
	}
}

func (c *Collector) ConnectionOpened() {
	c.live.Add(1)
	c.accepted.Add(1)
}

func (c *Collector) ConnectionClosed() {
	c.live.Add(-1)
}

// AddRXBytes is allocation-free and intended for hot paths.
func (c *Collector) AddRXBytes(bytes uint64) {
	if bytes == 0 {
		return
	}
	c.rxBytesTotal.Add(bytes)
}

// AddTXBytes is allocation-free and intended for hot paths.
func (c *Collector) AddTXBytes(bytes uint64) {
	if bytes == 0 {
		return
	}
	c.txBytesTotal.Add(bytes)
}

func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		RXBytesTotal: c.rxBytesTotal.Load(),
		TXBytesTotal: c.txBytesTotal.Load(),
		RXRate:       c.rxRate.Load(),
		TXRate:       c.txRate.Load(),
		Live:         c.live.Load(),
		Accepted:     c.accepted.Load(),
	}
}

func (c *Collector) updateRates(interval time.Duration) {
	seconds := interval.Seconds()
	if seconds <= 0 {
		return
	}

	rxNow := c.rxBytesTotal.Load()
	txNow := c.txBytesTotal.Load()
	rxPerSec := float64(rxNow-c.lastRX) / seconds
	txPerSec := float64(txNow-c.lastTX) / seconds
	c.lastRX = rxNow
	c.lastTX = txNow

	if c.emaAlpha > 0 {
		c.rxEMA = smooth(c.rxEMA, rxPerSec, c.emaAlpha)
		c.txEMA = smooth(c.txEMA, txPerSec, c.emaAlpha)
		rxPerSec = c.rxEMA
		txPerSec = c.txEMA
	}

	c.rxRate.Store(uint64(rxPerSec))
	c.txRate.Store(uint64(txPerSec))
}

func smooth(prev, sample, alpha float64) float64 {
	if prev == 0 {
		return sample
	}
	return alpha*sample + (1-alpha)*prev
}

package rekey

import "time"

// PacketLimit is the RFC 4344 bound on packets sent or received under one
// set of keys.
const PacketLimit = 1 << 31

// Scheduler decides when a connection must re-run key exchange.
//
// Thresholds are counted from the last key installation: bytes and packets
// moved in either direction, and wall time. A zero limit or interval disables
// that trigger. Scheduler is not safe for concurrent use; the transport calls
// it from the goroutine that owns the connection.
type Scheduler struct {
	byteLimit uint64
	interval  time.Duration
	bytes     uint64
	packets   uint64
	rotateAt  time.Time
}

func NewScheduler(byteLimit uint64, interval time.Duration, now time.Time) *Scheduler {
	s := &Scheduler{byteLimit: byteLimit, interval: interval}
	s.Reset(now)
	return s
}

func (s *Scheduler) ByteLimit() uint64       { return s.byteLimit }
func (s *Scheduler) Interval() time.Duration { return s.interval }
func (s *Scheduler) Bytes() uint64           { return s.bytes }
func (s *Scheduler) RotateAt() time.Time     { return s.rotateAt }

// SetLimits replaces both thresholds; the running counters are kept.
func (s *Scheduler) SetLimits(byteLimit uint64, interval time.Duration, now time.Time) {
	s.byteLimit = byteLimit
	s.interval = interval
	s.rotateAt = time.Time{}
	if interval > 0 {
		s.rotateAt = now.Add(interval)
	}
}

// Count records one packet of n wire bytes.
func (s *Scheduler) Count(n int) {
	s.bytes += uint64(n)
	s.packets++
}

// Due reports whether any threshold has been crossed.
func (s *Scheduler) Due(now time.Time) bool {
	if s.byteLimit > 0 && s.bytes >= s.byteLimit {
		return true
	}
	if s.packets >= PacketLimit {
		return true
	}
	return !s.rotateAt.IsZero() && !now.Before(s.rotateAt)
}

// Reset starts a new key epoch.
func (s *Scheduler) Reset(now time.Time) {
	s.bytes = 0
	s.packets = 0
	s.rotateAt = time.Time{}
	if s.interval > 0 {
		s.rotateAt = now.Add(s.interval)
	}
}

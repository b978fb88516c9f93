package trafficstats

// HotPathFlushThresholdBytes is how much a Recorder batches before touching
// the shared counters.
const HotPathFlushThresholdBytes uint64 = 64 * 1024

// Recorder batches the byte counts of one socket loop.
//
// A Recorder is NOT safe for concurrent use; a connection's reader and
// writer each own one. Totals lag by up to the threshold per socket until
// Flush, typically deferred, drains the remainder.
type Recorder struct {
	collector *Collector
	pending   uint64
	rx        bool
}

// NewRXRecorder counts received bytes. A nil collector makes every call a no-op.
func NewRXRecorder(c *Collector) *Recorder {
	return &Recorder{collector: c, rx: true}
}

// NewTXRecorder counts sent bytes.
func NewTXRecorder(c *Collector) *Recorder {
	return &Recorder{collector: c}
}

func (r *Recorder) Record(n int) {
	if r.collector == nil || n <= 0 {
		return
	}
	r.pending += uint64(n)
	if r.pending >= HotPathFlushThresholdBytes {
		r.Flush()
	}
}

func (r *Recorder) Flush() {
	if r.collector == nil || r.pending == 0 {
		return
	}
	if r.rx {
		r.collector.AddRXBytes(r.pending)
	} else {
		r.collector.AddTXBytes(r.pending)
	}
	r.pending = 0
}

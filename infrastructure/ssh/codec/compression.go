package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sshcore/domain/transport"

	"github.com/klauspost/compress/zlib"
)

// zlibDeflater compresses payloads as one continuous zlib stream, flushing
// after every packet so the peer can inflate each packet on arrival.
type zlibDeflater struct {
	out bytes.Buffer
	w   *zlib.Writer
}

func newZlibDeflater() *zlibDeflater {
	d := &zlibDeflater{}
	d.w = zlib.NewWriter(&d.out)
	return d
}

func (d *zlibDeflater) compress(payload []byte) ([]byte, error) {
	d.out.Reset()
	if _, err := d.w.Write(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", transport.ErrCompression, err)
	}
	if err := d.w.Flush(); err != nil {
		return nil, fmt.Errorf("%w: %v", transport.ErrCompression, err)
	}
	return bytes.Clone(d.out.Bytes()), nil
}

func (d *zlibDeflater) close() {
	_ = d.w.Close()
}

type inflateEvent struct {
	data      []byte
	needInput bool
	err       error
}

// zlibInflater decompresses a continuous zlib stream that arrives packet by
// packet. The reader runs in its own goroutine and announces when it has
// consumed everything fed so far, which marks the end of a packet's output.
// Peers may use partial flushes whose trailing bits spill into the next
// packet, so the decompressor state must survive between packets.
type zlibInflater struct {
	in      chan []byte
	events  chan inflateEvent
	done    chan struct{}
	started bool
	failed  error
	limit   int
}

func newZlibInflater(limit int) *zlibInflater {
	return &zlibInflater{
		in:     make(chan []byte),
		events: make(chan inflateEvent),
		done:   make(chan struct{}),
		limit:  limit,
	}
}

func (z *zlibInflater) decompress(payload []byte) ([]byte, error) {
	if z.failed != nil {
		return nil, z.failed
	}
	if !z.started {
		z.started = true
		go z.run()
		if err := z.awaitInputRequest(); err != nil {
			return nil, z.fail(err)
		}
	}
	select {
	case z.in <- payload:
	case <-z.done:
		return nil, z.fail(io.ErrClosedPipe)
	}
	var out []byte
	for ev := range z.events {
		switch {
		case ev.err != nil:
			return nil, z.fail(ev.err)
		case ev.needInput:
			return out, nil
		default:
			if len(out)+len(ev.data) > z.limit {
				return nil, z.fail(fmt.Errorf("inflated payload exceeds %d bytes", z.limit))
			}
			out = append(out, ev.data...)
		}
	}
	return nil, z.fail(io.ErrUnexpectedEOF)
}

func (z *zlibInflater) awaitInputRequest() error {
	ev, ok := <-z.events
	switch {
	case !ok:
		return io.ErrUnexpectedEOF
	case ev.err != nil:
		return ev.err
	case !ev.needInput:
		return errors.New("unexpected output before input")
	}
	return nil
}

// fail is terminal: the reader goroutine is released and every later call
// returns the same error.
func (z *zlibInflater) fail(err error) error {
	z.failed = fmt.Errorf("%w: %v", transport.ErrCompression, err)
	z.close()
	return z.failed
}

func (z *zlibInflater) emit(ev inflateEvent) bool {
	select {
	case z.events <- ev:
		return true
	case <-z.done:
		return false
	}
}

func (z *zlibInflater) run() {
	defer close(z.events)
	src := &chunkReader{z: z}
	r, err := zlib.NewReader(src)
	if err != nil {
		z.emit(inflateEvent{err: err})
		return
	}
	buf := make([]byte, 16*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 && !z.emit(inflateEvent{data: bytes.Clone(buf[:n])}) {
			return
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = errors.New("zlib stream ended")
			}
			z.emit(inflateEvent{err: err})
			return
		}
	}
}

func (z *zlibInflater) close() {
	select {
	case <-z.done:
	default:
		close(z.done)
	}
}

// chunkReader feeds packet payloads to the zlib reader, asking for the next
// one only once the current chunk is exhausted.
type chunkReader struct {
	z   *zlibInflater
	cur []byte
}

func (r *chunkReader) fill() error {
	for len(r.cur) == 0 {
		if !r.z.emit(inflateEvent{needInput: true}) {
			return io.EOF
		}
		select {
		case b := <-r.z.in:
			r.cur = b
		case <-r.z.done:
			return io.EOF
		}
	}
	return nil
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if err := r.fill(); err != nil {
		return 0, err
	}
	n := copy(p, r.cur)
	r.cur = r.cur[n:]
	return n, nil
}

func (r *chunkReader) ReadByte() (byte, error) {
	if err := r.fill(); err != nil {
		return 0, err
	}
	b := r.cur[0]
	r.cur = r.cur[1:]
	return b, nil
}

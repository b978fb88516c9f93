package connection

// OutboundMessage is the only way a Service hands data to the transport.
//
// WriteInto appends one packet payload (message number first) to buf and
// reports whether the message has nothing more to write. A message that
// returns false is asked again for its next packet before anything queued
// behind it. Sent is called once the final packet was encoded, with its
// sequence number.
type OutboundMessage interface {
	WriteInto(buf []byte) (out []byte, noMorePending bool)
	Sent(seq uint32)
}

// Payload is an OutboundMessage carrying a single prebuilt packet payload.
type Payload struct {
	Data   []byte
	OnSent func(seq uint32)
}

func NewPayload(data []byte) *Payload {
	return &Payload{Data: data}
}

func (p *Payload) WriteInto(buf []byte) ([]byte, bool) {
	return append(buf, p.Data...), true
}

func (p *Payload) Sent(seq uint32) {
	if p.OnSent != nil {
		p.OnSent(seq)
	}
}

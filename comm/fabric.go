package comm

import "fmt"

// Port is an in-process endpoint. A send is a non-blocking enqueue
// straight into the destination's matching queue, so it behaves like an
// asynchronous wire send without the wire.
type Port struct {
	rank     int
	matchers []*matcher
}

// NewFabric connects size in-process endpoints and returns one per rank.
// Self-sends are permitted and loop straight back, the same as on the
// TCP transport.
func NewFabric(size int) []*Port {
	matchers := make([]*matcher, size)
	for i := range matchers {
		matchers[i] = newMatcher()
	}
	ports := make([]*Port, size)
	for i := range ports {
		ports[i] = &Port{rank: i, matchers: matchers}
	}
	return ports
}

// Rank returns this port's index in the group.
func (p *Port) Rank() int { return p.rank }

// Size returns the number of ports in the group.
func (p *Port) Size() int { return len(p.matchers) }

// Send enqueues a copy of payload for dest. It never blocks on dest
// making progress.
func (p *Port) Send(dest, tag int, payload []byte) error {
	if dest < 0 || dest >= len(p.matchers) {
		return fmt.Errorf("comm: no rank %d in a fabric of %d", dest, len(p.matchers))
	}
	// Copy so the sender may keep mutating its buffer.
	body := make([]byte, len(payload))
	copy(body, payload)
	p.matchers[dest].push(envelope{Src: p.rank, Dest: dest, Tag: tag, Body: body})
	return nil
}

// Recv blocks until a message from source carrying tag arrives.
func (p *Port) Recv(source, tag int) ([]byte, error) {
	return p.matchers[p.rank].take(source, tag)
}

// Close wakes any receiver still blocked on this port.
func (p *Port) Close() error {
	p.matchers[p.rank].close()
	return nil
}

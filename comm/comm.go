/*
Package comm implements point-to-point messaging between solver workers.

Messages are addressed by destination rank and a small integer tag, and
received selectively by (source, tag), so several receives with different
tags can be outstanding at once on the same endpoint. Two transports
share the interface: an in-process fabric of channel-backed ports for
single-binary runs and tests, and a TCP mesh for one process per rank.
*/
package comm

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Recv when the endpoint shuts down while the
// receive is still pending.
var ErrClosed = errors.New("comm: endpoint closed")

// Endpoint is one worker's handle on the communication group. Send must
// not block on the receiver making progress; Recv blocks until a message
// from source carrying tag arrives. Both are safe for concurrent use.
type Endpoint interface {
	Rank() int
	Size() int
	Send(dest, tag int, payload []byte) error
	Recv(source, tag int) ([]byte, error)
	Close() error
}

// envelope is one routed message.
type envelope struct {
	Src, Dest, Tag int
	Body           []byte
}

// matcher holds undelivered envelopes and hands them out to selective
// receivers, preserving arrival order between messages with the same
// source and tag. Both transports push into one of these.
type matcher struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []envelope
	closed  bool
}

func newMatcher() *matcher {
	m := &matcher{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *matcher) push(e envelope) {
	m.mu.Lock()
	m.pending = append(m.pending, e)
	m.mu.Unlock()
	m.cond.Broadcast()
}

// take blocks until an envelope from src carrying tag is pending, then
// removes and returns its body.
func (m *matcher) take(src, tag int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		for i := range m.pending {
			if m.pending[i].Src == src && m.pending[i].Tag == tag {
				body := m.pending[i].Body
				m.pending = append(m.pending[:i], m.pending[i+1:]...)
				return body, nil
			}
		}
		if m.closed {
			return nil, ErrClosed
		}
		m.cond.Wait()
	}
}

func (m *matcher) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cond.Broadcast()
}

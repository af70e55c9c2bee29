/*
This file contains the TCP transport: one process per rank, a listener
per rank at basePort+rank, and a dialed connection to every peer. Frames
are length-prefixed gob envelopes. Every wire payload is wrapped with
GoVector vector-clock metadata so a run's message ordering can be
examined with vector-clock tooling (ShiViz and friends).
*/
package comm

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/DistributedClocks/GoVector/govec"
)

// tagHello identifies the handshake frame a dialing rank sends first.
const tagHello = -1

// connectTimeout bounds mesh construction: dial retries and accepts give
// up after this long. Once the mesh is up there are no timeouts; a
// stalled peer blocks its partner forever, which is the accepted
// contract.
const connectTimeout = 30 * time.Second

// Mesh is a TCP endpoint for one rank of a multi-process run.
type Mesh struct {
	rank, size int
	listener   *net.TCPListener
	conns      []net.Conn // indexed by peer rank, nil for self
	sendMu     []sync.Mutex
	inbox      *matcher
	vec        *govec.GoLog
	opts       govec.GoLogOptions
}

// NewMesh listens at basePort+rank, connects to every peer (each rank
// dials all lower ranks and accepts all higher ones) and blocks until
// the mesh is fully connected. hosts holds one address per rank; logName
// prefixes the GoVector log files.
func NewMesh(rank, size, basePort int, hosts []string, logName string) (*Mesh, error) {
	if size < 1 || len(hosts) != size {
		return nil, fmt.Errorf("comm: %d hosts for %d ranks", len(hosts), size)
	}
	if rank < 0 || rank >= size {
		return nil, fmt.Errorf("comm: rank %d out of range [0, %d)", rank, size)
	}

	m := &Mesh{
		rank:   rank,
		size:   size,
		conns:  make([]net.Conn, size),
		sendMu: make([]sync.Mutex, size),
		inbox:  newMatcher(),
	}
	m.vec = govec.InitGoVector(fmt.Sprintf("rank%d", rank),
		fmt.Sprintf("%s-rank%d", logName, rank), govec.GetDefaultConfig())
	m.opts = govec.GetDefaultLogOptions()

	l, err := net.Listen("tcp", fmt.Sprintf(":%d", basePort+rank))
	if err != nil {
		return nil, fmt.Errorf("comm: rank %d listen: %w", rank, err)
	}
	m.listener = l.(*net.TCPListener)

	acceptErr := make(chan error, 1)
	go func() { acceptErr <- m.acceptPeers(size - 1 - rank) }()

	for s := 0; s < rank; s++ {
		conn, err := dialRetry(fmt.Sprintf("%s:%d", hosts[s], basePort+s))
		if err == nil {
			if werr := writeFrame(conn, envelope{Src: rank, Dest: s, Tag: tagHello}); werr != nil {
				err = fmt.Errorf("comm: rank %d hello to %d: %w", rank, s, werr)
			}
		}
		if err != nil {
			// Stop the accept task before tearing down so it cannot
			// touch conns concurrently.
			m.listener.Close()
			<-acceptErr
			m.Close()
			return nil, err
		}
		m.conns[s] = conn
	}

	if err := <-acceptErr; err != nil {
		m.Close()
		return nil, err
	}

	for s, conn := range m.conns {
		if conn != nil {
			go m.readTask(s, conn)
		}
	}
	m.vec.LogLocalEvent(fmt.Sprintf("mesh up, %d peers", size-1), m.opts)
	return m, nil
}

// acceptPeers collects the handshakes of the n higher ranks that dial us.
func (m *Mesh) acceptPeers(n int) error {
	for i := 0; i < n; i++ {
		m.listener.SetDeadline(time.Now().Add(connectTimeout))
		conn, err := m.listener.AcceptTCP()
		if err != nil {
			return fmt.Errorf("comm: rank %d accept: %w", m.rank, err)
		}
		e, err := readFrame(conn)
		if err != nil || e.Tag != tagHello || e.Src <= m.rank || e.Src >= m.size {
			conn.Close()
			return fmt.Errorf("comm: rank %d: bad hello from %v", m.rank, conn.RemoteAddr())
		}
		m.conns[e.Src] = conn
	}
	return nil
}

func dialRetry(addr string) (net.Conn, error) {
	deadline := time.Now().Add(connectTimeout)
	for {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			return conn, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("comm: dialing %s: %w", addr, err)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// Rank returns this process's rank.
func (m *Mesh) Rank() int { return m.rank }

// Size returns the number of ranks in the mesh.
func (m *Mesh) Size() int { return m.size }

// Send writes payload to dest, stamped with this rank's vector clock.
// Self-sends skip the wire and the clock.
func (m *Mesh) Send(dest, tag int, payload []byte) error {
	if dest < 0 || dest >= m.size {
		return fmt.Errorf("comm: no rank %d in a mesh of %d", dest, m.size)
	}
	if dest == m.rank {
		body := make([]byte, len(payload))
		copy(body, payload)
		m.inbox.push(envelope{Src: m.rank, Dest: dest, Tag: tag, Body: body})
		return nil
	}

	body := m.vec.PrepareSend(fmt.Sprintf("tag %d to rank %d", tag, dest), payload, m.opts)

	// Frames on one connection must not interleave.
	m.sendMu[dest].Lock()
	defer m.sendMu[dest].Unlock()
	if err := writeFrame(m.conns[dest], envelope{Src: m.rank, Dest: dest, Tag: tag, Body: body}); err != nil {
		return fmt.Errorf("comm: rank %d send to %d: %w", m.rank, dest, err)
	}
	return nil
}

// Recv blocks until a message from source carrying tag arrives.
func (m *Mesh) Recv(source, tag int) ([]byte, error) {
	return m.inbox.take(source, tag)
}

// readTask drains one peer connection into the matching queue.
func (m *Mesh) readTask(peer int, conn net.Conn) {
	for {
		e, err := readFrame(conn)
		if err != nil {
			if err != io.EOF {
				log.Printf("[comm] rank %d: read from rank %d: %v", m.rank, peer, err)
			}
			return
		}
		var payload []byte
		m.vec.UnpackReceive(fmt.Sprintf("tag %d from rank %d", e.Tag, e.Src), e.Body, &payload, m.opts)
		e.Body = payload
		m.inbox.push(e)
	}
}

// Close shuts the listener and all peer connections and wakes any
// blocked receiver.
func (m *Mesh) Close() error {
	m.inbox.close()
	if m.listener != nil {
		m.listener.Close()
	}
	for _, conn := range m.conns {
		if conn != nil {
			conn.Close()
		}
	}
	return nil
}

func writeFrame(conn net.Conn, e envelope) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return err
	}
	hdr := make([]byte, 4)
	binary.BigEndian.PutUint32(hdr, uint32(buf.Len()))
	if _, err := conn.Write(append(hdr, buf.Bytes()...)); err != nil {
		return err
	}
	return nil
}

func readFrame(conn net.Conn) (envelope, error) {
	hdr := make([]byte, 4)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return envelope{}, err
	}
	body := make([]byte, binary.BigEndian.Uint32(hdr))
	if _, err := io.ReadFull(conn, body); err != nil {
		return envelope{}, err
	}
	var e envelope
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&e); err != nil {
		return envelope{}, err
	}
	return e, nil
}

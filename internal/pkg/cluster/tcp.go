package cluster

import (
	"encoding/binary"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// abortSentinel marks an abort frame. Regular frames carry their payload
// length, which is always far below this value.
const abortSentinel = ^uint64(0)

const (
	dialRetryInterval = 50 * time.Millisecond
	dialTimeout       = 30 * time.Second
)

// tcpComm is a full-mesh TCP substrate: one duplex framed connection per
// peer pair. Frames are an 8-byte little-endian length followed by that many
// payload bytes. Each endpoint is driven by a single goroutine (the
// coordinator), so connections need no locking.
type tcpComm struct {
	rank     int
	size     int
	listener net.Listener
	conns    []net.Conn
	aborted  bool
}

// DialTCP joins the mesh described by cfg as the given rank. Each worker
// listens on its own address; a worker dials every lower-ranked peer and
// accepts from every higher-ranked one. Dials retry until the peer's
// listener is up.
func DialTCP(cfg *Config, rank int) (Comm, error) {
	self, ok := cfg.member(rank)
	if !ok {
		return nil, errors.Errorf("rank %d not present in cluster config", rank)
	}
	size := len(cfg.Workers)

	listener, err := net.Listen("tcp", net.JoinHostPort(self.Host, self.Port))
	if err != nil {
		return nil, errors.Wrapf(err, "rank %d listen on %s:%s", rank, self.Host, self.Port)
	}

	c := &tcpComm{rank: rank, size: size, listener: listener, conns: make([]net.Conn, size)}

	for _, peer := range cfg.Workers {
		if peer.Rank >= rank {
			continue
		}
		conn, err := dialPeer(peer)
		if err != nil {
			c.Close()
			return nil, err
		}
		// Identify ourselves so the acceptor can place the connection.
		var hello [8]byte
		binary.LittleEndian.PutUint64(hello[:], uint64(rank))
		if _, err := conn.Write(hello[:]); err != nil {
			c.Close()
			return nil, errors.Wrapf(err, "rank %d handshake with rank %d", rank, peer.Rank)
		}
		c.conns[peer.Rank] = conn
		log.Debugf("Rank %d connected to rank %d", rank, peer.Rank)
	}

	for accepted := 0; accepted < size-rank-1; accepted++ {
		conn, err := listener.Accept()
		if err != nil {
			c.Close()
			return nil, errors.Wrapf(err, "rank %d accept peer", rank)
		}
		var hello [8]byte
		if _, err := io.ReadFull(conn, hello[:]); err != nil {
			c.Close()
			return nil, errors.Wrapf(err, "rank %d read peer handshake", rank)
		}
		peer := int(binary.LittleEndian.Uint64(hello[:]))
		if peer <= rank || peer >= size || c.conns[peer] != nil {
			c.Close()
			return nil, errors.Errorf("rank %d got unexpected handshake from rank %d", rank, peer)
		}
		c.conns[peer] = conn
		log.Debugf("Rank %d accepted rank %d", rank, peer)
	}
	return c, nil
}

func dialPeer(peer Member) (net.Conn, error) {
	addr := net.JoinHostPort(peer.Host, peer.Port)
	deadline := time.Now().Add(dialTimeout)
	for {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			return conn, nil
		}
		if time.Now().After(deadline) {
			return nil, errors.Wrapf(err, "dial rank %d at %s", peer.Rank, addr)
		}
		time.Sleep(dialRetryInterval)
	}
}

func (c *tcpComm) Rank() int { return c.rank }
func (c *tcpComm) Size() int { return c.size }

func (c *tcpComm) Send(dst int, msg []byte) error {
	if c.aborted {
		return ErrAborted
	}
	conn := c.conns[dst]
	var hdr [8]byte
	binary.LittleEndian.PutUint64(hdr[:], uint64(len(msg)))
	if _, err := conn.Write(hdr[:]); err != nil {
		return errors.Wrapf(err, "send frame header to rank %d", dst)
	}
	if _, err := conn.Write(msg); err != nil {
		return errors.Wrapf(err, "send %d byte frame to rank %d", len(msg), dst)
	}
	return nil
}

func (c *tcpComm) Recv(src int) ([]byte, error) {
	if c.aborted {
		return nil, ErrAborted
	}
	conn := c.conns[src]
	var hdr [8]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return nil, errors.Wrapf(err, "receive frame header from rank %d", src)
	}
	length := binary.LittleEndian.Uint64(hdr[:])
	if length == abortSentinel {
		c.aborted = true
		return nil, ErrAborted
	}
	msg := make([]byte, length)
	if _, err := io.ReadFull(conn, msg); err != nil {
		return nil, errors.Wrapf(err, "receive %d byte frame from rank %d", length, src)
	}
	return msg, nil
}

func (c *tcpComm) Bcast(root int, msg []byte) ([]byte, error) {
	if c.rank == root {
		for dst := 0; dst < c.size; dst++ {
			if dst == root {
				continue
			}
			if err := c.Send(dst, msg); err != nil {
				return nil, err
			}
		}
		return msg, nil
	}
	return c.Recv(root)
}

func (c *tcpComm) Scatter(root int, parts [][]byte) ([]byte, error) {
	if c.rank == root {
		for dst := 0; dst < c.size; dst++ {
			if dst == root {
				continue
			}
			if err := c.Send(dst, parts[dst]); err != nil {
				return nil, err
			}
		}
		return parts[root], nil
	}
	return c.Recv(root)
}

// Barrier is a two-wave collective over rank 0: every other rank sends an
// arrive frame to rank 0 and blocks on the release frame; rank 0 collects
// all arrivals, then releases everyone.
func (c *tcpComm) Barrier() error {
	if c.rank == 0 {
		for src := 1; src < c.size; src++ {
			if _, err := c.Recv(src); err != nil {
				return err
			}
		}
		for dst := 1; dst < c.size; dst++ {
			if err := c.Send(dst, nil); err != nil {
				return err
			}
		}
		return nil
	}
	if err := c.Send(0, nil); err != nil {
		return err
	}
	_, err := c.Recv(0)
	return err
}

// Abort notifies every peer with an abort frame, then tears the mesh down.
// Peers blocked in Recv surface ErrAborted; peers blocked elsewhere see the
// closed connections as transport failures.
func (c *tcpComm) Abort(code int, reason string) {
	if c.aborted {
		return
	}
	c.aborted = true
	log.Errorf("Rank %d aborting job (code %d): %s", c.rank, code, reason)
	var hdr [8]byte
	binary.LittleEndian.PutUint64(hdr[:], abortSentinel)
	for peer, conn := range c.conns {
		if conn == nil {
			continue
		}
		if _, err := conn.Write(hdr[:]); err != nil {
			log.Debugf("Abort notification to rank %d failed: %v", peer, err)
		}
	}
	c.Close()
}

func (c *tcpComm) Close() error {
	var first error
	for _, conn := range c.conns {
		if conn == nil {
			continue
		}
		if err := conn.Close(); err != nil && first == nil {
			first = err
		}
	}
	if c.listener != nil {
		if err := c.listener.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

package cluster

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

const localMailboxDepth = 16

// localGroup is an in-process substrate: every rank is a goroutine in the
// same process and messages travel over channels. Used by single-node jobs
// (world size 1) and by coordinator tests.
type localGroup struct {
	size int
	// mail[dst][src] carries messages from src to dst in send order.
	mail [][]chan []byte

	barrierMu    sync.Mutex
	barrierCount int
	barrierGen   chan struct{}

	abortOnce sync.Once
	aborted   chan struct{}
}

type localComm struct {
	group *localGroup
	rank  int
}

// NewLocal creates an in-process substrate of the given world size and
// returns one endpoint per rank.
func NewLocal(size int) []Comm {
	g := &localGroup{
		size:       size,
		mail:       make([][]chan []byte, size),
		barrierGen: make(chan struct{}),
		aborted:    make(chan struct{}),
	}
	for dst := 0; dst < size; dst++ {
		g.mail[dst] = make([]chan []byte, size)
		for src := 0; src < size; src++ {
			g.mail[dst][src] = make(chan []byte, localMailboxDepth)
		}
	}
	comms := make([]Comm, size)
	for rank := 0; rank < size; rank++ {
		comms[rank] = &localComm{group: g, rank: rank}
	}
	return comms
}

func (c *localComm) Rank() int { return c.rank }
func (c *localComm) Size() int { return c.group.size }

func (c *localComm) Send(dst int, msg []byte) error {
	// Messages are handed over by reference between goroutines; copy so the
	// sender may reuse its buffer, matching the TCP substrate's semantics.
	owned := make([]byte, len(msg))
	copy(owned, msg)
	select {
	case c.group.mail[dst][c.rank] <- owned:
		return nil
	case <-c.group.aborted:
		return ErrAborted
	}
}

func (c *localComm) Recv(src int) ([]byte, error) {
	select {
	case msg := <-c.group.mail[c.rank][src]:
		return msg, nil
	case <-c.group.aborted:
		return nil, ErrAborted
	}
}

func (c *localComm) Bcast(root int, msg []byte) ([]byte, error) {
	if c.rank == root {
		for dst := 0; dst < c.group.size; dst++ {
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

func (c *localComm) Scatter(root int, parts [][]byte) ([]byte, error) {
	if c.rank == root {
		for dst := 0; dst < c.group.size; dst++ {
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

func (c *localComm) Barrier() error {
	g := c.group
	g.barrierMu.Lock()
	g.barrierCount++
	gen := g.barrierGen
	if g.barrierCount == g.size {
		g.barrierCount = 0
		g.barrierGen = make(chan struct{})
		close(gen)
		g.barrierMu.Unlock()
		return nil
	}
	g.barrierMu.Unlock()
	select {
	case <-gen:
		return nil
	case <-g.aborted:
		return ErrAborted
	}
}

func (c *localComm) Abort(code int, reason string) {
	c.group.abortOnce.Do(func() {
		log.Errorf("Rank %d aborting job (code %d): %s", c.rank, code, reason)
		close(c.group.aborted)
	})
}

func (c *localComm) Close() error { return nil }

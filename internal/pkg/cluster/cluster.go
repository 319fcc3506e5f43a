// Package cluster provides the messaging substrate the coordinator runs on:
// ranked peers with blocking point-to-point transfers, broadcast and scatter
// collectives, a global barrier and a graceful abort. Two implementations
// exist: an in-process substrate for single-node jobs and tests, and a TCP
// mesh for multi-process jobs.
package cluster

import "github.com/pkg/errors"

// Comm is one worker's endpoint into the substrate.
//
// Send and Recv are blocking and match in program order per peer pair: the
// i-th Recv from a given source returns the i-th message that source sent
// here. Bcast and Scatter must be entered by every rank; on non-root ranks
// the payload arguments are ignored. Barrier blocks until every rank has
// entered it.
type Comm interface {
	Rank() int
	Size() int
	Send(dst int, msg []byte) error
	Recv(src int) ([]byte, error)
	Bcast(root int, msg []byte) ([]byte, error)
	Scatter(root int, parts [][]byte) ([]byte, error)
	Barrier() error
	Abort(code int, reason string)
	Close() error
}

// ErrAborted is surfaced by blocked collective or point-to-point calls when
// any rank has called Abort.
var ErrAborted = errors.New("cluster: job aborted")

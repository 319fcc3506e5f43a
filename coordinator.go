// Package mergesort sorts a file of variable-length binary records ascending
// by an 8-byte key, distributing the work across cooperating workers: the
// root scans record boundaries, every worker sorts its record-aligned slice
// of the input into a local run, and a binary tree merge reduces the runs to
// a single sorted file on rank 0.
package mergesort

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/SalimTag/SPM-Distributed-MergeSort/internal/pkg/chunk"
	"github.com/SalimTag/SPM-Distributed-MergeSort/internal/pkg/cluster"
	"github.com/SalimTag/SPM-Distributed-MergeSort/internal/pkg/merge"
	"github.com/SalimTag/SPM-Distributed-MergeSort/internal/pkg/plan"
	"github.com/SalimTag/SPM-Distributed-MergeSort/internal/pkg/run"
	"github.com/SalimTag/SPM-Distributed-MergeSort/internal/pkg/scratch"
	"github.com/SalimTag/SPM-Distributed-MergeSort/internal/pkg/sorter"
)

// byteRange is a worker's record-aligned slice [Start, End) of the input.
type byteRange struct {
	Start int64
	End   int64
}

// Coordinator drives the per-worker lifecycle of a distributed sort job:
// scan, plan broadcast, local sort, tree merge, finalize.
type Coordinator struct {
	comm    cluster.Comm
	config  *Config
	sorter  *sorter.Sorter
	scratch *scratch.Dir

	bytesSpilled     int64
	bytesTransferred int64
}

// NewCoordinator prepares a worker for a sort job: scratch directory and
// sorter pool are created here; Sort removes the scratch directory in its
// finalize phase or on error.
func NewCoordinator(comm cluster.Comm, options ...Option) (*Coordinator, error) {
	c := NewConfig()
	for _, f := range options {
		f(c)
	}
	if c.Verbose {
		log.SetLevel(log.DebugLevel)
	}
	dir, err := scratch.New(c.ScratchDir, comm.Rank())
	if err != nil {
		return nil, err
	}
	log.Debugf("Rank %d: scratch at %s, %d sort threads, binding hint %q",
		comm.Rank(), dir.Path(), c.Threads, c.ThreadBind)
	return &Coordinator{
		comm:    comm,
		config:  c,
		sorter:  sorter.New(c.Threads),
		scratch: dir,
	}, nil
}

// Sort runs the five phases on this worker. Any unrecoverable error aborts
// the whole distributed job through the substrate after a rank-prefixed
// diagnostic.
func (c *Coordinator) Sort(input, output string) error {
	if err := c.sort(input, output); err != nil {
		fmt.Fprintf(os.Stderr, "rank %d: %v\n", c.comm.Rank(), err)
		c.scratch.Cleanup()
		if !errors.Is(err, cluster.ErrAborted) {
			c.comm.Abort(1, err.Error())
		}
		return err
	}
	return nil
}

func (c *Coordinator) sort(input, output string) error {
	rank := c.comm.Rank()

	// Phase 1: boundary scan, root only.
	scanStart := time.Now()
	var table *plan.OffsetTable
	if rank == 0 {
		var err error
		table, err = plan.Scan(input)
		if err != nil {
			return err
		}
		log.Infof("Rank 0: found %d records in %s", table.Records(), input)
	}
	if err := c.comm.Barrier(); err != nil {
		return err
	}
	log.Debugf("Rank %d: scan phase took %s", rank, time.Since(scanStart))

	// Phase 2: plan broadcast.
	rng, err := c.planBroadcast(table)
	if err != nil {
		return err
	}
	log.Debugf("Rank %d: assigned bytes [%d, %d)", rank, rng.Start, rng.End)

	// Phase 3: local sort.
	localStart := time.Now()
	localRun, err := c.localSort(input, rng)
	if err != nil {
		return err
	}
	if err := c.comm.Barrier(); err != nil {
		return err
	}
	log.Debugf("Rank %d: local sort phase took %s", rank, time.Since(localStart))

	// Phase 4: tree merge.
	mergeStart := time.Now()
	finalRun, err := c.treeMerge(localRun)
	if err != nil {
		return err
	}
	log.Debugf("Rank %d: tree merge phase took %s", rank, time.Since(mergeStart))

	// Phase 5: finalize.
	if rank == 0 {
		if err := moveFile(finalRun, output); err != nil {
			return err
		}
	}
	c.scratch.Cleanup()
	if err := c.comm.Barrier(); err != nil {
		return err
	}

	if rank == 0 {
		var outBytes uint64
		if info, err := os.Stat(output); err == nil {
			outBytes = uint64(info.Size())
		}
		fmt.Printf("Sorted %s into %s with %d workers\n",
			humanize.Bytes(outBytes), output, c.comm.Size())
	}
	log.Infof("Rank %d - Bytes Spilled:\t%s", rank, humanize.Bytes(uint64(c.bytesSpilled)))
	log.Infof("Rank %d - Bytes Transferred:\t%s", rank, humanize.Bytes(uint64(c.bytesTransferred)))
	return nil
}

// planBroadcast distributes the partition plan. The root broadcasts the
// record count and file size; for jobs at or below the scatter threshold it then
// broadcasts the full offset table and every worker computes its own range,
// otherwise it scatters just the two boundary offsets per rank.
func (c *Coordinator) planBroadcast(table *plan.OffsetTable) (byteRange, error) {
	world := c.comm.Size()
	rank := c.comm.Rank()

	hdr := make([]byte, 16)
	if rank == 0 {
		binary.LittleEndian.PutUint64(hdr, uint64(table.Records()))
		binary.LittleEndian.PutUint64(hdr[8:], uint64(table.FileSize))
	}
	hdr, err := c.comm.Bcast(0, hdr)
	if err != nil {
		return byteRange{}, errors.Wrap(err, "broadcast plan header")
	}
	n := int64(binary.LittleEndian.Uint64(hdr))
	fileSize := int64(binary.LittleEndian.Uint64(hdr[8:]))

	if n <= plan.ScatterThreshold {
		var raw []byte
		if rank == 0 {
			raw = make([]byte, 8*n)
			for i, off := range table.Offsets {
				binary.LittleEndian.PutUint64(raw[8*i:], uint64(off))
			}
		}
		raw, err := c.comm.Bcast(0, raw)
		if err != nil {
			return byteRange{}, errors.Wrap(err, "broadcast offset table")
		}
		if rank != 0 {
			table = &plan.OffsetTable{FileSize: fileSize, Offsets: make([]int64, n)}
			for i := range table.Offsets {
				table.Offsets[i] = int64(binary.LittleEndian.Uint64(raw[8*i:]))
			}
		}
		asn := plan.Assign(table, world, rank)
		return byteRange{Start: asn.StartByte, End: asn.EndByte}, nil
	}

	// Large file: each rank receives only its own two boundary offsets.
	var parts [][]byte
	if rank == 0 {
		parts = make([][]byte, world)
		for w := 0; w < world; w++ {
			asn := plan.Assign(table, world, w)
			p := make([]byte, 16)
			binary.LittleEndian.PutUint64(p, uint64(asn.StartByte))
			binary.LittleEndian.PutUint64(p[8:], uint64(asn.EndByte))
			parts[w] = p
		}
	}
	p, err := c.comm.Scatter(0, parts)
	if err != nil {
		return byteRange{}, errors.Wrap(err, "scatter partition boundaries")
	}
	return byteRange{
		Start: int64(binary.LittleEndian.Uint64(p)),
		End:   int64(binary.LittleEndian.Uint64(p[8:])),
	}, nil
}

// localSort maps the input, indexes this worker's range into memory-budgeted
// chunks, sorts each chunk on the task pool, spills each as a run, and
// reduces the runs to one local run. An invalid record truncates the chunk:
// the decoded prefix is still sorted and spilled, the rest of the range is
// abandoned.
func (c *Coordinator) localSort(input string, rng byteRange) (string, error) {
	view, err := chunk.OpenView(input)
	if err != nil {
		return "", err
	}
	defer view.Close()

	var runs []string
	walker := chunk.NewWalker(view, rng.Start, rng.End)
	for !walker.Done() {
		descs, werr := walker.Next(c.config.MemoryLimit)
		if werr != nil {
			log.Warnf("Rank %d: truncating chunk: %v", c.comm.Rank(), werr)
		}
		if len(descs) > 0 {
			c.sorter.Sort(descs)
			path := c.scratch.NextRunPath()
			written, err := run.WriteDescriptors(path, descs)
			c.bytesSpilled += written
			if err != nil {
				return "", err
			}
			runs = append(runs, path)
		}
		if werr != nil {
			break
		}
	}

	switch len(runs) {
	case 0:
		// Nothing decodable in the range; the worker still owns an empty run.
		path := c.scratch.NextRunPath()
		if _, err := run.WriteDescriptors(path, nil); err != nil {
			return "", err
		}
		return path, nil
	case 1:
		return runs[0], nil
	}
	log.Debugf("Rank %d: reducing %d chunk runs", c.comm.Rank(), len(runs))
	local := c.scratch.NextRunPath()
	if err := merge.Hierarchical(runs, local, c.config.FanIn,
		c.config.MergeConcurrency, c.scratch.NextRunPath); err != nil {
		return "", err
	}
	return local, nil
}

// treeMerge reduces the per-worker runs to a single run on rank 0 with a
// binary reduction: at step s every surviving worker whose rank is a
// multiple of 2s receives its partner's run (rank+s) and merges; the partner
// sends and drops out. Every rank, active or not, enters the barrier closing
// each step.
func (c *Coordinator) treeMerge(localRun string) (string, error) {
	rank := c.comm.Rank()
	world := c.comm.Size()
	current := localRun
	active := true

	for step := 1; step < world; step *= 2 {
		if active && rank%(2*step) == 0 {
			partner := rank + step
			if partner < world {
				received := c.scratch.NextRunPath()
				n, err := c.receiveRun(partner, received)
				if err != nil {
					return "", err
				}
				if n == 0 {
					os.Remove(received)
				} else {
					merged := c.scratch.NextRunPath()
					if _, err := merge.KWay([]string{current, received}, merged); err != nil {
						return "", err
					}
					os.Remove(current)
					os.Remove(received)
					current = merged
				}
			}
		} else if active && rank%step == 0 {
			if err := c.sendRun(rank-step, current); err != nil {
				return "", err
			}
			active = false
		}
		if err := c.comm.Barrier(); err != nil {
			return "", err
		}
	}
	return current, nil
}

// sendRun streams a run file to a peer: an 8-byte length announcement, then
// the file in chunks of at most the configured transfer size. A missing or
// empty run is announced as length 0.
func (c *Coordinator) sendRun(dst int, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return c.announce(dst, 0)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return errors.Wrapf(err, "stat run %s for transfer", path)
	}
	if err := c.announce(dst, info.Size()); err != nil {
		return err
	}

	buf := make([]byte, min64(c.config.TransferChunk, info.Size()))
	remaining := info.Size()
	for remaining > 0 {
		n := min64(int64(len(buf)), remaining)
		if _, err := io.ReadFull(f, buf[:n]); err != nil {
			return errors.Wrapf(err, "read run %s for transfer", path)
		}
		if err := c.comm.Send(dst, buf[:n]); err != nil {
			return errors.Wrapf(err, "send run chunk to rank %d", dst)
		}
		c.bytesTransferred += n
		remaining -= n
	}
	return nil
}

func (c *Coordinator) announce(dst int, size int64) error {
	hdr := make([]byte, 8)
	binary.LittleEndian.PutUint64(hdr, uint64(size))
	return errors.Wrapf(c.comm.Send(dst, hdr), "announce %d byte run to rank %d", size, dst)
}

// receiveRun writes a peer's streamed run to path and returns its announced
// length. Length 0 means the peer had no records.
func (c *Coordinator) receiveRun(src int, path string) (int64, error) {
	hdr, err := c.comm.Recv(src)
	if err != nil {
		return 0, errors.Wrapf(err, "receive run announcement from rank %d", src)
	}
	size := int64(binary.LittleEndian.Uint64(hdr))
	f, err := os.Create(path)
	if err != nil {
		return 0, errors.Wrapf(err, "create received run %s", path)
	}
	remaining := size
	for remaining > 0 {
		msg, err := c.comm.Recv(src)
		if err != nil {
			f.Close()
			return 0, errors.Wrapf(err, "receive run chunk from rank %d", src)
		}
		if int64(len(msg)) > remaining {
			f.Close()
			return 0, errors.Errorf("rank %d sent %d bytes past announced run length", src, int64(len(msg))-remaining)
		}
		if _, err := f.Write(msg); err != nil {
			f.Close()
			return 0, errors.Wrapf(err, "write received run %s", path)
		}
		c.bytesTransferred += int64(len(msg))
		remaining -= int64(len(msg))
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return 0, errors.Wrapf(err, "sync received run %s", path)
	}
	return size, errors.Wrapf(f.Close(), "close received run %s", path)
}

// moveFile relocates the final run to the user-supplied output path with a
// copy and remove, which also works across filesystems.
func moveFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "open final run %s", src)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "create output %s", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrapf(err, "copy final run to %s", dst)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return errors.Wrapf(err, "sync output %s", dst)
	}
	if err := out.Close(); err != nil {
		return errors.Wrapf(err, "close output %s", dst)
	}
	return errors.Wrapf(os.Remove(src), "remove final run %s", src)
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// Validate re-walks a finished output and checks format validity and key
// order; used by the verify command.
func Validate(path string, progress func(uint64)) (uint64, error) {
	return run.Validate(path, progress)
}

package merge

import (
	"context"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultFanIn bounds how many runs a single k-way merge consumes. It trades
// per-merge I/O pressure against recursion depth.
const DefaultFanIn = 10

// NameFunc mints a fresh temporary file path for an intermediate run.
type NameFunc func() string

// Hierarchical reduces the runs at inputs to a single sorted file at output.
// With at most fanIn inputs it merges directly. Otherwise it partitions the
// inputs into groups of at most fanIn, merges the groups concurrently
// (bounded by maxConcurrent), deletes each group's inputs once consumed, and
// repeats on the intermediates until at most fanIn remain; those are merged
// directly into output (a single remaining run is renamed to output).
func Hierarchical(inputs []string, output string, fanIn int, maxConcurrent int, nextName NameFunc) error {
	if fanIn < 2 {
		fanIn = DefaultFanIn
	}
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	for len(inputs) > fanIn {
		groups := groupByFanIn(inputs, fanIn)
		log.Debugf("Hierarchical merge round: %d runs in %d groups", len(inputs), len(groups))

		intermediates := make([]string, len(groups))
		sem := semaphore.NewWeighted(int64(maxConcurrent))
		var g errgroup.Group
		for i, group := range groups {
			i, group := i, group
			if err := sem.Acquire(context.Background(), 1); err != nil {
				return errors.Wrap(err, "acquire merge slot")
			}
			intermediates[i] = nextName()
			g.Go(func() error {
				defer sem.Release(1)
				if _, err := KWay(group, intermediates[i]); err != nil {
					return err
				}
				for _, path := range group {
					if err := os.Remove(path); err != nil {
						log.Warnf("Failed to remove consumed run %s: %v", path, err)
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		inputs = intermediates
	}

	if len(inputs) == 1 {
		// A single run just moves into place.
		if err := os.Rename(inputs[0], output); err == nil {
			return nil
		}
		// Rename can fail across filesystems; fall through to a copy.
		if _, err := copyFile(inputs[0], output); err != nil {
			return err
		}
		return errors.Wrapf(os.Remove(inputs[0]), "remove merged run %s", inputs[0])
	}

	_, err := KWay(inputs, output)
	if err != nil {
		return err
	}
	for _, path := range inputs {
		if err := os.Remove(path); err != nil {
			log.Warnf("Failed to remove consumed run %s: %v", path, err)
		}
	}
	return nil
}

// groupByFanIn slices inputs into consecutive groups of at most size files.
func groupByFanIn(inputs []string, size int) [][]string {
	groups := make([][]string, 0, (len(inputs)+size-1)/size)
	for start := 0; start < len(inputs); start += size {
		end := start + size
		if end > len(inputs) {
			end = len(inputs)
		}
		groups = append(groups, inputs[start:end])
	}
	return groups
}

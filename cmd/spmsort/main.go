// Command spmsort sorts files of variable-length binary records by their
// 8-byte keys, on one node or across a cluster of cooperating workers.
package main

import (
	"fmt"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	pb "gopkg.in/cheggaaa/pb.v1"

	mergesort "github.com/SalimTag/SPM-Distributed-MergeSort"
	"github.com/SalimTag/SPM-Distributed-MergeSort/internal/pkg/cluster"
	"github.com/SalimTag/SPM-Distributed-MergeSort/internal/pkg/gen"
)

func main() {
	root := &cobra.Command{
		Use:           "spmsort",
		Short:         "Distributed external merge sort for binary record files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolP("verbose", "v", false, "Output verbose logs")
	root.AddCommand(sortCmd(), distSortCmd(), generateCmd(), verifyCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func verboseOption(cmd *cobra.Command) {
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		log.SetLevel(log.DebugLevel)
	}
}

func sortCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sort <input> <output> <threads>",
		Short: "Sort a record file on this node",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			verboseOption(cmd)
			threads, err := strconv.Atoi(args[2])
			if err != nil || threads < 1 {
				return fmt.Errorf("threads must be a positive integer, got %q", args[2])
			}
			comm := cluster.NewLocal(1)[0]
			coord, err := mergesort.NewCoordinator(comm, mergesort.WithThreads(threads))
			if err != nil {
				return err
			}
			return coord.Sort(args[0], args[1])
		},
	}
}

func distSortCmd() *cobra.Command {
	var clusterFile string
	var rank int
	var threads int
	cmd := &cobra.Command{
		Use:   "dist-sort <input> <output>",
		Short: "Sort a record file across the workers of a cluster",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			verboseOption(cmd)
			cfg, err := cluster.LoadConfig(clusterFile)
			if err != nil {
				return err
			}
			if rank < 0 {
				if env := os.Getenv("SPM_RANK"); env != "" {
					rank, err = strconv.Atoi(env)
					if err != nil {
						return fmt.Errorf("invalid SPM_RANK %q", env)
					}
				} else {
					return fmt.Errorf("worker rank required (--rank or SPM_RANK)")
				}
			}
			comm, err := cluster.DialTCP(cfg, rank)
			if err != nil {
				return err
			}
			defer comm.Close()
			if threads <= 0 {
				threads = threadsForWorld(comm.Size())
			}
			coord, err := mergesort.NewCoordinator(comm, mergesort.WithThreads(threads))
			if err != nil {
				return err
			}
			return coord.Sort(args[0], args[1])
		},
	}
	cmd.Flags().StringVar(&clusterFile, "cluster", "cluster.yaml", "Cluster membership `file`")
	cmd.Flags().IntVar(&rank, "rank", -1, "This worker's rank (or set SPM_RANK)")
	cmd.Flags().IntVar(&threads, "threads", 0, "Sort threads per worker (0 picks by world size)")
	return cmd
}

// threadsForWorld mirrors the launcher heuristic: fewer sort threads per
// worker as the job grows, to avoid oversubscribing shared nodes.
func threadsForWorld(world int) int {
	switch {
	case world >= 8:
		return 2
	case world >= 4:
		return 3
	default:
		return 4
	}
}

func generateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate <output> <count> [fixed_payload_size]",
		Short: "Generate a synthetic record file (fixed seed, reproducible)",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			verboseOption(cmd)
			count, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || count < 0 {
				return fmt.Errorf("count must be a non-negative integer, got %q", args[1])
			}
			fixed := 0
			if len(args) == 3 {
				fixed, err = strconv.Atoi(args[2])
				if err != nil {
					return fmt.Errorf("invalid payload size %q", args[2])
				}
			}

			bar := pb.New64(count).Prefix("Generate").Start()
			written, err := gen.Generate(args[0], gen.Options{
				Records:     count,
				PayloadSize: fixed,
				Progress:    func(done int64) { bar.Set64(done) },
			})
			bar.Finish()
			if err != nil {
				return err
			}
			fmt.Printf("Generated %d records (%d bytes) in %s\n", count, written, args[0])
			return nil
		},
	}
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Check that a file is a valid record sequence with non-decreasing keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			verboseOption(cmd)
			count, err := mergesort.Validate(args[0], func(done uint64) {
				log.Infof("Verified %d records...", done)
			})
			if err != nil {
				return fmt.Errorf("verification failed: %w", err)
			}
			fmt.Printf("File is correctly sorted: %d records\n", count)
			return nil
		},
	}
}

package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Strob0t/Upchuck/internal/service"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Operate on the processing queue",
}

var queueRetryFailedCmd = &cobra.Command{
	Use:   "retry-failed",
	Short: "Requeue every failed item that still has retry budget",
	RunE: func(cmd *cobra.Command, _ []string) error {
		pool, store, err := openStore(cmd.Context(), cfg.Postgres)
		if err != nil {
			return err
		}
		defer pool.Close()

		n, err := service.NewQueueService(store, cfg.Queue.MaxRetryCount).RetryFailed(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "requeued %d item(s)\n", n)
		return nil
	},
}

var queueReclaimExpiredCmd = &cobra.Command{
	Use:   "reclaim-expired",
	Short: "Fail items stuck in Processing past the configured lease",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cfg.Queue.ProcessingLease <= 0 {
			return fmt.Errorf("queue.processing_lease is disabled")
		}
		pool, store, err := openStore(cmd.Context(), cfg.Postgres)
		if err != nil {
			return err
		}
		defer pool.Close()

		n, err := service.NewQueueService(store, cfg.Queue.MaxRetryCount).ReclaimExpired(cmd.Context(), cfg.Queue.ProcessingLease)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "reclaimed %d item(s)\n", n)
		return nil
	},
}

var queueDepthCmd = &cobra.Command{
	Use:   "depth",
	Short: "Show item counts per queue status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		pool, store, err := openStore(cmd.Context(), cfg.Postgres)
		if err != nil {
			return err
		}
		defer pool.Close()

		depth, err := service.NewStatsService(store).QueueDepth(cmd.Context())
		if err != nil {
			return err
		}
		statuses := make([]string, 0, len(depth))
		for s := range depth {
			statuses = append(statuses, s)
		}
		sort.Strings(statuses)
		for _, s := range statuses {
			fmt.Fprintf(cmd.OutOrStdout(), "%-12s %d\n", s, depth[s])
		}
		return nil
	},
}

func init() {
	queueCmd.AddCommand(queueRetryFailedCmd, queueReclaimExpiredCmd, queueDepthCmd)
	rootCmd.AddCommand(queueCmd)
}

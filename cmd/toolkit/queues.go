package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	queueimpl "github.com/fargraph/go-fargraph/pkg/queue/impl"
)

var queuesCmd = &cobra.Command{
	Use:   "queues",
	Short: "Inspects and controls the job queues",
	Long:  `Inspects and controls the job queues`,
	Args:  cobra.ExactArgs(1),
}

var queuesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints a snapshot of every queue",
	Long:  `Prints a snapshot of every queue`,
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		admin, err := openAdmin(cmd)
		if err != nil {
			return err
		}
		defer admin.Close()

		stats, err := admin.Stats(context.Background())
		if err != nil {
			return fmt.Errorf("getting queue stats: %s", err)
		}
		for _, s := range stats {
			state := "running"
			if s.Paused {
				state = "paused"
			}
			fmt.Printf("%s\t%s\tpending=%d active=%d retry=%d dead=%d processed=%d failed=%d\n",
				s.Queue, state, s.Pending, s.Active, s.Retry, s.Archived, s.Processed, s.Failed)
		}
		return nil
	},
}

var queuesPauseCmd = &cobra.Command{
	Use:   "pause <queue>",
	Short: "Pauses a queue",
	Long:  `Pauses a queue; queued jobs are kept but not picked up`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		admin, err := openAdmin(cmd)
		if err != nil {
			return err
		}
		defer admin.Close()

		if err := admin.Pause(context.Background(), args[0]); err != nil {
			return fmt.Errorf("pausing queue: %s", err)
		}
		fmt.Printf("Queue %s paused\n", args[0])
		return nil
	},
}

var queuesResumeCmd = &cobra.Command{
	Use:   "resume <queue>",
	Short: "Resumes a paused queue",
	Long:  `Resumes a paused queue`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		admin, err := openAdmin(cmd)
		if err != nil {
			return err
		}
		defer admin.Close()

		if err := admin.Resume(context.Background(), args[0]); err != nil {
			return fmt.Errorf("resuming queue: %s", err)
		}
		fmt.Printf("Queue %s resumed\n", args[0])
		return nil
	},
}

var queuesDrainCmd = &cobra.Command{
	Use:   "drain <queue>",
	Short: "Drains a queue",
	Long:  `Drains a queue; pending, scheduled and retry tasks are deleted, running tasks finish`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		admin, err := openAdmin(cmd)
		if err != nil {
			return err
		}
		defer admin.Close()

		if err := admin.Drain(context.Background(), args[0]); err != nil {
			return fmt.Errorf("draining queue: %s", err)
		}
		fmt.Printf("Queue %s drained\n", args[0])
		return nil
	},
}

func openAdmin(cmd *cobra.Command) (*queueimpl.Admin, error) {
	redisURI, err := cmd.Flags().GetString("redis-uri")
	if err != nil {
		return nil, errors.New("failed to parse redis-uri")
	}
	admin, err := queueimpl.NewAdmin(redisURI)
	if err != nil {
		return nil, fmt.Errorf("connecting to redis: %s", err)
	}
	return admin, nil
}

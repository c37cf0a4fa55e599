package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	queueimpl "github.com/fargraph/go-fargraph/pkg/queue/impl"
	storeimpl "github.com/fargraph/go-fargraph/pkg/store/impl"
	targetsimpl "github.com/fargraph/go-fargraph/pkg/targets/impl"
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Manages the tracked target set",
	Long:  `Manages the tracked target set`,
	Args:  cobra.ExactArgs(1),
}

var targetsAddCmd = &cobra.Command{
	Use:   "add <fid>",
	Short: "Adds a target and queues its backfill",
	Long:  `Adds a target and queues its backfill`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fid, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("parsing fid: %s", err)
		}
		isRoot, err := cmd.Flags().GetBool("root")
		if err != nil {
			return errors.New("failed to parse root flag")
		}
		ctx := context.Background()

		db, cache, err := openStores(ctx, cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		defer cache.Close()

		inserted, err := db.InsertTarget(ctx, fid, isRoot)
		if err != nil {
			return fmt.Errorf("inserting target: %s", err)
		}
		if !inserted {
			fmt.Printf("Target %d already tracked\n", fid)
			return nil
		}
		if err := cache.AddTarget(ctx, fid); err != nil {
			return fmt.Errorf("caching target: %s", err)
		}

		redisURI, _ := cmd.Flags().GetString("redis-uri")
		enqueuer, err := queueimpl.NewClient(redisURI)
		if err != nil {
			return fmt.Errorf("creating queue client: %s", err)
		}
		defer enqueuer.Close()
		if err := enqueuer.EnqueueBackfill(ctx, fid); err != nil {
			return fmt.Errorf("queuing backfill: %s", err)
		}

		fmt.Printf("Target %d added (root=%v), backfill queued\n", fid, isRoot)
		return nil
	},
}

var targetsRemoveCmd = &cobra.Command{
	Use:   "remove <fid>",
	Short: "Removes a target; indexed rows are kept",
	Long:  `Removes a target; indexed rows are kept`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fid, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("parsing fid: %s", err)
		}
		ctx := context.Background()

		db, cache, err := openStores(ctx, cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		defer cache.Close()

		if err := db.RemoveTarget(ctx, fid); err != nil {
			return fmt.Errorf("removing target: %s", err)
		}
		if err := cache.RemoveTarget(ctx, fid); err != nil {
			return fmt.Errorf("removing target from cache: %s", err)
		}

		fmt.Printf("Target %d removed\n", fid)
		return nil
	},
}

var targetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists tracked targets",
	Long:  `Lists tracked targets`,
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		postgresURI, _ := cmd.Flags().GetString("postgres-uri")
		db, err := storeimpl.New(ctx, postgresURI, storeimpl.EnvironmentDev)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %s", err)
		}
		defer db.Close()

		targets, err := db.ListTargets(ctx)
		if err != nil {
			return fmt.Errorf("listing targets: %s", err)
		}
		for _, t := range targets {
			synced := "pending"
			if t.LastSyncedAt != nil {
				synced = t.LastSyncedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%d\troot=%v\tsynced=%s\n", t.Fid, t.IsRoot, synced)
		}
		fmt.Printf("%d targets\n", len(targets))
		return nil
	},
}

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "Manages the tracked client app set",
	Long:  `Manages the tracked client app set`,
	Args:  cobra.ExactArgs(1),
}

var clientsAddCmd = &cobra.Command{
	Use:   "add <fid>",
	Short: "Adds a client app fid",
	Long:  `Adds a client app fid whose signer additions announce new root targets`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fid, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("parsing fid: %s", err)
		}
		ctx := context.Background()

		db, cache, err := openStores(ctx, cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		defer cache.Close()

		if _, err := db.InsertTargetClient(ctx, fid); err != nil {
			return fmt.Errorf("inserting target client: %s", err)
		}
		if err := cache.AddTargetClient(ctx, fid); err != nil {
			return fmt.Errorf("caching target client: %s", err)
		}

		fmt.Printf("Client %d added\n", fid)
		return nil
	},
}

var clientsRemoveCmd = &cobra.Command{
	Use:   "remove <fid>",
	Short: "Removes a client app fid",
	Long:  `Removes a client app fid`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fid, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("parsing fid: %s", err)
		}
		ctx := context.Background()

		db, cache, err := openStores(ctx, cmd)
		if err != nil {
			return err
		}
		defer db.Close()
		defer cache.Close()

		if err := db.RemoveTargetClient(ctx, fid); err != nil {
			return fmt.Errorf("removing target client: %s", err)
		}
		if err := cache.RemoveTargetClient(ctx, fid); err != nil {
			return fmt.Errorf("removing target client from cache: %s", err)
		}

		fmt.Printf("Client %d removed\n", fid)
		return nil
	},
}

func openStores(ctx context.Context, cmd *cobra.Command) (*storeimpl.PgStore, *targetsimpl.RedisCache, error) {
	postgresURI, err := cmd.Flags().GetString("postgres-uri")
	if err != nil {
		return nil, nil, errors.New("failed to parse postgres-uri")
	}
	redisURI, err := cmd.Flags().GetString("redis-uri")
	if err != nil {
		return nil, nil, errors.New("failed to parse redis-uri")
	}
	db, err := storeimpl.New(ctx, postgresURI, storeimpl.EnvironmentDev)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to postgres: %s", err)
	}
	cache, err := targetsimpl.New(ctx, redisURI)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("connecting to redis: %s", err)
	}
	return db, cache, nil
}

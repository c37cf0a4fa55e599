package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fargraph/go-fargraph/buildinfo"
	"github.com/fargraph/go-fargraph/internal/ops"
	"github.com/fargraph/go-fargraph/pkg/hub"
	hubimpl "github.com/fargraph/go-fargraph/pkg/hub/impl"
	"github.com/fargraph/go-fargraph/pkg/logging"
	"github.com/fargraph/go-fargraph/pkg/metrics"
	"github.com/fargraph/go-fargraph/pkg/queue"
	queueimpl "github.com/fargraph/go-fargraph/pkg/queue/impl"
	"github.com/fargraph/go-fargraph/pkg/store"
	storeimpl "github.com/fargraph/go-fargraph/pkg/store/impl"
	"github.com/fargraph/go-fargraph/pkg/targets"
	targetsimpl "github.com/fargraph/go-fargraph/pkg/targets/impl"
	"github.com/fargraph/go-fargraph/pkg/workers/backfill"
	"github.com/fargraph/go-fargraph/pkg/workers/processor"
	"github.com/fargraph/go-fargraph/pkg/workers/realtime"
)

func main() {
	config := setupConfig()
	logging.SetupLogger(buildinfo.GitCommit, config.Log.Debug, config.Log.Human)
	if err := config.validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsHandler, err := metrics.SetupInstrumentation("fargraph:indexer")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize instrumentation")
	}

	db, err := storeimpl.New(ctx, config.Postgres.ConnectionString, storeimpl.Environment(config.Postgres.Environment))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize store")
	}
	defer db.Close()

	redisURL := config.redisURL()
	cache, err := targetsimpl.New(ctx, redisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize target cache")
	}
	defer func() {
		if err := cache.Close(); err != nil {
			log.Warn().Err(err).Msg("closing target cache")
		}
	}()

	enqueuer, err := queueimpl.NewClient(redisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize queue client")
	}
	defer func() {
		if err := enqueuer.Close(); err != nil {
			log.Warn().Err(err).Msg("closing queue client")
		}
	}()

	admin, err := queueimpl.NewAdmin(redisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize queue admin")
	}
	defer func() {
		if err := admin.Close(); err != nil {
			log.Warn().Err(err).Msg("closing queue admin")
		}
	}()

	endpoints, _ := config.hubEndpoints()
	hubOpts := []hub.Option{}
	if config.Hubs.RateLimitPerSecond > 0 {
		hubOpts = append(hubOpts, hub.WithRateLimitPerSecond(config.Hubs.RateLimitPerSecond))
	}
	hubClient, err := hubimpl.New(endpoints, hubOpts...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize hub client")
	}

	if err := seedTargets(ctx, config, db, enqueuer); err != nil {
		log.Fatal().Err(err).Msg("failed to seed targets")
	}
	if err := hydrateCache(ctx, db, cache); err != nil {
		log.Fatal().Err(err).Msg("failed to hydrate target cache")
	}

	backfillWorker := backfill.New(hubClient, db)
	realtimeWorker, err := realtime.New(hubClient, db, cache, enqueuer)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize realtime worker")
	}
	processorWorker, err := processor.New(db, cache, enqueuer, config.Strategy.EnableClientDiscovery)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize event processor")
	}

	backfillSrv, err := queueimpl.NewServer(redisURL, queue.QueueBackfill, config.Concurrency.Backfill)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize backfill server")
	}
	// Realtime ticks run strictly one at a time so the cursor never races.
	realtimeSrv, err := queueimpl.NewServer(redisURL, queue.QueueRealtime, 1)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize realtime server")
	}
	eventsSrv, err := queueimpl.NewServer(redisURL, queue.QueueEvents, config.Concurrency.ProcessEvent)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize events server")
	}
	scheduler, err := queueimpl.NewScheduler(redisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize scheduler")
	}

	backfillMux := asynq.NewServeMux()
	backfillMux.HandleFunc(queue.TaskBackfillFid, backfillWorker.Handle)
	realtimeMux := asynq.NewServeMux()
	realtimeMux.HandleFunc(queue.TaskRealtimeSync, realtimeWorker.Handle)
	eventsMux := asynq.NewServeMux()
	eventsMux.HandleFunc(queue.TaskProcessEvent, processorWorker.Handle)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return backfillSrv.Run(backfillMux) })
	g.Go(func() error { return realtimeSrv.Run(realtimeMux) })
	g.Go(func() error { return eventsSrv.Run(eventsMux) })
	g.Go(func() error { return scheduler.Run() })
	g.Go(func() error {
		router := ops.ConfiguredRouter(metricsHandler, admin, config.Auth.AdminPassword)
		return ops.Serve(gctx, ":"+config.HTTP.Port, router)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		scheduler.Shutdown()
		backfillSrv.Shutdown()
		realtimeSrv.Shutdown()
		eventsSrv.Shutdown()
		return nil
	})

	log.Info().Str("version", buildinfo.GitSummary).Msg("indexer started")
	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("daemon exited with error")
	}
	log.Info().Msg("daemon closed")
}

// seedTargets inserts the configured root targets and client fids, queuing a
// backfill for every newly created target. Reruns are no-ops.
func seedTargets(ctx context.Context, config *config, db store.Store, enqueuer queue.Enqueuer) error {
	roots, _ := config.rootTargets()
	for _, fid := range roots {
		inserted, err := db.InsertTarget(ctx, fid, true)
		if err != nil {
			return err
		}
		if inserted {
			if err := enqueuer.EnqueueBackfill(ctx, fid); err != nil {
				return err
			}
			log.Info().Uint64("fid", fid).Msg("root target seeded")
		}
	}
	clients, _ := config.targetClients()
	for _, fid := range clients {
		if _, err := db.InsertTargetClient(ctx, fid); err != nil {
			return err
		}
	}
	return nil
}

// hydrateCache rebuilds the Redis sets from the authoritative tables.
func hydrateCache(ctx context.Context, db store.Store, cache targets.Cache) error {
	targetRows, err := db.ListTargets(ctx)
	if err != nil {
		return err
	}
	fids := make([]uint64, len(targetRows))
	for i, t := range targetRows {
		fids[i] = t.Fid
	}
	if err := cache.LoadTargets(ctx, fids); err != nil {
		return err
	}

	clientRows, err := db.ListTargetClients(ctx)
	if err != nil {
		return err
	}
	clientFids := make([]uint64, len(clientRows))
	for i, c := range clientRows {
		clientFids[i] = c.Fid
	}
	if err := cache.LoadTargetClients(ctx, clientFids); err != nil {
		return err
	}
	log.Info().Int("targets", len(fids)).Int("clients", len(clientFids)).Msg("target cache hydrated")
	return nil
}

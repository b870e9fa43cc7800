package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/fernweh-app/journal-core/internal/adapters/filekv"
	"github.com/fernweh-app/journal-core/internal/adapters/httpapi"
	memkv "github.com/fernweh-app/journal-core/internal/adapters/memory/kvstore"
	memmemoryrepo "github.com/fernweh-app/journal-core/internal/adapters/memory/memoryrepo"
	memtriprepo "github.com/fernweh-app/journal-core/internal/adapters/memory/triprepo"
	memuserrepo "github.com/fernweh-app/journal-core/internal/adapters/memory/userrepo"
	"github.com/fernweh-app/journal-core/internal/adapters/postgres"
	pgmemoryrepo "github.com/fernweh-app/journal-core/internal/adapters/postgres/memoryrepo"
	pgtriprepo "github.com/fernweh-app/journal-core/internal/adapters/postgres/triprepo"
	pguserrepo "github.com/fernweh-app/journal-core/internal/adapters/postgres/userrepo"
	"github.com/fernweh-app/journal-core/internal/adapters/sim"
	"github.com/fernweh-app/journal-core/internal/app/pending"
	"github.com/fernweh-app/journal-core/internal/app/tracking"
	"github.com/fernweh-app/journal-core/internal/app/trips"
	"github.com/fernweh-app/journal-core/internal/app/users"
	platformclock "github.com/fernweh-app/journal-core/internal/platform/clock"
	"github.com/fernweh-app/journal-core/internal/platform/config"
	"github.com/fernweh-app/journal-core/internal/platform/logging"
	kvstoreport "github.com/fernweh-app/journal-core/internal/ports/out/kvstore"
	memoryrepoport "github.com/fernweh-app/journal-core/internal/ports/out/memoryrepo"
	triprepoport "github.com/fernweh-app/journal-core/internal/ports/out/triprepo"
	userrepoport "github.com/fernweh-app/journal-core/internal/ports/out/userrepo"
)

func main() {
	configPath := flag.String("config", "journald.yml", "path to the YAML config file")
	flag.Parse()

	log := logging.Init("journald")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("config")
	}

	clk := platformclock.NewSystemClock()

	var (
		userRepo   userrepoport.Repository
		tripRepo   triprepoport.Repository
		memoryRepo memoryrepoport.Repository
	)
	switch cfg.Storage.Backend {
	case "postgres":
		pool, err := postgres.NewPool(context.Background(), cfg.Storage.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres pool")
		}
		defer pool.Close()
		if _, err := pool.Exec(context.Background(), postgres.Schema); err != nil {
			log.Fatal().Err(err).Msg("apply schema")
		}
		userRepo = pguserrepo.NewRepo(pool)
		tripRepo = pgtriprepo.NewRepo(pool)
		memoryRepo = pgmemoryrepo.NewRepo(pool)
	default:
		userRepo = memuserrepo.NewRepo()
		tripRepo = memtriprepo.NewRepo()
		memoryRepo = memmemoryrepo.NewRepo()
	}

	var kv kvstoreport.Store
	if dir := cfg.Storage.QueueDir; dir != "" {
		fkv, err := filekv.NewStore(dir)
		if err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("queue store")
		}
		kv = fkv
	} else {
		log.Warn().Msg("no queueDir configured; pending queue will not survive a restart")
		kv = memkv.NewStore()
	}

	queue, err := pending.NewQueue(kv, cfg.Queue.StorageKey, tripRepo, userRepo, memoryRepo, log)
	if err != nil {
		log.Fatal().Err(err).Msg("pending queue")
	}

	session := tracking.NewSession(
		cfg.Policy(),
		sim.NewSensor(),
		sim.NewBattery(),
		clk,
		queue,
		tripRepo,
		userRepo,
		memoryRepo,
		log,
	)
	if err := session.SetTier(tracking.Tier(cfg.Tracking.DefaultTier)); err != nil {
		log.Fatal().Err(err).Msg("default tier")
	}

	userSvc := users.NewService(userRepo, clk)
	tripSvc := trips.NewService(tripRepo, userRepo, memoryRepo, session, clk, log)

	api := httpapi.NewServer(userSvc, tripSvc, session, queue, log)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: httpapi.NewRouter(api),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("backend", cfg.Storage.Backend).Msg("journald listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	// Stop tracking first so its final flush runs against a live queue, then
	// drain once more synchronously before the process exits.
	session.Stop()
	if _, err := queue.Flush(context.Background()); err != nil {
		log.Warn().Err(err).Msg("final queue flush failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carsync/config"
	"carsync/httputil"
	"carsync/logging"
	"carsync/models"
	"carsync/scheduler"
	"carsync/storage"
	"carsync/syncer"
	"carsync/workers"
)

var (
	syncNow  = flag.Bool("sync", false, "Run one sync and exit")
	listCars = flag.Bool("list", false, "Print the newest active cars and exit")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	logFile, err := logging.Setup("carsync.log")
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting carsync...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if len(cfg.Sources) > 0 {
		log.Printf("Loaded %d source configs", len(cfg.Sources))
		for id, src := range cfg.Sources {
			log.Printf("  - %s (%s)", src.Name, id)
		}
	}

	clients := httputil.NewClients()
	ctx := context.Background()

	pgStore, err := storage.NewPostgresStore(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer pgStore.Close()
	log.Printf("Connected to Postgres: %s", maskConnectionString(cfg.Database.URL))

	// Checkpoint store failure is non-fatal: syncs just lose resumability.
	checkpoints, err := storage.NewCheckpointStore(cfg.DBPath)
	if err != nil {
		log.Printf("Warning: checkpoint store unavailable, runs will not resume: %v", err)
		checkpoints = nil
	} else {
		defer checkpoints.Close()
		log.Printf("Checkpoint database: %s", cfg.DBPath)
	}

	runSync := func(ctx context.Context) error {
		return runOnce(ctx, cfg, clients, pgStore, checkpoints)
	}

	if *listCars {
		if err := printCatalog(ctx, pgStore); err != nil {
			log.Fatalf("List failed: %v", err)
		}
		return
	}

	if *syncNow {
		log.Println("Running sync...")
		if err := runSync(ctx); err != nil {
			log.Fatalf("Sync failed: %v", err)
		}
		log.Println("Sync complete!")
		return
	}

	// Daemon mode
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sched := scheduler.New(cfg, runSync)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	dbLogger := func(level models.LogLevel, source, message string) {
		entry := &models.SyncLog{
			Timestamp: time.Now(),
			Level:     level,
			Message:   message,
			Source:    source,
		}
		if err := pgStore.CreateSyncLog(ctx, entry); err != nil {
			log.Printf("Failed to write sync log: %v", err)
		}
	}

	var uploader workers.S3Uploader = &workers.NoOpUploader{}
	if cfg.S3Enabled() {
		s3up, err := storage.NewS3Uploader(ctx, cfg.S3)
		if err != nil {
			log.Printf("Warning: S3 uploader unavailable, images stay unarchived: %v", err)
		} else {
			uploader = s3up
			log.Printf("S3 uploads enabled: bucket %s", cfg.S3.Bucket)
		}
	}

	imageWorker := workers.NewImageWorker(pgStore, clients.Media, uploader)
	imageWorker.SetLogger(dbLogger)
	go imageWorker.Run(ctx, 20, 2*time.Minute)
	log.Println("Image worker started")

	healthcheckWorker := workers.NewHealthcheckWorker(pgStore, clients.Media)
	healthcheckWorker.SetLogger(dbLogger)
	go healthcheckWorker.Run(ctx, 24*time.Hour, 20, 30*time.Minute)
	log.Println("Healthcheck worker started")

	sched.SetWorkers(imageWorker, healthcheckWorker)

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	sched.Stop()
	log.Println("Goodbye!")
}

// runOnce wires up a fresh pipeline and executes a single sync run. Every
// component is constructed here per run; nothing is shared across runs.
func runOnce(ctx context.Context, cfg *config.Config, clients *httputil.Clients, pgStore *storage.PostgresStore, checkpoints *storage.CheckpointStore) error {
	metrics := syncer.NewMetrics(time.Now())
	logf := log.Printf

	fetcher := syncer.NewPageFetcher(clients.API, cfg.API.BaseURL, cfg.API.Key, cfg.Sync.PageSize, metrics, logf)
	upserter := syncer.NewBatchUpserter(pgStore, cfg.Sync.BatchSize, 100*time.Millisecond, metrics, logf)
	transformer := syncer.NewTransformer(cfg.Sync.PriceMarkup, "auctionapi")

	var cpStore syncer.CheckpointStore
	if checkpoints != nil {
		cpStore = checkpoints
	}
	cpManager := syncer.NewCheckpointManager(cpStore, "auctionapi", logf)

	orch := syncer.NewOrchestrator(cfg.Sync, "auctionapi", syncer.OrchestratorDeps{
		Fetcher:     fetcher,
		Store:       pgStore,
		Upserter:    upserter,
		Transformer: transformer,
		Checkpoints: cpManager,
		Runs:        pgStore,
		Bucket:      syncer.NewTokenBucket(cfg.Sync.RPS),
		Gate:        syncer.NewGate(cfg.Sync.Concurrency),
		Breaker:     syncer.NewCircuitBreaker(5, 30*time.Second),
		Metrics:     metrics,
		Logf:        logf,
	})

	report, err := orch.Run(ctx)
	if err != nil {
		return fmt.Errorf("sync run: %w", err)
	}
	if !report.Passed {
		log.Printf("Sync finished below thresholds: %s", report)
	}
	return nil
}

// printCatalog dumps the newest active cars plus make facet counts. Quick
// operator sanity check after a sync.
func printCatalog(ctx context.Context, pgStore *storage.PostgresStore) error {
	cars, err := pgStore.ListCars(ctx, models.CarFilter{SortBy: "newest", Limit: 20})
	if err != nil {
		return fmt.Errorf("list cars: %w", err)
	}
	for _, c := range cars {
		fmt.Printf("%-12s %4d %-15s %-15s $%-8d %s\n", c.ID, c.Year, c.Make, c.Model, c.Price, c.SourceSite)
	}

	facets, err := pgStore.FacetCounts(ctx, "make")
	if err != nil {
		return fmt.Errorf("facet counts: %w", err)
	}
	fmt.Println("\nBy make:")
	for _, f := range facets {
		fmt.Printf("  %-20s %d\n", f.Value, f.Count)
	}
	return nil
}

// maskConnectionString masks password in connection string for logging
func maskConnectionString(connStr string) string {
	start := 0
	for i := 0; i < len(connStr)-3; i++ {
		if connStr[i:i+3] == "://" {
			start = i + 3
			break
		}
	}
	if start == 0 {
		return connStr
	}

	colonIdx := -1
	atIdx := -1
	for i := start; i < len(connStr); i++ {
		if connStr[i] == ':' && colonIdx == -1 {
			colonIdx = i
		}
		if connStr[i] == '@' {
			atIdx = i
			break
		}
	}

	if colonIdx > 0 && atIdx > colonIdx {
		return connStr[:colonIdx+1] + "****" + connStr[atIdx:]
	}
	return connStr
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	gormlogger "gorm.io/gorm/logger"

	"github.com/camden-git/photopipeline/analysis"
	"github.com/camden-git/photopipeline/commands"
	"github.com/camden-git/photopipeline/config"
	"github.com/camden-git/photopipeline/database"
	"github.com/camden-git/photopipeline/events"
	"github.com/camden-git/photopipeline/handlers"
	"github.com/camden-git/photopipeline/hashing"
	"github.com/camden-git/photopipeline/locks"
	"github.com/camden-git/photopipeline/logger"
	"github.com/camden-git/photopipeline/media"
	"github.com/camden-git/photopipeline/queue"
	"github.com/camden-git/photopipeline/realtime"
	"github.com/camden-git/photopipeline/repository"
	"github.com/camden-git/photopipeline/workers"
)

const usage = `usage: photopipeline [command] [flags]

commands:
  serve                  HTTP API and upload workers (default)
  worker                 upload workers only, consuming jobs from kafka
  convert-avif           re-encode webp display and watermarked versions as avif
  generate-placeholders  backfill dominant colors
  prune-orphans          delete variant files no photo references
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: could not load .env: %v\n", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	command := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "serve":
		err = serve(ctx, cfg, log, true)
	case "worker":
		if cfg.QueueDriver != config.QueueDriverKafka {
			err = fmt.Errorf("the worker command needs QUEUE_DRIVER=%s", config.QueueDriverKafka)
			break
		}
		err = serve(ctx, cfg, log, false)
	case "convert-avif", "generate-placeholders", "prune-orphans":
		return runBatch(ctx, command, args, cfg, log)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usage)
		return 2
	}
	if err != nil {
		log.Error("exiting", "command", command, "error", err)
		return 1
	}
	return 0
}

type app struct {
	repo  *repository.GormPhotoRepository
	store *media.LocalStorage
	close func()
}

func openApp(cfg config.Config, log *logger.Logger) (*app, error) {
	dsn := cfg.DatabasePath
	if cfg.DatabaseDriver == config.DatabaseDriverPostgres {
		dsn = cfg.DatabaseDSN
	}
	gormLevel := gormlogger.Warn
	if cfg.LogLevel == "debug" {
		gormLevel = gormlogger.Info
	}
	db, err := database.InitGormDB(cfg.DatabaseDriver, dsn, gormLevel)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrateModels(db); err != nil {
		return nil, err
	}

	store, err := media.NewLocalStorage(cfg.MediaStoragePath, media.DefaultSubDirs(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize media store: %w", err)
	}

	return &app{
		repo:  repository.NewGormPhotoRepository(db),
		store: store,
		close: func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		},
	}, nil
}

func runBatch(ctx context.Context, command string, args []string, cfg config.Config, log *logger.Logger) int {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	dryRun := fs.Bool("dry-run", false, "report what would change without writing anything")
	verbose := fs.Bool("verbose", false, "print one line per item")
	photoID, limit := new(uint), new(int)
	if command != "prune-orphans" {
		photoID = fs.Uint("photo", 0, "only process this photo id")
		limit = fs.Int("limit", 0, "process at most n photos")
	}
	var keepWebp, force *bool
	var minAge *time.Duration
	switch command {
	case "convert-avif":
		keepWebp = fs.Bool("keep-webp", false, "keep the legacy webp file after conversion")
	case "generate-placeholders":
		force = fs.Bool("force", false, "recompute colors that are already set")
	case "prune-orphans":
		minAge = fs.Duration("min-age", commands.DefaultOrphanMinAge, "leave files modified more recently than this")
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *limit < 0 {
		fmt.Fprintln(os.Stderr, "--limit must not be negative")
		return 2
	}

	a, err := openApp(cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		return 1
	}
	defer a.close()

	db := a.repo.DB
	deps := commands.Deps{DB: db, Repo: a.repo, Store: a.store, Settings: cfg.Site, Log: log}

	var summary commands.Summary
	switch command {
	case "convert-avif":
		summary, err = commands.ConvertAvif(ctx, deps, commands.AvifOptions{
			DryRun: *dryRun, KeepWebp: *keepWebp, PhotoID: *photoID, Limit: *limit,
		})
	case "generate-placeholders":
		summary, err = commands.GeneratePlaceholders(ctx, deps, commands.PlaceholderOptions{
			DryRun: *dryRun, PhotoID: *photoID, Limit: *limit, Force: *force,
		})
	case "prune-orphans":
		summary, err = commands.PruneOrphans(ctx, deps, commands.OrphanOptions{DryRun: *dryRun, MinAge: *minAge})
	}
	if renderErr := summary.Render(os.Stdout, *verbose); renderErr != nil {
		log.Warn("failed to print summary", "error", renderErr)
	}
	if err != nil {
		log.Error("batch aborted", "command", command, "error", err)
		return 1
	}
	return summary.ExitCode()
}

// serve runs the upload workers and, when withHTTP is set, the API
func serve(ctx context.Context, cfg config.Config, log *logger.Logger, withHTTP bool) error {
	if err := cfg.Site.Validate(); err != nil {
		return err
	}
	a, err := openApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	hasher, err := hashing.NewExtractor(cfg.Site.FileHashAlgorithm)
	if err != nil {
		return err
	}

	var analyzer analysis.Analyzer = analysis.Disabled{}
	if cfg.Site.AIAnalysisEnabled {
		analyzer = analysis.NewHTTPAnalyzer(cfg.AIAnalysisURL, cfg.AIAnalysisAPIKey)
		log.Info("ai analysis enabled", "url", cfg.AIAnalysisURL, "fatal", cfg.Site.AIFailureFatal)
	}

	hub := realtime.NewHub(log)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	processor := workers.NewPhotoUploadProcessor(workers.ProcessorDeps{
		Repo:     a.repo,
		Store:    a.store,
		Hasher:   hasher,
		Analyzer: analyzer,
		Sink:     events.MultiSink{events.NewLogSink(log), hub},
		Settings: cfg.Site,
		Log:      log,
	})

	var locker locks.Locker = locks.NewMemoryLocker()
	if cfg.LockDriver == config.LockDriverRedis {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
		}
		locker = locks.NewRedisLocker(client, "photopipeline:")
		log.Info("using redis job locks", "addr", cfg.RedisAddr)
	}

	runner := workers.NewUploadRunner(processor, locker, cfg.UploadQueueSize, log)
	runner.Start(cfg.NumUploadWorkers)
	defer runner.Stop()

	var dispatcher workers.Dispatcher = runner
	if cfg.QueueDriver == config.QueueDriverKafka {
		consumer := queue.NewKafkaConsumer(queue.NewReader(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID), runner, log)
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("kafka consumer stopped", "error", err)
			}
		}()

		if withHTTP {
			publisher := queue.NewKafkaPublisher(queue.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic), log)
			defer publisher.Close()
			dispatcher = publisher
		}
		log.Info("using kafka job queue", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	if !withHTTP {
		log.Info("worker running, waiting for jobs")
		<-ctx.Done()
		return nil
	}

	router := handlers.NewRouter(handlers.RouterDeps{
		Photos: &handlers.PhotoHandler{
			Repo:       a.repo,
			Dispatcher: dispatcher,
			TempDir:    cfg.TempUploadPath,
			Log:        log,
		},
		Store:          a.store,
		Hub:            hub,
		AllowedOrigins: cfg.AllowedOrigins,
		Log:            log,
	})

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 60 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", server.Addr, "storage", cfg.MediaStoragePath)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("server shutdown", "error", err)
		}
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"interview-insights-go/internal/api"
	"interview-insights-go/internal/audio"
	"interview-insights-go/internal/config"
	"interview-insights-go/internal/events"
	"interview-insights-go/internal/extractor"
	"interview-insights-go/internal/jobstore"
	"interview-insights-go/internal/logger"
	"interview-insights-go/internal/metrics"
	"interview-insights-go/internal/notify"
	"interview-insights-go/internal/pipeline"
	"interview-insights-go/internal/records"
	"interview-insights-go/internal/retry"
	"interview-insights-go/internal/storage"
	"interview-insights-go/internal/transcription"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		logger.New().WithError(err).Fatal("failed to load config")
	}

	log := logger.NewWithOptions(logger.Options{Environment: cfg.Environment, Level: cfg.LogLevel})
	log.WithField("service", "interview-insights-go").Info("starting service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var blob *storage.Blob
	if cfg.Storage.Enabled() {
		blob, err = storage.NewBlob(cfg.Storage)
		if err != nil {
			log.WithError(err).Fatal("failed to init blob storage")
		}
		if err := blob.EnsureBucket(ctx); err != nil {
			log.WithError(err).Warn("bucket check failed - uploads may fail")
		}
		log.WithField("bucket", cfg.Storage.Bucket).Info("blob storage ready")
	}

	redisClient, err := openRedis(ctx, cfg.JobStore, log)
	if err != nil {
		log.WithError(err).Fatal("redis unreachable")
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	jobs, closeJobs, err := openJobStore(ctx, cfg, blob, redisClient, log)
	if err != nil {
		log.WithError(err).Fatal("failed to open job store")
	}
	defer closeJobs()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m, err = metrics.New()
		if err != nil {
			log.WithError(err).Fatal("failed to init metrics")
		}
		defer m.Shutdown(context.Background())
	}

	var publisher *events.Publisher
	if cfg.Events.AMQPURL != "" {
		publisher, err = events.Dial(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			log.WithError(err).Warn("rabbitmq unavailable - job events disabled")
		} else {
			defer publisher.Close()
		}
	}

	notion := records.New(cfg.Notion, cfg.Pipeline.FieldLimit, log)
	telegram := notify.New(cfg.Telegram, log)
	analyzer := extractor.NewAnalyzer(extractor.NewClient(cfg.Anthropic, log), cfg.Anthropic.MaxTokens, cfg.Anthropic.ChatMaxTokens)

	deps := pipeline.Deps{
		Fetcher:     storage.NewURLFetcher(2 * time.Minute),
		Transcriber: transcription.New(cfg.OpenAI, log),
		Analyzer:    analyzer,
		Records:     notion,
		Notifier:    telegram,
		Status:      jobstore.NewReporter(jobs, log),
		Retry: retry.New(retry.Policy{
			MaxRetries: cfg.Retry.MaxRetries,
			BaseDelay:  cfg.Retry.BaseDelay,
			MaxDelay:   cfg.Retry.MaxDelay,
		}, log),
	}
	if publisher != nil {
		deps.Events = publisher
	}
	if m != nil {
		deps.Metrics = m
	}
	orchestrator := pipeline.New(deps, pipeline.Options{
		Language:        cfg.Pipeline.Language,
		InterviewerName: cfg.Pipeline.InterviewerName,
	}, log)

	apiDeps := api.Deps{
		Runner:  orchestrator,
		Jobs:    jobs,
		Records: notion,
		Chat:    analyzer,
		Bot:     notify.NewBot(telegram, notion, cfg.Notion.RecentLimit, log),
		Redis:   redisClient,
	}
	if blob != nil {
		apiDeps.Issuer = blob
		apiDeps.Objects = blob
		apiDeps.Normalizer = audio.NewNormalizer(audio.Options{
			SampleRate:     cfg.Pipeline.SampleRate,
			SegmentSeconds: cfg.Pipeline.SegmentSeconds,
			FFmpegPath:     cfg.Pipeline.FFmpegPath,
		}, log)
		apiDeps.Uploader = storage.NewUploader(blob, cfg.Pipeline.UploadWorkers, log)
	}
	if m != nil {
		apiDeps.Metrics = m
		apiDeps.MetricsUI = m.Handler()
	}

	server := api.NewServer(apiDeps, api.Options{
		Budget:         cfg.Pipeline.Budget,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		CredentialTTL:  cfg.Storage.CredentialTTL,
		RecentLimit:    cfg.Notion.RecentLimit,
		RateLimit:      cfg.Server.RateLimit,
		MetricsPath:    cfg.Metrics.Path,
	}, log)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.WithField("addr", addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server terminated")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}

// openRedis connects when an address is configured. Only the redis job store
// needs it; otherwise a failed ping disables rate limiting and returns nil.
func openRedis(ctx context.Context, cfg config.JobStoreConfig, log *logger.Logger) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	rc := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		if cfg.Backend == "redis" {
			return nil, err
		}
		log.WithError(err).WithField("addr", cfg.RedisAddr).Warn("redis unreachable - rate limiting disabled")
		return nil, nil
	}
	return rc, nil
}

// openJobStore picks the configured backend. The returned func releases it.
func openJobStore(ctx context.Context, cfg config.Config, blob *storage.Blob, rc *redis.Client, log *logger.Logger) (jobstore.Store, func(), error) {
	noop := func() {}
	log = &logger.Logger{Entry: log.WithField("backend", cfg.JobStore.Backend)}
	switch cfg.JobStore.Backend {
	case "redis":
		if rc == nil {
			return nil, noop, errors.New("redis job store needs REDIS_ADDR")
		}
		return jobstore.NewRedisStore(rc, cfg.JobStore.TTL), noop, nil
	case "blob":
		if blob == nil {
			return nil, noop, errors.New("blob job store needs S3_ENDPOINT")
		}
		return jobstore.NewBlobStore(blob), noop, nil
	case "sqlite":
		s, err := jobstore.OpenSQLite(ctx, cfg.JobStore.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		go pruneLoop(ctx, s, cfg.JobStore.TTL, log)
		return s, func() { _ = s.Close() }, nil
	default:
		log.Warn("in-memory job store - status is lost on restart")
		return jobstore.NewMemoryStore(), noop, nil
	}
}

// pruneLoop drops sqlite job records older than ttl once an hour.
func pruneLoop(ctx context.Context, s *jobstore.SQLiteStore, ttl time.Duration, log *logger.Logger) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.Prune(ctx, time.Now().Add(-ttl))
			if err != nil {
				log.WithError(err).Warn("job prune failed")
				continue
			}
			if n > 0 {
				log.WithField("removed", n).Info("pruned expired jobs")
			}
		}
	}
}

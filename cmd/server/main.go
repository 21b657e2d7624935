package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ifuryst/postpilot/internal/config"
	"github.com/ifuryst/postpilot/internal/server"
	"github.com/ifuryst/postpilot/internal/service"
	"github.com/ifuryst/postpilot/internal/service/content"
	"github.com/ifuryst/postpilot/internal/service/events"
	"github.com/ifuryst/postpilot/internal/service/generator"
	"github.com/ifuryst/postpilot/internal/service/notion"
	"github.com/ifuryst/postpilot/internal/service/publisher"
	"github.com/ifuryst/postpilot/internal/service/publisher/tiktok"
	"github.com/ifuryst/postpilot/internal/service/publisher/twitter"
	"github.com/ifuryst/postpilot/internal/service/recurrence"
	"github.com/ifuryst/postpilot/internal/service/scheduler"
	"github.com/ifuryst/postpilot/internal/service/storage"
	"github.com/ifuryst/postpilot/internal/service/trending"
	"github.com/ifuryst/postpilot/pkg/logger"
)

var (
	configPath string
	version    = "0.1.0"
	gitCommit  = "unknown"
	buildTime  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "postpilot",
	Short: "PostPilot - scheduled social post generation and publishing",
	Long:  `PostPilot fires user-defined posting schedules, generates post text and publishes it to social platforms.`,
	RunE:  runServer,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and admin API",
	RunE:  runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("PostPilot %s\n", version)
		fmt.Printf("Git commit: %s\n", gitCommit)
		fmt.Printf("Build time: %s\n", buildTime)
	},
}

var totpSecretCmd = &cobra.Command{
	Use:   "totp-secret",
	Short: "Generate a TOTP secret for the admin API",
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := service.NewAuthService(zap.NewNop(), "").GenerateSecret()
		if err != nil {
			return err
		}
		fmt.Println(secret)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/server.yaml", "config file path")
	rootCmd.AddCommand(serveCmd, versionCmd, totpSecretCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer(*cobra.Command, []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting PostPilot server", zap.String("version", version))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := service.NewDatabase(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	store := storage.New(db)

	gen, genCloser, err := generator.New(ctx, cfg.Generator, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize generator: %w", err)
	}
	defer genCloser.Close()

	var trends content.TrendSource
	if cfg.Trending.Enabled {
		trends = trending.NewGoogleTrends(trending.Config{
			FeedURL:  cfg.Trending.FeedURL,
			Timeout:  config.Duration(cfg.Trending.Timeout, 10*time.Second),
			CacheTTL: config.Duration(cfg.Trending.CacheTTL, time.Hour),
			MaxItems: cfg.Trending.MaxItems,
		}, appLogger.Named("trending"))
	}

	pipeline := content.NewPipeline(gen, store, trends, content.Options{
		Temperature: cfg.Generator.Temperature,
		MaxTokens:   cfg.Generator.MaxTokens,
		Tone:        cfg.Generator.Tone,
	}, appLogger.Named("content"))

	publishManager, err := newPublishManager(cfg.Publisher, appLogger)
	if err != nil {
		return err
	}

	var sink events.Sink = events.NewNoopSink()
	if cfg.Events.NatsURL != "" {
		natsSink, err := events.Connect(cfg.Events.NatsURL, cfg.Events.SubjectPrefix, appLogger.Named("events"))
		if err != nil {
			return fmt.Errorf("failed to connect to nats: %w", err)
		}
		sink = natsSink
	}
	defer sink.Close()

	monitoring := service.NewMonitoringService(db, appLogger.Named("monitoring"))
	statsUpdater := service.NewStatsUpdater(monitoring, appLogger.Named("stats"),
		config.Duration(cfg.Scheduler.StatsInterval, 10*time.Minute))

	resolver, err := recurrence.NewResolver(cfg.Scheduler.Timezone)
	if err != nil {
		return fmt.Errorf("failed to initialize recurrence resolver: %w", err)
	}

	sched := scheduler.New(store, pipeline, publishManager, resolver, scheduler.Options{
		Workers:           cfg.Scheduler.Workers,
		GenerationTimeout: config.Duration(cfg.Scheduler.GenerationTimeout, 60*time.Second),
		PublishTimeout:    config.Duration(cfg.Scheduler.PublishTimeout, 30*time.Second),
		StalePostAfter:    config.Duration(cfg.Scheduler.StalePostAfter, 15*time.Minute),
	}, appLogger.Named("scheduler"), scheduler.WithEvents(sink), scheduler.WithMonitor(monitoring))

	if cfg.Scheduler.Enabled {
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		statsUpdater.Start(ctx)
	} else {
		appLogger.Info("Scheduler disabled, serving API only")
	}

	var knowledgeSync *service.KnowledgeSync
	if cfg.Notion.Enabled {
		importer := notion.NewService(&cfg.Notion, store, appLogger.Named("notion"))
		knowledgeSync = service.NewKnowledgeSync(importer,
			config.Duration(cfg.Notion.SyncInterval, time.Hour), appLogger.Named("knowledge"))
		knowledgeSync.Start(ctx)
	}

	auth := service.NewAuthService(appLogger.Named("auth"), cfg.Auth.TOTPSecret)
	if !auth.Enabled() {
		appLogger.Warn("No TOTP secret configured, admin API is unauthenticated")
	}
	srv := server.NewServer(&cfg.Server, store, sched, pipeline, monitoring, auth, appLogger.Named("http"))

	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Error("HTTP server failed", zap.Error(err))
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		appLogger.Info("Shutting down server...")
	case <-ctx.Done():
		appLogger.Info("Server context cancelled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server forced to shutdown", zap.Error(err))
	}
	statsUpdater.Stop()
	if knowledgeSync != nil {
		knowledgeSync.Stop()
	}
	if err := sched.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Scheduler did not drain in time", zap.Error(err))
		return err
	}

	appLogger.Info("Server exited")
	return nil
}

func newPublishManager(cfg config.PublisherConfig, log *zap.Logger) (*publisher.Manager, error) {
	manager := publisher.NewPublishManager(log.Named("publisher"))

	if cfg.Twitter.Enabled {
		p := twitter.NewTwitterPublisher(cfg.Twitter.BaseURL, config.Duration(cfg.Twitter.Timeout, 30*time.Second), log.Named("twitter"))
		if err := manager.RegisterPublisher(p, cfg.Twitter.RatePerMinute); err != nil {
			return nil, err
		}
	}
	if cfg.TikTok.Enabled {
		p := tiktok.NewTikTokPublisher(cfg.TikTok.BaseURL, config.Duration(cfg.TikTok.Timeout, 30*time.Second), log.Named("tiktok"))
		if err := manager.RegisterPublisher(p, cfg.TikTok.RatePerMinute); err != nil {
			return nil, err
		}
	}

	log.Info("Publishers registered", zap.Strings("platforms", manager.Platforms()))
	return manager, nil
}

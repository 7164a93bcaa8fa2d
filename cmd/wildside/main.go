package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/leynos/wildside-core/pkg/cleanup"
	"github.com/leynos/wildside-core/pkg/clock"
	"github.com/leynos/wildside-core/pkg/config"
	"github.com/leynos/wildside-core/pkg/enrichment"
	"github.com/leynos/wildside-core/pkg/enrichment/overpass"
	"github.com/leynos/wildside-core/pkg/idempotency"
	"github.com/leynos/wildside-core/pkg/ingestion"
	"github.com/leynos/wildside-core/pkg/ingestion/jsondump"
	"github.com/leynos/wildside-core/pkg/log"
	"github.com/leynos/wildside-core/pkg/metrics"
	"github.com/leynos/wildside-core/pkg/provenance"
	"github.com/leynos/wildside-core/pkg/storage/postgres"
	"github.com/leynos/wildside-core/pkg/types"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "wildside",
	Short: "Wildside backend core: ingestion, enrichment, and the idempotency sweep",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("wildside version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))

	rootCmd.PersistentFlags().String("config", "config.yaml", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(enrichCmd)
	rootCmd.AddCommand(provenanceCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run the bulk ingestion command against a content-addressed dump",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		sourcePath, _ := cmd.Flags().GetString("source-file")
		sourceURL, _ := cmd.Flags().GetString("source-url")
		geofenceID, _ := cmd.Flags().GetString("geofence-id")
		inputDigest, _ := cmd.Flags().GetString("input-digest")
		minLng, _ := cmd.Flags().GetFloat64("min-lng")
		minLat, _ := cmd.Flags().GetFloat64("min-lat")
		maxLng, _ := cmd.Flags().GetFloat64("max-lng")
		maxLat, _ := cmd.Flags().GetFloat64("max-lat")

		bounds, err := types.NewBoundingBox(minLng, minLat, maxLng, maxLat)
		if err != nil {
			return fmt.Errorf("invalid geofence bounds: %w", err)
		}

		ctx := context.Background()
		db, err := postgres.Open(ctx, postgres.Config{
			DSN: cfg.Store.DSN, MaxOpenConns: cfg.Store.MaxOpenConns,
			MaxIdleConns: cfg.Store.MaxIdleConns, ConnectTimeout: cfg.Store.ConnectTimeout,
		})
		if err != nil {
			return err
		}
		defer db.Close()

		svc := ingestion.NewService(jsondump.NewReader(), postgres.NewIngestionProvenanceRepository(db), clock.System{})
		outcome, err := svc.Ingest(ctx, ingestion.Request{
			SourceFilePath: sourcePath,
			SourceURL:      sourceURL,
			GeofenceID:     geofenceID,
			GeofenceBounds: bounds,
			InputDigest:    inputDigest,
		})
		if err != nil {
			return err
		}
		fmt.Printf("status=%v raw=%d persisted=%d imported_at=%s\n",
			outcome.Status, outcome.RawPOICount, outcome.PersistedPOICount, outcome.ImportedAt)
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("source-file", "", "Path to the content-addressed dump file")
	ingestCmd.Flags().String("source-url", "", "Origin URL recorded in provenance")
	ingestCmd.Flags().String("geofence-id", "", "Geofence identifier (part of the rerun key)")
	ingestCmd.Flags().String("input-digest", "", "SHA-256 digest of the source file (part of the rerun key)")
	ingestCmd.Flags().Float64("min-lng", 0, "Geofence bounding box min longitude")
	ingestCmd.Flags().Float64("min-lat", 0, "Geofence bounding box min latitude")
	ingestCmd.Flags().Float64("max-lng", 0, "Geofence bounding box max longitude")
	ingestCmd.Flags().Float64("max-lat", 0, "Geofence bounding box max latitude")
	for _, name := range []string{"source-file", "geofence-id", "input-digest"} {
		_ = ingestCmd.MarkFlagRequired(name)
	}
}

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Run one enrichment job against the configured Overpass-compatible source",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		minLng, _ := cmd.Flags().GetFloat64("min-lng")
		minLat, _ := cmd.Flags().GetFloat64("min-lat")
		maxLng, _ := cmd.Flags().GetFloat64("max-lng")
		maxLat, _ := cmd.Flags().GetFloat64("max-lat")

		bounds, err := types.NewBoundingBox(minLng, minLat, maxLng, maxLat)
		if err != nil {
			return fmt.Errorf("invalid bounds: %w", err)
		}

		ctx := context.Background()
		db, err := postgres.Open(ctx, postgres.Config{
			DSN: cfg.Store.DSN, MaxOpenConns: cfg.Store.MaxOpenConns,
			MaxIdleConns: cfg.Store.MaxIdleConns, ConnectTimeout: cfg.Store.ConnectTimeout,
		})
		if err != nil {
			return err
		}
		defer db.Close()

		worker := enrichment.NewWorker(enrichment.Config{
			MaxConcurrentCalls: cfg.EnrichmentWorker.MaxConcurrentCalls,
			MaxAttempts:        cfg.EnrichmentWorker.MaxRetries,
			InitialBackoff:     cfg.EnrichmentWorker.BaseBackoff,
			MaxBackoff:         cfg.EnrichmentWorker.MaxBackoff,
			Quota: enrichment.DailyQuota{
				MaxRequestsPerDay:      cfg.EnrichmentWorker.MaxRequestsPerDay,
				MaxTransferBytesPerDay: cfg.EnrichmentWorker.MaxTransferBytesPerDay,
			},
			Circuit: enrichment.CircuitBreakerConfig{
				FailureThreshold: cfg.EnrichmentWorker.CircuitFailureThreshold,
				OpenCooldown:     cfg.EnrichmentWorker.CircuitOpenCooldown,
			},
		}, overpass.NewClient(cfg.EnrichmentWorker.SourceBaseURL, &http.Client{Timeout: cfg.EnrichmentWorker.SourceTimeout}),
			postgres.NewEnrichmentPersister(db), clock.System{}, clock.System{}, enrichment.DefaultJitter{})

		outcome, err := worker.Run(ctx, enrichment.Job{Request: enrichment.FetchRequest{Bounds: bounds}})
		if err != nil {
			return err
		}
		fmt.Printf("attempts=%d persisted=%d elapsed=%s\n", outcome.Attempts, outcome.PersistedCount, outcome.Elapsed)
		return nil
	},
}

func init() {
	enrichCmd.Flags().Float64("min-lng", 0, "Bounding box min longitude")
	enrichCmd.Flags().Float64("min-lat", 0, "Bounding box min latitude")
	enrichCmd.Flags().Float64("max-lng", 0, "Bounding box max longitude")
	enrichCmd.Flags().Float64("max-lat", 0, "Bounding box max latitude")
}

var provenanceCmd = &cobra.Command{
	Use:   "provenance",
	Short: "List enrichment provenance records",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		ctx := context.Background()
		db, err := postgres.Open(ctx, postgres.Config{
			DSN: cfg.Store.DSN, MaxOpenConns: cfg.Store.MaxOpenConns,
			MaxIdleConns: cfg.Store.MaxIdleConns, ConnectTimeout: cfg.Store.ConnectTimeout,
		})
		if err != nil {
			return err
		}
		defer db.Close()

		lister := provenance.NewLister(postgres.NewEnrichmentProvenanceRepository(db))
		page, err := lister.List(ctx, limit, nil)
		if err != nil {
			return err
		}
		for _, rec := range page.Rows {
			fmt.Printf("%s\t%s\t%s\n", rec.ID, rec.SourceURL, rec.ImportedAt)
		}
		return nil
	},
}

func init() {
	provenanceCmd.Flags().Int("limit", 50, "Maximum number of rows to return")
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the idempotency cleanup sweep once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		db, err := postgres.Open(ctx, postgres.Config{
			DSN: cfg.Store.DSN, MaxOpenConns: cfg.Store.MaxOpenConns,
			MaxIdleConns: cfg.Store.MaxIdleConns, ConnectTimeout: cfg.Store.ConnectTimeout,
		})
		if err != nil {
			return err
		}
		defer db.Close()

		mediator := idempotency.NewMediator(postgres.NewIdempotencyRepository(db), clock.System{}, clock.System{},
			idempotency.RaceResolutionConfig{MaxRetries: cfg.Mediator.RaceMaxRetries, Interval: cfg.Mediator.RaceInterval})
		deleted, err := mediator.CleanupExpired(ctx, cfg.Mediator.RecordTTL)
		if err != nil {
			return err
		}
		fmt.Printf("deleted=%d\n", deleted)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the idempotency sweep daemon and expose /metrics, /health, /ready",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		ctx := context.Background()
		db, err := postgres.Open(ctx, postgres.Config{
			DSN: cfg.Store.DSN, MaxOpenConns: cfg.Store.MaxOpenConns,
			MaxIdleConns: cfg.Store.MaxIdleConns, ConnectTimeout: cfg.Store.ConnectTimeout,
		})
		if err != nil {
			return err
		}
		defer db.Close()

		mediator := idempotency.NewMediator(postgres.NewIdempotencyRepository(db), clock.System{}, clock.System{},
			idempotency.RaceResolutionConfig{MaxRetries: cfg.Mediator.RaceMaxRetries, Interval: cfg.Mediator.RaceInterval})
		sweeper := cleanup.NewSweeper(mediator, cleanup.Config{Interval: cfg.Mediator.SweepInterval, TTL: cfg.Mediator.RecordTTL})
		sweeper.Start()

		go func() {
			http.Handle("/metrics", metrics.Handler())
			http.Handle("/health", metrics.HealthHandler())
			http.Handle("/ready", metrics.ReadyHandler())
			if err := http.ListenAndServe(metricsAddr, nil); err != nil {
				fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
			}
		}()
		fmt.Printf("idempotency sweep running, metrics at http://%s/metrics\n", metricsAddr)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		sweeper.Stop()
		fmt.Println("shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address to serve /metrics, /health, and /ready on")
}

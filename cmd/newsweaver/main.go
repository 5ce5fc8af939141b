package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"log/slog"

	"github.com/newsweaver/newsweaver/internal/api"
	"github.com/newsweaver/newsweaver/internal/auth"
	"github.com/newsweaver/newsweaver/internal/config"
	"github.com/newsweaver/newsweaver/internal/database"
	"github.com/newsweaver/newsweaver/internal/delivery"
	"github.com/newsweaver/newsweaver/internal/logging"
	"github.com/newsweaver/newsweaver/internal/metrics"
	"github.com/newsweaver/newsweaver/internal/scraper"
	"github.com/newsweaver/newsweaver/internal/server"
	"github.com/newsweaver/newsweaver/internal/transform"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "newsweaver",
		Short:         "Content ingestion pipeline: scrape sources, transform blobs, serve the loader API",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newInitDBCmd(), newScrapeCmd(), newTransformCmd(), newServeCmd())
	return root
}

// app bundles the wiring shared by every subcommand.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	logCloser  func() error
	pipelineDB *sql.DB
	contentDB  *sql.DB
	sources    *database.SourceRepository
	files      *database.ScrapedFileRepository
	content    *database.ContentRepository
}

func newApp(ctx context.Context) (*app, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pipelineDB, err := database.OpenPipeline(ctx, cfg.Database.PipelinePath, logger)
	if err != nil {
		closer.Close()
		return nil, err
	}
	contentDB, err := database.OpenContent(ctx, cfg.Database.DataPath, logger)
	if err != nil {
		pipelineDB.Close()
		closer.Close()
		return nil, err
	}

	return &app{
		cfg:        &cfg,
		logger:     logger,
		logCloser:  closer.Close,
		pipelineDB: pipelineDB,
		contentDB:  contentDB,
		sources:    database.NewSourceRepository(pipelineDB),
		files:      database.NewScrapedFileRepository(pipelineDB),
		content:    database.NewContentRepository(contentDB),
	}, nil
}

func (a *app) Close() {
	a.contentDB.Close()
	a.pipelineDB.Close()
	a.logCloser()
}

func newInitDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "initdb",
		Short: "Create the pipeline and content databases and run migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			// Opening the handles runs the migrations.
			cmd.Printf("pipeline database ready: %s\n", a.cfg.Database.PipelinePath)
			cmd.Printf("content database ready: %s\n", a.cfg.Database.DataPath)
			return nil
		},
	}
}

func newScrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape [source-id]",
		Short: "Capture registered sources into the blob store",
		Long: `Runs a capture pass. With a source ID only that source is fetched;
otherwise every registered source is captured in turn.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			blobs, err := scraper.NewBlobStore(a.cfg.System.ScrapedDataDir)
			if err != nil {
				return err
			}
			collector, err := metrics.NewCollector()
			if err != nil {
				return fmt.Errorf("init metrics: %w", err)
			}
			s := scraper.New(a.cfg.Scraper, a.sources, a.files, blobs, a.logger, collector)

			ctx := cmd.Context()
			if len(args) == 1 {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid source id %q", args[0])
				}
				src, err := a.sources.GetByID(ctx, id)
				if err != nil {
					return err
				}
				if src == nil {
					return fmt.Errorf("source %d not found", id)
				}
				return s.RunSource(ctx, src)
			}
			return s.RunAll(ctx)
		},
	}
}

func newTransformCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "transform",
		Short: "Extract and deliver pending files",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			collector, err := metrics.NewCollector()
			if err != nil {
				return fmt.Errorf("init metrics: %w", err)
			}
			client := delivery.NewClient(a.cfg.API.BaseURL(), a.cfg.API.SecretKey, a.cfg.Delivery, a.logger, collector)
			t := transform.New(a.cfg.Transform, a.files, a.sources, client, a.logger, collector)

			var summary transform.Summary
			if once {
				summary, err = t.RunBatch(cmd.Context())
			} else {
				summary, err = t.RunAll(cmd.Context())
			}
			if err != nil {
				return err
			}
			cmd.Printf("claimed=%d processed=%d load_failed=%d transform_failed=%d dead_lettered=%d\n",
				summary.Claimed, summary.Processed, summary.LoadFailed, summary.TransformFailed, summary.DeadLettered)
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single batch instead of draining the queue")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the loader and admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			collector, err := metrics.NewCollector()
			if err != nil {
				return fmt.Errorf("init metrics: %w", err)
			}

			authConfig := auth.Config{
				JWTSecret:     a.cfg.API.JWTSecret,
				AdminPassword: a.cfg.API.AdminPassword,
				SecretKey:     a.cfg.API.SecretKey,
				TokenDuration: 24 * time.Hour,
			}

			mux := http.NewServeMux()
			if err := api.SetupRoutes(mux, a.pipelineDB, a.contentDB, a.sources, a.files, a.content, authConfig, collector, a.logger); err != nil {
				return err
			}

			srv := server.New(a.cfg.API.Host, a.cfg.API.Port, a.cfg.Server, a.logger, collector.InstrumentHandler(mux))

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-stop:
				a.logger.Info("received shutdown signal", "signal", sig.String())
			}

			if err := srv.Shutdown(context.Background()); err != nil {
				return err
			}
			return <-errCh
		},
	}
}

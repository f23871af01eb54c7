// Package cli holds the ticketspool cobra commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/parkline/ticketspool/internal/api"
	"github.com/parkline/ticketspool/internal/archive"
	"github.com/parkline/ticketspool/internal/config"
	"github.com/parkline/ticketspool/internal/core"
	"github.com/parkline/ticketspool/internal/db"
	"github.com/parkline/ticketspool/internal/escpos"
	"github.com/parkline/ticketspool/internal/logging"
	"github.com/parkline/ticketspool/internal/metrics"
	"github.com/parkline/ticketspool/internal/printer"
	"github.com/parkline/ticketspool/internal/webhook"
)

const shutdownTimeout = 15 * time.Second

// RootCmd returns the ticketspool command tree.
func RootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "ticketspool",
		Short:         "Print queue for parking ticket printers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML config file")

	root.AddCommand(ServeCmd(&configPath))
	root.AddCommand(ConfigCmd(&configPath))
	root.AddCommand(TestPrintCmd(&configPath))
	return root
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ServeCmd returns the serve command
func ServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the print queue and HTTP API",
		Long:  `Start the dispatch loop, printer health checks, webhooks, the archiver and the HTTP API. Stops on SIGINT or SIGTERM.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return Serve(ctx, cfg, logging.New(cfg.Logging))
		},
	}
}

// Serve runs every component until ctx is cancelled or the HTTP server fails.
func Serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	dsn := cfg.Database.Path
	if cfg.Database.Driver == db.DriverPostgres {
		dsn = cfg.Database.DSN
	}
	database, err := db.Open(ctx, cfg.Database.Driver, dsn)
	if err != nil {
		return err
	}
	defer database.Close()

	m := metrics.New()

	jobs := db.NewJobStore(database)
	printers := printer.NewManager(db.NewPrinterStore(database), cfg.Printers, logger.With(slog.String("component", "printers")))
	queue := core.NewQueueManager(printers, jobs, &cfg.Queue,
		core.WithLogger(logger.With(slog.String("component", "queue"))),
		core.WithMetrics(m),
	)

	sender := webhook.NewWebhookSender(cfg.Webhooks, webhook.WebhookConfig{}, logger.With(slog.String("component", "webhooks")), m)
	sender.Start()
	defer sender.Stop()
	unsubscribe := sender.Subscribe(queue)
	defer unsubscribe()
	printers.OnStatusChange(sender.SendPrinterStatusChange)

	if err := printers.Start(ctx); err != nil {
		return err
	}
	defer printers.Stop()

	if err := queue.Start(ctx); err != nil {
		return err
	}
	defer queue.Stop()

	var archiver *archive.Archiver
	if cfg.Database.ArchiveDays > 0 {
		archiver, err = archive.NewArchiver(queue, archive.ArchiveConfig{
			ArchivePath: cfg.Database.ArchivePath,
			ArchiveDays: cfg.Database.ArchiveDays,
			Recorder:    m,
			Logger:      logger.With(slog.String("component", "archive")),
		})
		if err != nil {
			return err
		}
		archiver.Start()
		defer archiver.Stop()
	}

	if logging.ParseLevel(cfg.Logging.Level) > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Deps{
		Config:   cfg,
		Queue:    queue,
		Printers: printers,
		Jobs:     jobs,
		Archiver: archiver,
		Webhooks: sender,
		Metrics:  m,
		Layout:   escpos.DefaultLayout(),
		Logger:   logger.With(slog.String("component", "http")),
	})
	srv := api.NewServer(cfg.Server, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// ConfigCmd returns the config command group
func ConfigCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config OK:\n")
			fmt.Fprintf(out, "  Port: %d\n", cfg.Server.Port)
			fmt.Fprintf(out, "  Database: %s\n", cfg.Database.Driver)
			fmt.Fprintf(out, "  Max Attempts: %d\n", cfg.Queue.MaxAttempts)
			fmt.Fprintf(out, "  Webhooks: %d\n", len(cfg.Webhooks))
			return nil
		},
	})
	return cmd
}

// TestPrintCmd returns the test-print command
func TestPrintCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test-print",
		Short: "Print a sample ticket directly, bypassing the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, _ := cmd.Flags().GetString("kind")
			address, _ := cmd.Flags().GetString("address")
			vehicle, _ := cmd.Flags().GetString("vehicle")
			width, _ := cmd.Flags().GetInt("width")

			if address == "" {
				return fmt.Errorf("--address is required")
			}
			profile := core.PrinterProfile{
				Name:    "test-print",
				Kind:    core.TransportKind(kind),
				Address: address,
			}
			if !profile.Kind.Valid() {
				return fmt.Errorf("unknown printer kind %q (valid: usb, bluetooth, network)", kind)
			}

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			layout := escpos.DefaultLayout()
			layout.Width = width
			layout.Header = []string{"TICKETSPOOL", "Test Print"}
			payload, err := escpos.Encode(escpos.Ticket{
				Serial:        1,
				VehicleNumber: vehicle,
				VehicleType:   "Car",
				EntryTime:     time.Now(),
				CreatedBy:     "test-print",
			}, layout)
			if err != nil {
				return err
			}

			printers := printer.NewManager(nil, cfg.Printers, logging.New(cfg.Logging))
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Queue.DispatchTimeout+cfg.Printers.ConnectionTimeout)
			defer cancel()
			if err := printers.Send(ctx, profile, payload, 1); err != nil {
				return fmt.Errorf("test print failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Sent %d bytes to %s printer at %s\n", len(payload), kind, address)
			return nil
		},
	}

	cmd.Flags().StringP("kind", "k", "network", "Printer kind (usb, bluetooth, network)")
	cmd.Flags().StringP("address", "a", "", "Device path or host[:port]")
	cmd.Flags().String("vehicle", "TEST-0001", "Vehicle number printed on the sample ticket")
	cmd.Flags().Int("width", 32, "Paper width in characters (32 for 58mm, 48 for 80mm)")
	return cmd
}

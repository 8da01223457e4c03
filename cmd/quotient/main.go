package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"gorm.io/gorm"

	"github.com/quotient-app/quotient/internal/auth"
	"github.com/quotient-app/quotient/internal/config"
	ddb "github.com/quotient-app/quotient/internal/db"
	"github.com/quotient-app/quotient/internal/delivery"
	"github.com/quotient-app/quotient/internal/handlers"
	"github.com/quotient-app/quotient/internal/lifecycle"
	"github.com/quotient-app/quotient/internal/logging"
	"github.com/quotient-app/quotient/internal/numbering"
	"github.com/quotient-app/quotient/internal/server"
	"github.com/quotient-app/quotient/internal/sweep"
	"github.com/quotient-app/quotient/internal/templates"
	"github.com/quotient-app/quotient/internal/versioning"
)

func main() {
	root := &cobra.Command{
		Use:           "quotient",
		Short:         "Document lifecycle engine for quotations, invoices, proposals and contracts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), migrateCmd(), sweepCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, gdb, svc, err := bootstrap()
			if err != nil {
				return err
			}
			ids, err := snowflake.NewNode(1)
			if err != nil {
				return fmt.Errorf("snowflake node: %w", err)
			}

			var converter handlers.Converter
			pdf, err := delivery.NewPDFConverter(cfg.GotenbergURL, cfg.GotenbergWait)
			if err != nil {
				return fmt.Errorf("gotenberg client: %w", err)
			}
			converter = pdf

			var mailer delivery.Mailer
			if cfg.SMTP.Addr != "" {
				mailer = delivery.NewSMTPMailer(cfg.SMTP.Addr, cfg.SMTP.From)
			} else {
				log.Warn().Msg("smtp address not configured, logging outbound mail instead")
				mailer = delivery.NewLogMailer(log)
			}

			handler := server.New(server.Deps{
				DB:   gdb,
				IDs:  ids,
				Svc:  svc,
				PDF:  converter,
				Mail: mailer,
				Log:  log,
			})

			srv := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sweeper := sweep.New(svc, cfg.SweepInterval, log)
			go sweeper.Run(ctx)

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("http server listening")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			log.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func migrateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQL migrations",
		RunE: func(_ *cobra.Command, _ []string) error {
			_ = godotenv.Load()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := ddb.RunSQLMigrations(cfg.DatabaseDSN, dir); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "migrations", "directory containing migration files")
	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire overdue documents once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, log, _, svc, err := bootstrap()
			if err != nil {
				return err
			}
			sweeper := sweep.New(svc, 0, log)
			n, err := sweeper.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			log.Info().Int("expired", n).Msg("sweep complete")
			return nil
		},
	}
}

func bootstrap() (config.Config, zerolog.Logger, *gorm.DB, *lifecycle.Service, error) {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, zerolog.Logger{}, nil, nil, err
	}
	log := logging.New(cfg.LogLevel, cfg.Env == "development")
	auth.SetSecret(cfg.SessionSecret)

	gdb, err := ddb.Connect(cfg.DatabaseDSN, log)
	if err != nil {
		return config.Config{}, zerolog.Logger{}, nil, nil, fmt.Errorf("connect database: %w", err)
	}

	ids, err := snowflake.NewNode(0)
	if err != nil {
		return config.Config{}, zerolog.Logger{}, nil, nil, fmt.Errorf("snowflake node: %w", err)
	}
	allocator := numbering.New(numbering.NewGormCounterStore(), cfg.NumberPrefixes)
	resolver := templates.NewResolver(gdb)
	versions := versioning.NewManager(ids)
	svc := lifecycle.NewService(gdb, ids, allocator, resolver, versions, log)
	return cfg, log, gdb, svc, nil
}

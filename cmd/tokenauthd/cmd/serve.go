package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/voyz/tokenauth"
	"github.com/voyz/tokenauth/internal/httpapi"
	"github.com/voyz/tokenauth/metrics/export/prometheus"
	"golang.org/x/sync/errgroup"
)

var (
	listenAddr   string
	users        []string
	kafkaBrokers []string
	kafkaTopic   string
	auditStdout  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the token lifecycle over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, closeStore, err := openStore(ctx, cfg.Session.RedisPrefix)
		if err != nil {
			return err
		}
		defer closeStore()

		builder := tokenauth.New().WithStore(store).WithLogger(logger)
		switch {
		case len(kafkaBrokers) > 0:
			cfg.Audit.Enabled = true
			builder = builder.WithAuditSink(tokenauth.NewKafkaSink(kafkaBrokers, kafkaTopic, 5*time.Second, func(err error) {
				logger.Warn().Err(err).Msg("audit event not delivered")
			}))
		case auditStdout:
			cfg.Audit.Enabled = true
			builder = builder.WithAuditSink(tokenauth.NewJSONWriterSink(os.Stdout))
		}

		engine, err := builder.WithConfig(cfg).Build()
		if err != nil {
			return fmt.Errorf("building engine: %w", err)
		}
		defer engine.Close()

		if cfg.Sweep.Enabled {
			if err := engine.StartSweeper(); err != nil {
				return fmt.Errorf("starting sweeper: %w", err)
			}
		}

		directory := httpapi.NewDirectory(0)
		for _, spec := range users {
			if err := directory.AddSpec(spec); err != nil {
				return fmt.Errorf("--user %q: %w", spec, err)
			}
		}
		if directory.Len() == 0 {
			logger.Warn().Msg("no --user given; every login will be rejected")
		}

		api := httpapi.New(engine, directory, logger, prometheus.NewPrometheusExporter(engine).Handler())
		server := &http.Server{
			Addr:              listenAddr,
			Handler:           api.Router(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info().Str("addr", listenAddr).Str("store", storeKind).Msg("listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			logger.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", ":8080", "Address to listen on")
	serveCmd.Flags().StringArrayVar(&users, "user", nil, "Login credential as username:password[:role[:store name[:store category]]] (repeatable)")
	serveCmd.Flags().StringSliceVar(&kafkaBrokers, "kafka-brokers", nil, "Kafka brokers for the audit sink")
	serveCmd.Flags().StringVar(&kafkaTopic, "kafka-topic", "tokenauth.audit", "Kafka topic for audit events")
	serveCmd.Flags().BoolVar(&auditStdout, "audit-stdout", false, "Write audit events to stdout as JSON lines")
	addStoreFlags(serveCmd)
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aretw0/churn"
	"github.com/aretw0/churn/pkg/adapters/httpapi"
	lifecycleadapter "github.com/aretw0/churn/pkg/adapters/lifecycle"
	"github.com/aretw0/churn/pkg/adapters/rangefile"
)

const defaultAddr = ":8080"

var (
	runAddr      string
	runRangeFile string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Seed the store if empty and churn it until interrupted",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatal("Error loading config", err)
		}
		addr := firstNonEmpty(runAddr, cfg.HTTP.Addr, defaultAddr)
		rangePath := firstNonEmpty(runRangeFile, cfg.RangeFile)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		c, err := churn.New(ctx, cfg.DSN, options(cfg, churn.WithRegisterer(reg))...)
		if err != nil {
			fatal("Error initializing churn", err)
		}
		defer c.Store().Close()

		logger := slog.Default()
		if rangePath != "" {
			w := rangefile.NewWatcher(rangePath, rangefile.WithLogger(logger))
			if err := w.Start(ctx); err != nil {
				fatal("Error watching range file", err)
			}
			defer w.Stop()
			c.RegisterVisibleRangeProvider(w.Provider())

			src := lifecycleadapter.NewRangeSource(w.Changes())
			if err := src.Start(ctx); err != nil {
				fatal("Error starting range source", err)
			}
			go func() {
				for ev := range src.Events() {
					logger.Info("range file reloaded", "event", ev.String())
				}
			}()
		}

		srv := &http.Server{
			Addr:              addr,
			Handler:           httpapi.NewHandler(c, httpapi.WithGatherer(reg), httpapi.WithLogger(logger)),
			ReadHeaderTimeout: 5 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return c.Run(gctx)
		})
		g.Go(func() error {
			logger.Info("http api listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		if err := g.Wait(); err != nil {
			fatal("Error running churn", err)
		}
	},
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runAddr, "addr", "", "HTTP listen address (default \":8080\")")
	runCmd.Flags().StringVar(&runRangeFile, "range-file", "", "YAML file holding the visible range")
}

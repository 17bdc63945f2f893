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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"colstore/pkg/concurrency/transaction"
	"colstore/pkg/config"
	"colstore/pkg/logging"
)

func getenv(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func loadOptions() (config.Options, error) {
	if path := os.Getenv("COLSTORE_CONFIG"); path != "" {
		return config.Load(path)
	}
	opts := config.Default()
	opts.Logging.Level = logging.ParseLevel(getenv("LOG_LEVEL", "info"))
	return opts, nil
}

// newMux serves the transaction metrics of this process together with the
// database collector.
func newMux(collector prometheus.Collector) (*http.ServeMux, error) {
	reg := transaction.Registry()
	if err := reg.Register(collector); err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	return mux, nil
}

func run() error {
	opts, err := loadOptions()
	if err != nil {
		return err
	}
	if err := logging.Init(opts.Logging); err != nil {
		return err
	}
	defer logging.Close()

	dbPath := getenv("DB_PATH", "/app/data/colstore.db")
	port := getenv("METRICS_PORT", "8080")

	sg, err := transaction.Open(dbPath, opts)
	if err != nil {
		return err
	}
	defer sg.Close()

	mux, err := newMux(NewDatabaseCollector(sg))
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logging.Info("serving metrics", "addr", srv.Addr, "db", dbPath)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "colstore exporter:", err)
		os.Exit(1)
	}
}

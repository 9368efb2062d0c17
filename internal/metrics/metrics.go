package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	SlotsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "board_slots_written_total",
		Help: "Broadcast slots written by ingestion runs",
	}, []string{"op"})

	PriceFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "board_price_fetch_total",
		Help: "Product price lookups by outcome",
	}, []string{"outcome"})

	RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "board_runs_total",
		Help: "Batch runs by job and status",
	}, []string{"job", "status"})

	RunDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "board_run_duration_seconds",
		Help:    "Wall-clock duration of batch runs",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
	}, []string{"job"})

	AlertsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "board_alerts_sent_total",
		Help: "Alert notifications by destination and status",
	}, []string{"destination", "status"})
)

// MustRegister registers the collectors with registerer.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		SlotsWritten,
		PriceFetches,
		RunsTotal,
		RunDuration,
		AlertsSent,
	)
}

// StartServer serves /metrics on addr until ctx is done.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(timeoutCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveRun records one finished run of job.
func ObserveRun(job string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	RunsTotal.WithLabelValues(job, status).Inc()
	RunDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
}

// ObserveSlots adds the created and updated counts of one run.
func ObserveSlots(created, updated int) {
	SlotsWritten.WithLabelValues("created").Add(float64(created))
	SlotsWritten.WithLabelValues("updated").Add(float64(updated))
}

// ObservePrices adds the price lookup counters of one run.
func ObservePrices(requested, success, browserRequested, browserSkipped, browserBatch int) {
	PriceFetches.WithLabelValues("requested").Add(float64(requested))
	PriceFetches.WithLabelValues("success").Add(float64(success))
	PriceFetches.WithLabelValues("browser_requested").Add(float64(browserRequested))
	PriceFetches.WithLabelValues("browser_skipped").Add(float64(browserSkipped))
	PriceFetches.WithLabelValues("browser_batch").Add(float64(browserBatch))
}

// ObserveAlert records one notification attempt.
func ObserveAlert(destination string, err error) {
	status := "sent"
	if err != nil {
		status = "error"
	}
	AlertsSent.WithLabelValues(destination, status).Inc()
}

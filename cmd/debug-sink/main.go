// debug-sink runs the capture server in place of the avatar platform's
// speech endpoint. Point AVATAR_BASE_URL at a session whose realtime
// endpoint is this process and every utterance lands as a WAV file.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxkit/avatar-bridge/internal/config"
	"github.com/voxkit/avatar-bridge/internal/debugsink"
	"github.com/voxkit/avatar-bridge/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	sink, err := debugsink.NewServer(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create capture server")
	}
	defer sink.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/speech", sink.ServeWS)
	mux.HandleFunc("/health", observability.HealthCheckHandler())
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("output_dir", cfg.SinkOutputDir).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/speech", cfg.Port)).
			Msg("Debug sink listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Int("captured", sink.CapturedCount()).Msg("Shutting down debug sink")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
}

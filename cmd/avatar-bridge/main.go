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

	"github.com/voxkit/avatar-bridge/internal/avatar"
	"github.com/voxkit/avatar-bridge/internal/config"
	"github.com/voxkit/avatar-bridge/internal/observability"
	"github.com/voxkit/avatar-bridge/internal/pipeline"
)

// keepAliveInterval is how often the avatar session is pinged so the
// platform does not reap it between utterances.
const keepAliveInterval = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("avatar_base_url", cfg.AvatarBaseURL).
		Str("livekit_url", cfg.LiveKitURL).
		Str("log_level", cfg.LogLevel).
		Msg("Avatar bridge starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bring up the avatar session first; everything else hangs off it.
	avatarClient := avatar.NewClient(cfg)

	avatarSession, err := avatarClient.CreateSession(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create avatar session")
	}
	if err := avatarClient.StartSession(ctx, avatarSession.SessionID); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start avatar session")
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := avatarClient.StopSession(stopCtx, avatarSession.SessionID); err != nil {
			logger.Warn().Err(err).Msg("Failed to stop avatar session")
		}
	}()

	logger.Info().
		Str("session_id", avatarSession.SessionID).
		Str("room_url", avatarSession.RoomURL).
		Msg("Avatar session started")

	metrics := observability.NewSessionMetrics()

	speechChannel, err := avatar.DialSpeechChannel(ctx, cfg, avatarSession, metrics)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect speech channel")
	}
	defer speechChannel.Close()

	// The platform allocates the session room and issues its credentials;
	// viewers join with these, not with tokens signed by our keys.
	logger.Info().
		Str("room_url", avatarSession.RoomURL).
		Str("room_access_token", avatarSession.RoomAccessToken).
		Msg("Viewer credentials for the avatar session room")

	// Pipeline: mic PCM -> Deepgram -> OpenAI -> Cartesia -> avatar sink.
	responder, err := pipeline.NewOpenAIResponder(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create LLM responder")
	}

	sttClient := pipeline.NewDeepgramClient(cfg)
	ttsClient := pipeline.NewCartesiaClient(cfg)
	sink := pipeline.NewAvatarSink(cfg, speechChannel)

	session := pipeline.NewSession(cfg, sttClient, responder, ttsClient, sink, metrics)
	if err := session.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start pipeline session")
	}
	defer session.Close()

	// Keep the avatar session alive between utterances.
	go func() {
		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := avatarClient.KeepAlive(ctx, avatarSession.SessionID); err != nil {
					logger.Warn().Err(err).Msg("Avatar keep-alive failed")
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/streams/mic", pipeline.HandleMicWS(cfg, session))
	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"stt": func(ctx context.Context) (bool, error) {
			return sttClient != nil, nil
		},
		"speech_channel": func(ctx context.Context) (bool, error) {
			if speechChannel == nil {
				return false, fmt.Errorf("speech channel not connected")
			}
			return true, nil
		},
		"avatar_session": func(ctx context.Context) (bool, error) {
			if err := avatarClient.KeepAlive(ctx, avatarSession.SessionID); err != nil {
				return false, err
			}
			return true, nil
		},
	}))
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
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
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/streams/mic", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Avatar bridge exited gracefully")
}

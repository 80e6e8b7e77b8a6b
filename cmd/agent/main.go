package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sargilabs/voice-agent/internal/audio"
	"github.com/sargilabs/voice-agent/internal/capture"
	"github.com/sargilabs/voice-agent/internal/config"
	"github.com/sargilabs/voice-agent/internal/llm"
	"github.com/sargilabs/voice-agent/internal/observability"
	"github.com/sargilabs/voice-agent/internal/playback"
	"github.com/sargilabs/voice-agent/internal/session"
	"github.com/sargilabs/voice-agent/internal/storage"
	"github.com/sargilabs/voice-agent/internal/stt"
	"github.com/sargilabs/voice-agent/internal/telemetry"
	"github.com/sargilabs/voice-agent/internal/tts"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("telemetry_url", cfg.TelemetryURL).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Voice Agent starting")

	// Shared session state and the voice pipeline around it
	trace := audio.NewLevelTrace()
	state := session.NewState(trace)

	player := playback.NewController(playback.NewSpeaker(), logger)
	synth := tts.NewChannel(cfg, func(wav []byte) {
		if err := player.Play(wav); err != nil {
			state.RecordFailure("playback", err.Error())
			logger.Error().Err(err).Msg("Playback failed")
			return
		}
		state.ClearFailure("playback")
	}, logger)

	sess := session.New(cfg, state, trace, session.Deps{
		Source:      capture.NewSystemSource(),
		NewChannel:  func() stt.Channel { return stt.NewDeepgramChannel(cfg, logger) },
		Generator:   llm.NewClient(cfg),
		Synthesizer: synth,
		Player:      player,
	}, logger)

	// The telemetry link is independent of the voice session: it connects
	// now and keeps itself alive until shutdown.
	socket := telemetry.NewSocket(cfg, state, logger)
	socket.Start()

	resolver := storage.NewSupabaseResolver(cfg.StorageBaseURL, cfg.StorageBucket)

	// Create HTTP server
	mux := http.NewServeMux()

	mux.HandleFunc("POST /session/start", func(w http.ResponseWriter, r *http.Request) {
		if err := sess.Start(); err != nil {
			logger.Error().Err(err).Msg("Session start failed")
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "recording"})
	})

	mux.HandleFunc("POST /session/stop", func(w http.ResponseWriter, r *http.Request) {
		sess.Stop()
		writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
	})

	mux.HandleFunc("GET /state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, state.Snapshot())
	})

	mux.HandleFunc("GET /replay", func(w http.ResponseWriter, r *http.Request) {
		tool := r.URL.Query().Get("tool")
		if tool == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tool query parameter is required"})
			return
		}
		record, ok := state.ToolByName(tool)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("unknown tool %q", tool)})
			return
		}
		url, err := resolver.ResolveURL(r.Context(), record.LastSeenReference)
		if err != nil {
			logger.Warn().Err(err).Str("tool", tool).Msg("Replay clip resolution failed")
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"tool":   record.Tool,
			"status": record.Status.String(),
			"url":    url,
		})
	})

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	// Readiness checks are cheap config-level probes; none of them spends
	// collaborator quota.
	checks := map[string]observability.HealthCheckFunc{
		"deepgram": func(ctx context.Context) (bool, error) {
			if cfg.DeepgramAPIKey == "" {
				return false, fmt.Errorf("deepgram api key not configured")
			}
			return true, nil
		},
		"llm": func(ctx context.Context) (bool, error) {
			if cfg.LLMAPIKey == "" {
				return false, fmt.Errorf("llm api key not configured")
			}
			return true, nil
		},
		"telemetry": func(ctx context.Context) (bool, error) {
			snap := state.Snapshot()
			if snap.Connection != "connected" {
				return false, fmt.Errorf("telemetry socket %s", snap.Connection)
			}
			return true, nil
		},
	}
	mux.HandleFunc("/ready", observability.ReadinessHandler(checks))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().Str("port", cfg.Port).Msg("Control surface listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down...")

	sess.Stop()
	synth.Close()
	socket.Close()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

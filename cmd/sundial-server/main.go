// Package main implements the sundial web server: a personal calendar
// aggregator with recurring activities and an AI scheduling assistant.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sundial-dev/sundial/pkg/assistant"
	"github.com/sundial-dev/sundial/pkg/config"
	"github.com/sundial-dev/sundial/pkg/gcal"
	"github.com/sundial-dev/sundial/pkg/icsfeed"
	"github.com/sundial-dev/sundial/pkg/proposal"
	"github.com/sundial-dev/sundial/pkg/slotfind"
)

var (
	configPath = flag.String("config", "", "Path to YAML config file (or set SUNDIAL_CONFIG)")
	listen     = flag.String("listen", "", "Listen address, overrides config")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	version    = flag.Bool("version", false, "Show version")
)

type rateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{requests: make(map[string][]time.Time)}
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-time.Minute)

	var valid []time.Time
	for _, t := range rl.requests[ip] {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	// Rate limit: 30 requests per minute per IP
	if len(valid) >= 30 {
		rl.requests[ip] = valid
		return false
	}

	rl.requests[ip] = append(valid, now)
	return true
}

func main() {
	flag.Parse()

	if *version {
		fmt.Println("sundial server v1.0.0")
		return
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *configPath == "" {
		*configPath = os.Getenv("SUNDIAL_CONFIG")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	logger.Info("Server configuration",
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"calendar_id", cfg.Calendar.ID,
		"feed_sources", len(cfg.Feeds.Sources),
		"holidays", len(cfg.Holidays),
		"has_gemini_key", cfg.Gemini.APIKey != "",
		"verbose", *verbose)

	holidays, err := cfg.HolidayExceptions()
	if err != nil {
		logger.Error("Invalid holiday configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	var cal calendarAPI
	if cfg.Calendar.SecretsPath != "" && cfg.Calendar.TokenPath != "" {
		tokenOpt, err := gcal.TokenSourceFromFiles(ctx, cfg.Calendar.SecretsPath, cfg.Calendar.TokenPath)
		if err != nil {
			logger.Error("Failed to load calendar credentials", "error", err)
			os.Exit(1)
		}
		client, err := gcal.NewClient(ctx, cfg.Calendar.ID, cfg.Timezone, logger, tokenOpt)
		if err != nil {
			logger.Error("Failed to create calendar client", "error", err)
			os.Exit(1)
		}
		cal = client
	} else {
		logger.Warn("No calendar credentials configured; calendar routes will report unavailable")
	}

	var parser requestParser
	if cfg.Gemini.APIKey != "" {
		parser = assistant.NewClient(cfg.Gemini.APIKey, cfg.Gemini.Model, logger)
	} else {
		logger.Warn("No Gemini API key configured; assistant routes will report unavailable")
	}

	server := &server{
		cfg:       cfg,
		location:  cfg.Location(),
		holidays:  holidays,
		cal:       cal,
		fetcher:   icsfeed.NewFetcher(cfg.FeedCacheTTL(), logger),
		finder:    slotfind.New(logger),
		parser:    parser,
		proposals: proposal.NewStore(cfg.ProposalTTL(), logger),
		limiter:   newRateLimiter(),
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", server.handleHealthz)
	mux.HandleFunc("GET /api/v1/events", server.handleListEvents)
	mux.HandleFunc("POST /api/v1/events/create", server.handleCreateEvent)
	mux.HandleFunc("POST /api/v1/events/delete", server.handleDeleteEvents)
	mux.HandleFunc("POST /api/v1/assistant/schedule", server.handleSchedule)
	mux.HandleFunc("POST /api/v1/assistant/confirm", server.handleConfirm)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.wrap(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "listen", cfg.Listen)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", "error", err)
	}
	logger.Info("Server stopped")
}

func (s *server) wrap(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := fmt.Sprintf("%d-%d", time.Now().Unix(), time.Now().Nanosecond())
		w.Header().Set("X-Request-ID", requestID)

		defer func() {
			if err := recover(); err != nil {
				const size = 64 << 10
				buf := make([]byte, size)
				buf = buf[:runtime.Stack(buf, false)]

				s.logger.Error("PANIC: Request handler crashed",
					"error", err,
					"path", r.URL.Path,
					"method", r.Method,
					"request_id", requestID,
					"client_ip", clientIP(r),
					"stack", string(buf))
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()

		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
		}

		handler.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	return strings.Split(r.RemoteAddr, ":")[0]
}

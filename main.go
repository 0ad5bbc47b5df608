package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gitea.kood.tech/roomie/backend/compat"
)

var appConfig Config

func main() {
	cfg, warnings := loadConfig()
	appConfig = cfg
	jwtSecret = cfg.JWTSecret

	l, err := newLogger(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger = l
	defer func() { _ = logger.Sync() }()
	for _, w := range warnings {
		logger.Warn(w)
	}

	if err := run(cfg); err != nil {
		logger.Fatalw("server stopped", "error", err)
	}
}

func run(cfg Config) error {
	if cfg.ScoringWeightsFile != "" {
		engine, err := loadScoringEngine(cfg.ScoringWeightsFile)
		if err != nil {
			return err
		}
		scoringEngine = engine
		logger.Infow("scoring weights loaded", "file", cfg.ScoringWeightsFile)
	}

	conn, err := initDB(cfg)
	if err != nil {
		return err
	}
	db = conn
	defer db.Close()

	if cfg.RedisURL != "" {
		rp, err := newRedisPresence(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rp.Close()
		presence = rp
		logger.Infow("presence backed by redis")
	} else {
		presence = &dbPresence{db: db}
	}

	pub, err := NewAMQPPublisher(cfg.AMQPURL)
	if err != nil {
		return err
	}
	defer pub.Close()
	publisher = pub

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           withCORS(cfg.CORSOrigins, withRequestLog(DataLoaderMiddleware(db)(newRouter(db)))),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("starting roomie backend", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Infow("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func loadScoringEngine(path string) (*compat.Engine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scoring weights: %w", err)
	}
	defer f.Close()
	w, err := compat.LoadWeights(f)
	if err != nil {
		return nil, err
	}
	return compat.NewEngine(w)
}

func newRouter(db *sql.DB) http.Handler {
	mux := http.NewServeMux()

	// Core auth & profile endpoints
	mux.Handle("/register", registerHandler(db))
	mux.Handle("/login", loginHandler(db))
	mux.Handle("/me", meHandler(db))
	mux.Handle("/me/profile", meProfileHandler(db))
	mux.Handle("/me/survey", meSurveyHandler(db))
	mux.HandleFunc("/survey", surveyHandler)

	// Ping: mark this user as online "now"
	mux.Handle("/me/ping", mePingHandler()) // POST

	mux.Handle("/users/", usersDispatcher(db)) // /users/{id}/profile

	// Recommendations & matches
	mux.Handle("/recommendations", recommendationsHandler(db))
	mux.Handle("/recommendations/", dismissRecommendationHandler(db)) // /recommendations/{id}/dismiss
	mux.Handle("/matches", matchesRouter(db))
	mux.Handle("/matches/", matchesRouter(db))

	mux.Handle("/blocks", blocksRouter(db))
	mux.Handle("/blocks/", blocksRouter(db))

	// Chat
	mux.Handle("/ws/chat", wsChatHandler(db))
	mux.Handle("/chats/", getChatHistoryHandler(db))     // GET /chats/{id}/messages
	mux.Handle("/chats/summary", chatSummaryHandler(db)) // GET
	mux.Handle("/chats/read", chatsMarkReadHandler(db))  // POST /chats/read?peer_id=123

	// Moderation
	mux.Handle("/flags", createFlagHandler(db))
	mux.Handle("/admin/", adminRouter(db))

	// Health check endpoint for Docker
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/DeafMist/policy-radar/internal/config"
	"github.com/DeafMist/policy-radar/internal/dedupe"
	"github.com/DeafMist/policy-radar/internal/gemini"
	"github.com/DeafMist/policy-radar/internal/logger"
	"github.com/DeafMist/policy-radar/internal/models"
	"github.com/DeafMist/policy-radar/internal/publish"
	"github.com/DeafMist/policy-radar/internal/view"
)

const dateLayout = "2006-01-02"

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	views, err := view.NewRenderer()
	if err != nil {
		log.Error("init views", slog.Any("err", err))
		os.Exit(1)
	}

	var publisher publish.Publisher = publish.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		cache := dedupe.NewCache(cfg.DedupeCapacity, cfg.DedupeTTL)
		publisher = publish.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic, cache, log)
		log.Info("digest publishing enabled",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.String("topic", cfg.KafkaTopic),
		)
	}

	srv := &server{
		log: log,
		cfg: cfg,
		policies: gemini.New(ctx, gemini.Options{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			Timeout: cfg.GeminiTimeout,
		}, log),
		publisher: publisher,
		views:     views,
		now:       time.Now,
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// a grounded lookup can take most of the provider timeout
		WriteTimeout: cfg.GeminiTimeout + 15*time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped", slog.Any("err", err))
	}

	srv.pending.Wait()
	if err := publisher.Close(); err != nil {
		log.Warn("close publisher", slog.Any("err", err))
	}
}

type policyFetcher interface {
	FetchPolicies(ctx context.Context, date string) (*models.SearchResponse, error)
}

type server struct {
	log       *slog.Logger
	cfg       *config.API
	policies  policyFetcher
	publisher publish.Publisher
	views     *view.Renderer
	now       func() time.Time
	pending   sync.WaitGroup
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Get("/policies", s.handlePoliciesFragment)
	r.Get("/api/policies", s.handlePoliciesJSON)
	return r
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("took", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	today := s.today()
	date, ok := s.resolveDate(r)
	if !ok {
		date = today
	}

	var buf bytes.Buffer
	if err := s.views.Page(&buf, view.NewPage(date, s.now().In(s.cfg.Timezone).Year())); err != nil {
		s.log.Error("render page", slog.Any("err", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *server) handlePoliciesFragment(w http.ResponseWriter, r *http.Request) {
	date, ok := s.resolveDate(r)
	if !ok {
		s.writeFragment(w, http.StatusBadRequest, view.Failed(date, view.InvalidDateMessage))
		return
	}

	resp, err := s.fetch(r.Context(), date)
	status := http.StatusOK
	if err != nil {
		status = http.StatusBadGateway
	}
	s.writeFragment(w, status, view.NewResults(date, resp, err))
}

func (s *server) handlePoliciesJSON(w http.ResponseWriter, r *http.Request) {
	date, ok := s.resolveDate(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: view.InvalidDateMessage})
		return
	}

	resp, err := s.fetch(r.Context(), date)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: view.ErrorMessage})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// fetch runs one lookup and hands a successful result to the publisher.
func (s *server) fetch(ctx context.Context, date string) (*models.SearchResponse, error) {
	start := time.Now()
	resp, err := s.policies.FetchPolicies(ctx, date)
	if err != nil {
		s.log.Error("fetch policies",
			slog.String("date", date),
			slog.Any("err", err),
			slog.String("request_id", middleware.GetReqID(ctx)),
		)
		return nil, err
	}

	s.log.Info("policies fetched",
		slog.String("date", date),
		slog.Int("policies", len(resp.Policies)),
		slog.Int("sources", len(resp.Sources)),
		slog.Duration("took", time.Since(start)),
	)
	s.publishAsync(resp)
	return resp, nil
}

func (s *server) publishAsync(resp *models.SearchResponse) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		n, err := s.publisher.Publish(ctx, resp)
		if err != nil {
			s.log.Warn("publish digest failed", slog.Any("err", err))
			return
		}
		if n > 0 {
			s.log.Info("digest published", slog.Int("policies", n))
		}
	}()
}

func (s *server) writeFragment(w http.ResponseWriter, status int, res view.Results) {
	var buf bytes.Buffer
	if err := s.views.Results(&buf, res); err != nil {
		s.log.Error("render results", slog.Any("err", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// resolveDate returns the requested date, or today when none was given. The
// boolean is false for a value that is not a calendar date.
func (s *server) resolveDate(r *http.Request) (string, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		return s.today(), true
	}
	if _, err := time.Parse(dateLayout, raw); err != nil {
		return raw, false
	}
	return raw, true
}

func (s *server) today() string {
	return s.now().In(s.cfg.Timezone).Format(dateLayout)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// nothing better to do
	}
}

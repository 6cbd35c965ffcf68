// Package api exposes the HTTP interface: admin endpoints for crawl jobs
// and stats, and the public chat endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/echochat/echochat/internal/chat"
	"github.com/echochat/echochat/internal/crawler"
	"github.com/echochat/echochat/internal/index"
	"github.com/echochat/echochat/internal/worker"
)

// jobSubmitter is the admission surface of the worker Runner.
type jobSubmitter interface {
	Submit(ctx context.Context, params crawler.RunParams) (string, error)
}

// answerer is the chat service surface.
type answerer interface {
	Answer(ctx context.Context, message string, history []chat.Message) (chat.Reply, error)
}

// Config tunes the HTTP server behavior.
type Config struct {
	// TargetURL is the configured crawl target, reported in stats and
	// used when a scrape request does not name a URL.
	TargetURL string
	// PathPrefix narrows the crawl scope when scraping TargetURL.
	PathPrefix string
	// ScrapeFrequencyHours is reported in stats; 0 means manual only.
	ScrapeFrequencyHours int
	RequestTimeout       time.Duration
	// AdminAPIKey, when set, is required on /api/admin routes.
	AdminAPIKey string
}

// Server wires HTTP handlers to the runner, stores, index, and chat
// service.
type Server struct {
	router chi.Router
	runner jobSubmitter
	jobs   crawler.JobStore
	pages  crawler.PageStore
	idx    index.Index
	chat   answerer
	cfg    Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	runner jobSubmitter,
	jobs crawler.JobStore,
	pages crawler.PageStore,
	idx index.Index,
	chatSvc answerer,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		runner: runner,
		jobs:   jobs,
		pages:  pages,
		idx:    idx,
		chat:   chatSvc,
		cfg:    cfg,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/admin", func(r chi.Router) {
			if cfg.AdminAPIKey != "" {
				r.Use(apiKeyMiddleware(cfg.AdminAPIKey))
			}
			r.Post("/scrape", s.submitScrape)
			r.Get("/jobs", s.listJobs)
			r.Get("/jobs/{job_id}", s.getJob)
			r.Get("/stats", s.stats)
			r.Get("/homepage", s.homepage)
		})
		r.Post("/chat", s.postChat)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.pages.CountPages(r.Context()); err != nil {
		writeError(s.logger, w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}

type scrapeRequest struct {
	URL        string `json:"url"`
	SinglePage bool   `json:"single_page"`
	MaxPages   int    `json:"max_pages"`
	// Reindex defaults to true; a pointer distinguishes an explicit
	// false from an absent field.
	Reindex *bool `json:"reindex"`
}

func (s *Server) submitScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	// An empty body means "scrape the configured target".
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	target := req.URL
	pathPrefix := ""
	if target == "" {
		target = s.cfg.TargetURL
		pathPrefix = s.cfg.PathPrefix
	}
	if target == "" {
		writeError(s.logger, w, http.StatusBadRequest, "url is required")
		return
	}

	jobID, err := s.runner.Submit(r.Context(), crawler.RunParams{
		TargetURL:   target,
		PathPrefix:  pathPrefix,
		SinglePage:  req.SinglePage,
		MaxPages:    req.MaxPages,
		SkipReindex: req.Reindex != nil && !*req.Reindex,
	})
	if errors.Is(err, worker.ErrRunActive) {
		writeError(s.logger, w, http.StatusConflict, "a crawl job is already running")
		return
	}
	if err != nil {
		writeError(s.logger, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": string(crawler.JobStatusPending),
	})
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(s.logger, w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	jobs, err := s.jobs.ListJobs(r.Context(), limit)
	if err != nil {
		writeError(s.logger, w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []crawler.Job{}
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(s.logger, w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, job)
}

type statsResponse struct {
	TargetURL            string     `json:"target_url"`
	PageCount            int        `json:"page_count"`
	ChunkCount           int        `json:"chunk_count"`
	LastSuccessfulJobID  string     `json:"last_successful_job_id,omitempty"`
	LastCompletedAt      *time.Time `json:"last_completed_at,omitempty"`
	ScrapeFrequencyHours int        `json:"scrape_frequency_hours"`
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	pageCount, err := s.pages.CountPages(r.Context())
	if err != nil {
		writeError(s.logger, w, http.StatusInternalServerError, "failed to count pages")
		return
	}
	chunkCount, err := s.idx.Count(r.Context())
	if err != nil {
		// The index may not exist before the first crawl.
		s.logger.Warn("failed to count chunks", zap.Error(err))
		chunkCount = 0
	}
	resp := statsResponse{
		TargetURL:            s.cfg.TargetURL,
		PageCount:            pageCount,
		ChunkCount:           chunkCount,
		ScrapeFrequencyHours: s.cfg.ScrapeFrequencyHours,
	}
	if last, ok, err := s.jobs.LastCompletedJob(r.Context()); err == nil && ok {
		resp.LastSuccessfulJobID = last.ID
		resp.LastCompletedAt = last.CompletedAt
	}
	writeJSON(s.logger, w, http.StatusOK, resp)
}

type homepageResponse struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	HTML      string    `json:"html"`
	ScrapedAt time.Time `json:"scraped_at"`
}

func (s *Server) homepage(w http.ResponseWriter, r *http.Request) {
	page, ok, err := s.pages.Homepage(r.Context())
	if err != nil {
		writeError(s.logger, w, http.StatusInternalServerError, "failed to load homepage")
		return
	}
	if !ok {
		writeError(s.logger, w, http.StatusNotFound, "homepage not scraped yet")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, homepageResponse{
		URL:       page.URL,
		Title:     page.Title,
		HTML:      page.HTML,
		ScrapedAt: page.ScrapedAt,
	})
}

type chatRequest struct {
	Message string         `json:"message"`
	History []chat.Message `json:"history"`
}

func (s *Server) postChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Message == "" {
		writeError(s.logger, w, http.StatusBadRequest, "message is required")
		return
	}

	reply, err := s.chat.Answer(r.Context(), req.Message, req.History)
	if errors.Is(err, chat.ErrNoContext) {
		writeError(s.logger, w, http.StatusNotFound,
			"I don't have enough information about this site yet. Try running a crawl first.")
		return
	}
	if err != nil {
		s.logger.Error("chat failed", zap.Error(err))
		writeError(s.logger, w, http.StatusBadGateway, "chat backend unavailable")
		return
	}
	if reply.Sources == nil {
		reply.Sources = []chat.Source{}
	}
	writeJSON(s.logger, w, http.StatusOK, reply)
}

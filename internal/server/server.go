package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"reddit-stock-monitor/internal/logger"
	"reddit-stock-monitor/internal/query"
	"reddit-stock-monitor/internal/store"
	"reddit-stock-monitor/internal/types"
)

// Analyzer triggers analysis runs from the HTTP write endpoints.
type Analyzer interface {
	AnalyzeTicker(ctx context.Context, ticker string) error
	ManualRun(ctx context.Context) error
}

// Feed serves live top posts for the tracked tickers.
type Feed interface {
	TopMentions(ctx context.Context, tickers []string, limit int) map[string][]types.Mention
}

// Server wraps the HTTP API with lifecycle management.
type Server struct {
	httpServer *http.Server
	queries    *query.Service
	analyzer   Analyzer
	feed       Feed
	tickers    []string
}

// New creates and configures the HTTP server with all routes.
func New(port int, queries *query.Service, analyzer Analyzer, feed Feed, tickers []string) *Server {
	s := &Server{
		queries:  queries,
		analyzer: analyzer,
		feed:     feed,
		tickers:  tickers,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Routes builds the request mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /stocks", s.handleListStocks)
	mux.HandleFunc("GET /stocks/top", s.handleTopPosts)
	mux.HandleFunc("GET /stocks/{ticker}", s.handleGetStock)
	mux.HandleFunc("POST /stocks/{ticker}/analyze", s.handleAnalyzeStock)
	mux.HandleFunc("POST /analyze", s.handleAnalyzeAll)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"service": "reddit-stock-monitor",
			"status":  "running",
		})
	})

	return mux
}

// Start begins listening; blocks until the server stops.
func (s *Server) Start() error {
	logger.Info(context.Background(), "Starting HTTP server", "addr", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info(ctx, "Stopping HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) handleListStocks(w http.ResponseWriter, r *http.Request) {
	resp, err := s.queries.ListAll(r.Context())
	if err != nil {
		s.serverError(w, r, "Failed to retrieve stock data", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetStock(w http.ResponseWriter, r *http.Request) {
	ticker, ok := tickerParam(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown ticker")
		return
	}

	resp, err := s.queries.GetOne(r.Context(), ticker)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("stock %s not found", ticker))
		return
	}
	if err != nil {
		s.serverError(w, r, "Failed to retrieve stock data", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTopPosts(w http.ResponseWriter, r *http.Request) {
	clearWriteDeadline(w, r)

	limit := 5
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	writeJSON(w, http.StatusOK, types.TopPostsResponse{
		Timestamp: time.Now().Unix(),
		Posts:     s.feed.TopMentions(r.Context(), s.tickers, limit),
		Status:    "success",
	})
}

func (s *Server) handleAnalyzeStock(w http.ResponseWriter, r *http.Request) {
	clearWriteDeadline(w, r)

	ticker, ok := tickerParam(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown ticker")
		return
	}

	if err := s.analyzer.AnalyzeTicker(r.Context(), ticker); err != nil {
		s.serverError(w, r, fmt.Sprintf("analysis failed for %s", ticker), err)
		return
	}

	writeJSON(w, http.StatusOK, types.AnalyzeResponse{
		Timestamp: time.Now().Unix(),
		Ticker:    ticker,
		Status:    "success",
		Message:   fmt.Sprintf("%s analyzed and saved", ticker),
	})
}

func (s *Server) handleAnalyzeAll(w http.ResponseWriter, r *http.Request) {
	clearWriteDeadline(w, r)

	if err := s.analyzer.ManualRun(r.Context()); err != nil {
		s.serverError(w, r, "manual analysis failed", err)
		return
	}

	writeJSON(w, http.StatusOK, types.AnalyzeResponse{
		Timestamp: time.Now().Unix(),
		Status:    "success",
		Message:   "manual analysis completed",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// clearWriteDeadline lifts the server's write deadline for handlers that do
// live collection or enrichment and can legitimately run past it. Without
// this a long analysis completes server-side but the client gets a closed
// connection instead of the response envelope.
func clearWriteDeadline(w http.ResponseWriter, r *http.Request) {
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		logger.Warn(r.Context(), "Failed to clear write deadline", "error", err)
	}
}

// tickerParam extracts and normalizes the ticker path segment.
func tickerParam(r *http.Request) (string, bool) {
	ticker := strings.ToUpper(strings.TrimSpace(r.PathValue("ticker")))
	if len(ticker) < 1 || len(ticker) > 10 {
		return "", false
	}
	return ticker, true
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	logger.ErrorWithErr(r.Context(), msg, err, "path", r.URL.Path)
	writeError(w, http.StatusInternalServerError, msg+": "+err.Error())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, types.ErrorResponse{
		Status:  "error",
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error(context.Background(), "Failed to encode response", "error", err)
	}
}

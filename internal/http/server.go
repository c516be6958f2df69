// Package http serves the dashboard REST API. Every /api route sits
// behind token verification; mutating routes additionally require the
// admin role.
package http

import (
	"context"
	"net/http"
	"sync"

	"bankdash/internal/amqp"
	"bankdash/internal/auth"
	"bankdash/internal/storage"
)

// JobPublisher enqueues import jobs for the worker. Nil disables the
// scrape endpoint.
type JobPublisher interface {
	PublishImportJob(ctx context.Context, msg *amqp.ImportJobMessage) error
}

type Server struct {
	http.Server

	store       storage.Store
	jobs        JobPublisher
	rateLimiter *rateLimiter

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, store storage.Store, jobs JobPublisher, authmw *auth.Middleware) *Server {
	mux := http.NewServeMux()

	s := &Server{
		store:       store,
		jobs:        jobs,
		rateLimiter: newRateLimiter(),
	}
	s.Server = http.Server{
		Addr:    addr,
		Handler: s.withMiddleware(mux),
	}

	authed := func(h http.HandlerFunc) http.Handler { return authmw.RequireAuth(h) }
	admin := func(h http.HandlerFunc) http.Handler { return authmw.RequireAdmin(h) }

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.Handle("GET /api/transactions", authed(s.handleListTransactions))
	mux.Handle("GET /api/transactions/search", authed(s.handleSearchTransactions))
	mux.Handle("PATCH /api/transactions/{id}", admin(s.handleUpdateTransaction))

	mux.Handle("GET /api/statistics", authed(s.handleStatistics))
	mux.Handle("GET /api/recurring", authed(s.handleRecurring))
	mux.Handle("GET /api/recurring/suggestions", authed(s.handleRecurringSuggestions))
	mux.Handle("POST /api/projections", authed(s.handleProjections))

	mux.Handle("GET /api/categories", authed(s.handleCategories))
	mux.Handle("GET /api/sources", authed(s.handleSources))

	mux.Handle("POST /api/import/csv", admin(s.handleImportCSV))
	mux.Handle("POST /api/scrape", admin(s.handleScrape))

	mux.Handle("GET /api/person-mappings", authed(s.handleListPersonMappings))
	mux.Handle("POST /api/person-mappings", admin(s.handleAddPersonMapping))
	mux.Handle("DELETE /api/person-mappings/{id}", admin(s.handleDeletePersonMapping))

	mux.Handle("GET /api/contributions", authed(s.handleContributions))
	mux.Handle("GET /api/contributions/statistics", authed(s.handleContributionStatistics))

	return s
}

// Shutdown stops the listener and the rate limiter's cleanup goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Package server exposes comment analysis over HTTP
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"
	"github.com/google/uuid"

	"github.com/umputun/commentscope/pkg/analyzer"
	"github.com/umputun/commentscope/pkg/domain"
)

//go:generate moq -out mocks/config.go -pkg mocks -skip-ensure -fmt goimports . ConfigProvider
//go:generate moq -out mocks/analyzer.go -pkg mocks -skip-ensure -fmt goimports . Analyzer
//go:generate moq -out mocks/quota.go -pkg mocks -skip-ensure -fmt goimports . QuotaReporter
//go:generate moq -out mocks/verifier.go -pkg mocks -skip-ensure -fmt goimports . Verifier

// Server represents HTTP server instance
type Server struct {
	config   ConfigProvider
	analyzer Analyzer
	quota    QuotaReporter
	verifier Verifier
	limits   Limits
	version  string
	debug    bool

	lock       sync.Mutex
	httpServer *http.Server
	router     *routegroup.Bundle
}

// ConfigProvider provides server configuration
type ConfigProvider interface {
	GetServerConfig() (listen string, timeout time.Duration)
}

// Analyzer runs comment analyses
type Analyzer interface {
	Run(ctx context.Context, req analyzer.Request) (*domain.Analysis, error)
}

// QuotaReporter reports caller quota without charging it
type QuotaReporter interface {
	Status(ctx context.Context, caller domain.Caller) (domain.QuotaSnapshot, error)
}

// Verifier resolves bearer tokens to callers
type Verifier interface {
	Verify(ctx context.Context, token string) (domain.Caller, error)
}

// Limits defines request defaults and bounds
type Limits struct {
	DefaultCount    int
	MaxComments     int
	DefaultLanguage string
}

// Params defines server dependencies
type Params struct {
	Config   ConfigProvider
	Analyzer Analyzer
	Quota    QuotaReporter
	Verifier Verifier
	Limits   Limits
	Version  string
	Debug    bool
}

type ctxKey string

const (
	ctxRequestID ctxKey = "request_id"
	ctxCaller    ctxKey = "caller"
)

// New initializes a new server instance
func New(p Params) *Server {
	if p.Limits.DefaultCount <= 0 {
		p.Limits.DefaultCount = 100
	}
	if p.Limits.MaxComments <= 0 {
		p.Limits.MaxComments = 500
	}
	if p.Limits.DefaultLanguage == "" {
		p.Limits.DefaultLanguage = "Traditional Chinese"
	}

	s := &Server{
		config:   p.Config,
		analyzer: p.Analyzer,
		quota:    p.Quota,
		verifier: p.Verifier,
		limits:   p.Limits,
		version:  p.Version,
		debug:    p.Debug,
		router:   routegroup.New(http.NewServeMux()),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Run starts the HTTP server and handles graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	listen, timeout := s.config.GetServerConfig()
	log.Printf("[INFO] starting server on %s", listen)

	s.lock.Lock()
	s.httpServer = &http.Server{
		Addr:              listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       timeout,
		WriteTimeout:      timeout,
	}
	s.lock.Unlock()

	go func() {
		<-ctx.Done()
		log.Printf("[INFO] shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		s.lock.Lock()
		defer s.lock.Unlock()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] server shutdown error: %v", err)
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}

// setupMiddleware configures standard middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(rest.AppInfo("commentscope", "umputun", s.version))
	s.router.Use(rest.Ping)
	s.router.Use(requestID)

	if s.debug {
		s.router.Use(logger.New(logger.Log(lgr.Default()), logger.Prefix("[DEBUG]")).Handler)
	}

	s.router.Use(rest.Recoverer(lgr.Default()))
	s.router.Use(rest.Throttle(100))
	s.router.Use(rest.SizeLimit(1024 * 1024)) // 1MB
	s.router.Use(cors)
}

// setupRoutes configures application routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /health", s.healthHandler)

	s.router.Mount("/api").Route(func(r *routegroup.Bundle) {
		r.Group().Route(func(auth *routegroup.Bundle) {
			auth.Use(s.authMiddleware)
			auth.HandleFunc("POST /analyze", s.analyzeHandler)
			auth.HandleFunc("GET /status", s.quotaStatusHandler)
		})
	})
}

// cors allows browser clients from any origin, preflight requests are answered here
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestID assigns request id, a valid incoming X-Request-ID is kept
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxRequestID, id)))
	})
}

// authMiddleware verifies bearer token and puts the caller into request context
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			renderJSON(w, r, http.StatusUnauthorized, rest.JSON{"error": "Unauthorized: No token provided"})
			return
		}

		caller, err := s.verifier.Verify(r.Context(), strings.TrimSpace(token))
		if err != nil {
			log.Printf("[WARN] [%s] token verification failed: %v", requestIDFrom(r.Context()), err)
			renderJSON(w, r, http.StatusUnauthorized, rest.JSON{"error": "Unauthorized: Invalid token"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxCaller, caller)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxRequestID).(string)
	return id
}

func callerFrom(ctx context.Context) (domain.Caller, bool) {
	caller, ok := ctx.Value(ctxCaller).(domain.Caller)
	return caller, ok
}

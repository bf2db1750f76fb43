// Package httpapi exposes pushes, service tests and settings management over
// a small JSON API. It is meant for local tools (browser extension, scripts)
// and binds to loopback by default.
package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"anypush/internal/notice"
	"anypush/internal/runtime/supervisor"
	"anypush/internal/settings"
	"anypush/internal/transport"
	logx "anypush/pkg/logx"
)

const maxBodyBytes = 1 << 20

type Config struct {
	Addr         string
	Token        string
	CORSOrigins  []string
	Profiler     bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Backend is everything the API drives. internal/app implements it.
type Backend interface {
	transport.Actions

	Settings(ctx context.Context) (settings.Bundle, error)
	SaveSettings(ctx context.Context, b settings.Bundle) (settings.Bundle, error)
	ExportSettings(ctx context.Context) ([]byte, error)
	ImportSettings(ctx context.Context, data []byte) ([]string, error)
	ResetSettings(ctx context.Context) error
	Notices() []notice.Notice
}

// StatusFunc reports the supervised loops for /healthz. May be nil.
type StatusFunc func() []supervisor.LoopStatus

type Server struct {
	cfg     Config
	backend Backend
	status  StatusFunc
	log     logx.Logger
	handler http.Handler
	now     func() time.Time
}

func New(cfg Config, backend Backend, status StatusFunc, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{
		cfg:     cfg,
		backend: backend,
		status:  status,
		log:     log.With(logx.String("comp", "httpapi")),
		now:     time.Now,
	}
	s.handler = s.routes()
	return s
}

// Handler returns the fully wrapped router.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireToken)
		r.Post("/push/text", s.handlePushText)
		r.Post("/push/url", s.handlePushURL)
		r.Post("/test/{service}", s.handleTest)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
		r.Get("/settings/export", s.handleExport)
		r.Post("/settings/import", s.handleImport)
		r.Post("/settings/reset", s.handleReset)

		r.Get("/notices", s.handleNotices)
	})

	if s.cfg.Profiler {
		r.Group(func(r chi.Router) {
			r.Use(s.requireToken)
			r.Mount("/debug", middleware.Profiler())
		})
	}

	if len(s.cfg.CORSOrigins) == 0 {
		return r
	}
	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition", "X-Request-Id"},
		MaxAge:         300,
	})
	return c.Handler(r)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http api listening", logx.String("addr", s.cfg.Addr), logx.Bool("auth", s.cfg.Token != ""))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("http api shutdown", logx.Err(err))
		return err
	}
	s.log.Info("http api stopped")
	return nil
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Token == "" {
			next.ServeHTTP(w, r)
			return
		}
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(s.cfg.Token)) != 1 {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		fields := []logx.Field{
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", status),
			logx.Int("bytes", ww.BytesWritten()),
			logx.Duration("took", time.Since(start)),
			logx.String("req_id", middleware.GetReqID(r.Context())),
		}
		if status >= 500 {
			s.log.Warn("http request", fields...)
			return
		}
		s.log.Debug("http request", fields...)
	})
}

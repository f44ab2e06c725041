package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/config"
	"github.com/diarrand09/Migration-Mysql-to-Postgre/internal/metrics"
)

type Server struct {
	cfg      config.Config
	logger   requestLogger
	service  Service
	nav      *Navigator
	metrics  *metrics.Collector
	transfer *TransferHandler
}

type requestLogger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

func New(cfg config.Config, logger requestLogger, service Service, nav *Navigator, m *metrics.Collector) *Server {
	if m == nil {
		m = metrics.New()
	}
	return &Server{
		cfg:      cfg,
		logger:   logger,
		service:  service,
		nav:      nav,
		metrics:  m,
		transfer: NewTransferHandler(service, nav, logger),
	}
}

func (s *Server) Start(ctx context.Context) error {
	r := s.Handler()
	httpServer := &http.Server{
		Addr:              s.cfg.HTTPAddress,
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.Transfer.OperationTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "addr", s.cfg.HTTPAddress)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("http server shutting down")
		return httpServer.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(SpanMiddleware)
	r.Use(middleware.Timeout(s.cfg.Transfer.OperationTimeout + 10*time.Second))
	r.Use(RequestLogger(s.logger, s.metrics))

	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Method(http.MethodGet, "/health", HealthHandler{Checker: s.service})

		api.Get("/databases", s.transfer.Databases)
		api.Get("/databases/{db}/tables", s.transfer.Tables)
		api.Get("/databases/{db}/tables/{table}/mapped", s.transfer.Mapped)
		api.Get("/databases/{db}/tables/{table}/compare", s.transfer.Compare)
		api.Get("/transfer-status", s.transfer.Status)
		api.Get("/edits/pending", s.transfer.PendingEdits)
		api.Get("/resume", s.transfer.Resume)

		api.Post("/transfer", s.transfer.Transfer)
		api.Post("/update", s.transfer.Update)
		api.Post("/edit", s.transfer.Edit)
		api.Post("/delete", s.transfer.Delete)
		api.Post("/reset-sequences", s.transfer.ResetAllSequences)
		api.Post("/reset-sequences/{table}", s.transfer.ResetSequence)
		api.Post("/clear-mapping/{db}/{table}", s.transfer.ClearMapping)
	})

	return r
}

package receipt

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Server handles HTTP requests for bills
type Server struct {
	service *Service
	mux     *http.ServeMux
	version string
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, version string) *Server {
	return NewServerWithMux(service, version, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, version string, mux *http.ServeMux) *Server {
	s := &Server{
		service: service,
		mux:     mux,
		version: version,
	}
	s.registerRoutes()
	return s
}

// corsMiddleware adds CORS headers to every response and answers preflight requests
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("GET /api/bills/{id}/file", s.handleGetBillFile)
	s.mux.HandleFunc("GET /api/bills/{id}", s.handleGetBill)
	s.mux.HandleFunc("DELETE /api/bills/{id}", s.handleDeleteBill)
	s.mux.HandleFunc("GET /api/bills", s.handleListBills)
	s.mux.HandleFunc("POST /api/bills/reconcile", s.handleReconcile)
	s.mux.HandleFunc("POST /api/bills", s.handleUploadBill)
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	corsMiddleware(s.mux).ServeHTTP(w, r)
}

package ipc

import (
	"context"
	"net"
	"net/http"
	"time"
)

// Server wraps an HTTP server with lobby routing.
type Server struct {
	httpServer *http.Server
}

// NewServer creates a Server that binds to the given address. Open notice
// streams are cancelled when Shutdown begins.
func NewServer(h *Handler, listenAddr string) *Server {
	base, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           Routes(h),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	srv.RegisterOnShutdown(cancel)
	return &Server{httpServer: srv}
}

// Routes returns the API mux wrapped in CORS handling.
func Routes(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Session endpoints.
	mux.HandleFunc("GET /api/v1/session", h.GetSession)
	mux.HandleFunc("POST /api/v1/session/login", h.Login)
	mux.HandleFunc("POST /api/v1/session/join", h.Join)
	mux.HandleFunc("POST /api/v1/session/leave", h.Leave)
	mux.HandleFunc("POST /api/v1/session/phase", h.ApplyPhase)
	mux.HandleFunc("POST /api/v1/session/abilities/{capability}", h.InvokeAbility)

	// Event endpoints.
	mux.HandleFunc("GET /api/v1/session/events", h.ListEvents)
	mux.HandleFunc("GET /api/v1/session/stream", h.StreamNotices)

	return corsMiddleware(mux)
}

// Start begins listening for HTTP connections. Blocks until the server stops.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for browser clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

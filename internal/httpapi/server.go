// Package httpapi is the HTTP ingress for capture devices and the dashboard.
//
// # Endpoints
//
//	POST /upload        multipart field "image"; analyzes the frame
//	GET  /api/health    liveness plus host uptime and memory
//	GET  /api/history   recent results, newest first (?limit=N)
//	GET  /results.csv   recent results as CSV, oldest first
//	GET  /gallery       auto-refreshing page of the latest frames
//	GET  /images/...    stored frames and annotated images
//	GET  /              built dashboard, when FrontendDir exists
//
// A frame that cannot be analyzed is still acknowledged with 200 and the status
// "OK (Analysis Failed)", so devices do not retry it.
package httpapi

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/uv-coverage/internal/ingest"
)

const shutdownTimeout = 5 * time.Second

// Options configures a Server.
type Options struct {
	// Addr is the listen address used by Run.
	Addr string

	// FrontendDir is served at / when it exists.
	FrontendDir string

	// MaxUploadBytes limits the size of an uploaded image.
	MaxUploadBytes int64

	// HistoryLimit is the default number of history entries.
	HistoryLimit int

	// GalleryLimit is the number of frames shown on the gallery page.
	GalleryLimit int

	// RequestTimeout bounds each request. Zero disables the limit.
	RequestTimeout time.Duration

	// Logger defaults to the standard logger.
	Logger *log.Logger

	// Debug enables per-request logging.
	Debug bool
}

// Server serves the ingress API.
type Server struct {
	svc     *ingest.Service
	opts    Options
	logger  *log.Logger
	started time.Time
	stats   func(ctx context.Context) (*HostStats, error)
}

// New creates a Server over svc.
func New(svc *ingest.Service, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 5 << 20
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = ingest.DefaultHistoryLimit
	}
	if opts.GalleryLimit <= 0 {
		opts.GalleryLimit = 20
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Server{
		svc:     svc,
		opts:    opts,
		logger:  logger,
		started: time.Now(),
		stats:   readHostStats,
	}
}

// Handler returns the complete HTTP handler, including CORS and the request timeout.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /results.csv", s.handleResultsCSV)
	mux.HandleFunc("GET /gallery", s.handleGallery)
	mux.Handle("GET /images/", http.StripPrefix("/images/", http.FileServer(http.Dir(s.svc.UploadDir()))))

	if info, err := os.Stat(s.opts.FrontendDir); err == nil && info.IsDir() {
		mux.Handle("GET /", http.FileServer(http.Dir(s.opts.FrontendDir)))
	} else if s.opts.FrontendDir != "" {
		s.logger.Printf("WARNING: frontend directory %s not found, dashboard disabled", s.opts.FrontendDir)
	}

	var h http.Handler = mux
	if s.opts.RequestTimeout > 0 {
		h = http.TimeoutHandler(h, s.opts.RequestTimeout, "request timed out")
	}
	return corsMiddleware(h)
}

// Run listens on Options.Addr and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.opts.Addr)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          s.logger,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Printf("Server running at http://%s", ln.Addr())
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "serve")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Wrap(srv.Shutdown(shutdownCtx), "shutdown")
	})
	return g.Wait()
}

// corsMiddleware allows the dashboard to be served from another origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

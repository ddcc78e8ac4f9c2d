// ABOUTME: HTTP JSON API for web accounts, admin actions and game server status
// ABOUTME: Builds the chi router with auth, concurrency limiting and access logging

package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/semaphore"

	"github.com/LyceenAiro/CelesteNet-UserTool/internal/auth"
	"github.com/LyceenAiro/CelesteNet-UserTool/internal/netapi"
	"github.com/LyceenAiro/CelesteNet-UserTool/internal/users"
)

// MaxAvatarUpload bounds the multipart body of an avatar upload.
const MaxAvatarUpload = 8 << 20

// GameServer is the part of the game server API the web pages show.
type GameServer interface {
	Status(ctx context.Context) (*netapi.Status, error)
	Players(ctx context.Context, key string) ([]netapi.Player, error)
}

// TokenIssuer signs and verifies session tokens.
type TokenIssuer interface {
	auth.TokenVerifier
	Generate(uid string, isAdmin bool, expiresIn time.Duration) (string, error)
}

// Config carries the settings the handlers need.
type Config struct {
	TokenTTL              time.Duration
	WebRedirect           string
	WebTitle              string
	MaxConcurrentRequests int
}

// Server serves the web API.
type Server struct {
	users    *users.Service
	tokens   TokenIssuer
	game     GameServer
	cfg      Config
	logger   *slog.Logger
	access   *slog.Logger
	validate *validator.Validate
	sem      *semaphore.Weighted
}

// New creates the API server. access may be nil to disable the access log.
func New(svc *users.Service, tokens TokenIssuer, game GameServer, cfg Config, logger, access *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxConcurrentRequests < 1 {
		cfg.MaxConcurrentRequests = 1
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	return &Server{
		users:    svc,
		tokens:   tokens,
		game:     game,
		cfg:      cfg,
		logger:   logger.With("component", "web"),
		access:   access,
		validate: newValidator(),
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrentRequests)),
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		auth.WriteError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		auth.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.limit)

		r.Post("/login", s.handleLogin)
		r.Get("/websetting", s.handleWebSetting)
		r.Post("/register", s.handleRegister)
		r.Get("/baninfo", s.handleBanInfo)
		r.Get("/server", s.handleServer)
		r.Get("/avatar", s.handleAvatar)

		r.Group(func(r chi.Router) {
			r.Use(auth.HTTPAuthMiddleware(s.tokens, s.logger))

			r.Post("/logout", s.handleLogout)
			r.Get("/players", s.handlePlayers)

			r.Route("/user/{uid}", func(r chi.Router) {
				r.Get("/", s.handleGetUser)
				r.Put("/reset_password", s.handleResetPassword)
				r.Put("/reset_key", s.handleResetKey)
				r.Put("/change_name", s.handleChangeName)
				r.Post("/cancel_user", s.handleCancelUser)
				r.Post("/upload_avatar", s.handleUploadAvatar)
			})

			r.With(auth.RequireAdminHTTP(s.users)).Get("/ban", s.handleBan)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireSuperAdminHTTP(s.users))
				r.Get("/op", s.handleOp)
				r.Get("/deop", s.handleDeOp)
				r.Get("/deban", s.handleDeBan)
			})
		})
	})

	return r
}

// limit bounds the number of API requests handled at once. Waiting requests
// give up when their context ends.
func (s *Server) limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.sem.Acquire(r.Context(), 1); err != nil {
			auth.WriteError(w, http.StatusServiceUnavailable, "server busy")
			return
		}
		defer s.sem.Release(1)
		next.ServeHTTP(w, r)
	})
}

// accessLog writes one line per request to the access log.
func (s *Server) accessLog(next http.Handler) http.Handler {
	if s.access == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.access.Info("request",
			"remote", r.RemoteAddr,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

// handleHealth returns 200 OK if the server is alive.
func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

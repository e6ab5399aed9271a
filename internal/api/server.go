package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/radiolink/radiolink/internal/auth"
	"github.com/radiolink/radiolink/internal/config"
	"github.com/radiolink/radiolink/internal/events"
	"github.com/radiolink/radiolink/internal/storage"
	"github.com/radiolink/radiolink/internal/validation"
	"github.com/radiolink/radiolink/pkg/radio"
)

// Radio is the transceiver surface the API controls
type Radio interface {
	Initialized() bool
	PowerState() (radio.PowerState, error)
	SetPowerState(state radio.PowerState) error
	Config() (radio.Config, error)
	Configure(cfg radio.Config) error
	Send(pkt radio.Packet) error
	SendAsync(pkt radio.Packet) (uint16, error)
	TxStatus(id uint16) (radio.TxStatus, error)
	WaitTx(ctx context.Context, id uint16) (radio.TxStatus, error)
	Receive(ctx context.Context, timeout time.Duration) (radio.Packet, error)
	Pending() (int, error)
	ScanNetworks(max int, scanTime time.Duration) ([]radio.NetworkInfo, error)
	JoinNetwork(networkID uint16, key radio.NetworkKey, timeout time.Duration) error
	LeaveNetwork() error
	NetworkInfo() (radio.NetworkInfo, error)
	MeasureRSSI() (int8, error)
	ChannelUtilization() (uint8, error)
	Statistics() (radio.Statistics, error)
	ResetStatistics() error
	SelfTest() (radio.SelfTestResult, error)
	FirmwareVersion(capacity int) (string, error)
}

// TxRecorder records packets submitted through the API
type TxRecorder interface {
	RecordTx(ctx context.Context, pkt radio.Packet, txID uint16, err error)
}

// EventSource lets websocket clients follow live radio traffic
type EventSource interface {
	Subscribe(name string, s events.Subscriber) func()
}

type contextKey string

const claimsKey contextKey = "claims"

// RESTServer represents the REST API server
type RESTServer struct {
	config    *config.Config
	store     storage.Store
	radio     Radio
	recorder  TxRecorder
	events    EventSource
	auth      *auth.JWTManager
	validator *validation.Validator
	router    chi.Router
	server    *http.Server
}

// NewRESTServer creates a new REST API server. recorder and source may be
// nil.
func NewRESTServer(cfg *config.Config, store storage.Store, r Radio, recorder TxRecorder, source EventSource) *RESTServer {
	s := &RESTServer{
		config:    cfg,
		store:     store,
		radio:     r,
		recorder:  recorder,
		events:    source,
		auth:      auth.NewJWTManager(&cfg.JWT),
		validator: validation.NewValidator(),
		router:    chi.NewRouter(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.API.RequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root HTTP handler
func (s *RESTServer) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all routes
func (s *RESTServer) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)

	origins := s.config.API.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Route("/api/v1", func(r chi.Router) {
		s.setupAPIRoutes(r)
	})
}

// requestLogger logs each request through zerolog
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("requestId", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// ListenAndServe starts the server
func (s *RESTServer) ListenAndServe(addr string) error {
	s.server.Addr = addr
	log.Info().Str("addr", addr).Msg("Starting REST API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *RESTServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// authMiddleware is the authentication middleware. Browsers cannot set
// headers on websocket upgrades, so an access_token query parameter is
// accepted too.
func (s *RESTServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("access_token")

		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				s.respondError(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}
			token = parts[1]
		}

		if token == "" {
			s.respondError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		claims, err := s.auth.ValidateToken(token)
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// adminOnly rejects users without the admin flag
func (s *RESTServer) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFrom(r.Context())
		if claims == nil || !claims.IsAdmin {
			s.respondError(w, http.StatusForbidden, "admin privileges required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func claimsFrom(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

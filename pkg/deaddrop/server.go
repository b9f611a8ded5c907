package deaddrop

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// Config configures a dead-drop Server.
type Config struct {
	ListenAddr  string
	CORSOrigins []string
	// AgentTokens maps a bearer token to the agent id it authenticates.
	AgentTokens map[string]string
	// DropRatePerSecond and DropBurst bound how often any single agent
	// may call /drop, to cap blob-storage growth from a misbehaving
	// device. This is additive hardening, not a protocol requirement.
	DropRatePerSecond float64
	DropBurst         int
}

// Server is the dead-drop's HTTP surface: blob storage addressable by
// channel and id, with bearer-token auth and per-agent rate limiting.
// It never decrypts or parses a blob's body, and never cross-references
// one channel against another.
type Server struct {
	router  chi.Router
	api     huma.API
	store   *BlobStore
	cfg     Config
	limiter *perAgentLimiter
}

// New constructs a dead-drop Server over store.
func New(store *BlobStore, cfg Config) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("deaddrop: listen address is required")
	}
	if cfg.DropRatePerSecond <= 0 {
		cfg.DropRatePerSecond = 5
	}
	if cfg.DropBurst <= 0 {
		cfg.DropBurst = 10
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware(cfg.CORSOrigins))

	humaConfig := huma.DefaultConfig("Memory Crystal Dead Drop", "1.0.0")
	humaConfig.Info.Description = "Untrusted blob relay for sealed conversation and mirror payloads"
	api := humachi.New(r, humaConfig)

	s := &Server{
		router:  r,
		api:     api,
		store:   store,
		cfg:     cfg,
		limiter: newPerAgentLimiter(cfg.DropRatePerSecond, cfg.DropBurst),
	}

	s.registerRoutes()
	return s, nil
}

// Handler returns the underlying http.Handler, for tests and for
// embedding behind a caller-managed http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	})
}

type healthOutput struct {
	Body struct {
		OK      bool   `json:"ok"`
		Service string `json:"service"`
		Mode    string `json:"mode"`
	}
}

type channelInput struct {
	Authorization string `header:"Authorization"`
	Channel       string `path:"channel"`
}

type blobInput struct {
	Authorization string `header:"Authorization"`
	Channel       string `path:"channel"`
	ID            string `path:"id"`
}

type dropInput struct {
	Authorization string `header:"Authorization"`
	Channel       string `path:"channel"`
	RawBody       []byte `contentType:"application/octet-stream"`
}

type dropOutput struct {
	Body struct {
		OK        bool      `json:"ok"`
		ID        string    `json:"id"`
		Channel   string    `json:"channel"`
		Size      int64     `json:"size"`
		DroppedAt time.Time `json:"dropped_at"`
	}
}

type pickupListOutput struct {
	Body struct {
		Channel string `json:"channel"`
		Count   int    `json:"count"`
		Blobs   []Meta `json:"blobs"`
	}
}

type pickupBlobOutput struct {
	Body []byte `contentType:"application/octet-stream"`
}

type confirmOutput struct {
	Body struct {
		OK      bool `json:"ok"`
		Deleted bool `json:"deleted"`
	}
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Liveness check",
		Tags:        []string{"system"},
	}, func(_ context.Context, _ *struct{}) (*healthOutput, error) {
		out := &healthOutput{}
		out.Body.OK = true
		out.Body.Service = "memory-crystal-deaddrop"
		out.Body.Mode = "relay"
		return out, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "drop",
		Method:      http.MethodPost,
		Path:        "/drop/{channel}",
		Summary:     "Drop a sealed blob into a channel",
		Tags:        []string{"drop"},
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests},
	}, s.handleDrop)

	huma.Register(s.api, huma.Operation{
		OperationID: "pickup-list",
		Method:      http.MethodGet,
		Path:        "/pickup/{channel}",
		Summary:     "Enumerate blobs in a channel",
		Tags:        []string{"pickup"},
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, s.handlePickupList)

	huma.Register(s.api, huma.Operation{
		OperationID: "pickup-blob",
		Method:      http.MethodGet,
		Path:        "/pickup/{channel}/{id}",
		Summary:     "Fetch one blob's raw sealed bytes",
		Tags:        []string{"pickup"},
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, s.handlePickupBlob)

	huma.Register(s.api, huma.Operation{
		OperationID: "confirm",
		Method:      http.MethodDelete,
		Path:        "/confirm/{channel}/{id}",
		Summary:     "Remove a blob after successful processing",
		Tags:        []string{"confirm"},
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, s.handleConfirm)
}

func (s *Server) authenticate(authHeader string) (agentID string, err error) {
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", huma.Error401Unauthorized("missing bearer token")
	}
	for candidate, agent := range s.cfg.AgentTokens {
		if subtle.ConstantTimeCompare([]byte(token), []byte(candidate)) == 1 {
			return agent, nil
		}
	}
	return "", huma.Error403Forbidden("unknown token")
}

func (s *Server) handleDrop(_ context.Context, input *dropInput) (*dropOutput, error) {
	agentID, err := s.authenticate(input.Authorization)
	if err != nil {
		return nil, err
	}
	if !s.limiter.allow(agentID) {
		return nil, huma.Error429TooManyRequests("drop rate exceeded")
	}
	if !ValidChannels[input.Channel] {
		return nil, huma.Error400BadRequest("invalid channel")
	}

	meta, err := s.store.Put(input.Channel, agentID, input.RawBody)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyBody):
			return nil, huma.Error400BadRequest("empty body")
		case errors.Is(err, ErrBodyTooLarge):
			return nil, huma.Error400BadRequest("body exceeds maximum size")
		default:
			slog.Error("deaddrop: drop failed", "channel", input.Channel, "error", err)
			return nil, huma.Error500InternalServerError("internal server error")
		}
	}

	out := &dropOutput{}
	out.Body.OK = true
	out.Body.ID = meta.ID
	out.Body.Channel = meta.Channel
	out.Body.Size = meta.Size
	out.Body.DroppedAt = meta.DroppedAt
	return out, nil
}

func (s *Server) handlePickupList(_ context.Context, input *channelInput) (*pickupListOutput, error) {
	if _, err := s.authenticate(input.Authorization); err != nil {
		return nil, err
	}
	if !ValidChannels[input.Channel] {
		return nil, huma.Error400BadRequest("invalid channel")
	}

	blobs, err := s.store.List(input.Channel)
	if err != nil {
		slog.Error("deaddrop: list failed", "channel", input.Channel, "error", err)
		return nil, huma.Error500InternalServerError("internal server error")
	}

	out := &pickupListOutput{}
	out.Body.Channel = input.Channel
	out.Body.Count = len(blobs)
	out.Body.Blobs = blobs
	return out, nil
}

func (s *Server) handlePickupBlob(_ context.Context, input *blobInput) (*pickupBlobOutput, error) {
	if _, err := s.authenticate(input.Authorization); err != nil {
		return nil, err
	}
	if !ValidChannels[input.Channel] {
		return nil, huma.Error400BadRequest("invalid channel")
	}

	body, _, err := s.store.Get(input.Channel, input.ID)
	if errors.Is(err, ErrNotFound) {
		return nil, huma.Error404NotFound("blob not found")
	}
	if err != nil {
		slog.Error("deaddrop: fetch failed", "channel", input.Channel, "id", input.ID, "error", err)
		return nil, huma.Error500InternalServerError("internal server error")
	}

	return &pickupBlobOutput{Body: body}, nil
}

func (s *Server) handleConfirm(_ context.Context, input *blobInput) (*confirmOutput, error) {
	if _, err := s.authenticate(input.Authorization); err != nil {
		return nil, err
	}
	if !ValidChannels[input.Channel] {
		return nil, huma.Error400BadRequest("invalid channel")
	}

	err := s.store.Delete(input.Channel, input.ID)
	if errors.Is(err, ErrNotFound) {
		return nil, huma.Error404NotFound("blob not found")
	}
	if err != nil {
		slog.Error("deaddrop: confirm failed", "channel", input.Channel, "id", input.ID, "error", err)
		return nil, huma.Error500InternalServerError("internal server error")
	}

	out := &confirmOutput{}
	out.Body.OK = true
	out.Body.Deleted = true
	return out, nil
}

// perAgentLimiter throttles /drop calls per authenticated agent, to
// bound blob-storage growth from a misbehaving device. net/http serves
// each request on its own goroutine, so byAgent is guarded by mu.
type perAgentLimiter struct {
	rate  rate.Limit
	burst int

	mu      sync.Mutex
	byAgent map[string]*rate.Limiter
}

func newPerAgentLimiter(perSecond float64, burst int) *perAgentLimiter {
	return &perAgentLimiter{rate: rate.Limit(perSecond), burst: burst, byAgent: map[string]*rate.Limiter{}}
}

func (l *perAgentLimiter) allow(agentID string) bool {
	l.mu.Lock()
	limiter, ok := l.byAgent[agentID]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.byAgent[agentID] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// SweepLoop runs BlobStore.SweepExpired on interval until ctx is
// cancelled, deleting blobs older than ttl as a safety net against
// clients that never confirm.
func (s *Server) SweepLoop(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.store.SweepExpired(ttl)
			if err != nil {
				slog.Error("deaddrop: sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				slog.Info("deaddrop: swept expired blobs", "count", removed)
			}
		}
	}
}

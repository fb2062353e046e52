package gateway

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"summa/internal/agent"
	"summa/internal/chain"
	"summa/internal/channels"
	"summa/internal/history"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Chain is the direct summarize/translate surface.
type Chain interface {
	Summarize(ctx context.Context, text string) (string, error)
	TranslateTo(ctx context.Context, text, language string) (string, error)
	SummarizeAndTranslate(ctx context.Context, text string) (*chain.Result, error)
}

// History is the read side of the session store.
type History interface {
	Sessions(ctx context.Context, limit int) ([]history.Session, error)
	Session(ctx context.Context, sessionID string) (*history.Session, error)
	Turns(ctx context.Context, sessionID string) ([]history.Turn, error)
}

type Option func(*Server)

// WithToken requires a bearer token on every /v1 route.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithHistory enables the session endpoints.
func WithHistory(h History) Option {
	return func(s *Server) { s.history = h }
}

// WithChannels mounts inbound channel webhooks on the server.
func WithChannels(chs ...channels.Channel) Option {
	return func(s *Server) { s.channels = append(s.channels, chs...) }
}

type Server struct {
	runner   agent.Runner
	chain    Chain
	history  History
	token    string
	validate *validator.Validate
	channels []channels.Channel
	mux      *http.ServeMux
}

func NewServer(runner agent.Runner, c Chain, opts ...Option) *Server {
	s := &Server{
		runner:   runner,
		chain:    c,
		validate: validator.New(),
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	for _, ch := range s.channels {
		ch.RegisterRoutes(s.mux)
	}
	return s
}

func (s *Server) routes() {
	s.mux.Handle("POST /v1/run", s.auth(s.handleRun))
	s.mux.Handle("POST /v1/summarize", s.auth(s.handleSummarize))
	s.mux.Handle("POST /v1/translate", s.auth(s.handleTranslate))
	s.mux.Handle("POST /v1/chain", s.auth(s.handleChain))
	s.mux.Handle("GET /v1/sessions", s.auth(s.handleListSessions))
	s.mux.Handle("GET /v1/sessions/{id}", s.auth(s.handleGetSession))
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
}

// Handler returns the instrumented root handler.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.mux, "summa.gateway")
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests for up to ten seconds.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down gateway")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) auth(next http.HandlerFunc) http.Handler {
	if s.token == "" {
		return next
	}
	want := []byte("Bearer " + s.token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(strings.TrimSpace(r.Header.Get("Authorization")))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	})
}

package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/avatar-synth/internal/logger"
	"github.com/spigell/avatar-synth/internal/synthesis"
)

const headerRequestID = "X-Request-Id"

type Synthesizer interface {
	Synthesize(ctx context.Context, req *synthesis.Request) (*synthesis.Result, error)
}

type Options struct {
	// FallbackURL is returned instead of an error when synthesis fails.
	FallbackURL    string
	AllowedOrigins []string
}

type Handler struct {
	synthesizer Synthesizer
	options     Options
	logger      *zap.Logger
}

func New(s Synthesizer, opts Options, log *zap.Logger) (*Handler, error) {
	h := &Handler{
		synthesizer: s,
		options:     opts,
		logger:      logger.WithFields(log),
	}

	return h, nil
}

func (h *Handler) Attach(r chi.Router) {
	r.Post("/api/clips", h.handleClips)
	r.Get("/healthz", h.handleHealth)
}

// Router returns the handler mounted behind request id, CORS and recovery middleware.
func (h *Handler) Router() http.Handler {
	origins := h.options.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", headerRequestID},
		ExposedHeaders: []string{headerRequestID},
		MaxAge:         300,
	}))

	h.Attach(r)

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

type requestIDKey struct{}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(headerRequestID, id)

		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func writeJson(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	enc.Encode(v)
}

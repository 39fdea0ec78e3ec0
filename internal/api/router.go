// Package api builds the HTTP surface of the orchestrator.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/videogen/orchestrator/internal/api/middleware"
	"github.com/videogen/orchestrator/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc
	ReadyHandler  http.HandlerFunc

	ValidateHandler http.HandlerFunc
	ProcessHandler  http.HandlerFunc
	StatusHandler   http.HandlerFunc
	CancelHandler   http.HandlerFunc

	SceneAnalyzeHandler     http.HandlerFunc
	StoryboardHandler       http.HandlerFunc
	CharacterHandler        http.HandlerFunc
	ConsistencyCheckHandler http.HandlerFunc
	KeyframeHandler         http.HandlerFunc
	VideoHandler            http.HandlerFunc
	VoiceoverHandler        http.HandlerFunc
	ComposeHandler          http.HandlerFunc

	GenerateVideoHandler    http.HandlerFunc
	GenerationStatusHandler http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public probes
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	r.Get("/api/v1/ready", orNotImplemented(deps.ReadyHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/input/validate", orNotImplemented(deps.ValidateHandler))
		r.Post("/api/v1/input/process", orNotImplemented(deps.ProcessHandler))
		r.Get("/api/v1/input/status/{inputID}", orNotImplemented(deps.StatusHandler))
		r.Delete("/api/v1/input/{inputID}", orNotImplemented(deps.CancelHandler))

		r.Post("/api/v1/scene/analyze", orNotImplemented(deps.SceneAnalyzeHandler))
		r.Post("/api/v1/scene/storyboard", orNotImplemented(deps.StoryboardHandler))
		r.Post("/api/v1/character/generate", orNotImplemented(deps.CharacterHandler))
		r.Get("/api/v1/character/consistency/{referenceID}", orNotImplemented(deps.ConsistencyCheckHandler))
		r.Post("/api/v1/keyframe/generate", orNotImplemented(deps.KeyframeHandler))
		r.Post("/api/v1/video/generate", orNotImplemented(deps.VideoHandler))
		r.Post("/api/v1/voiceover/generate", orNotImplemented(deps.VoiceoverHandler))
		r.Post("/api/v1/composition/compose", orNotImplemented(deps.ComposeHandler))

		r.Post("/api/v1/generate/video", orNotImplemented(deps.GenerateVideoHandler))
		r.Get("/api/v1/generate/video/{generationID}", orNotImplemented(deps.GenerationStatusHandler))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented,
			response.CodeProcessingError, "Endpoint not yet implemented", nil)
	}
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/trailguard/internal/safety"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// Gateway status callbacks are mounted outside the auth group; gateways
// cannot send the API token.
func NewRouter(svc *safety.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Post("/channels/{name}/status", h.ChannelStatus)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(authEnabled, token))

		// Journey.
		r.Get("/journey", h.GetJourney)
		r.Post("/journey/start", h.StartJourney)
		r.Post("/journey/stop", h.StopJourney)
		r.Post("/sos", h.TriggerSOS)

		// Contacts.
		r.Get("/contacts", h.ListContacts)
		r.Post("/contacts/sync", h.SyncContacts)
		r.Put("/contacts/selection", h.SelectContacts)
		r.Post("/contacts/import", h.ImportContacts)

		// Position.
		r.Post("/position", h.ReportPosition)
		r.Put("/position/enabled", h.SetLocationEnabled)

		// Voice.
		r.Post("/voice/transcripts", h.PushTranscript)
		r.Get("/voice/prompts", h.ListPrompts)
		r.Post("/voice/prompts/{id}/confirm", h.ConfirmPrompt)
		r.Post("/voice/prompts/{id}/cancel", h.CancelPrompt)

		// History.
		r.Get("/deliveries", h.ListDeliveries)
		r.Get("/journeys", h.ListJourneys)
		r.Get("/locations", h.ListLocations)

		// SSE endpoint (protected by same auth middleware).
		if sseHandler != nil {
			r.Get("/events", sseHandler.ServeHTTP)
		}
	})

	return r
}

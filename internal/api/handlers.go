package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/trailguard/internal/contacts"
	"github.com/starford/trailguard/internal/models"
	"github.com/starford/trailguard/internal/safety"
)

// Handler holds API route handlers.
type Handler struct {
	svc *safety.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *safety.Service) *Handler {
	return &Handler{svc: svc}
}

// GetJourney handles GET /api/journey.
//
//	@Summary		Current journey state
//	@Tags			journey
//	@Produce		json
//	@Success		200	{object}	JourneyResponse
//	@Security		BearerAuth
//	@Router			/journey [get]
func (h *Handler) GetJourney(w http.ResponseWriter, r *http.Request) {
	prompts := h.svc.PendingPrompts()
	if prompts == nil {
		prompts = []models.VoicePrompt{}
	}
	writeJSON(w, http.StatusOK, JourneyResponse{
		Session:         h.svc.Session(),
		Journey:         h.svc.Journey(),
		LocationEnabled: h.svc.LocationEnabled(),
		PendingPrompts:  prompts,
	})
}

// StartJourney handles POST /api/journey/start.
//
//	@Summary		Start a manual journey
//	@Tags			journey
//	@Produce		json
//	@Success		200	{object}	models.JourneyState
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/journey/start [post]
func (h *Handler) StartJourney(w http.ResponseWriter, r *http.Request) {
	state, err := h.svc.StartJourney(r.Context())
	if err != nil {
		writeError(w, "start journey", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// StopJourney handles POST /api/journey/stop.
//
//	@Summary		Stop the active journey and notify contacts of safe arrival
//	@Tags			journey
//	@Produce		json
//	@Success		200	{object}	models.JourneyState
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/journey/stop [post]
func (h *Handler) StopJourney(w http.ResponseWriter, r *http.Request) {
	state, err := h.svc.StopJourney(r.Context())
	if err != nil {
		writeError(w, "stop journey", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// TriggerSOS handles POST /api/sos.
//
//	@Summary		Send the emergency message on every channel
//	@Tags			alerts
//	@Produce		json
//	@Success		200	{object}	models.DispatchReport
//	@Failure		422	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sos [post]
func (h *Handler) TriggerSOS(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.TriggerSOS(r.Context())
	if err != nil {
		writeError(w, "trigger sos", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ListContacts handles GET /api/contacts.
//
//	@Summary		Selected emergency contacts and the full roster
//	@Tags			contacts
//	@Produce		json
//	@Success		200	{object}	ContactsResponse
//	@Security		BearerAuth
//	@Router			/contacts [get]
func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	view := h.svc.Contacts()
	writeJSON(w, http.StatusOK, ContactsResponse{Selected: view.Selected, Roster: view.Roster})
}

// SyncContacts handles POST /api/contacts/sync.
//
//	@Summary		Re-merge device, remote and cached contacts
//	@Tags			contacts
//	@Produce		json
//	@Success		200	{object}	ContactsResponse
//	@Security		BearerAuth
//	@Router			/contacts/sync [post]
func (h *Handler) SyncContacts(w http.ResponseWriter, r *http.Request) {
	set, err := h.svc.SyncContacts(r.Context())
	h.writeContacts(w, "sync contacts", set, err)
}

// SelectContacts handles PUT /api/contacts/selection.
//
//	@Summary		Replace the selected emergency contacts
//	@Tags			contacts
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SelectContactsRequest	true	"Phone numbers to select"
//	@Success		200		{object}	ContactsResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/contacts/selection [put]
func (h *Handler) SelectContacts(w http.ResponseWriter, r *http.Request) {
	var req SelectContactsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	set, err := h.svc.SelectContacts(r.Context(), req.Numbers)
	h.writeContacts(w, "select contacts", set, err)
}

// writeContacts answers a contact mutation. An unreachable remote store
// still yields the fallback set, flagged as degraded.
func (h *Handler) writeContacts(w http.ResponseWriter, op string, set models.ContactSet, err error) {
	resp := ContactsResponse{Selected: set.View(), Roster: h.svc.Contacts().Roster}
	switch {
	case err == nil:
	case contacts.IsDegraded(err):
		resp.Degraded = true
		resp.Warning = err.Error()
	default:
		writeError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ReportPosition handles POST /api/position.
//
//	@Summary		Report a device location fix
//	@Tags			position
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PositionRequest	true	"Location fix"
//	@Success		200		{object}	PositionResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/position [post]
func (h *Handler) ReportPosition(w http.ResponseWriter, r *http.Request) {
	var req PositionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	accepted, err := h.svc.ReportPosition(req.Position(), req.BatteryLevel)
	if err != nil {
		writeError(w, "report position", err)
		return
	}
	writeJSON(w, http.StatusOK, PositionResponse{Accepted: accepted})
}

// SetLocationEnabled handles PUT /api/position/enabled.
//
//	@Summary		Toggle the device location capability
//	@Tags			position
//	@Accept			json
//	@Param			body	body	LocationEnabledRequest	true	"Capability state"
//	@Success		204
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/position/enabled [put]
func (h *Handler) SetLocationEnabled(w http.ResponseWriter, r *http.Request) {
	var req LocationEnabledRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	h.svc.SetLocationEnabled(*req.Enabled)
	w.WriteHeader(http.StatusNoContent)
}

// PushTranscript handles POST /api/voice/transcripts.
//
//	@Summary		Relay a speech recognizer transcript
//	@Tags			voice
//	@Accept			json
//	@Param			body	body	TranscriptRequest	true	"Transcript"
//	@Success		202
//	@Failure		400	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/voice/transcripts [post]
func (h *Handler) PushTranscript(w http.ResponseWriter, r *http.Request) {
	var req TranscriptRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := h.svc.PushTranscript(models.Transcript{Text: req.Text, Final: req.Final}); err != nil {
		writeError(w, "push transcript", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ListPrompts handles GET /api/voice/prompts.
//
//	@Summary		Pending voice SOS confirmations
//	@Tags			voice
//	@Produce		json
//	@Success		200	{array}	models.VoicePrompt
//	@Security		BearerAuth
//	@Router			/voice/prompts [get]
func (h *Handler) ListPrompts(w http.ResponseWriter, r *http.Request) {
	prompts := h.svc.PendingPrompts()
	if prompts == nil {
		prompts = []models.VoicePrompt{}
	}
	writeJSON(w, http.StatusOK, prompts)
}

// ConfirmPrompt handles POST /api/voice/prompts/{id}/confirm.
//
//	@Summary		Confirm a voice SOS prompt
//	@Tags			voice
//	@Param			id	path	string	true	"Prompt ID"
//	@Success		204
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/voice/prompts/{id}/confirm [post]
func (h *Handler) ConfirmPrompt(w http.ResponseWriter, r *http.Request) {
	h.resolvePrompt(w, r, true)
}

// CancelPrompt handles POST /api/voice/prompts/{id}/cancel.
//
//	@Summary		Cancel a voice SOS prompt
//	@Tags			voice
//	@Param			id	path	string	true	"Prompt ID"
//	@Success		204
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/voice/prompts/{id}/cancel [post]
func (h *Handler) CancelPrompt(w http.ResponseWriter, r *http.Request) {
	h.resolvePrompt(w, r, false)
}

func (h *Handler) resolvePrompt(w http.ResponseWriter, r *http.Request, confirmed bool) {
	if err := h.svc.ResolvePrompt(chi.URLParam(r, "id"), confirmed); err != nil {
		writeError(w, "resolve prompt", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ChannelStatus handles POST /api/channels/{name}/status.
//
//	@Summary		Delivery status callback from an alert channel gateway
//	@Tags			alerts
//	@Accept			json,x-www-form-urlencoded
//	@Param			name	path	string	true	"Channel name"
//	@Success		204
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Router			/channels/{name}/status [post]
func (h *Handler) ChannelStatus(w http.ResponseWriter, r *http.Request) {
	var req ChannelStatusRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if !decodeJSON(w, r, &req) {
			return
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		if err := r.ParseForm(); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid form body"))
			return
		}
		req = ChannelStatusRequest{
			MessageID: r.PostForm.Get("MessageSid"),
			Status:    r.PostForm.Get("MessageStatus"),
			Detail:    r.PostForm.Get("ErrorMessage"),
		}
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := h.svc.HandleChannelStatus(chi.URLParam(r, "name"), req.MessageID, req.Status, req.Detail); err != nil {
		writeError(w, "channel status", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListDeliveries handles GET /api/deliveries.
//
//	@Summary		Recent delivery outcomes, newest first
//	@Tags			history
//	@Produce		json
//	@Param			limit	query	int	false	"Max items (default 50, max 500)"
//	@Success		200		{array}	models.DeliveryOutcome
//	@Security		BearerAuth
//	@Router			/deliveries [get]
func (h *Handler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.RecentDeliveries(limitParam(r))
	if err != nil {
		writeError(w, "list deliveries", err)
		return
	}
	if items == nil {
		items = []models.DeliveryOutcome{}
	}
	writeJSON(w, http.StatusOK, items)
}

// ListJourneys handles GET /api/journeys.
//
//	@Summary		Recent journeys, newest first
//	@Tags			history
//	@Produce		json
//	@Param			limit	query	int	false	"Max items (default 50, max 500)"
//	@Success		200		{array}	models.JourneyRecord
//	@Security		BearerAuth
//	@Router			/journeys [get]
func (h *Handler) ListJourneys(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.RecentJourneys(limitParam(r))
	if err != nil {
		writeError(w, "list journeys", err)
		return
	}
	if items == nil {
		items = []models.JourneyRecord{}
	}
	writeJSON(w, http.StatusOK, items)
}

// ListLocations handles GET /api/locations.
//
//	@Summary		Recent location log entries, newest first
//	@Tags			history
//	@Produce		json
//	@Param			limit	query	int	false	"Max items (default 50, max 500)"
//	@Success		200		{array}	models.LocationRecord
//	@Security		BearerAuth
//	@Router			/locations [get]
func (h *Handler) ListLocations(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.RecentLocations(limitParam(r))
	if err != nil {
		writeError(w, "list locations", err)
		return
	}
	if items == nil {
		items = []models.LocationRecord{}
	}
	writeJSON(w, http.StatusOK, items)
}

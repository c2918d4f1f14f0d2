package handler

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"inbox-deals-api/internal/events"
	"inbox-deals-api/internal/models"
	"inbox-deals-api/internal/session"
	"inbox-deals-api/internal/validation"
)

// AuthInitiator starts the OAuth flow upstream.
type AuthInitiator interface {
	InitAuth(ctx context.Context, provider, redirect, email string) (string, error)
}

// Handler provides HTTP handlers for the connect flow.
type Handler struct {
	auth        AuthInitiator
	sessions    *session.Manager
	connector   *session.Connector
	events      *events.Manager
	provider    string
	redirectURL string
	maxBodySize int64
}

// Options holds optional handler settings.
type Options struct {
	Provider    string
	RedirectURL string
	MaxBodySize int64
}

// NewHandler creates a new handler instance.
func NewHandler(auth AuthInitiator, sessions *session.Manager, connector *session.Connector, ev *events.Manager, opts Options) *Handler {
	if opts.MaxBodySize == 0 {
		opts.MaxBodySize = 1 << 20
	}
	if opts.Provider == "" {
		opts.Provider = "google"
	}
	return &Handler{
		auth:        auth,
		sessions:    sessions,
		connector:   connector,
		events:      ev,
		provider:    opts.Provider,
		redirectURL: opts.RedirectURL,
		maxBodySize: opts.MaxBodySize,
	}
}

// Connect handles POST /api/connect: it proxies the OAuth initiation and
// returns the URL the client should follow.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var req models.ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	req.Email = validation.SanitizeString(req.Email)
	if err := validation.ValidateEmail(req.Email); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	authURL, err := h.auth.InitAuth(r.Context(), h.provider, h.redirectURL, req.Email)
	if err != nil {
		log.Printf("[handler] Auth initiation failed for %s: %v", req.Email, err)
		h.respondError(w, http.StatusBadGateway, "Failed to connect. Please try again.")
		return
	}

	h.respondJSON(w, http.StatusOK, models.ConnectResponse{AuthURL: authURL})
}

// CreateSession handles POST /api/sessions: the landing point after the
// OAuth redirect. A missing grant identifier is the terminal
// connection-failed condition; otherwise the connect flow is started in the
// background and the client polls the session status.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var req models.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	req.GrantID = validation.SanitizeString(req.GrantID)
	req.Email = validation.SanitizeString(req.Email)

	if err := validation.ValidateGrantID(req.GrantID); err != nil {
		h.respondError(w, http.StatusUnprocessableEntity, "We couldn't connect your email account. Please try again.")
		return
	}

	s := h.sessions.Create(req.Email, req.GrantID)

	// The flow outlives this request; its context is canceled by session
	// teardown rather than by the request ending.
	flowCtx, flowCancel := context.WithCancel(context.Background())
	s.SetFlowCancel(flowCancel)
	go h.connector.Run(flowCtx, s)

	h.respondJSON(w, http.StatusAccepted, s.Snapshot())
}

// GetSession handles GET /api/sessions/{session_id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}

	h.respondJSON(w, http.StatusOK, s.Snapshot())
}

// GetDeals handles GET /api/sessions/{session_id}/deals with an optional
// category filter.
func (h *Handler) GetDeals(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}

	all := s.Deals()

	deals := all
	if category := validation.SanitizeString(r.URL.Query().Get("category")); category != "" {
		deals = deals[:0:0]
		for _, d := range all {
			if string(d.Category) == category {
				deals = append(deals, d)
			}
		}
	}

	h.respondJSON(w, http.StatusOK, models.DealsResponse{Deals: deals, Total: len(deals)})
}

// GetNotifications handles GET /api/sessions/{session_id}/notifications.
// Notifications are transient and drained on read.
func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}

	h.respondJSON(w, http.StatusOK, models.NotificationsResponse{
		Notifications: s.DrainNotifications(),
	})
}

// SetVisibility handles POST /api/sessions/{session_id}/visibility: the
// client reports view hidden/shown transitions and the refresh loop is
// paused or resumed accordingly.
func (h *Handler) SetVisibility(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var req models.VisibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	if loop := s.Loop(); loop != nil {
		if req.Visible {
			loop.Resume()
		} else {
			loop.Pause()
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteSession handles DELETE /api/sessions/{session_id}: logout.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}

	userID := s.UserID
	h.sessions.Delete(s.ID)
	h.events.PublishSessionEnded(r.Context(), s.ID, userID)

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) *session.Session {
	sessionID := validation.SanitizeString(chi.URLParam(r, "session_id"))
	if err := validation.ValidateUUID(sessionID, "session_id"); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return nil
	}

	s := h.sessions.Get(sessionID)
	if s == nil {
		h.respondError(w, http.StatusNotFound, "session not found")
		return nil
	}

	return s
}

// respondJSON sends a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response with the given status code and message.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, models.ErrorResponse{Error: message})
}

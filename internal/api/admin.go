package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/moniker/internal/admin"
	"github.com/MikeSquared-Agency/moniker/internal/callsign"
	"github.com/MikeSquared-Agency/moniker/internal/interview"
	"github.com/MikeSquared-Agency/moniker/internal/ledger"
	"github.com/MikeSquared-Agency/moniker/internal/sentinel"
)

// Admin is implemented by admin.Service.
type Admin interface {
	ForceStartInterview(ctx context.Context, groupID, participantID string) (*interview.Session, error)
	ResetInterview(ctx context.Context, groupID, participantID string) (*interview.Session, error)
	Session(ctx context.Context, groupID, participantID string) (*interview.Session, error)
	StalledInterviews(ctx context.Context, groupID string) ([]*interview.Session, error)
	LookupIdentifier(ctx context.Context, identifier string) (callsign.Record, error)
	OverrideProtection(ctx context.Context, groupID, participantID, value string) (admin.OverrideResult, error)
	RemoveProtection(ctx context.Context, groupID, participantID string) error
	QueryProtectionStatus(ctx context.Context, groupID, participantID string) (*ledger.Entry, error)
	ListProtections(ctx context.Context, groupID string) ([]ledger.Entry, error)
	LockCurrentValue(ctx context.Context, groupID, participantID string) (ledger.Entry, error)
}

type errorBody struct {
	Error string `json:"error"`
}

type overrideRequest struct {
	Value string `json:"value"`
}

type protectionStatus struct {
	Protected bool          `json:"protected"`
	Entry     *ledger.Entry `json:"entry,omitempty"`
}

type identifierRecord struct {
	Identifier    string          `json:"identifier"`
	GroupID       string          `json:"group_id"`
	ParticipantID string          `json:"participant_id"`
	SessionID     string          `json:"session_id,omitempty"`
	Source        callsign.Source `json:"source"`
	Attempts      int             `json:"attempts"`
	AssignedAt    string          `json:"assigned_at"`
}

type adminHandler struct {
	svc Admin
}

func mountAdmin(r chi.Router, svc Admin) {
	h := &adminHandler{svc: svc}
	r.Post("/interviews/{group}/{participant}/start", h.forceStart)
	r.Post("/interviews/{group}/{participant}/reset", h.reset)
	r.Get("/interviews/{group}/stalled", h.stalled)
	r.Get("/sessions/{group}/{participant}", h.session)
	r.Get("/identifiers/{identifier}", h.identifier)
	r.Get("/protections/{group}", h.listProtections)
	r.Get("/protections/{group}/{participant}", h.protection)
	r.Put("/protections/{group}/{participant}", h.override)
	r.Delete("/protections/{group}/{participant}", h.removeProtection)
	r.Post("/protections/{group}/{participant}/lock", h.lock)
}

func pair(r *http.Request) (string, string) {
	return chi.URLParam(r, "group"), chi.URLParam(r, "participant")
}

func (h *adminHandler) forceStart(w http.ResponseWriter, r *http.Request) {
	g, p := pair(r)
	sess, err := h.svc.ForceStartInterview(r.Context(), g, p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h *adminHandler) reset(w http.ResponseWriter, r *http.Request) {
	g, p := pair(r)
	sess, err := h.svc.ResetInterview(r.Context(), g, p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *adminHandler) session(w http.ResponseWriter, r *http.Request) {
	g, p := pair(r)
	sess, err := h.svc.Session(r.Context(), g, p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *adminHandler) stalled(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.svc.StalledInterviews(r.Context(), chi.URLParam(r, "group"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions, "count": len(sessions)})
}

func (h *adminHandler) identifier(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.LookupIdentifier(r.Context(), chi.URLParam(r, "identifier"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := identifierRecord{
		Identifier:    rec.Identifier,
		GroupID:       rec.GroupID,
		ParticipantID: rec.ParticipantID,
		Source:        rec.Source,
		Attempts:      rec.Attempts,
		AssignedAt:    rec.AssignedAt.UTC().Format(time.RFC3339),
	}
	if rec.SessionID != uuid.Nil {
		out.SessionID = rec.SessionID.String()
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *adminHandler) listProtections(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.ListProtections(r.Context(), chi.URLParam(r, "group"))
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

func (h *adminHandler) protection(w http.ResponseWriter, r *http.Request) {
	g, p := pair(r)
	entry, err := h.svc.QueryProtectionStatus(r.Context(), g, p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protectionStatus{Protected: entry != nil, Entry: entry})
}

func (h *adminHandler) override(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON: " + err.Error()})
		return
	}
	g, p := pair(r)
	res, err := h.svc.OverrideProtection(r.Context(), g, p, req.Value)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *adminHandler) removeProtection(w http.ResponseWriter, r *http.Request) {
	g, p := pair(r)
	if err := h.svc.RemoveProtection(r.Context(), g, p); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *adminHandler) lock(w http.ResponseWriter, r *http.Request) {
	g, p := pair(r)
	entry, err := h.svc.LockCurrentValue(r.Context(), g, p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, sentinel.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, sentinel.ErrInvalidState):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, sentinel.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		slog.Error("admin request failed", "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

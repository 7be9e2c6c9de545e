package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	domainauth "github.com/srbenoit/mathops-sub032/internal/domain/auth"
)

// SessionAdmin is the subset of the auth service that edits identities.
type SessionAdmin interface {
	ActAsUser(ctx context.Context, sessionID, userID string, role domainauth.Role) (domainauth.Session, error)
	SwitchUser(ctx context.Context, sessionID, userID string, role domainauth.Role) (domainauth.Session, error)
	ListSessions(requesterID string) ([]domainauth.Session, error)
}

// SessionEditor edits fields of a live session in place.
type SessionEditor interface {
	SetEffectiveRole(id string, role domainauth.Role) (domainauth.Session, error)
	ClearActAs(id string) (domainauth.Session, error)
	SetTimeOffset(id string, offsetMillis int64) (domainauth.Session, error)
}

// SessionHandlers serves the caller's own session and the admin session list.
type SessionHandlers struct {
	Admin SessionAdmin
	Store SessionEditor
}

type actAsRequest struct {
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role,omitempty"`
}

type timeOffsetRequest struct {
	OffsetMillis int64 `json:"offset_ms"`
}

// Whoami returns the caller's session.
// GET /api/session.
func (h *SessionHandlers) Whoami(w http.ResponseWriter, r *http.Request) {
	sess, _ := GetUserSessionFromContext(r.Context())
	WriteJSON(w, http.StatusOK, sessionView(sess))
}

// ActAs delegates the caller's session to another user and/or role.
// POST /api/session/act-as.
func (h *SessionHandlers) ActAs(w http.ResponseWriter, r *http.Request) {
	var req actAsRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	role, ok := parseOptionalRole(w, req.Role)
	if !ok {
		return
	}
	sess, _ := GetUserSessionFromContext(r.Context())
	updated, err := h.Admin.ActAsUser(r.Context(), sess.ID, req.UserID, role)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, sessionView(updated))
}

// ClearActAs drops every act-as override.
// DELETE /api/session/act-as.
func (h *SessionHandlers) ClearActAs(w http.ResponseWriter, r *http.Request) {
	sess, _ := GetUserSessionFromContext(r.Context())
	updated, err := h.Store.ClearActAs(sess.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, sessionView(updated))
}

// SetRole changes only the effective role.
// PUT /api/session/role.
func (h *SessionHandlers) SetRole(w http.ResponseWriter, r *http.Request) {
	var req actAsRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Role == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_request", Err: errors.New("role is required")})
		return
	}
	role, ok := parseOptionalRole(w, req.Role)
	if !ok {
		return
	}
	sess, _ := GetUserSessionFromContext(r.Context())
	updated, err := h.Store.SetEffectiveRole(sess.ID, role)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, sessionView(updated))
}

// SetUser switches the session to a different identity outright.
// PUT /api/session/user.
func (h *SessionHandlers) SetUser(w http.ResponseWriter, r *http.Request) {
	var req actAsRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_request", Err: errors.New("user_id is required")})
		return
	}
	role, ok := parseOptionalRole(w, req.Role)
	if !ok {
		return
	}
	sess, _ := GetUserSessionFromContext(r.Context())
	updated, err := h.Admin.SwitchUser(r.Context(), sess.ID, req.UserID, role)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, sessionView(updated))
}

// SetTimeOffset shifts the session's view of the current time.
// PUT /api/session/time-offset.
func (h *SessionHandlers) SetTimeOffset(w http.ResponseWriter, r *http.Request) {
	var req timeOffsetRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	sess, _ := GetUserSessionFromContext(r.Context())
	updated, err := h.Store.SetTimeOffset(sess.ID, req.OffsetMillis)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, sessionView(updated))
}

// List returns every live session.
// GET /api/admin/sessions.
func (h *SessionHandlers) List(w http.ResponseWriter, r *http.Request) {
	sess, _ := GetUserSessionFromContext(r.Context())
	list, err := h.Admin.ListSessions(sess.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]sessionJSON, 0, len(list))
	for _, s := range list {
		out = append(out, sessionView(s))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"sessions": out, "count": len(out)})
}

// sessionJSON adds the derived effective fields to a session.
type sessionJSON struct {
	domainauth.Session
	EffectiveUserID string          `json:"effective_user_id"`
	EffectiveRole   domainauth.Role `json:"effective_role"`
}

func sessionView(s domainauth.Session) sessionJSON {
	return sessionJSON{Session: s, EffectiveUserID: s.EffectiveUserID(), EffectiveRole: s.EffectiveRole()}
}

func parseOptionalRole(w http.ResponseWriter, raw string) (domainauth.Role, bool) {
	if raw == "" {
		return "", true
	}
	role, err := domainauth.ParseRole(raw)
	if err != nil {
		writeServiceError(w, fmt.Errorf("%w: %q", err, raw))
		return "", false
	}
	return role, true
}

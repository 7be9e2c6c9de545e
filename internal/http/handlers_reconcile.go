package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/srbenoit/mathops-sub032/internal/domain/model"
	"github.com/srbenoit/mathops-sub032/internal/service"
)

var errReconcileDisabled = errors.New("live registration source is not configured")

// ReconcileRunner runs reconciliation and gate probes.
type ReconcileRunner interface {
	Reconcile(ctx context.Context, req service.ReconcileRequest) (*service.ReconcileReport, error)
	ProbeSource(ctx context.Context) error
}

// GateController exposes the live registration gate.
type GateController interface {
	Status() service.GateStatus
	MarkUp()
}

// HoldManager lists and clears student holds.
type HoldManager interface {
	ListHolds(ctx context.Context, studentID string) ([]*model.Hold, error)
	ClearHolds(ctx context.Context, studentID string, holdIDs ...string) ([]string, error)
}

// ReconcileHandlers serves operator endpoints for reconciliation, the gate
// and holds. Reconciler and Gate are nil when no live source is configured.
type ReconcileHandlers struct {
	Reconciler ReconcileRunner
	Gate       GateController
	Holds      HoldManager
	Logger     *slog.Logger
}

func (h *ReconcileHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func writeDisabled(w http.ResponseWriter) {
	WriteError(w, ErrorParams{Code: http.StatusServiceUnavailable, ErrCode: "reconcile_disabled", Err: errReconcileDisabled})
}

// Reconcile runs one pass for a student. Skips and source outages come back
// as a 200 report; store failures as an error.
// POST /api/admin/reconcile/{studentID}?term=<optional_term>.
func (h *ReconcileHandlers) Reconcile(w http.ResponseWriter, r *http.Request) {
	if h.Reconciler == nil {
		writeDisabled(w)
		return
	}
	studentID := strings.TrimSpace(r.PathValue("studentID"))
	req := service.ReconcileRequest{StudentID: studentID, TermID: r.URL.Query().Get("term")}

	report, err := h.Reconciler.Reconcile(r.Context(), req)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "reconcile request failed", "student_id", studentID, "error", err)
		if report == nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  "reconcile_failed",
			"report": report,
		})
		return
	}
	WriteJSON(w, http.StatusOK, report)
}

// GateStatus returns the gate state.
// GET /api/admin/gate.
func (h *ReconcileHandlers) GateStatus(w http.ResponseWriter, _ *http.Request) {
	if h.Gate == nil {
		writeDisabled(w)
		return
	}
	WriteJSON(w, http.StatusOK, h.Gate.Status())
}

// ProbeGate pings the source and reopens the gate on success.
// POST /api/admin/gate/probe.
func (h *ReconcileHandlers) ProbeGate(w http.ResponseWriter, r *http.Request) {
	if h.Reconciler == nil || h.Gate == nil {
		writeDisabled(w)
		return
	}
	if err := h.Reconciler.ProbeSource(r.Context()); err != nil {
		h.logger().WarnContext(r.Context(), "gate probe failed", "error", err)
		WriteJSON(w, http.StatusServiceUnavailable, h.Gate.Status())
		return
	}
	WriteJSON(w, http.StatusOK, h.Gate.Status())
}

// ResetGate reopens the gate without probing.
// POST /api/admin/gate/reset.
func (h *ReconcileHandlers) ResetGate(w http.ResponseWriter, r *http.Request) {
	if h.Gate == nil {
		writeDisabled(w)
		return
	}
	sess, _ := GetUserSessionFromContext(r.Context())
	h.Gate.MarkUp()
	h.logger().InfoContext(r.Context(), "gate reset by operator", "user_id", sess.UserID)
	WriteJSON(w, http.StatusOK, h.Gate.Status())
}

// ListHolds returns a student's holds.
// GET /api/admin/students/{studentID}/holds.
func (h *ReconcileHandlers) ListHolds(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("studentID")
	holds, err := h.Holds.ListHolds(r.Context(), studentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if holds == nil {
		holds = []*model.Hold{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"student_id": studentID, "holds": holds})
}

// ClearHold removes one hold.
// DELETE /api/admin/students/{studentID}/holds/{holdID}.
func (h *ReconcileHandlers) ClearHold(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("studentID")
	holdID := r.PathValue("holdID")
	removed, err := h.Holds.ClearHolds(r.Context(), studentID, holdID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if len(removed) == 0 {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: errors.New("hold not found")})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"student_id": studentID, "removed": removed})
}

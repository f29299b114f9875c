// Package handler exposes mirror synchronization over HTTP: compute the diff
// a verified session is entitled to apply, then apply it, optionally with
// operator-supplied conflict resolutions.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mirrorgate/internal/audit"
	bmodels "mirrorgate/internal/bridge/models"
	"mirrorgate/internal/mirror/models"
	id "mirrorgate/pkg/domain"
	dErrors "mirrorgate/pkg/domain-errors"
	"mirrorgate/pkg/platform/httputil"
	"mirrorgate/pkg/requestcontext"
)

// Synchronizer is the mirror synchronizer as the HTTP layer sees it.
type Synchronizer interface {
	ComputeDiff(ctx context.Context, sessionID id.SessionID) (*models.Diff, error)
	ApplyDiff(ctx context.Context, session *bmodels.Session, diff *models.Diff) (*models.SyncResult, error)
}

// SessionSource resolves the session authorizing a sync.
type SessionSource interface {
	Session(ctx context.Context, sessionID id.SessionID) (*bmodels.Session, error)
}

// Auditor receives the event trail.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event)
}

// Handler wires sync endpoints to the synchronizer.
type Handler struct {
	sync     Synchronizer
	sessions SessionSource
	auditor  Auditor
	logger   *slog.Logger
}

// New constructs a sync handler with its dependencies.
func New(sync Synchronizer, sessions SessionSource, auditor Auditor, logger *slog.Logger) *Handler {
	return &Handler{sync: sync, sessions: sessions, auditor: auditor, logger: logger}
}

// Register mounts sync endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/sync/sessions/{sessionID}/diff", h.HandleDiff)
	r.Post("/sync/sessions/{sessionID}/apply", h.HandleApply)
}

// HandleDiff handles GET /sync/sessions/{sessionID}/diff requests. The diff
// is recomputed from live snapshots; only a verified session may look.
func (h *Handler) HandleDiff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	session, ok := h.verifiedSession(w, r)
	if !ok {
		return
	}

	diff, err := h.sync.ComputeDiff(ctx, session.ID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromDiff(diff))
}

// HandleApply handles POST /sync/sessions/{sessionID}/apply requests.
// Resolutions for two-sided conflicts are operator-only.
func (h *Handler) HandleApply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	session, ok := h.verifiedSession(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[ApplyRequest](w, r, h.logger)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if len(req.Resolutions) > 0 && !requestcontext.Operator(ctx) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "manual resolution requires operator privileges"))
		return
	}

	diff, err := h.sync.ComputeDiff(ctx, session.ID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := req.Resolve(diff); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.sync.ApplyDiff(ctx, session, diff)
	if err != nil {
		h.audit(ctx, session, "apply", "deny", string(dErrors.CodeOf(err)))
		httputil.WriteError(w, err)
		return
	}

	h.audit(ctx, session, "apply", "accept", "")
	h.logger.InfoContext(ctx, "sync applied",
		"request_id", requestcontext.RequestID(ctx),
		"session_id", session.ID,
		"applied", result.Applied,
		"replayed", result.Replayed,
	)
	httputil.WriteJSON(w, http.StatusOK, FromResult(result))
}

// verifiedSession loads the session from the path and rejects anything not
// in the verified state. Status detail beyond that is not leaked here.
func (h *Handler) verifiedSession(w http.ResponseWriter, r *http.Request) (*bmodels.Session, bool) {
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	session, err := h.sessions.Session(r.Context(), sessionID)
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	if session.Status != bmodels.StatusVerified {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "session invalid for sync"))
		return nil, false
	}
	return session, true
}

func (h *Handler) audit(ctx context.Context, session *bmodels.Session, action, decision, reason string) {
	if h.auditor == nil {
		return
	}
	h.auditor.Emit(ctx, audit.Event{
		SubjectID: session.SubjectID,
		SessionID: session.ID,
		Category:  audit.CategorySync,
		Action:    action,
		Decision:  decision,
		Reason:    reason,
	})
}

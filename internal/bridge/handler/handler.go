// Package handler exposes the bridge session lifecycle over HTTP: create a
// pairing session, submit cross-device proof, cancel, and poll status.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mirrorgate/internal/audit"
	bmodels "mirrorgate/internal/biometric/models"
	"mirrorgate/internal/bridge"
	"mirrorgate/internal/bridge/models"
	"mirrorgate/internal/device"
	dmodels "mirrorgate/internal/device/models"
	id "mirrorgate/pkg/domain"
	dErrors "mirrorgate/pkg/domain-errors"
	"mirrorgate/pkg/platform/httputil"
	"mirrorgate/pkg/requestcontext"
)

// Service is the bridge session manager as the HTTP layer sees it.
type Service interface {
	CreateSession(ctx context.Context, subjectID id.SubjectID, deviceID id.DeviceID) (*models.Session, error)
	EncodeQR(session *models.Session) (string, error)
	DecodeQR(ctx context.Context, payload string) (*bridge.QRClaims, error)
	SubmitProof(ctx context.Context, sessionID id.SessionID, challengeEcho string, results []*bmodels.VerificationResult, device *dmodels.Evaluation) (*bridge.Outcome, error)
	Cancel(ctx context.Context, sessionID id.SessionID) error
	Session(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
}

// DeviceRegistry evaluates the presenting device.
type DeviceRegistry interface {
	Fingerprint(signals dmodels.RawSignals) *dmodels.Fingerprint
	Evaluate(ctx context.Context, subjectID id.SubjectID, presented *dmodels.Fingerprint) (*dmodels.Evaluation, error)
}

// Verifier runs the modality checks for a proof submission.
type Verifier interface {
	VerifyAll(ctx context.Context, subjectID id.SubjectID, samples []bmodels.RawSample) ([]*bmodels.VerificationResult, error)
}

// Auditor receives the event trail.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event)
}

// Handler wires bridge endpoints to the session manager and its collaborators.
type Handler struct {
	service  Service
	devices  DeviceRegistry
	verifier Verifier
	auditor  Auditor
	logger   *slog.Logger
}

// New constructs a bridge handler with its dependencies.
func New(service Service, devices DeviceRegistry, verifier Verifier, auditor Auditor, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		devices:  devices,
		verifier: verifier,
		auditor:  auditor,
		logger:   logger,
	}
}

// Register mounts bridge endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/bridge/sessions", h.HandleCreate)
	r.Get("/bridge/sessions/{sessionID}", h.HandleStatus)
	r.Post("/bridge/sessions/{sessionID}/proof", h.HandleProof)
	r.Post("/bridge/sessions/{sessionID}/cancel", h.HandleCancel)
}

// HandleCreate handles POST /bridge/sessions requests.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[CreateSessionRequest](w, r, h.logger)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	subjectID := req.ParsedSubjectID()

	evaluation, err := h.devices.Evaluate(ctx, subjectID, h.devices.Fingerprint(req.Device))
	if err != nil {
		h.audit(ctx, subjectID, id.SessionID{}, audit.CategoryDevice, "evaluate", "deny", string(dErrors.CodeOf(err)))
		httputil.WriteError(w, err)
		return
	}

	session, err := h.service.CreateSession(ctx, subjectID, evaluation.MatchedDeviceID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	payload, err := h.service.EncodeQR(session)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.audit(ctx, subjectID, session.ID, audit.CategorySession, "create", "accept", "")
	h.logger.InfoContext(ctx, "bridge session created",
		"request_id", requestcontext.RequestID(ctx),
		"subject_id", subjectID,
		"session_id", session.ID,
		"new_device", evaluation.IsNewDevice,
	)
	httputil.WriteJSON(w, http.StatusCreated, FromSessionWithQR(session, payload))
}

// HandleProof handles POST /bridge/sessions/{sessionID}/proof requests. The
// completing device proves possession of the QR payload; the sealed claims
// inside it carry the device challenge the session was minted with.
func (h *Handler) HandleProof(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[ProofRequest](w, r, h.logger)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	claims, err := h.service.DecodeQR(ctx, req.QRPayload)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if claims.SessionID != sessionID.String() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "payload does not belong to this session"))
		return
	}

	session, err := h.service.Session(ctx, sessionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	evaluation, err := h.devices.Evaluate(ctx, session.SubjectID, h.devices.Fingerprint(req.Device))
	if err != nil && !errors.Is(err, device.ErrStepUpRequired) {
		httputil.WriteError(w, err)
		return
	}

	results, err := h.verifier.VerifyAll(ctx, session.SubjectID, req.Samples)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	outcome, err := h.service.SubmitProof(ctx, sessionID, claims.DeviceChallenge, results, evaluation)
	if err != nil {
		h.audit(ctx, session.SubjectID, sessionID, audit.CategorySession, "proof", "deny", string(dErrors.CodeOf(err)))
		httputil.WriteError(w, err)
		return
	}

	decision := "deny"
	if outcome.Decision.Admit {
		decision = "accept"
	}
	h.audit(ctx, session.SubjectID, sessionID, audit.CategoryVerification, "proof", decision, string(outcome.Decision.Reason))
	h.logger.InfoContext(ctx, "proof settled",
		"request_id", requestcontext.RequestID(ctx),
		"subject_id", session.SubjectID,
		"session_id", sessionID,
		"status", outcome.Session.Status,
		"reason", outcome.Decision.Reason,
	)
	httputil.WriteJSON(w, http.StatusOK, FromOutcome(outcome))
}

// HandleCancel handles POST /bridge/sessions/{sessionID}/cancel requests.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Cancel(ctx, sessionID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.audit(ctx, id.SubjectID{}, sessionID, audit.CategorySession, "cancel", "accept", "")
	w.WriteHeader(http.StatusNoContent)
}

// HandleStatus handles GET /bridge/sessions/{sessionID} requests.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	session, err := h.service.Session(ctx, sessionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSession(session, requestcontext.Now(ctx)))
}

func (h *Handler) audit(ctx context.Context, subjectID id.SubjectID, sessionID id.SessionID, category audit.Category, action, decision, reason string) {
	if h.auditor == nil {
		return
	}
	h.auditor.Emit(ctx, audit.Event{
		SubjectID: subjectID,
		SessionID: sessionID,
		Category:  category,
		Action:    action,
		Decision:  decision,
		Reason:    reason,
	})
}

// Package handler exposes enrollment and single-modality verification over
// HTTP. Responses carry diagnostics, scores and verdicts; raw samples and
// feature vectors never leave the engine boundary.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mirrorgate/internal/audit"
	"mirrorgate/internal/biometric/models"
	id "mirrorgate/pkg/domain"
	dErrors "mirrorgate/pkg/domain-errors"
	"mirrorgate/pkg/platform/httputil"
	"mirrorgate/pkg/requestcontext"
)

// Engine is one modality engine as the HTTP layer sees it.
type Engine interface {
	Modality() id.Modality
	Enroll(ctx context.Context, subjectID id.SubjectID, samples []models.RawSample) (*models.EnrollmentDiagnostics, error)
	Verify(ctx context.Context, subjectID id.SubjectID, sample models.RawSample) (*models.VerificationResult, error)
}

// Auditor receives the event trail.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event)
}

// Handler wires biometric endpoints to the modality engines.
type Handler struct {
	engines map[id.Modality]Engine
	auditor Auditor
	logger  *slog.Logger
}

// New constructs a biometric handler over the given engines.
func New(engines []Engine, auditor Auditor, logger *slog.Logger) *Handler {
	byModality := make(map[id.Modality]Engine, len(engines))
	for _, engine := range engines {
		byModality[engine.Modality()] = engine
	}
	return &Handler{engines: byModality, auditor: auditor, logger: logger}
}

// Register mounts biometric endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/biometric/enroll", h.HandleEnroll)
	r.Post("/biometric/verify", h.HandleVerify)
}

// HandleEnroll handles POST /biometric/enroll requests.
func (h *Handler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[EnrollRequest](w, r, h.logger)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	engine, ok := h.engines[req.ParsedModality()]
	if !ok {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeInvalidInput, "no engine for modality %q", req.Modality))
		return
	}

	diag, err := engine.Enroll(ctx, req.ParsedSubjectID(), req.Samples)
	if err != nil {
		h.audit(ctx, req.ParsedSubjectID(), audit.CategoryEnrollment, "enroll", "deny", string(dErrors.CodeOf(err)))
		h.logger.WarnContext(ctx, "enrollment rejected",
			"request_id", requestcontext.RequestID(ctx),
			"subject_id", req.ParsedSubjectID(),
			"modality", req.Modality,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.audit(ctx, req.ParsedSubjectID(), audit.CategoryEnrollment, "enroll", "accept", "")
	h.logger.InfoContext(ctx, "subject enrolled",
		"request_id", requestcontext.RequestID(ctx),
		"subject_id", req.ParsedSubjectID(),
		"modality", req.Modality,
		"samples", diag.SamplesAccepted,
	)
	httputil.WriteJSON(w, http.StatusCreated, FromDiagnostics(diag))
}

// HandleVerify handles POST /biometric/verify requests. This is the direct
// single-modality check for the primary device; bridge sessions go through
// the proof endpoint instead.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[VerifyRequest](w, r, h.logger)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	engine, ok := h.engines[req.Sample.Modality]
	if !ok {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeInvalidInput, "no engine for modality %q", req.Sample.Modality))
		return
	}

	result, err := engine.Verify(ctx, req.ParsedSubjectID(), req.Sample)
	if err != nil {
		h.audit(ctx, req.ParsedSubjectID(), audit.CategoryVerification, "verify", "deny", string(dErrors.CodeOf(err)))
		httputil.WriteError(w, err)
		return
	}

	decision := "deny"
	if result.Passed {
		decision = "accept"
	}
	h.audit(ctx, req.ParsedSubjectID(), audit.CategoryVerification, "verify", decision, "")
	h.logger.InfoContext(ctx, "verification completed",
		"request_id", requestcontext.RequestID(ctx),
		"subject_id", req.ParsedSubjectID(),
		"modality", result.Modality,
		"passed", result.Passed,
	)
	httputil.WriteJSON(w, http.StatusOK, FromVerification(result))
}

func (h *Handler) audit(ctx context.Context, subjectID id.SubjectID, category audit.Category, action, decision, reason string) {
	if h.auditor == nil {
		return
	}
	h.auditor.Emit(ctx, audit.Event{
		SubjectID: subjectID,
		Category:  category,
		Action:    action,
		Decision:  decision,
		Reason:    reason,
	})
}

package handler

import (
	"time"

	"mirrorgate/internal/bridge"
	"mirrorgate/internal/bridge/models"
)

// CreateSessionResponse is the HTTP response for POST /bridge/sessions. The
// qr_payload is opaque: sealed claims, safe to render as a QR code in public.
type CreateSessionResponse struct {
	SessionID string    `json:"session_id"`
	QRPayload string    `json:"qr_payload"`
	ExpiresAt time.Time `json:"expires_at"`
}

// FromSessionWithQR converts a fresh session and its pairing payload to an
// HTTP response.
func FromSessionWithQR(session *models.Session, payload string) *CreateSessionResponse {
	return &CreateSessionResponse{
		SessionID: session.ID.String(),
		QRPayload: payload,
		ExpiresAt: session.ExpiresAt,
	}
}

// SessionResponse is the HTTP response for GET /bridge/sessions/{id}.
type SessionResponse struct {
	SessionID string    `json:"session_id"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
}

// FromSession converts a session to a status response. A pending session
// past its window reads as expired even before the store catches up.
func FromSession(session *models.Session, now time.Time) *SessionResponse {
	status := session.Status
	if status == models.StatusPending && session.Expired(now) {
		status = models.StatusExpired
	}
	return &SessionResponse{
		SessionID: session.ID.String(),
		Status:    string(status),
		ExpiresAt: session.ExpiresAt,
	}
}

// ProofResponse is the HTTP response for POST /bridge/sessions/{id}/proof.
// Reason is a category; per-modality verdicts and scores are never exposed.
type ProofResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Admitted  bool   `json:"admitted"`
	Reason    string `json:"reason"`
}

// FromOutcome converts a settled proof outcome to an HTTP response.
func FromOutcome(outcome *bridge.Outcome) *ProofResponse {
	return &ProofResponse{
		SessionID: outcome.Session.ID.String(),
		Status:    string(outcome.Session.Status),
		Admitted:  outcome.Decision.Admit,
		Reason:    string(outcome.Decision.Reason),
	}
}

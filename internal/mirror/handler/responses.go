package handler

import (
	"mirrorgate/internal/mirror/models"
)

// DiffResponse is the HTTP response for GET /sync/sessions/{id}/diff.
type DiffResponse struct {
	SessionID string          `json:"session_id"`
	Digest    string          `json:"digest"`
	Entries   []EntryResponse `json:"entries"`
}

// EntryResponse is one disagreeing key. Mirror values are profile data, not
// biometric material, so both sides are shown for operator resolution.
type EntryResponse struct {
	Key        string `json:"key"`
	AValue     string `json:"a_value,omitempty"`
	BValue     string `json:"b_value,omitempty"`
	APresent   bool   `json:"a_present"`
	BPresent   bool   `json:"b_present"`
	Conflict   bool   `json:"conflict"`
	Resolution string `json:"resolution,omitempty"`
}

// FromDiff converts a diff to an HTTP response.
func FromDiff(diff *models.Diff) *DiffResponse {
	resp := &DiffResponse{
		SessionID: diff.SessionID.String(),
		Digest:    diff.Digest(),
		Entries:   make([]EntryResponse, 0, len(diff.Entries)),
	}
	for i := range diff.Entries {
		entry := &diff.Entries[i]
		resp.Entries = append(resp.Entries, EntryResponse{
			Key:        entry.Key,
			AValue:     entry.AValue,
			BValue:     entry.BValue,
			APresent:   entry.APresent,
			BPresent:   entry.BPresent,
			Conflict:   entry.Conflict(),
			Resolution: string(entry.Resolution),
		})
	}
	return resp
}

// ApplyResponse is the HTTP response for POST /sync/sessions/{id}/apply.
type ApplyResponse struct {
	Digest   string `json:"digest"`
	Applied  int    `json:"applied"`
	Replayed bool   `json:"replayed"`
}

// FromResult converts a sync result to an HTTP response.
func FromResult(result *models.SyncResult) *ApplyResponse {
	return &ApplyResponse{
		Digest:   result.Digest,
		Applied:  result.Applied,
		Replayed: result.Replayed,
	}
}

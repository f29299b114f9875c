package handler

import (
	"mirrorgate/internal/mirror/models"
	dErrors "mirrorgate/pkg/domain-errors"
)

// ApplyRequest is the HTTP request body for POST /sync/sessions/{id}/apply.
// Resolutions maps conflicting keys to "use_a" or "use_b".
type ApplyRequest struct {
	Resolutions map[string]string `json:"resolutions,omitempty"`
}

// Validate checks the resolution values.
func (r *ApplyRequest) Validate() error {
	for key, resolution := range r.Resolutions {
		switch models.Resolution(resolution) {
		case models.ResolutionUseA, models.ResolutionUseB:
		default:
			return dErrors.Newf(dErrors.CodeInvalidInput, "resolution for %q must be use_a or use_b", key)
		}
	}
	return nil
}

// Resolve stamps the requested resolutions onto the diff. A resolution for a
// key the diff does not contain is an error: the operator resolved against a
// stale view of the mirrors.
func (r *ApplyRequest) Resolve(diff *models.Diff) error {
	byKey := make(map[string]*models.Entry, len(diff.Entries))
	for i := range diff.Entries {
		byKey[diff.Entries[i].Key] = &diff.Entries[i]
	}
	for key, resolution := range r.Resolutions {
		entry, ok := byKey[key]
		if !ok {
			return dErrors.Newf(dErrors.CodeConflict, "key %q is not in the current diff", key)
		}
		entry.Resolution = models.Resolution(resolution)
	}
	return nil
}

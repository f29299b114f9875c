// Package models defines mirror diffs and sync results.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	id "mirrorgate/pkg/domain"
)

// Resolution says which side's value wins for one diff entry. Empty means
// unresolved; under the manual conflict policy an unresolved two-sided
// conflict blocks the apply.
type Resolution string

const (
	ResolutionUseA Resolution = "use_a"
	ResolutionUseB Resolution = "use_b"
)

// Entry is one disagreeing key. A missing value on one side is recorded as
// an empty string with Present=false for that side.
type Entry struct {
	Key        string
	AValue     string
	BValue     string
	APresent   bool
	BPresent   bool
	Resolution Resolution
}

// Conflict reports whether both mirrors hold a value for the key and the
// values differ. One-sided presence is drift, not conflict.
func (e *Entry) Conflict() bool {
	return e.APresent && e.BPresent && e.AValue != e.BValue
}

// ResolvedValue returns the winning value and whether the key should exist
// after the apply.
func (e *Entry) ResolvedValue() (string, bool) {
	switch e.Resolution {
	case ResolutionUseA:
		return e.AValue, e.APresent
	case ResolutionUseB:
		return e.BValue, e.BPresent
	}
	return "", false
}

// Diff is the ordered set of disagreements between two mirror snapshots,
// computed once per session and consumed exactly once.
type Diff struct {
	SessionID id.SessionID
	Entries   []Entry
}

// Digest is a stable content hash over the diff's entries and resolutions.
// Replay detection keys on it: two applies of the same content are one
// apply.
func (d *Diff) Digest() string {
	h := sha256.New()
	for _, e := range d.Entries {
		fmt.Fprintf(h, "%s\x00%s\x00%t\x00%s\x00%t\x00%s\n",
			e.Key, e.AValue, e.APresent, e.BValue, e.BPresent, e.Resolution)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SyncResult reports a completed apply.
type SyncResult struct {
	Digest   string
	Applied  int
	Replayed bool
}

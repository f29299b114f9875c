// Package audit captures the security event trail. Events carry category
// and verdict only; raw biometric data, feature vectors and scores never
// enter the trail.
package audit

import (
	"time"

	id "mirrorgate/pkg/domain"
)

// Category groups events by subsystem.
type Category string

const (
	CategoryEnrollment   Category = "enrollment"
	CategoryVerification Category = "verification"
	CategoryDevice       Category = "device"
	CategorySession      Category = "session"
	CategorySync         Category = "sync"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time    `json:"timestamp"`
	SubjectID id.SubjectID `json:"subject_id"`
	SessionID id.SessionID `json:"session_id,omitempty"`
	Category  Category     `json:"category"`
	Action    string       `json:"action"`
	Decision  string       `json:"decision,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	Operator  string       `json:"operator,omitempty"`
}

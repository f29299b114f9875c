// Package models defines device fingerprint records and evaluation results.
package models

import (
	"time"

	id "mirrorgate/pkg/domain"
)

// RawSignals is what a client presents about its own hardware and software
// environment. Individual signals may be absent; matching is weighted, not
// all-or-nothing.
type RawSignals struct {
	UserAgent        string `json:"user_agent"`
	HardwareID       string `json:"hardware_id"`
	ScreenResolution string `json:"screen_resolution"`
	Timezone         string `json:"timezone"`
	Language         string `json:"language"`
	NetworkClass     string `json:"network_class"`
}

// Fingerprint is a registered device. Components holds the per-signal hashes
// so a presented device can be compared component-wise; ComponentHash is the
// stable identity over all of them.
type Fingerprint struct {
	DeviceID      id.DeviceID
	SubjectID     id.SubjectID
	ComponentHash string
	Components    map[string]string
	DisplayName   string
	FirstSeen     time.Time
	LastSeen      time.Time
	TrustLevel    float64
}

// Evaluation is the registry's verdict on a presented device.
type Evaluation struct {
	Trusted         bool
	TrustLevel      float64
	IsNewDevice     bool
	RequiresStepUp  bool
	MatchedDeviceID id.DeviceID
}

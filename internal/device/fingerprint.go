// Package device fingerprints client devices and tracks per-subject trust
// over repeated sightings.
package device

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/mssola/useragent"

	"mirrorgate/internal/device/models"
)

// Component names in weight order. Hardware identity dominates; ambient
// signals like timezone and language only nudge the match.
const (
	componentHardware = "hardware"
	componentBrowser  = "browser"
	componentScreen   = "screen"
	componentTimezone = "timezone"
	componentLanguage = "language"
	componentNetwork  = "network"
)

var componentWeights = map[string]float64{
	componentHardware: 0.35,
	componentBrowser:  0.20,
	componentScreen:   0.15,
	componentTimezone: 0.10,
	componentLanguage: 0.10,
	componentNetwork:  0.10,
}

// normalizeUserAgent reduces a user-agent string to browser name, major
// version and OS, so routine minor-version updates do not change the
// fingerprint while a browser or OS switch does.
func normalizeUserAgent(ua string) string {
	if ua == "" {
		return "unknown"
	}
	parsed := useragent.New(ua)
	name, version := parsed.Browser()
	major := version
	if i := strings.Index(version, "."); i >= 0 {
		major = version[:i]
	}
	return strings.ToLower(strings.TrimSpace(fmt.Sprintf("%s/%s %s", name, major, parsed.OS())))
}

// ParseUserAgent renders a human-readable device name for audit records and
// step-up prompts, never for matching.
func ParseUserAgent(ua string) string {
	if ua == "" {
		return "Unknown Device"
	}
	parsed := useragent.New(ua)
	name, _ := parsed.Browser()
	platform := parsed.OSInfo().Name
	if platform == "" {
		platform = parsed.Platform()
	}
	if name == "" {
		name = "Unknown Browser"
	}
	if platform == "" {
		platform = "Unknown Platform"
	}
	return strings.TrimSpace(fmt.Sprintf("%s on %s", name, platform))
}

func hashComponent(value string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(value))))
	return hex.EncodeToString(sum[:])
}

// components hashes each raw signal independently. Absent signals still get a
// component entry so that "absent on both sides" counts as a match while
// "absent on one side" counts against it.
func components(signals models.RawSignals) map[string]string {
	return map[string]string{
		componentHardware: hashComponent(signals.HardwareID),
		componentBrowser:  hashComponent(normalizeUserAgent(signals.UserAgent)),
		componentScreen:   hashComponent(signals.ScreenResolution),
		componentTimezone: hashComponent(signals.Timezone),
		componentLanguage: hashComponent(signals.Language),
		componentNetwork:  hashComponent(signals.NetworkClass),
	}
}

// componentHash folds the per-component hashes into one stable identity.
func componentHash(comps map[string]string) string {
	names := make([]string, 0, len(comps))
	for name := range comps {
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{':'})
		h.Write([]byte(comps[name]))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// similarity is the weighted share of components that match exactly.
func similarity(a, b map[string]string) float64 {
	var score float64
	for name, weight := range componentWeights {
		if a[name] != "" && a[name] == b[name] {
			score += weight
		}
	}
	return score
}

package fetch

import (
	"bytes"
	"strings"
)

// ChallengeDetector recognizes anti-bot interstitial pages by their markers.
type ChallengeDetector struct {
	markers [][]byte
}

// NewChallengeDetector builds a detector for the given page markers.
// Empty markers are dropped; matching is case-insensitive.
func NewChallengeDetector(markers ...string) *ChallengeDetector {
	lowered := make([][]byte, 0, len(markers))
	for _, m := range markers {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		lowered = append(lowered, bytes.ToLower([]byte(m)))
	}
	return &ChallengeDetector{markers: lowered}
}

// IsChallenge reports whether the body is an interstitial challenge page.
func (d *ChallengeDetector) IsChallenge(body []byte) bool {
	if d == nil || len(body) == 0 || len(d.markers) == 0 {
		return false
	}
	lowerBody := bytes.ToLower(body)
	for _, m := range d.markers {
		if bytes.Contains(lowerBody, m) {
			return true
		}
	}
	return false
}

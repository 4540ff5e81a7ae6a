package requests

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var durationRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)(?:\s*(?:-|–|to)\s*(\d+(?:\.\d+)?))?\s*(seconds?|secs?|minutes?|mins?|hours?|hrs?|h|days?|d)\b`)

const (
	rankImmediate   = 0.0
	rankUnparsable  = math.MaxFloat64 / 2
	rankUnspecified = math.MaxFloat64
)

// etaRank orders eta strings: "immediate" first, then explicit durations by their
// upper bound, then explicit text that cannot be parsed, then unspecified.
func etaRank(eta string) float64 {
	s := strings.TrimSpace(eta)
	if s == "" {
		return rankUnspecified
	}
	if strings.EqualFold(s, "immediate") || strings.EqualFold(s, "immediately") {
		return rankImmediate
	}
	m := durationRe.FindStringSubmatch(s)
	if m == nil {
		return rankUnparsable
	}
	upper := m[1]
	if m[2] != "" {
		upper = m[2]
	}
	v, err := strconv.ParseFloat(upper, 64)
	if err != nil {
		return rankUnparsable
	}
	return 1 + v*unitMinutes(m[3])
}

func unitMinutes(unit string) float64 {
	u := strings.ToLower(unit)
	switch {
	case strings.HasPrefix(u, "s"):
		return 1.0 / 60
	case strings.HasPrefix(u, "h"):
		return 60
	case strings.HasPrefix(u, "d"):
		return 24 * 60
	default:
		return 1
	}
}

// LaterETA returns whichever of a and b ranks later; a wins ties.
func LaterETA(a, b string) string {
	if etaRank(b) > etaRank(a) {
		return b
	}
	return a
}

package random

import (
	"regexp"
	"time"
)

const trackingPrefix = "PRCL"

var trackingPattern = regexp.MustCompile(`^PRCL-\d{8}-[0-9A-F]{6}$`)

// TrackingID returns an id of the form PRCL-YYYYMMDD-XXXXXX, dated in UTC.
// It is for human reference only; uniqueness is not guaranteed.
func TrackingID(now time.Time) string {
	return trackingPrefix + "-" + now.UTC().Format("20060102") + "-" + Hex(6)
}

// IsTrackingID reports whether s has the tracking id shape.
func IsTrackingID(s string) bool {
	return trackingPattern.MatchString(s)
}

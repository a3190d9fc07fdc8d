package protocol

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	sessionIDRegex = regexp.MustCompile(`^[a-z0-9-]{3,64}$`)
	clientIDRegex  = regexp.MustCompile(`^[a-f0-9-]{36}$`)
)

// FormatSessionID canonicalizes a session id: trim, lowercase. Validity is a
// separate check so callers can distinguish "fixable" from "malformed".
func FormatSessionID(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidSessionID reports whether a canonicalized session id is well formed.
func ValidSessionID(s string) bool {
	return sessionIDRegex.MatchString(s)
}

// FormatClientID canonicalizes a client id the same way.
func FormatClientID(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidClientID reports whether a canonicalized client id has the UUID v4
// shape the broker accepts.
func ValidClientID(s string) bool {
	return clientIDRegex.MatchString(s)
}

// HashClientID returns the hex SHA-256 of a raw client id. This is the only
// client identifier that ever leaves the broker.
func HashClientID(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// truncate cuts s to at most max runes after trimming surrounding space.
// The cut edge is trimmed again so sanitization stays idempotent.
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max]))
}

// SanitizeSessionName trims and truncates a session display name.
func SanitizeSessionName(s string) string {
	return truncate(s, MaxSessionNameLen)
}

// SanitizeDescription trims and truncates a session description.
func SanitizeDescription(s string) string {
	return truncate(s, MaxDescriptionLen)
}

// SanitizeUserName trims and truncates a participant display name.
func SanitizeUserName(s string) string {
	return truncate(s, MaxUserNameLen)
}

// SanitizeAvatarURL trims and truncates an avatar URL. The broker treats it
// as an opaque display field.
func SanitizeAvatarURL(s string) string {
	return truncate(s, MaxAvatarURLLen)
}

// SanitizeDuration clamps an interval duration in seconds. Zero means the
// field was absent and takes the default.
func SanitizeDuration(d int) int {
	if d == 0 {
		return DefaultDuration
	}
	if d < MinDuration {
		return MinDuration
	}
	if d > MaxDuration {
		return MaxDuration
	}
	return d
}

// SanitizeInterval normalizes one interval in place-copy form. CustomCSS is
// opaque and passes through untouched.
func SanitizeInterval(iv Interval) Interval {
	iv.Name = truncate(iv.Name, MaxIntervalNameLen)
	iv.Duration = SanitizeDuration(iv.Duration)
	iv.Alert = truncate(iv.Alert, MaxAlertLen)
	if iv.Alert == "" {
		iv.Alert = DefaultAlert
	}
	return iv
}

// SanitizeIntervals normalizes a whole list. The returned Items slice is
// never nil so an empty list marshals as [].
func SanitizeIntervals(list IntervalList) IntervalList {
	items := make([]Interval, len(list.Items))
	for i, iv := range list.Items {
		items[i] = SanitizeInterval(iv)
	}
	return IntervalList{LastUpdated: list.LastUpdated, Items: items}
}

// SanitizeTimer clamps a public timer state into its documented bounds.
func SanitizeTimer(t TimerState) TimerState {
	if t.Interval < 0 {
		t.Interval = 0
	}
	if t.Remaining < 0 {
		t.Remaining = 0
	}
	if t.Remaining > MaxRemainingMS {
		t.Remaining = MaxRemainingMS
	}
	return t
}

// SanitizeUserProfile normalizes the mutable display fields of an inbound
// user payload. The client id is handled separately by FormatClientID.
func SanitizeUserProfile(u UserProfile) UserProfile {
	u.ClientID = FormatClientID(u.ClientID)
	u.Name = SanitizeUserName(u.Name)
	u.AvatarURL = SanitizeAvatarURL(u.AvatarURL)
	return u
}

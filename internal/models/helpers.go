package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateID generates a prefixed unique ID, e.g. "off-3f2a…"
func GenerateID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

// GenerateTrackingNumber returns a short human friendly tracking code
func GenerateTrackingNumber() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TRK-" + strings.ToUpper(id[:10])
}

// GetCurrentTime returns the current time in UTC truncated to microseconds,
// the resolution Postgres stores.
func GetCurrentTime() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// StringPtr returns nil for an empty string
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences p, returning "" for nil
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// Package ulid provides prefixed, lexicographically sortable identifiers
// built on github.com/oklog/ulid/v2.
//
// Prefixes make IDs self-describing when they show up in logs and tables:
// "run-01AN4Z07BY79KA1307SR9X4MV3" is a sync run, "act-..." an activity.
package ulid

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Prefixes for the different parts of the application
const (
	// PrefixRun for sync run log ULIDs
	PrefixRun = "run"

	// PrefixActivity for locally recorded activity ULIDs
	PrefixActivity = "act"

	// PrefixSetting for setting-row ULIDs
	PrefixSetting = "set"

	// PrefixSeparator is used to separate the prefix from the ULID
	PrefixSeparator = "-"
)

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// Generate creates a new ULID string with the current timestamp.
func Generate() string {
	return NewWithTime(time.Now())
}

// GenerateWithPrefix creates a new ULID with the current timestamp and a prefix.
func GenerateWithPrefix(prefix string) string {
	return prefix + PrefixSeparator + NewWithTime(time.Now())
}

// NewWithTime creates a new ULID string with a specific timestamp.
func NewWithTime(t time.Time) string {
	entropyLock.Lock()
	id := ulid.MustNew(ulid.Timestamp(t), entropy)
	entropyLock.Unlock()
	return id.String()
}

// Validate checks if a string is a valid ULID, with or without a prefix.
func Validate(id string) bool {
	parts := strings.SplitN(id, PrefixSeparator, 2)

	rawID := id
	if len(parts) == 2 {
		rawID = parts[1]
	}

	_, err := ulid.Parse(rawID)
	return err == nil
}

// Time returns the timestamp component of a ULID string, ignoring any prefix.
// Returns the zero time if the string is not a valid ULID.
func Time(id string) time.Time {
	parts := strings.SplitN(id, PrefixSeparator, 2)

	rawID := id
	if len(parts) == 2 {
		rawID = parts[1]
	}

	parsed, err := ulid.Parse(rawID)
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(parsed.Time())
}

// RunID generates a new ULID with the sync run prefix
func RunID() string {
	return GenerateWithPrefix(PrefixRun)
}

// ActivityID generates a new ULID with the activity prefix
func ActivityID() string {
	return GenerateWithPrefix(PrefixActivity)
}

// SettingID generates a new ULID with the setting prefix
func SettingID() string {
	return GenerateWithPrefix(PrefixSetting)
}

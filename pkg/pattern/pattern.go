// Package pattern classifies usage-control policies against a fixed catalog
// of known shapes and builds canonical example policies for each shape. Both
// operations are pure functions over the odrl tree; they hold no state and
// are safe for concurrent use.
package pattern

import (
	"errors"
	"fmt"
	"strings"
)

// Pattern identifies one recognized usage-policy shape.
type Pattern string

const (
	ProvideAccess       Pattern = "PROVIDE_ACCESS"
	ProhibitAccess      Pattern = "PROHIBIT_ACCESS"
	NTimesUsage         Pattern = "N_TIMES_USAGE"
	DurationUsage       Pattern = "DURATION_USAGE"
	UsageDuringInterval Pattern = "USAGE_DURING_INTERVAL"
	UsageUntilDeletion  Pattern = "USAGE_UNTIL_DELETION"
	UsageLogging        Pattern = "USAGE_LOGGING"
	UsageNotification   Pattern = "USAGE_NOTIFICATION"
	NotRecognized       Pattern = "NOT_RECOGNIZED"
)

// ErrUnknownPattern reports a name outside the catalog.
var ErrUnknownPattern = errors.New("unknown policy pattern")

// catalog lists every pattern a caller may name, including NOT_RECOGNIZED
// (a valid classification result, though not a valid synthesis input).
var catalog = []Pattern{
	ProvideAccess,
	ProhibitAccess,
	NTimesUsage,
	DurationUsage,
	UsageDuringInterval,
	UsageUntilDeletion,
	UsageLogging,
	UsageNotification,
	NotRecognized,
}

// All returns every known pattern, NOT_RECOGNIZED included.
func All() []Pattern {
	out := make([]Pattern, len(catalog))
	copy(out, catalog)
	return out
}

// ParsePattern resolves a pattern name, case-insensitively.
func ParsePattern(name string) (Pattern, error) {
	needle := strings.ToUpper(strings.TrimSpace(name))
	for _, p := range catalog {
		if string(p) == needle {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPattern, name)
}

// slug is the kebab-case form used as the example policy description.
func (p Pattern) slug() string {
	return strings.ReplaceAll(strings.ToLower(string(p)), "_", "-")
}

package crosswalk

import (
	"fmt"
	"sort"
	"strings"
)

// maxListedGroups caps the number of groups spelled out in an error message.
const maxListedGroups = 10

// ValidationError reports weight groups that are not well-formed
// distributions. Groups maps each offending group to its rounded weight sum
// (or the offending weight for out-of-range rows).
type ValidationError struct {
	Reason string
	Groups map[string]float64
}

func (e *ValidationError) Error() string {
	codes := e.Codes()
	parts := make([]string, 0, maxListedGroups+1)
	for i, c := range codes {
		if i == maxListedGroups {
			parts = append(parts, fmt.Sprintf("and %d more", len(codes)-i))
			break
		}
		parts = append(parts, fmt.Sprintf("%s=%g", c, e.Groups[c]))
	}
	return fmt.Sprintf("crosswalk: invalid weights: %s: %s", e.Reason, strings.Join(parts, ", "))
}

// Codes returns the offending group codes, sorted.
func (e *ValidationError) Codes() []string {
	codes := make([]string, 0, len(e.Groups))
	for c := range e.Groups {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

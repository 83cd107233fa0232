package upload

import "strings"

// transientPatterns is the table of failure signatures known to stem from a
// corrupted-but-recoverable daemon, not from the content itself. A match
// earns exactly one forced-restart retry; anything else is terminal.
// New signatures are added here, never in control flow.
var transientPatterns = []string{
	"resource not found",
	"object missing",
	"connection reset",
	"connection refused",
	"broken pipe",
	"404 \"not found\"",
}

// Transient reports whether the failure matches a known recoverable pattern.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

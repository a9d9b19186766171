// Package identifier validates agent names and builds the canonical
// tool-invocation action string consumed by the permission engine.
package identifier

import (
	"fmt"
	"regexp"

	"github.com/chorus-run/chorus/internal/errs"
)

var agentNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,30}[a-z0-9]$`)

// ValidateAgentName checks name against the 2-32 char, lowercase
// alphanumeric-with-interior-hyphens syntax. A single-character name never
// matches since the pattern requires distinct leading and trailing
// characters.
func ValidateAgentName(name string) error {
	if !agentNamePattern.MatchString(name) {
		return fmt.Errorf("%q: %w", name, errs.ErrInvalidAgentName)
	}
	return nil
}

// FormatAction builds the sole canonical form of a tool invocation:
// "tool:<name>:<detail>". This is the only constructor so that detail
// escaping (or lack thereof) stays consistent across every call site;
// callers must never hand-assemble the string themselves.
func FormatAction(toolName, detail string) string {
	return fmt.Sprintf("tool:%s:%s", toolName, detail)
}

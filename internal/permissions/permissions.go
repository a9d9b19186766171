// Package permissions implements the pure allow/ask/deny decision engine
// over tool-invocation action strings. It performs no I/O.
package permissions

import (
	"fmt"

	"github.com/chorus-run/chorus/internal/errs"
	"github.com/dlclark/regexp2"
)

// Result is the outcome of Check.
type Result int

const (
	Allow Result = iota
	Ask
	Deny
)

func (r Result) String() string {
	switch r {
	case Allow:
		return "ALLOW"
	case Ask:
		return "ASK"
	case Deny:
		return "DENY"
	default:
		return "UNKNOWN"
	}
}

// Profile is an ordered pair of regex lists (allow, ask) with
// deny-by-default. Patterns compile eagerly at construction; an invalid
// pattern is a fatal configuration error.
type Profile struct {
	Name          string
	AllowPatterns []string
	AskPatterns   []string

	compiledAllow []*regexp2.Regexp
	compiledAsk   []*regexp2.Regexp
}

// NewProfile compiles allow and ask patterns, returning
// InvalidPermissionPattern if any fails to compile. Patterns use
// regexp2 (.NET-flavored) rather than the standard library's RE2 because
// built-in presets rely on negative lookahead (tool:git:(?!push).*), which
// RE2 cannot express.
func NewProfile(name string, allow, ask []string) (*Profile, error) {
	p := &Profile{Name: name, AllowPatterns: allow, AskPatterns: ask}
	var err error
	if p.compiledAllow, err = compileAll(allow); err != nil {
		return nil, err
	}
	if p.compiledAsk, err = compileAll(ask); err != nil {
		return nil, err
	}
	return p, nil
}

func compileAll(patterns []string) ([]*regexp2.Regexp, error) {
	out := make([]*regexp2.Regexp, 0, len(patterns))
	for _, pat := range patterns {
		re, err := regexp2.Compile(`^(?:`+pat+`)$`, regexp2.None)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", pat, errs.ErrInvalidPermissionPattern)
		}
		out = append(out, re)
	}
	return out, nil
}

// Check is the pure, stateless contract: check(action, profile) -> {ALLOW,
// ASK, DENY}. Each allow pattern is tried in declaration order against the
// full action string; on first full match, ALLOW. Otherwise each ask
// pattern; on match, ASK. Otherwise DENY.
func Check(action string, profile *Profile) Result {
	for _, re := range profile.compiledAllow {
		if matches(re, action) {
			return Allow
		}
	}
	for _, re := range profile.compiledAsk {
		if matches(re, action) {
			return Ask
		}
	}
	return Deny
}

func matches(re *regexp2.Regexp, s string) bool {
	ok, err := re.MatchString(s)
	if err != nil {
		return false
	}
	return ok
}

// builtin presets, verbatim per the external-interfaces table: open,
// standard, locked.
var builtinPresets = map[string]struct {
	allow []string
	ask   []string
}{
	"open": {
		allow: []string{".*"},
		ask:   []string{},
	},
	"standard": {
		allow: []string{`tool:file:.*`, `tool:git:(?!push).*`},
		ask:   []string{`tool:bash:.*`, `tool:git:push.*`},
	},
	"locked": {
		allow: []string{`tool:file:view.*`},
		ask:   []string{},
	},
}

// Preset resolves a built-in profile by name, returning UnknownPreset if
// none exists.
func Preset(name string) (*Profile, error) {
	p, ok := builtinPresets[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, errs.ErrUnknownPreset)
	}
	return NewProfile(name, p.allow, p.ask)
}

// PresetNames lists built-in preset names in a stable order, for CLI help
// text and config validation.
func PresetNames() []string {
	return []string{"open", "standard", "locked"}
}

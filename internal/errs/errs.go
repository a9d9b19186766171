// Package errs defines the error-kind taxonomy shared across the execution
// core. Components wrap one of these sentinels with fmt.Errorf("...: %w", ...)
// so callers can classify failures with errors.Is without type switches.
package errs

import "errors"

var (
	ErrInvalidAgentName       = errors.New("invalid agent name")
	ErrAgentExists            = errors.New("agent already exists")
	ErrAgentNotFound          = errors.New("agent not found")
	ErrInvalidPermissionPattern = errors.New("invalid permission pattern")
	ErrUnknownPreset          = errors.New("unknown permission preset")
	ErrPathTraversal          = errors.New("path escapes workspace")
	ErrStringNotFound         = errors.New("string not found")
	ErrAmbiguousMatch         = errors.New("ambiguous match")
	ErrBinaryFile             = errors.New("binary file")
	ErrFileNotFoundInWorkspace = errors.New("file not found in workspace")
	ErrSessionNotFound        = errors.New("session not found")
	ErrProviderError          = errors.New("provider error")
	ErrCancelled              = errors.New("cancelled")
	ErrTimeout                = errors.New("timeout")
	ErrRateLimited            = errors.New("rate limited")
	ErrPermissionDenied       = errors.New("permission denied")
	ErrInvalidConfigKey       = errors.New("invalid configuration key")
)

// Kind returns a short machine-readable tag for the error, matching the
// taxonomy named in the error-handling design. Used by the CLI and the
// channel layer to render a human-readable sentence without leaking
// internals. Returns "" when err doesn't wrap a known kind.
func Kind(err error) string {
	for _, k := range kinds {
		if errorsIs(err, k.err) {
			return k.name
		}
	}
	return ""
}

var kinds = []struct {
	name string
	err  error
}{
	{"InvalidAgentName", ErrInvalidAgentName},
	{"AgentExists", ErrAgentExists},
	{"AgentNotFound", ErrAgentNotFound},
	{"InvalidPermissionPattern", ErrInvalidPermissionPattern},
	{"UnknownPreset", ErrUnknownPreset},
	{"PathTraversal", ErrPathTraversal},
	{"StringNotFound", ErrStringNotFound},
	{"AmbiguousMatch", ErrAmbiguousMatch},
	{"BinaryFile", ErrBinaryFile},
	{"FileNotFoundInWorkspace", ErrFileNotFoundInWorkspace},
	{"SessionNotFound", ErrSessionNotFound},
	{"ProviderError", ErrProviderError},
	{"Cancelled", ErrCancelled},
	{"Timeout", ErrTimeout},
	{"RateLimited", ErrRateLimited},
	{"PermissionDenied", ErrPermissionDenied},
	{"InvalidConfigKey", ErrInvalidConfigKey},
}

func errorsIs(err, target error) bool {
	return errors.Is(err, target)
}

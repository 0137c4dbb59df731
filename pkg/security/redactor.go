package security

import (
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Mask replaces every redacted value.
const Mask = "********"

// credKeyRe matches credential-shaped key names. Any payload or log
// field stored under such a key is masked wholesale, even when the
// value itself was never registered as a secret.
var credKeyRe = regexp.MustCompile(`(?i)(password|passwd|secret|token|api[_-]?key|credential|authorization|auth[_-]?key)`)

// Redactor removes known secret values and credential-shaped fields
// from anything that is about to be persisted or logged. Safe for
// concurrent use: the orchestrator registers resolved credentials while
// log sinks are already running.
type Redactor struct {
	mu      sync.RWMutex
	secrets []string
}

func NewRedactor(secrets ...string) *Redactor {
	r := &Redactor{}
	for _, s := range secrets {
		r.AddSecret(s)
	}
	return r
}

// AddSecret registers a value to be masked wherever it appears.
// Empty values are ignored.
func (r *Redactor) AddSecret(value string) {
	if value == "" {
		return
	}
	r.mu.Lock()
	r.secrets = append(r.secrets, value)
	r.mu.Unlock()
}

// IsCredentialKey reports whether a key name looks like it holds a
// credential.
func IsCredentialKey(key string) bool {
	return credKeyRe.MatchString(key)
}

// Redact masks every registered secret value inside s.
func (r *Redactor) Redact(s string) string {
	if r == nil {
		return s
	}
	r.mu.RLock()
	secrets := make([]string, len(r.secrets))
	copy(secrets, r.secrets)
	r.mu.RUnlock()

	if len(secrets) == 0 {
		return s
	}

	// Longest first, so a secret that contains another secret is
	// replaced before its substring.
	sort.Slice(secrets, func(i, j int) bool {
		return len(secrets[i]) > len(secrets[j])
	})

	for _, secret := range secrets {
		s = strings.ReplaceAll(s, secret, Mask)
	}
	return s
}

// RedactStringMap returns a copy of m with credential-shaped keys
// masked and registered secrets scrubbed from all remaining values.
func (r *Redactor) RedactStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if IsCredentialKey(k) {
			out[k] = Mask
			continue
		}
		out[k] = r.Redact(v)
	}
	return out
}

// RedactDetails walks an arbitrary structured-log detail map, masking
// credential-shaped keys and scrubbing string values recursively.
func (r *Redactor) RedactDetails(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if IsCredentialKey(k) {
			out[k] = Mask
			continue
		}
		out[k] = r.redactValue(v)
	}
	return out
}

func (r *Redactor) redactValue(v any) any {
	switch val := v.(type) {
	case string:
		return r.Redact(val)
	case map[string]any:
		return r.RedactDetails(val)
	case map[string]string:
		return r.RedactStringMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = r.redactValue(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			out[i] = r.Redact(item)
		}
		return out
	default:
		return v
	}
}

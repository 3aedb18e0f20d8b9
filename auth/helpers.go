package auth

import (
	"net/http"
	"sort"
	"strings"

	"github.com/goliatone/go-restbind/core"
)

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// readAttribute returns the first non-empty credential attribute among keys.
func readAttribute(cred core.Credential, keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(cred.Attributes[key]); value != "" {
			return value
		}
	}
	return ""
}

func normalizeValues(values []string) []string {
	if len(values) == 0 {
		return []string{}
	}
	seen := map[string]struct{}{}
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		lowered := strings.ToLower(trimmed)
		if _, ok := seen[lowered]; ok {
			continue
		}
		seen[lowered] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}

func cloneAttributes(attributes map[string]string) map[string]string {
	if len(attributes) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(attributes))
	for key, value := range attributes {
		out[key] = value
	}
	return out
}

// prepare clones req so attachers never mutate the caller's request.
func prepare(req core.BoundRequest) core.BoundRequest {
	out := req.Clone()
	if out.Headers == nil {
		out.Headers = http.Header{}
	}
	return out
}

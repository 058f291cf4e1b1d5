// Package template resolves {{var}} tokens in node configuration against the
// run's variable scope chain. Resolution is lazy: it happens at node-dispatch
// time, never at compile time.
package template

import (
	"fmt"
	"strings"
)

// LookupFunc resolves a token body to a value. The bool reports whether the
// token resolved; the error is for lookups that failed rather than missed
// (e.g. a credential resolver returning an error).
type LookupFunc func(name string) (any, bool, error)

// ScopeLookup adapts a scope-chain lookup to a LookupFunc, traversing dotted
// paths through nested maps.
func ScopeLookup(lookup func(name string) (any, bool)) LookupFunc {
	return func(name string) (any, bool, error) {
		head, rest, found := strings.Cut(name, ".")

		value, ok := lookup(head)
		if !ok {
			return nil, false, nil
		}

		if !found {
			return value, true, nil
		}

		return descend(value, rest)
	}
}

func descend(value any, path string) (any, bool, error) {
	for _, key := range strings.Split(path, ".") {
		m, ok := value.(map[string]any)
		if !ok {
			return nil, false, fmt.Errorf("cannot descend into %T with key %q", value, key)
		}

		value, ok = m[key]
		if !ok {
			return nil, false, nil
		}
	}

	return value, true, nil
}

// ResolveValue resolves every {{token}} in the input. A string that is
// exactly one token yields the raw typed value; a string embedding tokens
// yields the interpolated string.
func ResolveValue(input string, lookup LookupFunc) (any, error) {
	if body, ok := singleToken(input); ok {
		value, found, err := lookup(body)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve '{{%s}}': %w", body, err)
		}

		if !found {
			return nil, fmt.Errorf("unresolved variable '{{%s}}'", body)
		}

		return value, nil
	}

	return interpolate(input, lookup)
}

// ResolveConfig deep-resolves every string value in a config property bag,
// descending into nested maps and slices. The input is never mutated.
func ResolveConfig(config map[string]any, lookup LookupFunc) (map[string]any, error) {
	resolved, err := resolveAny(config, lookup)
	if err != nil {
		return nil, err
	}

	out, _ := resolved.(map[string]any)

	return out, nil
}

func resolveAny(value any, lookup LookupFunc) (any, error) {
	switch v := value.(type) {
	case string:
		return ResolveValue(v, lookup)
	case map[string]any:
		out := make(map[string]any, len(v))

		for key, item := range v {
			resolved, err := resolveAny(item, lookup)
			if err != nil {
				return nil, err
			}

			out[key] = resolved
		}

		return out, nil
	case []any:
		out := make([]any, len(v))

		for i, item := range v {
			resolved, err := resolveAny(item, lookup)
			if err != nil {
				return nil, err
			}

			out[i] = resolved
		}

		return out, nil
	default:
		return value, nil
	}
}

// singleToken reports whether the trimmed input is exactly one {{token}} and
// returns its body.
func singleToken(input string) (string, bool) {
	s := strings.TrimSpace(input)
	if !strings.HasPrefix(s, "{{") || !strings.HasSuffix(s, "}}") {
		return "", false
	}

	body := s[2 : len(s)-2]
	if strings.Contains(body, "{{") || strings.Contains(body, "}}") {
		return "", false
	}

	return strings.TrimSpace(body), true
}

func interpolate(input string, lookup LookupFunc) (string, error) {
	var out strings.Builder

	rest := input

	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			out.WriteString(rest)

			return out.String(), nil
		}

		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			out.WriteString(rest)

			return out.String(), nil
		}

		out.WriteString(rest[:start])

		body := strings.TrimSpace(rest[start+2 : start+end])

		value, found, err := lookup(body)
		if err != nil {
			return "", fmt.Errorf("failed to resolve '{{%s}}': %w", body, err)
		}

		if !found {
			return "", fmt.Errorf("unresolved variable '{{%s}}'", body)
		}

		out.WriteString(fmt.Sprint(value))

		rest = rest[start+end+2:]
	}
}

// Package resolver implements the TemplateResolver and path-expression
// lookup of spec.md §4.4: `{{path}}` template substitution and bare `$path`
// path expressions against a step's inputs view.
package resolver

import (
	"fmt"
	"strconv"
	"strings"
)

// Resolver evaluates `{{path}}` templates and `$path` expressions against a
// data map. It has no state; every call is independent.
type Resolver struct{}

func New() *Resolver {
	return &Resolver{}
}

// Resolve substitutes every `{{path}}` occurrence in template with the
// value found at that dotted path in data, stringified. A path that
// resolves to nothing leaves the placeholder text intact, per spec.md
// §4.4 ("Missing paths leave the original placeholder text intact").
func (r *Resolver) Resolve(template string, data map[string]any) string {
	var out strings.Builder

	i := 0
	for i < len(template) {
		start := strings.Index(template[i:], "{{")
		if start == -1 {
			out.WriteString(template[i:])

			break
		}

		start += i

		end := strings.Index(template[start:], "}}")
		if end == -1 {
			out.WriteString(template[i:])

			break
		}

		end += start

		out.WriteString(template[i:start])

		path := strings.TrimSpace(template[start+2 : end])

		value, ok := r.Lookup(path, data)
		if !ok {
			out.WriteString(template[start : end+2])
		} else {
			out.WriteString(stringify(value))
		}

		i = end + 2
	}

	return out.String()
}

// Lookup resolves a single path expression: a leading `$` is stripped, the
// literal `_all` resolves to the whole map, otherwise dotted segments walk
// nested maps and slice indices.
func (r *Resolver) Lookup(path string, data map[string]any) (any, bool) {
	path = strings.TrimPrefix(strings.TrimSpace(path), "$")

	if path == "" {
		return nil, false
	}

	if path == "_all" {
		return data, true
	}

	segments := strings.Split(path, ".")

	var current any = data

	for _, seg := range segments {
		next, ok := step(current, seg)
		if !ok {
			return nil, false
		}

		current = next
	}

	return current, true
}

func step(current any, segment string) (any, bool) {
	switch v := current.(type) {
	case map[string]any:
		value, ok := v[segment]

		return value, ok
	case []any:
		idx, err := strconv.Atoi(segment)
		if err != nil || idx < 0 || idx >= len(v) {
			return nil, false
		}

		return v[idx], true
	default:
		return nil, false
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

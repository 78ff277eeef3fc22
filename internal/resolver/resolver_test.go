package resolver_test

import (
	"testing"

	"github.com/dukex/operion/internal/resolver"
	"github.com/stretchr/testify/assert"
)

func TestResolveDottedPath(t *testing.T) {
	r := resolver.New()

	got := r.Resolve("{{a.b}}", map[string]any{"a": map[string]any{"b": "x"}})
	assert.Equal(t, "x", got)
}

func TestResolveMissingPathLeavesPlaceholder(t *testing.T) {
	r := resolver.New()

	got := r.Resolve("{{missing}}", map[string]any{})
	assert.Equal(t, "{{missing}}", got)
}

func TestResolveDollarPrefixAndAll(t *testing.T) {
	r := resolver.New()

	data := map[string]any{"step1": map[string]any{"value": 42}}

	v, ok := r.Lookup("$step1.value", data)
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	all, ok := r.Lookup("_all", data)
	assert.True(t, ok)
	assert.Equal(t, data, all)
}

func TestResolveMultiplePlaceholdersInOneTemplate(t *testing.T) {
	r := resolver.New()

	data := map[string]any{"a": "hello", "b": "world"}

	got := r.Resolve("{{a}} {{b}}!", data)
	assert.Equal(t, "hello world!", got)
}

func TestResolveArrayIndex(t *testing.T) {
	r := resolver.New()

	data := map[string]any{"items": []any{"first", "second"}}

	got := r.Resolve("{{items.1}}", data)
	assert.Equal(t, "second", got)
}

package cachekey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyScalars(t *testing.T) {
	assert.Equal(t, "user", Key("user"))
	assert.Equal(t, "user:42", Key("user", 42))
	assert.Equal(t, "user:42:true", Key("user", 42, true))
	assert.Equal(t, "user:a:b", Key("user", "a", "b"))
	assert.Equal(t, "user:%nil", Key("user", nil))
	assert.NotEqual(t, Key("user", ""), Key("user", nil))
	assert.Equal(t, "f:1.5", Key("f", 1.5))
}

func TestKeyDelimiterEscaped(t *testing.T) {
	// A ":" inside an argument must not shift token boundaries.
	assert.NotEqual(t, Key("user", "a:b"), Key("user", "a", "b"))
	assert.NotEqual(t, Key("user", "a:b", "c"), Key("user", "a", "b:c"))
	assert.Equal(t, Key("user", "a:b"), Key("user", "a:b"))
}

func TestKeyNilUnspellable(t *testing.T) {
	// No string argument can produce the nil token.
	assert.NotEqual(t, Key("user", nil), Key("user", "<nil>"))
	assert.NotEqual(t, Key("user", nil), Key("user", "%nil"))
}

func TestKeyDeterministicMaps(t *testing.T) {
	// Map iteration order must not leak into the key.
	m1 := map[string]int{"a": 1, "b": 2, "c": 3}
	m2 := map[string]int{"c": 3, "b": 2, "a": 1}
	k1 := Key("list", m1)
	for range 50 {
		assert.Equal(t, k1, Key("list", m2))
	}
}

func TestKeyDistinctArguments(t *testing.T) {
	assert.NotEqual(t, Key("list", map[string]int{"a": 1}), Key("list", map[string]int{"a": 2}))
	assert.NotEqual(t, Key("user", 42), Key("user", "42x"))
	assert.NotEqual(t, Key("user", 1, 2), Key("user", 2, 1))
	assert.NotEqual(t, Key("a", 1), Key("b", 1))
}

func TestKeyStructs(t *testing.T) {
	type filter struct {
		Status string
		Limit  int
	}
	assert.Equal(t, Key("list", filter{"open", 10}), Key("list", filter{"open", 10}))
	assert.NotEqual(t, Key("list", filter{"open", 10}), Key("list", filter{"open", 20}))
}

func TestKeySetOrderIndependent(t *testing.T) {
	assert.Equal(t, Key("tags", Set{"a", "b", "c"}), Key("tags", Set{"c", "a", "b"}))
	assert.NotEqual(t, Key("tags", Set{"a", "b"}), Key("tags", Set{"a", "b", "c"}))
	// A Set is not the same as the equivalent slice in order.
	assert.NotEqual(t, Key("tags", Set{"a", "b"}), Key("tags", []string{"a", "b"}))
}

func TestHash(t *testing.T) {
	h1 := Hash("entity", map[string]any{"x": 1})
	h2 := Hash("entity", map[string]any{"x": 1})
	assert.Equal(t, h1, h2)
	assert.NotEmpty(t, h1)
	assert.NotEqual(t, h1, Hash("entity", map[string]any{"x": 2}))
}

func TestKeyUnserializable(t *testing.T) {
	// Funcs can't be msgpack-encoded; the fallback must still produce a key.
	assert.NotEmpty(t, Key("fn", func() {}))
}

package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainsFunc(t *testing.T) {
	tests := []struct {
		name       string
		collection interface{}
		target     interface{}
		want       bool
	}{
		{"slice contains element", []interface{}{"a", "b", "c"}, "b", true},
		{"slice missing element", []interface{}{"a", "b"}, "d", false},
		{"json numbers match int literal", []interface{}{1.0, 2.0}, 2, true},
		{"mixed type slice", []interface{}{"a", 1, true}, true, true},
		{"empty slice", []interface{}{}, "x", false},
		{"nil collection", nil, "x", false},
		{"map key present", map[string]interface{}{"lang": "go"}, "lang", true},
		{"map key absent", map[string]interface{}{"lang": "go"}, "kind", false},
		{"map key of wrong type", map[string]interface{}{"1": true}, 1, false},
		{"substring", "hello world", "lo w", true},
		{"empty substring", "hello", "", false},
		{"unsupported collection", 42, 4, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := containsFunc(tt.collection, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := containsFunc([]interface{}{})
	assert.EqualError(t, err, "has requires exactly 2 arguments, got 1")
}

func TestLenFunc(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  interface{}
	}{
		{"slice", []interface{}{1, 2, 3}, 3},
		{"map", map[string]interface{}{"a": 1}, 1},
		{"string", "four", 4},
		{"nil", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := lenFunc(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := lenFunc(3.5)
	assert.EqualError(t, err, "length: unsupported type float64")

	_, err = lenFunc()
	assert.EqualError(t, err, "length requires exactly 1 argument, got 0")
}

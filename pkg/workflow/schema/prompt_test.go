package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPromptWithSchema(t *testing.T) {
	s := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"category": map[string]interface{}{"type": "string", "enum": []interface{}{"bug", "feature"}},
			"score":    map[string]interface{}{"type": "number"},
		},
		"required": []interface{}{"category"},
	}

	tests := []struct {
		name    string
		attempt int
		want    []string
	}{
		{"first attempt", 0, []string{"Classify this issue", "valid JSON", `"category": string (required) // one of: "bug", "feature"`, `"score": number`}},
		{"second attempt", 1, []string{"IMPORTANT", "did not match", "ONLY with a JSON object"}},
		{"final attempt", 2, []string{"CRITICAL", "Example:", `"category": "bug"`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildPromptWithSchema("Classify this issue", s, tt.attempt)
			assert.Contains(t, got, "Classify this issue")
			for _, want := range tt.want {
				assert.Contains(t, got, want)
			}
		})
	}

	assert.NotContains(t, BuildPromptWithSchema("  ", s, 0), "\n\n")
}

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     interface{}
	}{
		{"bare object", `{"language": "python"}`, map[string]interface{}{"language": "python"}},
		{"bare array", ` [1, 2] `, []interface{}{1.0, 2.0}},
		{"json fence", "```json\n{\"ok\": true}\n```", map[string]interface{}{"ok": true}},
		{"plain fence", "```\n{\"ok\": false}\n```\n", map[string]interface{}{"ok": false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJSON(tt.response)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseJSONRejects(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"truncated", `{"language": "java", "complexity": 4`},
		{"trailing comma", `{"a": 1,}`},
		{"prose around object", `The answer is {"a": 1} as requested.`},
		{"prose before fence", "Here you go:\n```json\n{\"ok\": true}\n```"},
		{"no json", "I could not determine the language."},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJSON(tt.response)
			require.Error(t, err)
			assert.Nil(t, got)
		})
	}
}

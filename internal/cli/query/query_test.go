package query

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type summary struct {
	RunID string   `json:"run_id"`
	Path  []string `json:"path"`
	Steps int      `json:"steps"`
}

func TestRun(t *testing.T) {
	s := summary{RunID: "r1", Path: []string{"start", "agent", "end"}, Steps: 3}

	tests := []struct {
		name string
		expr string
		want []any
	}{
		{"field", ".run_id", []any{"r1"}},
		{"number", ".steps", []any{float64(3)}},
		{"iterate", ".path[]", []any{"start", "agent", "end"}},
		{"construct", "{id: .run_id}", []any{map[string]any{"id": "r1"}}},
		{"empty", "empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Run(context.Background(), tt.expr, s)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunErrors(t *testing.T) {
	_, err := Run(context.Background(), ".[", nil)
	assert.ErrorContains(t, err, "invalid jq expression")

	_, err = Run(context.Background(), "$undefined", nil)
	assert.ErrorContains(t, err, "compilation failed")

	_, err = Run(context.Background(), `error("boom")`, map[string]any{})
	assert.ErrorContains(t, err, "boom")
}

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Print(&buf, []any{"raw", 1, map[string]any{"a": true}}))
	assert.Equal(t, "raw\n1\n{\"a\":true}\n", buf.String())
}

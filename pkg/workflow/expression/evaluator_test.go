package expression

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	cferrors "github.com/tombee/chatflow/pkg/errors"
)

func TestCompile(t *testing.T) {
	e := New()

	tests := []struct {
		name    string
		expr    string
		wantErr string
	}{
		{name: "field comparison", expr: `input.language == 'typescript'`},
		{name: "boolean logic", expr: `input.complexity > 7 && !input.has_errors`},
		{name: "membership", expr: `"urgent" in input.tags`},
		{name: "custom functions", expr: `has(input.tags, "a") || includes(input.tags, "b") || length(input) > 2`},
		{name: "bare input", expr: `input`},
		{name: "empty", expr: "   ", wantErr: "condition is empty"},
		{name: "syntax error", expr: `input.language ==`, wantErr: "failed to compile condition"},
		{name: "unknown variable", expr: `language == 'go'`, wantErr: "failed to compile condition"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.Compile(tt.expr)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			var ve *cferrors.ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}

func TestEvaluateStructured(t *testing.T) {
	e := New()
	input := map[string]interface{}{
		"language":   "python",
		"complexity": 8.0,
		"has_errors": false,
		"tags":       []interface{}{"cli", "urgent"},
	}

	tests := []struct {
		expr string
		want bool
	}{
		{`input.language == 'python'`, true},
		{`input.language == 'typescript'`, false},
		{`input.complexity > 7 && !input.has_errors`, true},
		{`"urgent" in input.tags`, true},
		{`has(input.tags, "docs")`, false},
		{`input.missing`, false},
		{`input.tags`, true},
		{`input.complexity`, true},
		{`input.language`, true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := e.Evaluate(tt.expr, input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateText(t *testing.T) {
	e := New()

	got, err := e.Evaluate(`input == 'yes'`, "yes")
	require.NoError(t, err)
	assert.True(t, got)

	got, err = e.Evaluate(`input contains 'refund'`, "please process my refund")
	require.NoError(t, err)
	assert.True(t, got)

	got, err = e.Evaluate(`input`, "")
	require.NoError(t, err)
	assert.False(t, got)

	_, err = e.Evaluate(`input.language == 'go'`, "plain text")
	assert.ErrorContains(t, err, "condition evaluation failed")
}

func TestEvaluateEmpty(t *testing.T) {
	_, err := New().Evaluate("", "x")
	assert.EqualError(t, err, "invalid condition: cannot evaluate an empty condition")
}

func TestEvaluatorCache(t *testing.T) {
	e := New()
	require.NoError(t, e.Compile(`input == 1`))
	_, err := e.Evaluate(`input == 1`, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, e.CacheSize())

	_ = e.Compile(`input ==`)
	assert.Equal(t, 1, e.CacheSize(), "failed compilations are not cached")

	e.ClearCache()
	assert.Equal(t, 0, e.CacheSize())
}

func TestEvaluatorConcurrent(t *testing.T) {
	e := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			got, err := e.Evaluate(`input % 2 == 0`, n)
			assert.NoError(t, err)
			assert.Equal(t, n%2 == 0, got)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, e.CacheSize())
}

func TestTruthy(t *testing.T) {
	falsy := []interface{}{nil, false, 0, 0.0, int64(0), uint(0), "", []interface{}{}, map[string]interface{}{}, (*int)(nil)}
	for _, v := range falsy {
		assert.False(t, Truthy(v), "%#v", v)
	}

	one := 1
	truthy := []interface{}{true, 1, -2.5, "0", []interface{}{nil}, map[string]interface{}{"a": nil}, &one, struct{}{}}
	for _, v := range truthy {
		assert.True(t, Truthy(v), "%#v", v)
	}
}

func TestTruthyMatchesBoolComparison(t *testing.T) {
	e := New()
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(-1000, 1000).Draw(t, "n")
		got, err := e.Evaluate(`input`, n)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if got != (n != 0) {
			t.Fatalf("Truthy(%d) = %v", n, got)
		}
	})
}

func TestInput(t *testing.T) {
	assert.Equal(t, "text", Input("text", nil))
	structured := map[string]interface{}{"k": "v"}
	assert.Equal(t, structured, Input("text", structured))
}

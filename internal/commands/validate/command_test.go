package validate

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/chatflow/internal/commands/shared"
)

const validFlow = `name: greet
nodes:
  - id: start
    type: start
    data:
      sourceType: {type: text}
  - id: end
    type: end
    data: {}
edges:
  - source: start
    sourceHandle: message
    target: end
    targetHandle: input
`

const invalidFlow = `name: broken
nodes:
  - id: end
    type: end
    data: {}
edges: []
`

func writeFlow(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateValid(t *testing.T) {
	out, err := execute(t, writeFlow(t, validFlow))
	require.NoError(t, err)
	assert.Contains(t, out, "greet (2 nodes, 1 edges) is valid")
}

func TestValidateInvalid(t *testing.T) {
	out, err := execute(t, writeFlow(t, invalidFlow))
	require.Error(t, err)
	assert.Equal(t, shared.ExitFailure, shared.ExitCode(err))
	assert.Contains(t, out, "No Start Node:")
	assert.Contains(t, out, "is invalid")
}

func TestValidateMissingFile(t *testing.T) {
	_, err := execute(t, filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, shared.ExitUsage, shared.ExitCode(err))
}

func TestValidateMalformed(t *testing.T) {
	out, err := execute(t, writeFlow(t, "nodes: [unclosed"))
	require.Error(t, err)
	assert.Equal(t, shared.ExitFailure, shared.ExitCode(err))
	assert.Contains(t, out, "flow.yaml")
}

func TestValidateJSON(t *testing.T) {
	shared.SetJSONForTest(true)
	defer shared.ResetFlagsForTest()

	out, err := execute(t, writeFlow(t, invalidFlow))
	require.Error(t, err)

	var report Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.False(t, report.Valid)
	assert.False(t, report.Success)
	assert.Equal(t, "validate", report.Command)
	assert.Equal(t, "broken", report.Name)
	var kinds []string
	for _, e := range report.Errors {
		kinds = append(kinds, string(e.Type))
	}
	assert.Contains(t, kinds, "no-start-node")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchRevalidates(t *testing.T) {
	path := writeFlow(t, validFlow)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out syncBuffer
	done := make(chan error, 1)
	go func() { done <- runWatch(ctx, &out, path) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "watching")
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte(invalidFlow), 0o600))
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "is invalid")
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

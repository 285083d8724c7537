package shared

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/chatflow/internal/config"
	pkgerrors "github.com/tombee/chatflow/pkg/errors"
	"github.com/tombee/chatflow/pkg/llm"
	"github.com/tombee/chatflow/pkg/workflow"
)

func TestNewRuntimeWithEchoProvider(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.Provider = "echo"

	var logs bytes.Buffer
	rt, err := NewRuntime(context.Background(), cfg, RuntimeOptions{LogOutput: &logs})
	require.NoError(t, err)
	defer rt.Close(context.Background())

	assert.Equal(t, "echo", rt.Provider.Name())
	assert.True(t, rt.Tools.Has("wikipedia-query"))

	nodes := []workflow.Node{
		{ID: "s", Type: workflow.NodeTypeStart, Data: workflow.StartData{SourceType: workflow.OutputShape{Type: workflow.OutputText}}},
		{ID: "a", Type: workflow.NodeTypeAgent, Data: workflow.AgentData{Name: "Echo", SourceType: workflow.OutputShape{Type: workflow.OutputText}}},
		{ID: "e", Type: workflow.NodeTypeEnd, Data: workflow.EndData{}},
	}
	edges := []workflow.Edge{
		{Source: "s", SourceHandle: workflow.HandleMessage, Target: "a", TargetHandle: workflow.HandlePrompt},
		{Source: "a", SourceHandle: workflow.HandleResult, Target: "e", TargetHandle: workflow.HandleInput},
	}
	result, err := rt.Executor.Run(context.Background(), workflow.RunRequest{
		Nodes:    nodes,
		Edges:    edges,
		Messages: []llm.Message{{Role: llm.MessageRoleUser, Content: "ping"}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateCompleted, result.State)
	assert.Equal(t, "ping", result.Results["a"].Text)
}

func TestNewRuntimeUnknownProvider(t *testing.T) {
	cfg := config.Default()
	_, err := NewRuntime(context.Background(), cfg, RuntimeOptions{Provider: "nope", LogOutput: &bytes.Buffer{}})
	require.Error(t, err)
	assert.Equal(t, ExitProviderError, ExitCode(err))
}

func TestLoadConfigAppliesFlags(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("CHATFLOW_DEBUG", "")
	t.Setenv("CHATFLOW_LOG_LEVEL", "")
	t.Setenv("LOG_LEVEL", "")
	defer ResetFlagsForTest()

	verbose, _, _, _ := RegisterFlagPointers()
	*verbose = true
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)

	ResetFlagsForTest()
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  max_steps: -4\n"), 0o600))
	SetConfigPathForTest(path)
	_, err = LoadConfig()
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, ExitCode(err))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, ExitCode(nil))
	assert.Equal(t, ExitFailure, ExitCode(errors.New("boom")))
	assert.Equal(t, ExitUsage, ExitCode(&ExitError{Code: ExitUsage}))
	assert.Equal(t, ExitProviderError, ExitCode(&pkgerrors.ProviderError{Provider: "ollama", Message: "down"}))
	assert.Equal(t, ExitConfigError, ExitCode(&pkgerrors.ConfigError{Key: "llm", Reason: "bad"}))
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	PrintError(&buf, &ExitError{Code: ExitFailure})
	assert.Empty(t, buf.String(), "silent exit errors print nothing")

	PrintError(&buf, NewExecutionError("run failed", errors.New("model down")))
	assert.Equal(t, "Error: run failed: model down\n", buf.String())

	buf.Reset()
	PrintError(&buf, &workflow.InvalidGraphError{Result: &workflow.ValidationResult{}})
	assert.Contains(t, buf.String(), "Suggestion: run 'chatflow validate'")
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "No Start Node", Title("no-start-node"))
	assert.Equal(t, "Processing", Title("processing"))
}

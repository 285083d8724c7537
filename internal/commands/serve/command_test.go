package serve

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/chatflow/internal/commands/shared"
)

func setup(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, key := range []string{"CHATFLOW_PROVIDER", "CHATFLOW_ADDR", "CHATFLOW_DEBUG", "LOG_LEVEL", "CHATFLOW_TRACING_ENABLED"} {
		t.Setenv(key, "")
	}
	shared.ResetFlagsForTest()
	t.Cleanup(shared.ResetFlagsForTest)
}

type addrs struct {
	api, metrics net.Addr
}

func start(t *testing.T, opts Options) (addrs, context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	readyCh := make(chan addrs, 1)
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, io.Discard, opts, func(api, metrics net.Addr) {
			readyCh <- addrs{api, metrics}
		})
	}()

	select {
	case a := <-readyCh:
		return a, cancel, done
	case err := <-done:
		cancel()
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("server did not start")
	}
	return addrs{}, cancel, done
}

func TestServeChat(t *testing.T) {
	setup(t)
	a, cancel, done := start(t, Options{Addr: "127.0.0.1:0", Provider: "echo"})

	body := `{
		"messages": [{"role": "user", "content": "over http"}],
		"nodes": [
			{"id": "s", "type": "start", "data": {"sourceType": {"type": "text"}}},
			{"id": "a", "type": "agent", "data": {"name": "Echo", "sourceType": {"type": "text"}}},
			{"id": "e", "type": "end", "data": {}}
		],
		"edges": [
			{"source": "s", "sourceHandle": "message", "target": "a", "targetHandle": "prompt"},
			{"source": "a", "sourceHandle": "result", "target": "e", "targetHandle": "input"}
		]
	}`
	resp, err := http.Post("http://"+a.api.String()+"/v1/chat", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `"finish"`)
	assert.Contains(t, string(data), "data: [DONE]")

	resp, err = http.Get("http://" + a.api.String() + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServeSeparateMetrics(t *testing.T) {
	setup(t)
	a, cancel, done := start(t, Options{Addr: "127.0.0.1:0", MetricsAddr: "127.0.0.1:0", Provider: "echo"})
	require.NotNil(t, a.metrics)

	resp, err := http.Get("http://" + a.metrics.String() + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + a.api.String() + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get("http://" + a.api.String() + "/health")
	require.NoError(t, err)
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "ok", health["status"])

	cancel()
	assert.NoError(t, <-done)
}

func TestServeUnknownProvider(t *testing.T) {
	setup(t)
	err := serve(context.Background(), &bytes.Buffer{}, Options{Addr: "127.0.0.1:0", Provider: "nope"}, nil)
	require.Error(t, err)
	assert.Equal(t, shared.ExitProviderError, shared.ExitCode(err))
}

func TestServeAddressInUse(t *testing.T) {
	setup(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	err = serve(context.Background(), &bytes.Buffer{}, Options{Addr: ln.Addr().String(), Provider: "echo"}, nil)
	require.Error(t, err)
	assert.Equal(t, shared.ExitFailure, shared.ExitCode(err))
}

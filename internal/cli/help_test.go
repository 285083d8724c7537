// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() *cobra.Command {
	root := &cobra.Command{Use: "test", Short: "Test command"}
	root.PersistentFlags().Bool("verbose", false, "Verbose output")
	root.AddGroup(&cobra.Group{ID: "workflow", Title: "Workflow Commands:"})

	sample := &cobra.Command{
		Use:     "sample",
		Short:   "Sample subcommand",
		Example: "  test sample --flag value",
		GroupID: "workflow",
		Run:     func(*cobra.Command, []string) {},
	}
	sample.Flags().StringP("flag", "f", "fallback", "A sample flag")
	root.AddCommand(sample)

	root.AddCommand(&cobra.Command{Use: "secret", Hidden: true, Run: func(*cobra.Command, []string) {}})

	root.SetHelpCommand(NewHelpCommand(root))
	return root
}

func runHelp(t *testing.T, root *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(append([]string{"help"}, args...))
	err := root.Execute()
	return buf.String(), err
}

func TestHelpListJSON(t *testing.T) {
	out, err := runHelp(t, sampleTree(), "--json")
	require.NoError(t, err)

	var resp HelpResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Command)

	var names []string
	for _, c := range resp.Commands {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "sample")
	assert.NotContains(t, names, "secret")
	assert.NotContains(t, names, "help")

	require.Len(t, resp.GlobalFlags, 1)
	assert.Equal(t, "verbose", resp.GlobalFlags[0].Name)
}

func TestHelpCommandJSON(t *testing.T) {
	out, err := runHelp(t, sampleTree(), "sample", "--json")
	require.NoError(t, err)

	var resp HelpResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.NotNil(t, resp.Command)
	assert.Empty(t, resp.Commands)

	c := resp.Command
	assert.Equal(t, "sample", c.Name)
	assert.Equal(t, "Sample subcommand", c.Summary)
	assert.Equal(t, "workflow", c.Group)
	assert.Equal(t, "test sample [flags]", c.Usage)
	assert.NotEmpty(t, c.Example)

	require.Len(t, c.Flags, 1, "inherited and help flags are not repeated per command")
	assert.Equal(t, FlagHelp{Name: "flag", Short: "f", Usage: "A sample flag", Default: "fallback"}, c.Flags[0])
}

func TestHelpUnknownCommand(t *testing.T) {
	_, err := runHelp(t, sampleTree(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown command "nope"`)
}

func TestHelpHumanOutput(t *testing.T) {
	out, err := runHelp(t, sampleTree())
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(strings.TrimSpace(out), "{"))
	assert.Contains(t, out, "sample")
}

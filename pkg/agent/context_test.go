package agent

import (
	"strings"
	"testing"

	"github.com/tombee/chatflow/pkg/llm"
)

func TestContextManager_Prune(t *testing.T) {
	cm := NewContextManager(300)

	messages := []llm.Message{
		{Role: llm.MessageRoleSystem, Content: "You are a helpful assistant"},
		{Role: llm.MessageRoleUser, Content: strings.Repeat("a", 500)},
		{Role: llm.MessageRoleAssistant, Content: strings.Repeat("b", 500)},
		{Role: llm.MessageRoleUser, Content: strings.Repeat("c", 500)},
		{Role: llm.MessageRoleAssistant, Content: strings.Repeat("d", 500)},
	}

	pruned := cm.Prune(messages)

	if len(pruned) == 0 || pruned[0].Role != llm.MessageRoleSystem {
		t.Fatal("Prune should keep the system message first")
	}
	if pruned[len(pruned)-1].Content != messages[len(messages)-1].Content {
		t.Error("Prune should keep the newest message")
	}
	if len(pruned) >= len(messages) {
		t.Errorf("expected messages to be dropped, got %d of %d", len(pruned), len(messages))
	}
	if tokens := cm.EstimateTokens(pruned); tokens > cm.maxTokens {
		t.Errorf("Pruned messages still exceed limit: %d > %d", tokens, cm.maxTokens)
	}

	// Survivors keep their chronological order.
	for i := 2; i < len(pruned); i++ {
		if pruned[i].Content[0] < pruned[i-1].Content[0] && pruned[i-1].Role != llm.MessageRoleSystem {
			t.Errorf("messages out of order at %d", i)
		}
	}
}

func TestContextManager_PruneEmptyMessages(t *testing.T) {
	cm := NewContextManager(1000)

	pruned := cm.Prune([]llm.Message{})
	if len(pruned) != 0 {
		t.Errorf("Pruning empty messages should return empty slice, got %d messages", len(pruned))
	}
}

func TestContextManager_PruneKeepsNewestEvenWhenTooLarge(t *testing.T) {
	cm := NewContextManager(100)

	messages := []llm.Message{
		{Role: llm.MessageRoleSystem, Content: "System prompt"},
		{Role: llm.MessageRoleUser, Content: strings.Repeat("x", 1000)},
		{Role: llm.MessageRoleUser, Content: strings.Repeat("y", 1000)},
	}

	pruned := cm.Prune(messages)
	if len(pruned) != 2 {
		t.Fatalf("expected system and newest message, got %d", len(pruned))
	}
	if pruned[1].Content[0] != 'y' {
		t.Error("expected the newest message to survive")
	}
}

func TestContextManager_PruneDropsOrphanedToolResults(t *testing.T) {
	cm := NewContextManager(120)

	messages := []llm.Message{
		{Role: llm.MessageRoleUser, Content: strings.Repeat("q", 400)},
		{Role: llm.MessageRoleAssistant, ToolCalls: []llm.ToolCall{{ID: "1", Name: "lookup", Arguments: strings.Repeat("a", 200)}}},
		{Role: llm.MessageRoleTool, Content: "result", ToolCallID: "1"},
		{Role: llm.MessageRoleAssistant, Content: "answer"},
	}

	pruned := cm.Prune(messages)
	if pruned[0].Role == llm.MessageRoleTool {
		t.Error("a tool result must not lead the pruned conversation")
	}
	if pruned[len(pruned)-1].Content != "answer" {
		t.Error("expected the newest message to survive")
	}
}

func TestContextManager_EstimateTokens(t *testing.T) {
	cm := NewContextManager(1000)

	plain := llm.Message{Role: llm.MessageRoleUser, Content: strings.Repeat("a", 40)}
	if got := cm.estimateMessageTokens(&plain); got != 20 {
		t.Errorf("expected 20 tokens, got %d", got)
	}

	withCall := llm.Message{
		Role:      llm.MessageRoleAssistant,
		ToolCalls: []llm.ToolCall{{Name: "lookup", Arguments: strings.Repeat("b", 40)}},
	}
	// 10 overhead + 1 for the name + 10 for the arguments + 20 call overhead.
	if got := cm.estimateMessageTokens(&withCall); got != 41 {
		t.Errorf("expected 41 tokens, got %d", got)
	}

	if got := cm.EstimateTokens([]llm.Message{plain, withCall}); got != 61 {
		t.Errorf("expected 61 tokens, got %d", got)
	}
}

func TestContextManager_TruncateContent(t *testing.T) {
	cm := NewContextManager(1000)

	tests := []struct {
		name      string
		content   string
		maxTokens int
		want      string
	}{
		{"fits", "short text", 10, "short text"},
		{"word boundary", "the quick brown fox jumps", 4, "the quick..."},
		{"tiny budget", "abcdefgh", 0, "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cm.TruncateContent(tt.content, tt.maxTokens); got != tt.want {
				t.Errorf("TruncateContent() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestContextManager_ShouldPruneAndStats(t *testing.T) {
	cm := NewContextManager(100)

	small := []llm.Message{{Role: llm.MessageRoleUser, Content: "hi"}}
	if cm.ShouldPrune(small) {
		t.Error("small conversation should not need pruning")
	}

	large := []llm.Message{{Role: llm.MessageRoleUser, Content: strings.Repeat("z", 400)}}
	if !cm.ShouldPrune(large) {
		t.Error("large conversation should need pruning")
	}

	stats := cm.GetStats(large)
	if stats.MessageCount != 1 || stats.MaxTokens != 100 || stats.EstimatedTokens != 110 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.UtilizationPct < 109.9 || stats.UtilizationPct > 110.1 {
		t.Errorf("expected 110%% utilization, got %v", stats.UtilizationPct)
	}
}

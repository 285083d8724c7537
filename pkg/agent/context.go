package agent

import (
	"strings"

	"github.com/tombee/chatflow/pkg/llm"
)

// ContextManager keeps a conversation inside the model's context window.
type ContextManager struct {
	// maxTokens is the maximum context window size
	maxTokens int

	// pruneThreshold is the token count at which pruning should occur
	pruneThreshold int
}

// NewContextManager creates a new context manager.
func NewContextManager(maxTokens int) *ContextManager {
	return &ContextManager{
		maxTokens:      maxTokens,
		pruneThreshold: int(float64(maxTokens) * 0.8), // Prune at 80% capacity
	}
}

// ShouldPrune checks if the message history should be pruned.
func (cm *ContextManager) ShouldPrune(messages []llm.Message) bool {
	return cm.EstimateTokens(messages) > cm.pruneThreshold
}

// Prune drops the oldest messages until the conversation fits the window.
// A leading system message and the newest message are always kept, and a
// tool result is never kept without the assistant turn that requested it.
func (cm *ContextManager) Prune(messages []llm.Message) []llm.Message {
	if len(messages) == 0 {
		return messages
	}

	var head []llm.Message
	rest := messages
	if messages[0].Role == llm.MessageRoleSystem {
		head, rest = messages[:1], messages[1:]
	}
	if len(rest) == 0 {
		return append([]llm.Message(nil), head...)
	}

	budget := cm.maxTokens - cm.EstimateTokens(head)
	start := len(rest) - 1
	budget -= cm.estimateMessageTokens(&rest[start])
	for i := start - 1; i >= 0; i-- {
		cost := cm.estimateMessageTokens(&rest[i])
		if budget-cost < 0 {
			break
		}
		budget -= cost
		start = i
	}
	for start < len(rest)-1 && rest[start].Role == llm.MessageRoleTool {
		start++
	}

	pruned := make([]llm.Message, 0, len(head)+len(rest)-start)
	pruned = append(pruned, head...)
	return append(pruned, rest[start:]...)
}

// EstimateTokens estimates the total token count for a list of messages
// with a four characters per token heuristic.
func (cm *ContextManager) EstimateTokens(messages []llm.Message) int {
	total := 0
	for i := range messages {
		total += cm.estimateMessageTokens(&messages[i])
	}
	return total
}

func (cm *ContextManager) estimateMessageTokens(msg *llm.Message) int {
	// Rough estimate: 4 characters per token, plus overhead for the role.
	tokens := len(msg.Content)/4 + 10

	for _, call := range msg.ToolCalls {
		tokens += len(call.Name)/4 + len(call.Arguments)/4
		tokens += 20 // Overhead for tool call structure
	}
	return tokens
}

// TruncateContent truncates content to fit within a token budget.
func (cm *ContextManager) TruncateContent(content string, maxTokens int) string {
	maxChars := maxTokens * 4
	if len(content) <= maxChars {
		return content
	}
	if maxChars <= 3 {
		return "..."
	}

	truncated := content[:maxChars-3]
	// Try to truncate at a word boundary
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > 0 {
		truncated = truncated[:lastSpace]
	}
	return truncated + "..."
}

// ContextStats describes context window usage.
type ContextStats struct {
	MessageCount    int
	EstimatedTokens int
	MaxTokens       int
	UtilizationPct  float64
}

// GetStats returns statistics about the context usage.
func (cm *ContextManager) GetStats(messages []llm.Message) ContextStats {
	estimated := cm.EstimateTokens(messages)
	return ContextStats{
		MessageCount:    len(messages),
		EstimatedTokens: estimated,
		MaxTokens:       cm.maxTokens,
		UtilizationPct:  float64(estimated) / float64(cm.maxTokens) * 100,
	}
}

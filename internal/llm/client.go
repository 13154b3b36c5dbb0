package llm

import (
	"context"
	"errors"
	"time"

	"gwi.com/conversation-assistant/internal/metrics"
	"gwi.com/conversation-assistant/internal/store"
)

// ErrEmptyPrompt is returned when no user or assistant message is left to send.
var ErrEmptyPrompt = errors.New("prompt history is empty for chat completion")

const (
	OperationModeration = "moderation"
	OperationCompletion = "completion"
)

// Client is the remote text-model service: a flag check and a single-turn completion.
type Client interface {
	// IsFlagged reports whether text violates the provider's content policy.
	IsFlagged(ctx context.Context, text string) (bool, error)
	// Complete returns the model reply, or nil when the remote produced no content.
	Complete(ctx context.Context, req CompletionRequest) (*string, error)
	Close() error
}

type CompletionRequest struct {
	System    string
	History   []store.Message
	Model     string
	MaxTokens int
}

// Turn is one prompt element sent to the model.
type Turn struct {
	Role    store.Role
	Content string
}

// PromptHistory keeps only user and assistant messages, in order.
// System messages stored in a conversation never reach the model; the
// request's own system instruction is the only system element.
func PromptHistory(messages []store.Message) []Turn {
	turns := make([]Turn, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case store.RoleUser, store.RoleAssistant:
			turns = append(turns, Turn{Role: msg.Role, Content: msg.Content})
		}
	}
	return turns
}

// BuildPrompt prepends the system instruction to the filtered history.
func BuildPrompt(system string, messages []store.Message) []Turn {
	history := PromptHistory(messages)
	prompt := make([]Turn, 0, len(history)+1)
	prompt = append(prompt, Turn{Role: store.RoleSystem, Content: system})
	return append(prompt, history...)
}

func observe(provider, operation string, start time.Time, err error) {
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
	}
	metrics.LLMRequestsTotal.WithLabelValues(provider, operation, status).Inc()
	metrics.LLMRequestDuration.WithLabelValues(provider, operation).Observe(time.Since(start).Seconds())
}

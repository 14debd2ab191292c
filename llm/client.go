package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ryebridge/cobalt/session"
	"github.com/ryebridge/cobalt/tools"
)

// StreamHandler receives incremental assistant text as it arrives from the
// provider. Implementations must be fast; they run on the stream goroutine.
type StreamHandler func(delta string)

// LLMClient is the interface for interacting with a Large Language Model.
type LLMClient interface {
	Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error)
}

// StreamingLLMClient is implemented by providers that can deliver the
// assistant response incrementally. The returned message is the complete,
// accumulated response; onDelta sees the same text in pieces.
type StreamingLLMClient interface {
	LLMClient
	ChatStream(ctx context.Context, messages []session.Message, availableTools []tools.Tool, onDelta StreamHandler) (*session.Message, error)
}

// Chat sends one turn, streaming when both the client and the caller support
// it. With a nil onDelta, or a non-streaming client, it falls back to the
// blocking call.
func Chat(ctx context.Context, client LLMClient, messages []session.Message, availableTools []tools.Tool, onDelta StreamHandler) (*session.Message, error) {
	if sc, ok := client.(StreamingLLMClient); ok && onDelta != nil {
		return sc.ChatStream(ctx, messages, availableTools, onDelta)
	}
	return client.Chat(ctx, messages, availableTools)
}

// MockLLMClient is a scriptable client for testing. Each call consumes the
// next queued response; when the queue is empty it parrots the last user
// message.
type MockLLMClient struct {
	Responses []*session.Message
	Calls     int
}

func (m *MockLLMClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	m.Calls++
	if len(m.Responses) > 0 {
		resp := m.Responses[0]
		m.Responses = m.Responses[1:]
		return resp, nil
	}
	lastUserMessage := messages[len(messages)-1].Content
	return &session.Message{
		Role:    "assistant",
		Content: fmt.Sprintf("mock response to: %s", lastUserMessage),
	}, nil
}

// ChatStream delivers the mock response word by word so callers can exercise
// their streaming paths.
func (m *MockLLMClient) ChatStream(ctx context.Context, messages []session.Message, availableTools []tools.Tool, onDelta StreamHandler) (*session.Message, error) {
	resp, err := m.Chat(ctx, messages, availableTools)
	if err != nil {
		return nil, err
	}
	if onDelta != nil && resp.Content != "" {
		for _, word := range strings.SplitAfter(resp.Content, " ") {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			onDelta(word)
		}
	}
	return resp, nil
}

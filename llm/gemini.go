package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/google/generative-ai-go/genai"
	"github.com/ryebridge/cobalt/errors"
	"github.com/ryebridge/cobalt/session"
	"github.com/ryebridge/cobalt/tools"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiLLMClient is a client for the Google Gemini API.
type GeminiLLMClient struct {
	model *genai.GenerativeModel
}

// NewGeminiLLMClient creates a new GeminiLLMClient.
// It requires the GEMINI_API_KEY environment variable to be set.
func NewGeminiLLMClient(ctx context.Context, modelName string) (*GeminiLLMClient, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create genai client")
	}

	model := client.GenerativeModel(modelName)

	return &GeminiLLMClient{
		model: model,
	}, nil
}

// Chat sends a chat request to the Gemini API.
func (g *GeminiLLMClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	chatSession, lastMessage := g.prepare(messages, availableTools)
	resp, err := chatSession.SendMessage(ctx, lastMessage.Parts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send message to Gemini")
	}

	var out session.Message
	if err := appendGeminiResponse(ctx, &out, resp, availableTools, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChatStream sends a chat request using the streaming API, invoking onDelta
// for each text part as it arrives.
func (g *GeminiLLMClient) ChatStream(ctx context.Context, messages []session.Message, availableTools []tools.Tool, onDelta StreamHandler) (*session.Message, error) {
	chatSession, lastMessage := g.prepare(messages, availableTools)
	iter := chatSession.SendMessageStream(ctx, lastMessage.Parts...)

	var out session.Message
	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "Gemini stream failed")
		}
		if err := appendGeminiResponse(ctx, &out, resp, availableTools, onDelta); err != nil {
			return nil, err
		}
	}
	return &out, nil
}

func (g *GeminiLLMClient) prepare(messages []session.Message, availableTools []tools.Tool) (*genai.ChatSession, *genai.Content) {
	history := convertMessagesToGeminiContent(messages)
	g.model.Tools = convertToolsToGeminiTools(availableTools)

	// The last message is the new prompt.
	lastMessage := history[len(history)-1]
	chatSession := g.model.StartChat()
	chatSession.History = history[:len(history)-1]
	return chatSession, lastMessage
}

// convertMessagesToGeminiContent converts our internal message format to Gemini's.
func convertMessagesToGeminiContent(messages []session.Message) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range messages {
		role := "user" // Default to user
		if msg.Role == "assistant" {
			role = "model"
		}
		// Note: The "tool" role needs special handling if we were to process tool responses,
		// which would typically be appended as a genai.Part in a new user message.
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}
	return contents
}

// convertToolsToGeminiTools converts our Tool interface to Gemini's FunctionDeclaration format.
func convertToolsToGeminiTools(ts []tools.Tool) []*genai.Tool {
	if len(ts) == 0 {
		return nil
	}
	var geminiTools []*genai.Tool
	var funcDecls []*genai.FunctionDeclaration

	for _, tool := range ts {
		// For now, we assume every tool takes a generic map of string-to-any arguments.
		// A more advanced implementation might involve extending the Tool interface
		// to provide a more detailed JSON schema for its parameters.
		fd := &genai.FunctionDeclaration{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"args": {
						Type:        genai.TypeObject,
						Description: "Arguments for the function call, as a map.",
					},
				},
				Required: []string{"args"},
			},
		}
		funcDecls = append(funcDecls, fd)
	}
	geminiTools = append(geminiTools, &genai.Tool{FunctionDeclarations: funcDecls})
	return geminiTools
}

// appendGeminiResponse folds one Gemini response into out, executing any
// requested function calls inline. When onDelta is non-nil, text parts are
// also forwarded to it as they are seen.
func appendGeminiResponse(ctx context.Context, out *session.Message, resp *genai.GenerateContentResponse, availableTools []tools.Tool, onDelta StreamHandler) error {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return errors.New("received an empty response from Gemini")
	}

	out.Role = "assistant"
	content := resp.Candidates[0].Content

	for _, part := range content.Parts {
		switch v := part.(type) {
		case genai.Text:
			if onDelta != nil && string(v) != "" {
				onDelta(string(v))
			}
			out.Content += string(v)
		case genai.FunctionCall:
			// Find the tool that the model wants to call.
			var calledTool tools.Tool
			for _, tool := range availableTools {
				if tool.Name() == v.Name {
					calledTool = tool
					break
				}
			}

			// If the tool is not found, report an error back to the model. This should
			// not happen if the model is behaving correctly.
			if calledTool == nil {
				out.Content += fmt.Sprintf("Error: model requested to call unavailable tool '%s'", v.Name)
				continue
			}

			// Extract the arguments. As defined in `convertToolsToGeminiTools`,
			// the arguments are nested under an "args" key.
			toolArgs, ok := v.Args["args"].(map[string]interface{})
			if !ok {
				out.Content += fmt.Sprintf("Error: invalid arguments for tool '%s', expected a map under 'args' key", v.Name)
				continue
			}

			// Execute the tool.
			result, err := calledTool.Execute(ctx, toolArgs)
			if err != nil {
				// Report tool execution error back to the model.
				out.Content += fmt.Sprintf("Error executing tool '%s': %v", v.Name, err)
				continue
			}

			// Append the tool's result to the response content so the model
			// sees it on the next turn.
			out.Content += result
		default:
			return errors.New("unsupported part type in Gemini response: %T", v)
		}
	}
	return nil
}

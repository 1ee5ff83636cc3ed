// Package llm talks to an OpenAI-compatible chat completion endpoint
// (OpenAI itself, or a local Ollama server exposing /v1).
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"docrag/internal/retriever"

	"github.com/sashabaranov/go-openai"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// Client wraps a chat completion backend with a fixed model and temperature.
type Client struct {
	client      *openai.Client
	model       string
	temperature float32
}

// New builds a Client. baseURL may point at any OpenAI-compatible server;
// empty means api.openai.com.
func New(apiKey, model, baseURL string, temperature float64) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Client{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: float32(temperature),
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// WarmUp sends a throwaway one-token request so that a local server loads
// the model before the first real question. Errors are returned so the
// caller can fail fast on a bad base URL or missing model.
func (c *Client) WarmUp(ctx context.Context) error {
	_, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  []openai.ChatCompletionMessage{{Role: RoleUser, Content: "hi"}},
		MaxTokens: 1,
	})
	if err != nil {
		return fmt.Errorf("warm-up request failed: %w", err)
	}
	return nil
}

// Chat sends the history plus a new user message and returns the reply.
func (c *Client) Chat(ctx context.Context, history []Message, userMsg string) (string, error) {
	msgs := toOpenAI(history)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: RoleUser, Content: userMsg})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return CleanResponse(resp.Choices[0].Message.Content), nil
}

// ChatStream is like Chat but delivers the reply incrementally through
// onDelta and returns the full assembled text. A non-nil error from
// onDelta aborts the stream.
func (c *Client) ChatStream(ctx context.Context, history []Message, userMsg string, onDelta func(string) error) (string, error) {
	msgs := toOpenAI(history)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: RoleUser, Content: userMsg})

	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: c.temperature,
		Stream:      true,
	})
	if err != nil {
		return "", fmt.Errorf("chat stream error: %w", err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("chat stream recv error: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return "", err
			}
		}
	}
	return CleanResponse(full.String()), nil
}

// Summarize asks the model for a short summary of text in the given language.
func (c *Client) Summarize(ctx context.Context, text, language string) (string, error) {
	if language == "" {
		language = "English"
	}
	prompt := fmt.Sprintf("Summarize the following text in %s. Two paragraphs will be enough.\n\n%s", language, text)
	return c.Chat(ctx, nil, prompt)
}

// BuildRAGPrompt assembles the retrieval-augmented prompt: the retrieved
// passages first, then the question restated at the end so the model does
// not lose it in a long context.
func BuildRAGPrompt(question string, results []retriever.Result) string {
	var b strings.Builder
	b.WriteString("Answer the question based on the following information:\n\n")
	for i, r := range results {
		fmt.Fprintf(&b, "Document %d (%s)", i+1, r.FileName)
		if r.Title != "" {
			fmt.Fprintf(&b, " - %s", r.Title)
		}
		fmt.Fprintf(&b, ":\n%s\n\n", r.Text)
	}
	fmt.Fprintf(&b, "Here is the question again: %s\n\n", question)
	b.WriteString("Answer the question naturally, in the user's language. If no question is asked, just keep the conversation going.")
	return b.String()
}

func toOpenAI(history []Message) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	for _, m := range history {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return msgs
}

// CleanResponse strips blank lines and trailing whitespace from model
// output. Some local models pad replies with empty lines.
func CleanResponse(s string) string {
	lines := strings.Split(s, "\n")
	var kept []string
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		kept = append(kept, strings.TrimRight(line, " \t"))
	}
	return strings.Join(kept, "\n")
}

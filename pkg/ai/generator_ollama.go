package ai

import (
	"context"
	"fmt"
	"strings"
)

// OllamaGenerator wraps OllamaClient with a fixed model for text generation
// using the Ollama /api/chat endpoint.
type OllamaGenerator struct {
	client *OllamaClient
	model  string
}

// NewOllamaGenerator builds an Ollama-based Generator.
func NewOllamaGenerator(client *OllamaClient, model string) *OllamaGenerator {
	return &OllamaGenerator{client: client, model: model}
}

// GenerateText implements TextGenerator using Ollama /api/chat.
func (g *OllamaGenerator) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return g.GenerateChat(ctx, systemPrompt, []Turn{{Role: RoleUser, Content: userPrompt}})
}

// GenerateChat implements ChatGenerator using Ollama /api/chat.
func (g *OllamaGenerator) GenerateChat(ctx context.Context, systemPrompt string, turns []Turn) (string, error) {
	model := strings.TrimSpace(g.model)
	if model == "" {
		return "", fmt.Errorf("ollama generation model required")
	}

	reqBody := ollamaChatRequest{
		Model:    model,
		Messages: chatMessages(systemPrompt, turns),
		Stream:   false,
	}

	var resp ollamaChatResponse
	if err := g.client.doJSON(ctx, "/api/chat", reqBody, &resp); err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	if strings.TrimSpace(resp.Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Message.Content, nil
}

// chatMessages renders a conversation in the system/user/assistant shape
// shared by Ollama and OpenAI-compatible servers.
func chatMessages(systemPrompt string, turns []Turn) []chatMessage {
	messages := make([]chatMessage, 0, len(turns)+1)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	for _, t := range turns {
		role := "user"
		if t.Role == RoleModel {
			role = "assistant"
		}
		messages = append(messages, chatMessage{Role: role, Content: t.Content})
	}
	return messages
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type ollamaChatResponse struct {
	Message chatMessage `json:"message"`
}

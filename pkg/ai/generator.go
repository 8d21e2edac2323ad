package ai

import "context"

// Conversation roles. Providers that call the model side "assistant"
// translate RoleModel on the way out.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is one message of a multi-turn conversation.
type Turn struct {
	Role    string
	Content string
}

// TextGenerator generates text from a system prompt and user prompt.
// All LLM providers (Gemini, Ollama, OpenAI-compatible) implement this interface.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ChatGenerator continues a conversation given its full history.
type ChatGenerator interface {
	GenerateChat(ctx context.Context, systemPrompt string, turns []Turn) (string, error)
}

// Generator is a provider usable both for one-shot prompts and chat.
type Generator interface {
	TextGenerator
	ChatGenerator
}

// AudioResponder answers a spoken message directly from its audio bytes.
type AudioResponder interface {
	RespondToAudio(ctx context.Context, systemPrompt, mimeType string, audio []byte) (string, error)
}

package providerrouter

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"

	"github.com/floegence/forge/internal/forgeerr"
)

// OpenAICompatibleProvider speaks the OpenAI chat-completions wire format
// against an arbitrary base URL. It backs the "openai-compatible" provider
// directly and, via NewGeminiProvider/NewOllamaProvider, the "gemini" and
// "ollama" aliases, since both speak the same surface with a different
// host, key, and default model.
type OpenAICompatibleProvider struct {
	name         string
	client       openai.Client
	apiKey       string
	requireKey   bool
	defaultModel string
	timeout      time.Duration
}

func NewOpenAICompatibleProvider(apiKey, baseURL, defaultModel string) *OpenAICompatibleProvider {
	apiKey = strings.TrimSpace(apiKey)
	opts := []ooption.RequestOption{}
	if apiKey != "" {
		opts = append(opts, ooption.WithAPIKey(apiKey))
	}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, ooption.WithBaseURL(strings.TrimSpace(baseURL)))
	}
	return &OpenAICompatibleProvider{
		name:         "openai-compatible",
		client:       openai.NewClient(opts...),
		apiKey:       apiKey,
		requireKey:   true,
		defaultModel: defaultModel,
		timeout:      defaultRequestTimeout,
	}
}

// NewGeminiProvider wires the openai-compatible shaper against Google AI
// Studio's OpenAI-compatible endpoint, with the gemini -> gemini-2.0-flash
// model alias.
func NewGeminiProvider(apiKey string) *OpenAICompatibleProvider {
	p := NewOpenAICompatibleProvider(apiKey, "https://generativelanguage.googleapis.com/v1beta/openai/", "gemini-2.0-flash")
	p.name = "gemini"
	return p
}

// NewOllamaProvider wires the openai-compatible shaper against a local
// Ollama daemon. Ollama has no API key and runs model inference that can
// take far longer than a hosted API, hence the 300s timeout.
func NewOllamaProvider(baseURL, defaultModel string) *OpenAICompatibleProvider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "http://localhost:11434/v1/"
	}
	if strings.TrimSpace(defaultModel) == "" {
		defaultModel = "llama3.1"
	}
	p := NewOpenAICompatibleProvider("ollama", baseURL, defaultModel)
	p.name = "ollama"
	p.requireKey = false
	p.timeout = ollamaRequestTimeout
	return p
}

func (p *OpenAICompatibleProvider) Name() string         { return p.name }
func (p *OpenAICompatibleProvider) Timeout() time.Duration { return p.timeout }

func (p *OpenAICompatibleProvider) Available() bool {
	if p == nil {
		return false
	}
	if p.requireKey && p.apiKey == "" {
		return false
	}
	return true
}

func (p *OpenAICompatibleProvider) ResolveModel(alias string) string {
	model := alias
	if idx := strings.Index(model, "/"); idx >= 0 {
		model = model[idx+1:]
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return p.defaultModel
	}
	return model
}

func (p *OpenAICompatibleProvider) Generate(ctx context.Context, model, systemInstruction, userPrompt string, maxTokens int, temperature float64, onChunk func(string)) (string, Usage, error) {
	if p == nil {
		return "", Usage{}, forgeerr.ErrNotConfigured
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	if strings.TrimSpace(model) == "" {
		model = p.defaultModel
	}

	messages := []openai.ChatCompletionMessageParamUnion{}
	if strings.TrimSpace(systemInstruction) != "" {
		messages = append(messages, openai.SystemMessage(strings.TrimSpace(systemInstruction)))
	}
	messages = append(messages, openai.UserMessage(userPrompt))

	params := openai.ChatCompletionNewParams{
		Model:     model,
		Messages:  messages,
		MaxTokens: openai.Int(int64(maxTokens)),
	}
	if temperature > 0 {
		params.Temperature = openai.Float(temperature)
	}

	if onChunk == nil {
		completion, err := p.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", Usage{}, forgeerr.WithStage(p.name, fmt.Errorf("%w: %s", forgeerr.ErrProviderError, err))
		}
		return extractChatCompletionText(completion), chatCompletionUsage(completion), nil
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	var textBuf strings.Builder
	var usage Usage
	for stream.Next() {
		chunk := stream.Current()
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			textBuf.WriteString(choice.Delta.Content)
			onChunk(choice.Delta.Content)
		}
		if chunk.Usage.TotalTokens > 0 {
			usage = Usage{InputTokens: int(chunk.Usage.PromptTokens), OutputTokens: int(chunk.Usage.CompletionTokens)}
		}
	}
	if err := stream.Err(); err != nil {
		return textBuf.String(), usage, err
	}
	return strings.TrimSpace(textBuf.String()), usage, nil
}

func extractChatCompletionText(completion *openai.ChatCompletion) string {
	if completion == nil || len(completion.Choices) == 0 {
		return ""
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content)
}

func chatCompletionUsage(completion *openai.ChatCompletion) Usage {
	if completion == nil {
		return Usage{}
	}
	return Usage{InputTokens: int(completion.Usage.PromptTokens), OutputTokens: int(completion.Usage.CompletionTokens)}
}

package providerrouter

import (
	"context"
	"fmt"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/floegence/forge/internal/forgeerr"
)

const anthropicDefaultModel = "claude-sonnet-4-5"

// AnthropicProvider talks to the Anthropic Messages API directly, streaming
// text deltas through onChunk when the caller asked for streaming.
type AnthropicProvider struct {
	client       anthropic.Client
	apiKey       string
	defaultModel string
	timeout      time.Duration
}

func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	apiKey = strings.TrimSpace(apiKey)
	opts := []aoption.RequestOption{}
	if apiKey != "" {
		opts = append(opts, aoption.WithAPIKey(apiKey))
	}
	return &AnthropicProvider{
		client:       anthropic.NewClient(opts...),
		apiKey:       apiKey,
		defaultModel: anthropicDefaultModel,
		timeout:      defaultRequestTimeout,
	}
}

func (p *AnthropicProvider) Name() string         { return "anthropic-direct" }
func (p *AnthropicProvider) Available() bool       { return p != nil && p.apiKey != "" }
func (p *AnthropicProvider) Timeout() time.Duration { return p.timeout }

func (p *AnthropicProvider) ResolveModel(alias string) string {
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

func (p *AnthropicProvider) Generate(ctx context.Context, model, systemInstruction, userPrompt string, maxTokens int, temperature float64, onChunk func(string)) (string, Usage, error) {
	if p == nil {
		return "", Usage{}, forgeerr.ErrNotConfigured
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	if strings.TrimSpace(model) == "" {
		model = p.defaultModel
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}
	if strings.TrimSpace(systemInstruction) != "" {
		params.System = []anthropic.TextBlockParam{{Text: strings.TrimSpace(systemInstruction)}}
	}
	if temperature > 0 {
		params.Temperature = anthropic.Float(temperature)
	}

	if onChunk == nil {
		msg, err := p.client.Messages.New(ctx, params)
		if err != nil {
			return "", Usage{}, forgeerr.WithStage("anthropic", fmt.Errorf("%w: %s", forgeerr.ErrProviderError, err))
		}
		return extractAnthropicText(msg), anthropicUsage(msg), nil
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	msg := anthropic.Message{}
	var textBuf strings.Builder
	for stream.Next() {
		event := stream.Current()
		if err := msg.Accumulate(event); err != nil {
			return textBuf.String(), Usage{}, err
		}
		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && text.Text != "" {
				textBuf.WriteString(text.Text)
				onChunk(text.Text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return textBuf.String(), Usage{}, err
	}

	out := strings.TrimSpace(textBuf.String())
	if out == "" {
		out = extractAnthropicText(&msg)
	}
	return out, anthropicUsage(&msg), nil
}

func extractAnthropicText(msg *anthropic.Message) string {
	if msg == nil {
		return ""
	}
	var b strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}
	return strings.TrimSpace(b.String())
}

func anthropicUsage(msg *anthropic.Message) Usage {
	if msg == nil {
		return Usage{}
	}
	return Usage{InputTokens: int(msg.Usage.InputTokens), OutputTokens: int(msg.Usage.OutputTokens)}
}

package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"google.golang.org/genai"
)

const (
	DefaultGeminiModel = "gemini-2.0-flash"
	DefaultOpenAIModel = "gpt-4o-mini"

	maxOutputTokens = 300
)

var errEmptyResponse = errors.New("empty model response")

type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// GeminiModel calls generateContent with a JSON response MIME type.
type GeminiModel struct {
	client *genai.Client
	model  string
}

func NewGeminiModel(ctx context.Context, cfg GeminiConfig) (*GeminiModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: api key required")
	}
	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	return &GeminiModel{client: client, model: cfg.Model}, nil
}

func (m *GeminiModel) Name() string { return "gemini:" + m.model }

func (m *GeminiModel) Complete(ctx context.Context, system, prompt string) (string, error) {
	temp := float32(0)
	resp, err := m.client.Models.GenerateContent(ctx, m.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       &temp,
		MaxOutputTokens:   maxOutputTokens,
	})
	if err != nil {
		return "", fmt.Errorf("gemini: generate: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", errEmptyResponse
	}
	return text, nil
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// OpenAIModel calls chat completions in JSON object mode.
type OpenAIModel struct {
	client openai.Client
	model  string
}

func NewOpenAIModel(cfg OpenAIConfig) (*OpenAIModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	return &OpenAIModel{client: openai.NewClient(opts...), model: cfg.Model}, nil
}

func (m *OpenAIModel) Name() string { return "openai:" + m.model }

func (m *OpenAIModel) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := m.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: m.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
		Temperature:         openai.Float(0),
		MaxCompletionTokens: openai.Int(maxOutputTokens),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// NewModel selects a backend by provider name: "gemini", "openai" or "none".
func NewModel(ctx context.Context, provider string, gcfg GeminiConfig, ocfg OpenAIConfig) (Model, error) {
	switch provider {
	case "", "gemini":
		m, err := NewGeminiModel(ctx, gcfg)
		if err != nil {
			return nil, err
		}
		return m, nil
	case "openai":
		m, err := NewOpenAIModel(ocfg)
		if err != nil {
			return nil, err
		}
		return m, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("analysis: unknown provider %q", provider)
	}
}

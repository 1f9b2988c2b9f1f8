package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/sashabaranov/go-openai"

	"github.com/danielpatrickdp/mdap-controller/internal/hanoi"
	"github.com/danielpatrickdp/mdap-controller/internal/mdap"
)

// #region types
const defaultSystemPrompt = "You are a careful puzzle solver. Answer with exactly one JSON object."

// OpenAIOptions configures an OpenAI-compatible chat predictor.
type OpenAIOptions struct {
	APIKey      string
	BaseURL     string // empty uses the public endpoint
	Model       string
	Temperature float32
	MaxTokens   int
	System      string
	Template    string // text/template over mdap.Context, default hanoi.PromptTemplate
}

// OpenAI asks a chat completion endpoint for one candidate per call.
type OpenAI struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	system      string
	tmpl        *template.Template
}

// #endregion types

// #region constructor
// NewOpenAI parses the prompt template and builds the client.
func NewOpenAI(opts OpenAIOptions) (*OpenAI, error) {
	if opts.Model == "" {
		opts.Model = openai.GPT4oMini
	}
	if opts.System == "" {
		opts.System = defaultSystemPrompt
	}
	if opts.Template == "" {
		opts.Template = hanoi.PromptTemplate
	}
	tmpl, err := template.New("prompt").Funcs(template.FuncMap{"json": toJSON}).Parse(opts.Template)
	if err != nil {
		return nil, fmt.Errorf("%w: prompt template: %v", mdap.ErrInvalidConfig, err)
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	return &OpenAI{
		client:      openai.NewClientWithConfig(cfg),
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		system:      opts.System,
		tmpl:        tmpl,
	}, nil
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// #endregion constructor

// #region predict
// Prompt renders the user message for one step.
func (o *OpenAI) Prompt(in mdap.Context) (string, error) {
	var buf bytes.Buffer
	if err := o.tmpl.Execute(&buf, in); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}

// Predict implements mdap.Predictor.
func (o *OpenAI) Predict(ctx context.Context, in mdap.Context) (string, error) {
	prompt, err := o.Prompt(in)
	if err != nil {
		return "", err
	}
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: o.system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: o.temperature,
	}
	if o.maxTokens > 0 {
		req.MaxCompletionTokens = o.maxTokens
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// #endregion predict

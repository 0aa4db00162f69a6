package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOpenAIBaseURL     = "https://api.openai.com/v1"
	defaultGroqBaseURL       = "https://api.groq.com/openai/v1"
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

// openAIConfig covers every OpenAI-compatible endpoint: OpenAI itself, Groq,
// OpenRouter and local servers such as Ollama's /v1.
type openAIConfig struct {
	APIKey         string  `json:"api_key"`
	BaseURL        string  `json:"base_url"`
	Temperature    float32 `json:"temperature"`
	SendDimensions bool    `json:"send_dimensions"`
	AllowNoKey     bool    `json:"allow_no_key"`
	HTTPReferer    string  `json:"http_referer"`
	XTitle         string  `json:"x_title"`
	Timeout        int     `json:"timeout"`
}

type openAIClient struct {
	name    string
	cfg     openAIConfig
	baseURL string
	client  *http.Client
}

type openAIChatRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIChatMsg       `json:"messages"`
	Stream         bool                  `json:"stream"`
	Temperature    *float32              `json:"temperature,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIChatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openAIEmbedRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func newOpenAIClient(name, defaultBaseURL string, args interface{}) (*openAIClient, error) {
	cfg := openAIConfig{}
	if err := decodeConfig(args, &cfg); err != nil {
		return nil, err
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &openAIClient{
		name:    name,
		cfg:     cfg,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (p *openAIClient) Name() string {
	return p.name
}

func (p *openAIClient) available() bool {
	return p.cfg.APIKey != "" || p.cfg.AllowNoKey
}

func (p *openAIClient) Generate(ctx context.Context, model string, prompt Prompt) (string, error) {
	if !p.available() {
		return "", ErrUnavailable
	}
	reqBody := openAIChatRequest{Model: model}
	if prompt.System != "" {
		reqBody.Messages = append(reqBody.Messages, openAIChatMsg{Role: "system", Content: prompt.System})
	}
	reqBody.Messages = append(reqBody.Messages, openAIChatMsg{Role: "user", Content: prompt.User})
	if p.cfg.Temperature > 0 {
		t := p.cfg.Temperature
		reqBody.Temperature = &t
	}
	if prompt.JSON {
		reqBody.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}
	var out openAIChatResponse
	if err := p.post(ctx, "/chat/completions", reqBody, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%s response has no choices", p.name)
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func (p *openAIClient) Embed(ctx context.Context, model string, text string, taskType string, dimension int) ([]float32, error) {
	if !p.available() {
		return nil, ErrUnavailable
	}
	reqBody := openAIEmbedRequest{Model: model, Input: text}
	if p.cfg.SendDimensions {
		reqBody.Dimensions = dimension
	}
	var out openAIEmbedResponse
	if err := p.post(ctx, "/embeddings", reqBody, &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("%s response has no embeddings", p.name)
	}
	return out.Data[0].Embedding, nil
}

func (p *openAIClient) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.HTTPReferer != "" {
		req.Header.Set("HTTP-Referer", p.cfg.HTTPReferer)
	}
	if p.cfg.XTitle != "" {
		req.Header.Set("X-Title", p.cfg.XTitle)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%s request failed: %s: %s", p.name, resp.Status, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func registerOpenAICompatible(name, defaultBaseURL string) {
	Register(name, func(args interface{}) (IAIProvider, error) {
		return newOpenAIClient(name, defaultBaseURL, args)
	})
	RegisterEmbed(name, func(args interface{}) (IEmbedProvider, error) {
		return newOpenAIClient(name, defaultBaseURL, args)
	})
}

func init() {
	registerOpenAICompatible("openai", defaultOpenAIBaseURL)
	registerOpenAICompatible("groq", defaultGroqBaseURL)
	registerOpenAICompatible("openrouter", defaultOpenRouterBaseURL)
}

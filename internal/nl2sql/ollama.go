package nl2sql

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

type OllamaConfig struct {
	Host       string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// OllamaGateway talks to a local Ollama server's chat endpoint.
type OllamaGateway struct {
	host   string
	model  string
	client *http.Client
}

var _ Gateway = (*OllamaGateway)(nil)

func NewOllamaGateway(cfg OllamaConfig) *OllamaGateway {
	host := strings.TrimRight(strings.TrimSpace(cfg.Host), "/")
	if host == "" {
		host = "http://localhost:11434"
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "llama3.2"
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &OllamaGateway{host: host, model: model, client: client}
}

func (g *OllamaGateway) Complete(ctx context.Context, req Request) (Result, error) {
	prompt, err := BuildPrompt(req)
	if err != nil {
		return Result{}, err
	}
	body, err := json.Marshal(map[string]any{
		"model":    g.model,
		"messages": chatMessages(prompt),
		"stream":   false,
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal ollama payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("ollama request failed (is Ollama running at %s?): %w", g.host, err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read ollama response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fmt.Errorf("ollama API error status=%d body=%s", resp.StatusCode, string(rawRespBody))
	}

	var parsed struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return Result{}, fmt.Errorf("decode ollama response: %w", err)
	}

	text, err := finalizeOutput(req.Mode, parsed.Message.Content)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: text, Provider: "ollama", Model: g.model}, nil
}

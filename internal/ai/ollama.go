package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// httpClient is used for all Ollama requests; the timeout guards against
// stalled connections while context cancellation is still honoured via
// NewRequestWithContext. Streaming responses can legitimately run long.
var httpClient = &http.Client{Timeout: 120 * time.Second}

// OllamaProvider implements Provider against a local Ollama server.
type OllamaProvider struct {
	baseURL string
	model   string
}

func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	return &OllamaProvider{baseURL: strings.TrimRight(baseURL, "/"), model: model}
}

// Close is a no-op; the provider holds no persistent resources.
func (p *OllamaProvider) Close() {}

type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

func (p *OllamaProvider) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	resp, err := p.send(ctx, messages, opts, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ollama: read response: %w", err)
	}

	var or ollamaResponse
	if err := json.Unmarshal(body, &or); err != nil {
		return "", fmt.Errorf("ollama: unmarshal response: %w", err)
	}
	if or.Error != "" {
		return "", fmt.Errorf("ollama: api error: %s", or.Error)
	}
	return or.Message.Content, nil
}

// StreamChat reads the newline-delimited JSON stream and forwards each
// content chunk to emit.
func (p *OllamaProvider) StreamChat(ctx context.Context, messages []Message, opts ChatOptions, emit func(chunk string) error) error {
	resp, err := p.send(ctx, messages, opts, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var or ollamaResponse
		if err := json.Unmarshal(line, &or); err != nil {
			return fmt.Errorf("ollama: unmarshal stream chunk: %w", err)
		}
		if or.Error != "" {
			return fmt.Errorf("ollama: api error: %s", or.Error)
		}
		if or.Message.Content != "" {
			if err := emit(or.Message.Content); err != nil {
				return err
			}
		}
		if or.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("ollama: read stream: %w", err)
	}
	return nil
}

func (p *OllamaProvider) send(ctx context.Context, messages []Message, opts ChatOptions, stream bool) (*http.Response, error) {
	reqBody := ollamaRequest{
		Model:    p.model,
		Messages: messages,
		Stream:   stream,
	}
	if opts.JSONResponse {
		reqBody.Format = "json"
	}
	if opts.Temperature > 0 {
		reqBody.Options = map[string]any{"temperature": opts.Temperature}
	}

	raw, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("ollama: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: do request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("ollama: unexpected status %d: %s", resp.StatusCode, body)
	}
	return resp, nil
}

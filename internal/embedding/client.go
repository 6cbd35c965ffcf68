// Package embedding turns text into vectors via an OpenAI-compatible or
// Ollama embeddings endpoint.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/echochat/echochat/internal/metrics"
)

// Client produces one vector per input, in order.
type Client interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Config selects the embedding backend.
type Config struct {
	// Provider is "openai" (any OpenAI-compatible API) or "ollama".
	Provider string
	APIURL   string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// HTTPClient implements Client against a remote embeddings API.
type HTTPClient struct {
	client   *http.Client
	cfg      Config
	provider string
}

// NewClient validates cfg and builds the HTTP-backed client.
func NewClient(cfg Config) (*HTTPClient, error) {
	if cfg.Model == "" {
		return nil, errors.New("embedding model is required")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.openai.com/v1"
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	provider := strings.ToLower(cfg.Provider)
	switch provider {
	case "", "openai":
		provider = "openai"
	case "ollama":
	default:
		return nil, fmt.Errorf("embedding provider %q is not supported", cfg.Provider)
	}
	return &HTTPClient{
		client:   &http.Client{Timeout: cfg.Timeout},
		cfg:      cfg,
		provider: provider,
	}, nil
}

// Embed returns one vector per input, preserving order.
func (c *HTTPClient) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, errors.New("inputs are required")
	}
	var (
		vectors [][]float32
		err     error
	)
	if c.provider == "ollama" {
		vectors, err = c.embedOllama(ctx, inputs)
	} else {
		vectors, err = c.embedOpenAI(ctx, inputs)
	}
	if err != nil {
		metrics.EmbeddingCalls.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.EmbeddingCalls.WithLabelValues("ok").Inc()
	return vectors, nil
}

type openAIRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *HTTPClient) embedOpenAI(ctx context.Context, inputs []string) ([][]float32, error) {
	payload, err := json.Marshal(openAIRequest{Model: c.cfg.Model, Input: inputs})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}
	body, err := c.post(ctx, c.cfg.APIURL+"/embeddings", payload)
	if err != nil {
		return nil, err
	}
	var parsed openAIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(parsed.Data) != len(inputs) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(inputs), len(parsed.Data))
	}
	vectors := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (c *HTTPClient) embedOllama(ctx context.Context, inputs []string) ([][]float32, error) {
	// Ollama's legacy endpoint takes one prompt per call.
	vectors := make([][]float32, 0, len(inputs))
	for _, input := range inputs {
		payload, err := json.Marshal(ollamaRequest{Model: c.cfg.Model, Prompt: input})
		if err != nil {
			return nil, fmt.Errorf("marshal embed request: %w", err)
		}
		body, err := c.post(ctx, c.cfg.APIURL+"/api/embeddings", payload)
		if err != nil {
			return nil, err
		}
		var parsed ollamaResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("decode embed response: %w", err)
		}
		vectors = append(vectors, parsed.Embedding)
	}
	return vectors, nil
}

func (c *HTTPClient) post(ctx context.Context, endpoint string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// ProbeDimensions makes one embedding call and returns the vector length,
// so index setup does not hardcode a model-to-dimension table.
func ProbeDimensions(ctx context.Context, client Client) (int, error) {
	vecs, err := client.Embed(ctx, []string{"dimension probe"})
	if err != nil {
		return 0, fmt.Errorf("probe embedding dimensions: %w", err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return 0, errors.New("probe returned empty embedding")
	}
	return len(vecs[0]), nil
}

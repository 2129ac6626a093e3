package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
)

// OllamaProvider generates embeddings through a local Ollama instance.
type OllamaProvider struct {
	baseURL    string
	model      string
	dimensions int
	httpClient *http.Client
}

// OllamaOption configures an OllamaProvider.
type OllamaOption func(*OllamaProvider)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) OllamaOption {
	return func(p *OllamaProvider) {
		p.httpClient = client
	}
}

// NewOllamaProvider creates a provider targeting the given Ollama base URL.
// dimensions must match the chosen model's output size (e.g. 768 for
// nomic-embed-text).
func NewOllamaProvider(baseURL, model string, dimensions int, opts ...OllamaOption) *OllamaProvider {
	p := &OllamaProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		dimensions: dimensions,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed returns the embedding vector for a single text.
func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := ollamaEmbeddingRequest{
		Model:  p.model,
		Prompt: text,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, errors.Wrap(err, errors.EmbeddingFailed, "marshaling embedding request")
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		p.baseURL+"/api/embeddings",
		bytes.NewBuffer(jsonData),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.EmbeddingFailed, "creating embedding request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.EmbeddingFailed, "sending embedding request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.EmbeddingFailed, "reading embedding response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.WithFields(
			errors.New(errors.EmbeddingFailed, fmt.Sprintf("embedding request failed: %s", string(body))),
			errors.Fields{"status": resp.StatusCode, "model": p.model},
		)
	}

	var ollamaResp ollamaEmbeddingResponse
	if err := json.Unmarshal(body, &ollamaResp); err != nil {
		return nil, errors.Wrap(err, errors.EmbeddingFailed, "unmarshaling embedding response")
	}

	if len(ollamaResp.Embedding) != p.dimensions {
		return nil, errors.WithFields(
			errors.New(errors.EmbeddingFailed, "unexpected embedding size"),
			errors.Fields{"want": p.dimensions, "got": len(ollamaResp.Embedding)},
		)
	}

	return ollamaResp.Embedding, nil
}

// Dimensions returns the configured vector size.
func (p *OllamaProvider) Dimensions() int {
	return p.dimensions
}

package embed

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/stankur/devfeed/internal/config"
)

// Embedder turns text into vectors.
type Embedder interface {
	// EmbedBatch returns one vector per input text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Dimensions is the vector width this embedder produces.
	Dimensions() int
}

// HTTPEmbedder calls an OpenAI-compatible /embeddings endpoint. Calls go
// through a circuit breaker so a struggling provider fails fast instead of
// stalling every pipeline run behind timeouts.
type HTTPEmbedder struct {
	baseURL string
	apiKey  string
	model   string
	dim     int
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPEmbedder creates an embedder from config.
func NewHTTPEmbedder(cfg config.EmbeddingConfig) *HTTPEmbedder {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "embedding-provider",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	return &HTTPEmbedder{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		dim:     cfg.Dimensions,
		client:  &http.Client{Timeout: 60 * time.Second},
		breaker: cb,
	}
}

func (e *HTTPEmbedder) Dimensions() int { return e.dim }

// EmbedBatch embeds all texts in one provider call.
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	result, err := e.breaker.Execute(func() (any, error) {
		return e.embed(ctx, texts)
	})
	if err != nil {
		return nil, err
	}
	return result.([][]float64), nil
}

func (e *HTTPEmbedder) embed(ctx context.Context, texts []string) ([][]float64, error) {
	reqBody := map[string]any{
		"model": e.model,
		"input": texts,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding api status %d: %s", resp.StatusCode, respBody)
	}

	var result struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("embedding api returned %d vectors for %d inputs", len(result.Data), len(texts))
	}

	vecs := make([][]float64, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding api returned out-of-range index %d", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

// MockEmbedder derives deterministic vectors from input text and counts
// provider calls, for idempotency tests.
type MockEmbedder struct {
	Dim   int
	Calls int
	Err   error
}

func (m *MockEmbedder) Dimensions() int {
	if m.Dim == 0 {
		return 4
	}
	return m.Dim
}

// EmbedBatch hashes each text into a stable pseudo-vector.
func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	dim := m.Dimensions()
	vecs := make([][]float64, len(texts))
	for i, t := range texts {
		sum := sha256.Sum256([]byte(t))
		vec := make([]float64, dim)
		for j := 0; j < dim; j++ {
			bits := binary.LittleEndian.Uint32(sum[(j*4)%28:])
			vec[j] = float64(bits%1000)/1000.0 - 0.5
		}
		vecs[i] = vec
	}
	return vecs, nil
}

package llm

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
)

// embeddingCache is a fixed-size FIFO cache for embeddings, reducing
// repeated Ollama calls for identical/near-identical text (e.g. the
// Summarizer re-embedding a note payload it just validated).
type embeddingCache struct {
	mu      sync.Mutex
	items   map[string][]float64
	order   []string
	maxSize int
}

func newEmbeddingCache(maxSize int) *embeddingCache {
	return &embeddingCache{
		items:   make(map[string][]float64, maxSize),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
	}
}

func (c *embeddingCache) get(key string) ([]float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	return v, ok
}

func (c *embeddingCache) set(key string, emb []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[key]; !exists {
		if len(c.order) >= c.maxSize {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.items, oldest)
		}
		c.order = append(c.order, key)
	}
	c.items[key] = emb
}

// OllamaClient talks to a local Ollama server for both embeddings and
// text/vision generation. Satisfies both Embedder and LanguageModel.
type OllamaClient struct {
	baseURL         string
	embedModel      string
	generationModel string
	visionModel     string
	client          *http.Client
	cache           *embeddingCache
}

// NewOllamaClient builds a client pointed at baseURL (default
// http://localhost:11434), using embedModel for Embed (default
// nomic-embed-text, 768 dims) and generationModel for Generate
// (default llama3.2).
func NewOllamaClient(baseURL, embedModel, generationModel string) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if embedModel == "" {
		embedModel = "nomic-embed-text"
	}
	if generationModel == "" {
		generationModel = "llama3.2"
	}
	return &OllamaClient{
		baseURL:         baseURL,
		embedModel:      embedModel,
		generationModel: generationModel,
		visionModel:     "llava",
		client: &http.Client{
			Timeout: 300 * time.Second,
		},
		cache: newEmbeddingCache(256),
	}
}

// SetVisionModel overrides the model used by GenerateVision.
func (c *OllamaClient) SetVisionModel(model string) {
	c.visionModel = model
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

func (c *OllamaClient) cacheKey(text string) string {
	h := sha256.Sum256([]byte(c.embedModel + "\x00" + text))
	return fmt.Sprintf("%x", h[:16])
}

// Embed generates an embedding for text, consulting the in-process
// cache first.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float64, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text")
	}

	key := c.cacheKey(text)
	if cached, ok := c.cache.get(key); ok {
		return cached, nil
	}

	body, err := json.Marshal(embeddingRequest{Model: c.embedModel, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(errBody))
	}

	var result embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}

	c.cache.set(key, result.Embedding)
	return result.Embedding, nil
}

type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images,omitempty"`
	Stream bool     `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate runs a text-only completion.
func (c *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, c.generationModel, prompt, nil)
}

// GenerateVision runs a completion grounded in one or more JPEG images,
// used by triage's vision-mode scoring and the summarizer's scene
// description step.
func (c *OllamaClient) GenerateVision(ctx context.Context, prompt string, images [][]byte) (string, error) {
	return c.generate(ctx, c.visionModel, prompt, images)
}

func (c *OllamaClient) generate(ctx context.Context, model, prompt string, images [][]byte) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("empty prompt")
	}

	var encoded []string
	for _, img := range images {
		encoded = append(encoded, base64.StdEncoding.EncodeToString(img))
	}

	body, err := json.Marshal(generateRequest{Model: model, Prompt: prompt, Images: encoded, Stream: false})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request (took %s): %w", time.Since(start), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama error (status %d, took %s): %s", resp.StatusCode, time.Since(start), string(errBody))
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response (took %s): %w", time.Since(start), err)
	}
	return result.Response, nil
}

// CosineSimilarity computes similarity between two embeddings (-1 to 1).
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// AverageEmbeddings computes the centroid of multiple embeddings.
func AverageEmbeddings(embeddings [][]float64) []float64 {
	if len(embeddings) == 0 {
		return nil
	}
	dims := len(embeddings[0])
	result := make([]float64, dims)
	n := 0.0
	for _, emb := range embeddings {
		if len(emb) != dims {
			continue
		}
		floats.Add(result, emb)
		n++
	}
	floats.Scale(1/n, result)
	return result
}

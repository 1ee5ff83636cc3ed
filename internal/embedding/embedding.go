// Package embedding computes vector embeddings for text through remote
// model-serving endpoints, with a batched worker stage for bulk runs.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Provider defines the interface for embedding backends.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// NewProvider creates an embedding provider. baseURL overrides the default
// endpoint for OpenAI-compatible servers (Ollama, local gateways).
func NewProvider(providerName, apiKey, model, baseURL string) (Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai", "":
		if model == "" {
			model = "text-embedding-3-small"
		}
		cfg := openai.DefaultConfig(apiKey)
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}
		return &OpenAIEmbedder{client: openai.NewClientWithConfig(cfg), model: model}, nil
	case "huggingface":
		if model == "" {
			model = "BAAI/bge-small-en-v1.5"
		}
		if baseURL == "" {
			baseURL = "https://router.huggingface.co/models"
		}
		return &HuggingFaceEmbedder{apiKey: apiKey, model: model, baseURL: baseURL}, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", providerName)
	}
}

// ==========================================
// OpenAI Embedder
// ==========================================

type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

func (e *OpenAIEmbedder) Model() string { return e.model }

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, err
	}

	var results [][]float32
	for _, d := range resp.Data {
		results = append(results, d.Embedding)
	}
	return results, nil
}

// ==========================================
// HuggingFace Embedder
// ==========================================

type HuggingFaceEmbedder struct {
	apiKey  string
	model   string
	baseURL string
}

func (e *HuggingFaceEmbedder) Model() string { return e.model }

func (e *HuggingFaceEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody, _ := json.Marshal(map[string]interface{}{
		"inputs": texts,
	})

	url := fmt.Sprintf("%s/%s", strings.TrimSuffix(e.baseURL, "/"), e.model)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("HF api error: %d - %s", resp.StatusCode, string(bodyBytes))
	}

	var hfResp [][]float64
	if err := json.NewDecoder(resp.Body).Decode(&hfResp); err != nil {
		return nil, err
	}

	var results [][]float32
	for _, vec := range hfResp {
		var f32vec []float32
		for _, val := range vec {
			f32vec = append(f32vec, float32(val))
		}
		results = append(results, f32vec)
	}

	return results, nil
}

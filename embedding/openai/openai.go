// Package openai adapts an OpenAI-compatible embeddings endpoint to the
// embedding.Embedder contract.
//
// Multimodal embedding services (e.g. voyage-multimodal-3 behind an
// OpenAI-compatible gateway) accept base64-encoded image payloads as input;
// set Options.BaseURL to point at such a gateway.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/hupe1980/visearch/embedding"
)

// Compile-time check to ensure Embedder satisfies the embedding contract.
var _ embedding.Embedder = (*Embedder)(nil)

// Options contains configuration options for the OpenAI embedder.
type Options struct {
	// BaseURL overrides the API endpoint. Empty keeps the client default.
	BaseURL string

	// Model is the embedding model name sent with every request.
	Model openai.EmbeddingModel

	// Dimension is the expected vector length. Responses with a different
	// length are rejected.
	Dimension int

	// RequestsPerSecond caps the request rate to the endpoint.
	RequestsPerSecond float64
}

// DefaultOptions contains the default configuration options for the embedder.
var DefaultOptions = Options{
	Model:             openai.EmbeddingModel("voyage-multimodal-3"),
	Dimension:         1024,
	RequestsPerSecond: 8,
}

// Embedder calls an embeddings endpoint and classifies its failures per the
// embedding package contract.
type Embedder struct {
	client  *openai.Client
	opts    Options
	limiter *rate.Limiter
}

// New creates an embedder. The API key is required; endpoint, model and rate
// are configurable through option functions.
func New(apiKey string, optFns ...func(o *Options)) (*Embedder, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key not set")
	}

	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("openai: invalid dimension: %d", opts.Dimension)
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = DefaultOptions.RequestsPerSecond
	}

	cfg := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	return &Embedder{
		client:  openai.NewClientWithConfig(cfg),
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
	}, nil
}

// Embed sends the image bytes base64-encoded and returns the vector.
func (e *Embedder) Embed(ctx context.Context, data []byte) ([]float32, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", embedding.ErrUnsupportedContent)
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{base64.StdEncoding.EncodeToString(data)},
		Model: e.opts.Model,
	})
	if err != nil {
		return nil, classify(err)
	}

	if len(resp.Data) != 1 {
		return nil, fmt.Errorf("%w: expected 1 embedding, got %d", embedding.ErrUnavailable, len(resp.Data))
	}

	vec := resp.Data[0].Embedding
	if len(vec) != e.opts.Dimension {
		return nil, fmt.Errorf("openai: unexpected embedding dimension: got %d, want %d", len(vec), e.opts.Dimension)
	}
	return vec, nil
}

// Dimension returns the configured vector length.
func (e *Embedder) Dimension() int { return e.opts.Dimension }

// classify maps transport errors onto the embedding failure taxonomy.
// 4xx payload errors are permanent; throttling, timeouts and server errors
// are transient.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusRequestEntityTooLarge,
			http.StatusUnsupportedMediaType,
			http.StatusUnprocessableEntity:
			return fmt.Errorf("%w: %w", embedding.ErrUnsupportedContent, err)
		}
	}
	return fmt.Errorf("%w: %w", embedding.ErrUnavailable, err)
}

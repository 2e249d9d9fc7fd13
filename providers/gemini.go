package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Gemini generates try-on composites through the Google Gemini image model.
type Gemini struct {
	client     *genai.Client
	model      *genai.GenerativeModel
	timeout    time.Duration
	maxRetries int
}

// NewGemini creates the Gemini provider. The client is created once at
// startup; a missing API key is a configuration error.
func NewGemini(ctx context.Context, apiKey, modelName string, timeout time.Duration, maxRetries int) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key is not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &Gemini{
		client:     client,
		model:      client.GenerativeModel(modelName),
		timeout:    timeout,
		maxRetries: maxRetries,
	}, nil
}

func (g *Gemini) Name() string { return "gemini" }

// Close releases the underlying API client.
func (g *Gemini) Close() error { return g.client.Close() }

// Generate sends the subject and garment images with the instruction
// directive and extracts the generated image from the response.
func (g *Gemini) Generate(ctx context.Context, subject []byte, garments [][]byte, in Instruction) ([]byte, error) {
	parts := make([]genai.Part, 0, len(garments)+2)
	parts = append(parts, genai.Text(in.Directive()), genai.ImageData("png", subject))
	for _, garment := range garments {
		parts = append(parts, genai.ImageData("png", garment))
	}

	return generateWithRetry(ctx, g.maxRetries, g.timeout, func(ctx context.Context) ([]byte, *Error) {
		resp, err := g.model.GenerateContent(ctx, parts...)
		if err != nil {
			return nil, g.classify(err)
		}
		return g.extractImage(resp)
	})
}

// extractImage pulls the first inline image blob out of the response. A
// response with no extractable image is terminal, not retried.
func (g *Gemini) extractImage(resp *genai.GenerateContentResponse) ([]byte, *Error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, &Error{Provider: g.Name(), Kind: KindBadResponse, Err: errors.New("no candidates in response")}
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if blob, ok := part.(genai.Blob); ok && len(blob.Data) > 0 {
			return blob.Data, nil
		}
	}
	return nil, &Error{Provider: g.Name(), Kind: KindBadResponse, Err: errors.New("no image data in response")}
}

func (g *Gemini) classify(err error) *Error {
	kind := KindServer

	var apiErr *googleapi.Error
	switch {
	case errors.As(err, &apiErr):
		switch {
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			kind = KindUnauthenticated
		case apiErr.Code == http.StatusTooManyRequests:
			kind = KindRateLimited
		case apiErr.Code >= 500:
			kind = KindServer
		default:
			kind = KindBadResponse
		}
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	}

	return &Error{Provider: g.Name(), Kind: kind, Err: err}
}

package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
)

// Bedrock generates try-on composites through an Anthropic vision model on
// AWS Bedrock. It is the second-priority provider behind Gemini.
type Bedrock struct {
	client     *bedrockruntime.Client
	modelID    string
	timeout    time.Duration
	maxRetries int
}

// NewBedrock creates the Bedrock provider using the default AWS credential
// chain for the given region.
func NewBedrock(ctx context.Context, region, modelID string, timeout time.Duration, maxRetries int) (*Bedrock, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("bedrock: load AWS config: %w", err)
	}

	return &Bedrock{
		client:     bedrockruntime.NewFromConfig(cfg),
		modelID:    modelID,
		timeout:    timeout,
		maxRetries: maxRetries,
	}, nil
}

func (b *Bedrock) Name() string { return "bedrock" }

type anthropicContent struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	Messages         []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
}

// Generate invokes the model with the instruction plus base64-encoded
// subject and garment images, and extracts the returned image block.
func (b *Bedrock) Generate(ctx context.Context, subject []byte, garments [][]byte, in Instruction) ([]byte, error) {
	content := make([]anthropicContent, 0, len(garments)+2)
	content = append(content,
		anthropicContent{Type: "text", Text: in.Directive()},
		imageContent(subject),
	)
	for _, garment := range garments {
		content = append(content, imageContent(garment))
	}

	body, err := json.Marshal(anthropicRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        2048,
		Messages:         []anthropicMessage{{Role: "user", Content: content}},
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock: marshal request: %w", err)
	}

	return generateWithRetry(ctx, b.maxRetries, b.timeout, func(ctx context.Context) ([]byte, *Error) {
		out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(b.modelID),
			Body:        body,
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
		})
		if err != nil {
			return nil, b.classify(err)
		}
		return b.extractImage(out.Body)
	})
}

func imageContent(data []byte) anthropicContent {
	return anthropicContent{
		Type: "image",
		Source: &anthropicSource{
			Type:      "base64",
			MediaType: "image/png",
			Data:      base64.StdEncoding.EncodeToString(data),
		},
	}
}

func (b *Bedrock) extractImage(body []byte) ([]byte, *Error) {
	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &Error{Provider: b.Name(), Kind: KindBadResponse, Err: err}
	}

	for _, block := range resp.Content {
		if block.Type == "image" && block.Source != nil {
			data, err := base64.StdEncoding.DecodeString(block.Source.Data)
			if err != nil {
				return nil, &Error{Provider: b.Name(), Kind: KindBadResponse, Err: err}
			}
			return data, nil
		}
	}
	return nil, &Error{Provider: b.Name(), Kind: KindBadResponse, Err: errors.New("no image block in response")}
}

func (b *Bedrock) classify(err error) *Error {
	kind := KindServer

	var apiErr smithy.APIError
	switch {
	case errors.As(err, &apiErr):
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			kind = KindRateLimited
		case "AccessDeniedException", "UnrecognizedClientException", "ExpiredTokenException":
			kind = KindUnauthenticated
		case "ValidationException":
			kind = KindBadResponse
		case "ModelTimeoutException":
			kind = KindTimeout
		default:
			kind = KindServer
		}
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	}

	return &Error{Provider: b.Name(), Kind: kind, Err: err}
}

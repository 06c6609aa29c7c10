// Package genai wraps the Gemini SDK behind the two narrow operations the
// ticket pipeline needs: structured metadata generation and background image
// generation.
package genai

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"
)

// ErrGeneration is returned when the model produced no usable payload.
var ErrGeneration = errors.New("genai: generation produced no usable result")

// ContentAPI abstracts the SDK call so tests can stub model behaviour.
type ContentAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type sdkContentAPI struct {
	client *genai.Client
}

func (s sdkContentAPI) GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return s.client.Models.GenerateContent(ctx, model, contents, cfg)
}

// NewContentAPI constructs the SDK-backed content API from an API key.
func NewContentAPI(ctx context.Context, apiKey string) (ContentAPI, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("genai: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return sdkContentAPI{client: client}, nil
}

// InlineImage is an optional screenshot attached to a metadata request.
type InlineImage struct {
	MIMEType string
	Data     []byte
}

func (i InlineImage) isZero() bool {
	return len(i.Data) == 0
}

// firstText extracts the concatenated text parts of the first candidate.
func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Text == "" {
				continue
			}
			builder.WriteString(part.Text)
		}
		break
	}
	return builder.String()
}

// firstImage extracts the first inline image of the first candidate.
func firstImage(resp *genai.GenerateContentResponse) (string, []byte) {
	if resp == nil {
		return "", nil
	}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			return part.InlineData.MIMEType, part.InlineData.Data
		}
		break
	}
	return "", nil
}

package genai

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// Every image request is wrapped with the same framing so ticket backgrounds
// stay consistent across runs and remixes.
const (
	imagePromptPrefix = "Cinematic concert ticket background artwork. "
	imagePromptSuffix = " Wide 16:9 composition, rich atmospheric lighting, " +
		"subtle film grain. Absolutely no text, no letters, no words, no " +
		"typography, no logos anywhere in the image."
)

// ImageResult carries generated background bytes. A zero result means the
// model declined to produce an image for this prompt.
type ImageResult struct {
	MIMEType string
	Data     []byte
}

// IsEmpty reports whether the model returned no image.
func (r ImageResult) IsEmpty() bool {
	return len(r.Data) == 0
}

// ImageGenerator produces ticket backgrounds via the image model. A refusal
// (the model answering with text instead of image bytes) is an empty result,
// not an error; only transport failures surface as errors.
type ImageGenerator struct {
	api    ContentAPI
	model  string
	logger *zap.Logger
}

// NewImageGenerator wires an image generator around a content API.
func NewImageGenerator(api ContentAPI, model string, logger *zap.Logger) *ImageGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageGenerator{api: api, model: model, logger: logger}
}

// Generate renders one background for the given scene prompt.
func (g *ImageGenerator) Generate(ctx context.Context, prompt string) (ImageResult, error) {
	return g.generate(ctx, wrapPrompt(prompt))
}

// Remix renders a new background for the original scene prompt shifted toward
// a mood. The framing applied by Generate applies here identically.
func (g *ImageGenerator) Remix(ctx context.Context, prompt, mood string) (ImageResult, error) {
	mood = strings.TrimSpace(mood)
	if mood != "" {
		prompt = strings.TrimSpace(prompt) + ". Reimagine the scene with a strong " + mood + " mood."
	}
	return g.generate(ctx, wrapPrompt(prompt))
}

func (g *ImageGenerator) generate(ctx context.Context, prompt string) (ImageResult, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{{Text: prompt}}, genai.RoleUser),
	}
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}
	resp, err := g.api.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return ImageResult{}, fmt.Errorf("generate ticket background: %w", err)
	}
	mime, data := firstImage(resp)
	if len(data) == 0 {
		g.logger.Info("image model declined prompt",
			zap.String("model", g.model),
			zap.Int("prompt_len", len(prompt)))
		return ImageResult{}, nil
	}
	return ImageResult{MIMEType: mime, Data: data}, nil
}

func wrapPrompt(prompt string) string {
	return imagePromptPrefix + strings.TrimSpace(prompt) + imagePromptSuffix
}

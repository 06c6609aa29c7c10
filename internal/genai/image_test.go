package genai

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"google.golang.org/genai"
)

func imageResponse(mime string, data []byte) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{InlineData: &genai.Blob{MIMEType: mime, Data: data}},
			}},
		}},
	}
}

func TestImageGeneratorWrapsPrompt(t *testing.T) {
	api := &stubContentAPI{resp: imageResponse("image/png", []byte("png-bytes"))}
	gen := NewImageGenerator(api, "image-model", nil)

	got, err := gen.Generate(context.Background(), "neon skyline over a rain soaked street")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got.IsEmpty() || !bytes.Equal(got.Data, []byte("png-bytes")) {
		t.Fatalf("result = %+v", got)
	}
	if got.MIMEType != "image/png" {
		t.Fatalf("mime = %q", got.MIMEType)
	}

	call := api.calls[0]
	if call.model != "image-model" {
		t.Fatalf("model = %q", call.model)
	}
	prompt := call.contents[0].Parts[0].Text
	if !strings.HasPrefix(prompt, imagePromptPrefix) {
		t.Fatalf("prompt missing prefix: %q", prompt)
	}
	if !strings.HasSuffix(prompt, imagePromptSuffix) {
		t.Fatalf("prompt missing suffix: %q", prompt)
	}
	if !strings.Contains(prompt, "neon skyline") {
		t.Fatalf("prompt missing scene: %q", prompt)
	}
}

func TestImageGeneratorRemixKeepsFraming(t *testing.T) {
	api := &stubContentAPI{resp: imageResponse("image/png", []byte("png-bytes"))}
	gen := NewImageGenerator(api, "image-model", nil)

	if _, err := gen.Remix(context.Background(), "neon skyline", "melancholy"); err != nil {
		t.Fatalf("Remix: %v", err)
	}
	prompt := api.calls[0].contents[0].Parts[0].Text
	if !strings.HasPrefix(prompt, imagePromptPrefix) || !strings.HasSuffix(prompt, imagePromptSuffix) {
		t.Fatalf("remix prompt lost framing: %q", prompt)
	}
	if !strings.Contains(prompt, "melancholy mood") {
		t.Fatalf("remix prompt missing mood: %q", prompt)
	}
	if !strings.Contains(prompt, "neon skyline") {
		t.Fatalf("remix prompt missing original scene: %q", prompt)
	}
}

func TestImageGeneratorRefusalIsEmptyResult(t *testing.T) {
	api := &stubContentAPI{resp: textResponse("I can't create that image.")}
	gen := NewImageGenerator(api, "image-model", nil)

	got, err := gen.Generate(context.Background(), "neon skyline")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !got.IsEmpty() {
		t.Fatalf("result = %+v, want empty", got)
	}
}

func TestImageGeneratorTransportError(t *testing.T) {
	boom := errors.New("deadline exceeded")
	gen := NewImageGenerator(&stubContentAPI{err: boom}, "image-model", nil)

	_, err := gen.Generate(context.Background(), "neon skyline")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped transport error", err)
	}
}

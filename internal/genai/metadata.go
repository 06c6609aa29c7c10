package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/prettytickets/api/internal/domain"
)

// metadataInstruction steers the text model toward a single JSON object. When
// a screenshot is attached the model reconciles it with the typed details:
// the screenshot wins for factual fields, the typed text wins for personal
// ones.
const metadataInstruction = `You are a ticket stylist for a keepsake concert ticket.
Given the user's event details, and optionally a screenshot of a real ticket
or confirmation email, produce a single JSON object with exactly these keys:

{
  "event": {"artistOrEvent": "", "venue": "", "dateText": "", "seatText": "", "message": ""},
  "theme": {"palette": [], "textures": [], "headlineFont": "", "bodyFont": "", "moodKeywords": [], "iconIdeas": []},
  "prompts": {"background": "", "alternateArt": ""},
  "giftCopy": {"headline": "", "subtitle": "", "blurb": ""},
  "layout": {"alignment": "", "accent": "", "notes": []}
}

Rules:
- If a screenshot is attached, prefer it for factual fields (artist or event
  name, venue, date, seat) and prefer the typed text for the personal message.
- Without a screenshot, copy the typed details through unchanged and invent
  nothing factual.
- palette entries are hex colors. headlineFont and bodyFont are font family
  names suited to the event's mood.
- prompts describe imagery only. Never mention text, letters, or typography
  in them.
- Respond with the JSON object and nothing else.`

// MetadataRequest is one metadata generation attempt.
type MetadataRequest struct {
	Details    domain.EventDetails
	Screenshot InlineImage
}

// MetadataResult is the structured payload for a ticket run.
type MetadataResult struct {
	Event    domain.EventDetails
	Theme    domain.VisualTheme
	Prompts  domain.AIPrompts
	GiftCopy domain.GiftCopy
	Layout   domain.LayoutGuide
}

// MetadataGenerator turns event details into ticket metadata via the text
// model. A failed attempt returns ErrGeneration with no partial result and is
// never retried here.
type MetadataGenerator struct {
	api    ContentAPI
	model  string
	logger *zap.Logger
}

// NewMetadataGenerator wires a metadata generator around a content API.
func NewMetadataGenerator(api ContentAPI, model string, logger *zap.Logger) *MetadataGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetadataGenerator{api: api, model: model, logger: logger}
}

// Generate runs one attempt against the text model.
func (g *MetadataGenerator) Generate(ctx context.Context, req MetadataRequest) (MetadataResult, error) {
	parts := []*genai.Part{
		{Text: metadataInstruction},
		{Text: formatDetails(req.Details)},
	}
	if !req.Screenshot.isZero() {
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{
			MIMEType: req.Screenshot.MIMEType,
			Data:     req.Screenshot.Data,
		}})
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}

	resp, err := g.api.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return MetadataResult{}, fmt.Errorf("generate ticket metadata: %w", err)
	}
	raw := strings.TrimSpace(stripCodeFence(firstText(resp)))
	if raw == "" {
		return MetadataResult{}, fmt.Errorf("generate ticket metadata: empty response: %w", ErrGeneration)
	}
	result, err := parseMetadata(raw)
	if err != nil {
		g.logger.Warn("metadata payload unusable", zap.Error(err))
		return MetadataResult{}, fmt.Errorf("generate ticket metadata: %w", ErrGeneration)
	}
	return result, nil
}

func formatDetails(d domain.EventDetails) string {
	var b strings.Builder
	b.WriteString("Event details:\n")
	writeDetail(&b, "Artist or event", d.ArtistOrEvent)
	writeDetail(&b, "Venue", d.Venue)
	writeDetail(&b, "Date", d.DateText)
	writeDetail(&b, "Seat", d.SeatText)
	writeDetail(&b, "Personal message", d.Message)
	return b.String()
}

func writeDetail(b *strings.Builder, label, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		value = "(not provided)"
	}
	fmt.Fprintf(b, "- %s: %s\n", label, value)
}

// stripCodeFence tolerates models that wrap JSON in a markdown fence despite
// the response MIME type.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

type metadataPayload struct {
	Event struct {
		ArtistOrEvent string `json:"artistOrEvent"`
		Venue         string `json:"venue"`
		DateText      string `json:"dateText"`
		SeatText      string `json:"seatText"`
		Message       string `json:"message"`
	} `json:"event"`
	Theme struct {
		Palette      []string `json:"palette"`
		Textures     []string `json:"textures"`
		HeadlineFont string   `json:"headlineFont"`
		BodyFont     string   `json:"bodyFont"`
		MoodKeywords []string `json:"moodKeywords"`
		IconIdeas    []string `json:"iconIdeas"`
	} `json:"theme"`
	Prompts struct {
		Background   string `json:"background"`
		AlternateArt string `json:"alternateArt"`
	} `json:"prompts"`
	GiftCopy struct {
		Headline string `json:"headline"`
		Subtitle string `json:"subtitle"`
		Blurb    string `json:"blurb"`
	} `json:"giftCopy"`
	Layout struct {
		Alignment string   `json:"alignment"`
		Accent    string   `json:"accent"`
		Notes     []string `json:"notes"`
	} `json:"layout"`
}

func parseMetadata(raw string) (MetadataResult, error) {
	var payload metadataPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return MetadataResult{}, fmt.Errorf("decode payload: %w", err)
	}
	result := MetadataResult{
		Event: domain.EventDetails{
			ArtistOrEvent: strings.TrimSpace(payload.Event.ArtistOrEvent),
			Venue:         strings.TrimSpace(payload.Event.Venue),
			DateText:      strings.TrimSpace(payload.Event.DateText),
			SeatText:      strings.TrimSpace(payload.Event.SeatText),
			Message:       strings.TrimSpace(payload.Event.Message),
		},
		Theme: domain.VisualTheme{
			Palette:      payload.Theme.Palette,
			Textures:     payload.Theme.Textures,
			HeadlineFont: strings.TrimSpace(payload.Theme.HeadlineFont),
			BodyFont:     strings.TrimSpace(payload.Theme.BodyFont),
			MoodKeywords: payload.Theme.MoodKeywords,
			IconIdeas:    payload.Theme.IconIdeas,
		},
		Prompts: domain.AIPrompts{
			Background:   strings.TrimSpace(payload.Prompts.Background),
			AlternateArt: strings.TrimSpace(payload.Prompts.AlternateArt),
		},
		GiftCopy: domain.GiftCopy{
			Headline: strings.TrimSpace(payload.GiftCopy.Headline),
			Subtitle: strings.TrimSpace(payload.GiftCopy.Subtitle),
			Blurb:    strings.TrimSpace(payload.GiftCopy.Blurb),
		},
		Layout: domain.LayoutGuide{
			Alignment: strings.TrimSpace(payload.Layout.Alignment),
			Accent:    strings.TrimSpace(payload.Layout.Accent),
			Notes:     payload.Layout.Notes,
		},
	}
	if result.Event.IsEmpty() && result.Prompts.Background == "" {
		return MetadataResult{}, fmt.Errorf("payload carries no event facts and no background prompt")
	}
	return result, nil
}

package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prettytickets/api/internal/domain"
	"github.com/prettytickets/api/internal/services"
)

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePointer(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

type eventDetailsPayload struct {
	ArtistOrEvent string           `json:"artistOrEvent"`
	Venue         string           `json:"venue,omitempty"`
	DateText      string           `json:"dateText,omitempty"`
	SeatText      string           `json:"seatText,omitempty"`
	Seat          *seatInfoPayload `json:"seat,omitempty"`
	Message       string           `json:"message,omitempty"`
}

type seatInfoPayload struct {
	Kind    string `json:"kind"`
	Section string `json:"section,omitempty"`
	Row     string `json:"row,omitempty"`
	Seat    string `json:"seat,omitempty"`
	Raw     string `json:"raw,omitempty"`
}

type visualThemePayload struct {
	Palette           []string `json:"palette,omitempty"`
	Textures          []string `json:"textures,omitempty"`
	HeadlineFont      string   `json:"headlineFont,omitempty"`
	HeadlineFontStack string   `json:"headlineFontStack,omitempty"`
	BodyFont          string   `json:"bodyFont,omitempty"`
	BodyFontStack     string   `json:"bodyFontStack,omitempty"`
	MoodKeywords      []string `json:"moodKeywords,omitempty"`
	IconIdeas         []string `json:"iconIdeas,omitempty"`
}

type aiPromptsPayload struct {
	Background   string `json:"background,omitempty"`
	AlternateArt string `json:"alternateArt,omitempty"`
}

type giftCopyPayload struct {
	Headline string `json:"headline,omitempty"`
	Subtitle string `json:"subtitle,omitempty"`
	Blurb    string `json:"blurb,omitempty"`
}

type layoutGuidePayload struct {
	Alignment string   `json:"alignment,omitempty"`
	Accent    string   `json:"accent,omitempty"`
	Notes     []string `json:"notes,omitempty"`
}

type ticketPayload struct {
	ID          string              `json:"id,omitempty"`
	Event       eventDetailsPayload `json:"event"`
	Theme       visualThemePayload  `json:"theme"`
	Prompts     aiPromptsPayload    `json:"prompts"`
	GiftCopy    giftCopyPayload     `json:"giftCopy"`
	Layout      layoutGuidePayload  `json:"layout"`
	ImageURL    string              `json:"imageUrl,omitempty"`
	ImageSource string              `json:"imageSource,omitempty"`
	IsPaid      bool                `json:"isPaid"`
	PaidAt      string              `json:"paidAt,omitempty"`
	CreatedAt   string              `json:"createdAt,omitempty"`
	UpdatedAt   string              `json:"updatedAt,omitempty"`
}

// buildSeatPayload parses free-form seat text into the structured block the
// renderer lays out. Tickets without seat text carry no block at all.
func buildSeatPayload(seatText string) *seatInfoPayload {
	if strings.TrimSpace(seatText) == "" {
		return nil
	}
	info := domain.ParseSeatText(seatText)
	return &seatInfoPayload{
		Kind:    string(info.Kind),
		Section: info.Section,
		Row:     info.Row,
		Seat:    info.Seat,
		Raw:     info.Raw,
	}
}

func buildTicketPayload(t services.TicketRecord) ticketPayload {
	return ticketPayload{
		ID: t.ID,
		Event: eventDetailsPayload{
			ArtistOrEvent: t.Event.ArtistOrEvent,
			Venue:         t.Event.Venue,
			DateText:      t.Event.DateText,
			SeatText:      t.Event.SeatText,
			Seat:          buildSeatPayload(t.Event.SeatText),
			Message:       t.Event.Message,
		},
		Theme: visualThemePayload{
			Palette:           t.Theme.Palette,
			Textures:          t.Theme.Textures,
			HeadlineFont:      t.Theme.HeadlineFont,
			HeadlineFontStack: domain.ResolveFontStack(t.Theme.HeadlineFont, domain.FontRoleHeadline),
			BodyFont:          t.Theme.BodyFont,
			BodyFontStack:     domain.ResolveFontStack(t.Theme.BodyFont, domain.FontRoleBody),
			MoodKeywords:      t.Theme.MoodKeywords,
			IconIdeas:         t.Theme.IconIdeas,
		},
		Prompts: aiPromptsPayload{
			Background:   t.Prompts.Background,
			AlternateArt: t.Prompts.AlternateArt,
		},
		GiftCopy: giftCopyPayload{
			Headline: t.GiftCopy.Headline,
			Subtitle: t.GiftCopy.Subtitle,
			Blurb:    t.GiftCopy.Blurb,
		},
		Layout: layoutGuidePayload{
			Alignment: t.Layout.Alignment,
			Accent:    t.Layout.Accent,
			Notes:     t.Layout.Notes,
		},
		ImageURL:    t.ImageURL,
		ImageSource: string(t.ImageSource),
		IsPaid:      t.IsPaid,
		PaidAt:      formatTimePointer(t.PaidAt),
		CreatedAt:   formatTime(t.CreatedAt),
		UpdatedAt:   formatTime(t.UpdatedAt),
	}
}

package domain

import (
	"strings"
	"time"
)

// ImageSource records where a ticket background came from.
type ImageSource string

const (
	// ImageSourceGenerated marks a background produced by the image model.
	ImageSourceGenerated ImageSource = "generated"
	// ImageSourceCustom marks a background uploaded by the user.
	ImageSourceCustom ImageSource = "custom"
)

// EventDetails holds the user-facing facts printed on a ticket. All fields are
// free-form; only presence of ArtistOrEvent is ever enforced.
type EventDetails struct {
	ArtistOrEvent string
	Venue         string
	DateText      string
	SeatText      string
	Message       string
}

// IsEmpty reports whether no event fact has been captured at all.
func (d EventDetails) IsEmpty() bool {
	return strings.TrimSpace(d.ArtistOrEvent) == "" &&
		strings.TrimSpace(d.Venue) == "" &&
		strings.TrimSpace(d.DateText) == "" &&
		strings.TrimSpace(d.SeatText) == "" &&
		strings.TrimSpace(d.Message) == ""
}

// VisualTheme carries generated presentation hints. The API treats every field
// as opaque; only the rendering client interprets them.
type VisualTheme struct {
	Palette      []string
	Textures     []string
	HeadlineFont string
	BodyFont     string
	MoodKeywords []string
	IconIdeas    []string
}

// AIPrompts are the two generated prompts consumed solely by the image model.
type AIPrompts struct {
	Background   string
	AlternateArt string
}

// GiftCopy is generated marketing copy shown alongside the ticket.
type GiftCopy struct {
	Headline string
	Subtitle string
	Blurb    string
}

// LayoutGuide carries generated layout hints for the rendering view.
type LayoutGuide struct {
	Alignment string
	Accent    string
	Notes     []string
}

// TicketRecord is the persisted unit combining event metadata, the generated
// visual theme and copy, and a background image.
type TicketRecord struct {
	ID          string
	Event       EventDetails
	Theme       VisualTheme
	Prompts     AIPrompts
	GiftCopy    GiftCopy
	Layout      LayoutGuide
	ImageURL    string
	ImageSource ImageSource
	IsPaid      bool
	PaidAt      *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Persistable reports whether the record meets the minimum bar for storage:
// a record with neither a background image nor an event name is never saved.
func (t TicketRecord) Persistable() bool {
	return strings.TrimSpace(t.ImageURL) != "" || strings.TrimSpace(t.Event.ArtistOrEvent) != ""
}

// HasCustomImage reports whether the current background was user supplied.
func (t TicketRecord) HasCustomImage() bool {
	return t.ImageSource == ImageSourceCustom && strings.TrimSpace(t.ImageURL) != ""
}

// Package firestore provides Firestore-backed implementations of the
// repository contracts.
package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/oklog/ulid/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/prettytickets/api/internal/domain"
	pfirestore "github.com/prettytickets/api/internal/platform/firestore"
	"github.com/prettytickets/api/internal/repositories"
)

const (
	ticketsCollection  = "tickets"
	ticketIDPrefix     = "tkt_"
	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

// TicketRepositoryOption customises the Firestore ticket repository.
type TicketRepositoryOption func(*TicketRepository)

// WithTicketClock injects a custom clock primarily for tests.
func WithTicketClock(clock func() time.Time) TicketRepositoryOption {
	return func(repo *TicketRepository) {
		if clock != nil {
			repo.now = clock
		}
	}
}

// WithTicketIDGenerator overrides how new ticket identifiers are minted.
func WithTicketIDGenerator(gen func() string) TicketRepositoryOption {
	return func(repo *TicketRepository) {
		if gen != nil {
			repo.newID = gen
		}
	}
}

// TicketRepository persists keepsake ticket records in Firestore.
type TicketRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[domain.TicketRecord]
	now      func() time.Time
	newID    func() string
}

var _ repositories.TicketRepository = (*TicketRepository)(nil)

// NewTicketRepository constructs a Firestore-backed ticket repository.
func NewTicketRepository(provider *pfirestore.Provider, opts ...TicketRepositoryOption) (*TicketRepository, error) {
	if provider == nil {
		return nil, errors.New("ticket repository: firestore provider is required")
	}

	encoder := func(_ context.Context, value domain.TicketRecord) (any, error) {
		return encodeTicketDocument(value), nil
	}
	decoder := func(_ context.Context, snap *firestore.DocumentSnapshot) (domain.TicketRecord, error) {
		return decodeTicketSnapshot(snap)
	}

	repo := &TicketRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[domain.TicketRecord](provider, ticketsCollection, encoder, decoder),
		now:      time.Now,
		newID:    func() string { return ticketIDPrefix + ulid.Make().String() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

// Save upserts the record. New records are stored unpaid with a fresh ID and
// creation time; for existing records the payment fields and creation time of
// the stored document always win, so a concurrent MarkPaid is never undone.
func (r *TicketRepository) Save(ctx context.Context, ticket domain.TicketRecord) (domain.TicketRecord, error) {
	if r == nil || r.base == nil {
		return domain.TicketRecord{}, errors.New("ticket repository not initialised")
	}
	if !ticket.Persistable() {
		return domain.TicketRecord{}, errors.New("ticket repository: record has neither image nor event name")
	}

	ticket.ID = strings.TrimSpace(ticket.ID)
	if ticket.ID == "" {
		ticket.ID = r.newID()
	}

	docRef, err := r.base.DocumentRef(ctx, ticket.ID)
	if err != nil {
		return domain.TicketRecord{}, err
	}

	now := r.now().UTC()
	saved := ticket
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		saved = ticket
		snap, err := tx.Get(docRef)
		switch {
		case err != nil && status.Code(err) == codes.NotFound:
			saved.IsPaid = false
			saved.PaidAt = nil
			saved.CreatedAt = now
		case err != nil:
			return err
		default:
			existing, err := decodeTicketSnapshot(snap)
			if err != nil {
				return err
			}
			saved.IsPaid = existing.IsPaid
			saved.PaidAt = existing.PaidAt
			saved.CreatedAt = existing.CreatedAt
		}
		saved.UpdatedAt = now
		return tx.Set(docRef, encodeTicketDocument(saved))
	})
	if err != nil {
		return domain.TicketRecord{}, pfirestore.WrapError("tickets.save", err)
	}
	return saved, nil
}

// FindByID loads a single ticket record.
func (r *TicketRepository) FindByID(ctx context.Context, ticketID string) (domain.TicketRecord, error) {
	if r == nil || r.base == nil {
		return domain.TicketRecord{}, errors.New("ticket repository not initialised")
	}
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return domain.TicketRecord{}, errors.New("ticket repository: id is required")
	}
	doc, err := r.base.Get(ctx, ticketID)
	if err != nil {
		return domain.TicketRecord{}, err
	}
	return doc.Data, nil
}

// MarkPaid flips the payment flag. The transition is strictly unpaid to paid;
// marking an already paid ticket again is a no-op that returns the stored
// record.
func (r *TicketRepository) MarkPaid(ctx context.Context, ticketID string, paidAt time.Time) (domain.TicketRecord, error) {
	if r == nil || r.base == nil {
		return domain.TicketRecord{}, errors.New("ticket repository not initialised")
	}
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return domain.TicketRecord{}, errors.New("ticket repository: id is required")
	}

	docRef, err := r.base.DocumentRef(ctx, ticketID)
	if err != nil {
		return domain.TicketRecord{}, err
	}

	var updated domain.TicketRecord
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(docRef)
		if err != nil {
			return err
		}
		record, err := decodeTicketSnapshot(snap)
		if err != nil {
			return err
		}
		if record.IsPaid {
			updated = record
			return nil
		}
		when := paidAt.UTC()
		record.IsPaid = true
		record.PaidAt = &when
		record.UpdatedAt = r.now().UTC()
		updated = record
		return tx.Set(docRef, encodeTicketDocument(record))
	})
	if err != nil {
		return domain.TicketRecord{}, pfirestore.WrapError("tickets.mark_paid", err)
	}
	return updated, nil
}

// ListRecent returns the newest records first, capped at the given limit.
func (r *TicketRepository) ListRecent(ctx context.Context, limit int) ([]domain.TicketRecord, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("ticket repository not initialised")
	}
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("createdAt", firestore.Desc).Limit(limit)
	})
	if err != nil {
		return nil, err
	}
	records := make([]domain.TicketRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, doc.Data)
	}
	return records, nil
}

func encodeTicketDocument(ticket domain.TicketRecord) ticketDocument {
	return ticketDocument{
		Event: eventDetailsDocument{
			ArtistOrEvent: strings.TrimSpace(ticket.Event.ArtistOrEvent),
			Venue:         strings.TrimSpace(ticket.Event.Venue),
			DateText:      strings.TrimSpace(ticket.Event.DateText),
			SeatText:      strings.TrimSpace(ticket.Event.SeatText),
			Message:       strings.TrimSpace(ticket.Event.Message),
		},
		Theme: visualThemeDocument{
			Palette:      cloneSlice(ticket.Theme.Palette),
			Textures:     cloneSlice(ticket.Theme.Textures),
			HeadlineFont: ticket.Theme.HeadlineFont,
			BodyFont:     ticket.Theme.BodyFont,
			MoodKeywords: cloneSlice(ticket.Theme.MoodKeywords),
			IconIdeas:    cloneSlice(ticket.Theme.IconIdeas),
		},
		Prompts: aiPromptsDocument{
			Background:   ticket.Prompts.Background,
			AlternateArt: ticket.Prompts.AlternateArt,
		},
		GiftCopy: giftCopyDocument{
			Headline: ticket.GiftCopy.Headline,
			Subtitle: ticket.GiftCopy.Subtitle,
			Blurb:    ticket.GiftCopy.Blurb,
		},
		Layout: layoutGuideDocument{
			Alignment: ticket.Layout.Alignment,
			Accent:    ticket.Layout.Accent,
			Notes:     cloneSlice(ticket.Layout.Notes),
		},
		ImageURL:    ticket.ImageURL,
		ImageSource: string(ticket.ImageSource),
		IsPaid:      ticket.IsPaid,
		PaidAt:      cloneTime(ticket.PaidAt),
		CreatedAt:   ticket.CreatedAt.UTC(),
		UpdatedAt:   ticket.UpdatedAt.UTC(),
	}
}

func decodeTicketSnapshot(snap *firestore.DocumentSnapshot) (domain.TicketRecord, error) {
	var doc ticketDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.TicketRecord{}, err
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = snap.CreateTime
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = snap.UpdateTime
	}
	return domain.TicketRecord{
		ID: snap.Ref.ID,
		Event: domain.EventDetails{
			ArtistOrEvent: doc.Event.ArtistOrEvent,
			Venue:         doc.Event.Venue,
			DateText:      doc.Event.DateText,
			SeatText:      doc.Event.SeatText,
			Message:       doc.Event.Message,
		},
		Theme: domain.VisualTheme{
			Palette:      doc.Theme.Palette,
			Textures:     doc.Theme.Textures,
			HeadlineFont: doc.Theme.HeadlineFont,
			BodyFont:     doc.Theme.BodyFont,
			MoodKeywords: doc.Theme.MoodKeywords,
			IconIdeas:    doc.Theme.IconIdeas,
		},
		Prompts: domain.AIPrompts{
			Background:   doc.Prompts.Background,
			AlternateArt: doc.Prompts.AlternateArt,
		},
		GiftCopy: domain.GiftCopy{
			Headline: doc.GiftCopy.Headline,
			Subtitle: doc.GiftCopy.Subtitle,
			Blurb:    doc.GiftCopy.Blurb,
		},
		Layout: domain.LayoutGuide{
			Alignment: doc.Layout.Alignment,
			Accent:    doc.Layout.Accent,
			Notes:     doc.Layout.Notes,
		},
		ImageURL:    doc.ImageURL,
		ImageSource: domain.ImageSource(doc.ImageSource),
		IsPaid:      doc.IsPaid,
		PaidAt:      cloneTime(doc.PaidAt),
		CreatedAt:   doc.CreatedAt.UTC(),
		UpdatedAt:   doc.UpdatedAt.UTC(),
	}, nil
}

type ticketDocument struct {
	Event       eventDetailsDocument `firestore:"event"`
	Theme       visualThemeDocument  `firestore:"theme"`
	Prompts     aiPromptsDocument    `firestore:"prompts"`
	GiftCopy    giftCopyDocument     `firestore:"giftCopy"`
	Layout      layoutGuideDocument  `firestore:"layout"`
	ImageURL    string               `firestore:"imageUrl,omitempty"`
	ImageSource string               `firestore:"imageSource,omitempty"`
	IsPaid      bool                 `firestore:"isPaid"`
	PaidAt      *time.Time           `firestore:"paidAt,omitempty"`
	CreatedAt   time.Time            `firestore:"createdAt"`
	UpdatedAt   time.Time            `firestore:"updatedAt"`
}

type eventDetailsDocument struct {
	ArtistOrEvent string `firestore:"artistOrEvent,omitempty"`
	Venue         string `firestore:"venue,omitempty"`
	DateText      string `firestore:"dateText,omitempty"`
	SeatText      string `firestore:"seatText,omitempty"`
	Message       string `firestore:"message,omitempty"`
}

type visualThemeDocument struct {
	Palette      []string `firestore:"palette,omitempty"`
	Textures     []string `firestore:"textures,omitempty"`
	HeadlineFont string   `firestore:"headlineFont,omitempty"`
	BodyFont     string   `firestore:"bodyFont,omitempty"`
	MoodKeywords []string `firestore:"moodKeywords,omitempty"`
	IconIdeas    []string `firestore:"iconIdeas,omitempty"`
}

type aiPromptsDocument struct {
	Background   string `firestore:"background,omitempty"`
	AlternateArt string `firestore:"alternateArt,omitempty"`
}

type giftCopyDocument struct {
	Headline string `firestore:"headline,omitempty"`
	Subtitle string `firestore:"subtitle,omitempty"`
	Blurb    string `firestore:"blurb,omitempty"`
}

type layoutGuideDocument struct {
	Alignment string   `firestore:"alignment,omitempty"`
	Accent    string   `firestore:"accent,omitempty"`
	Notes     []string `firestore:"notes,omitempty"`
}

func cloneSlice(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	cloned := value.UTC()
	return &cloned
}

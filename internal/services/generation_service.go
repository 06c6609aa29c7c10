package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	domain "github.com/prettytickets/api/internal/domain"
	"github.com/prettytickets/api/internal/genai"
	"github.com/prettytickets/api/internal/platform/jobs"
	"github.com/prettytickets/api/internal/platform/storage"
	"github.com/prettytickets/api/internal/repositories"
)

const (
	ticketIDPrefix = "tkt_"
	runIDPrefix    = "run_"

	generatedImageFile  = "background.png"
	customImageFile     = "background-custom.png"
	anonymousSessionKey = "anonymous"
)

// MetadataGenerator produces structured ticket metadata for one attempt.
type MetadataGenerator interface {
	Generate(ctx context.Context, req genai.MetadataRequest) (genai.MetadataResult, error)
}

// ImageGenerator renders ticket backgrounds.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (genai.ImageResult, error)
	Remix(ctx context.Context, prompt string, mood string) (genai.ImageResult, error)
}

// GenerationServiceDeps bundles collaborators required to construct a GenerationService.
type GenerationServiceDeps struct {
	Tickets     repositories.TicketRepository
	Metadata    MetadataGenerator
	Images      ImageGenerator
	Objects     storage.ObjectStore
	Events      jobs.EventPublisher
	Logger      *zap.Logger
	Clock       func() time.Time
	IDGenerator func() string
	RunID       func() string
	// EnableImages gates the image model; with it off a run still produces
	// metadata and, when supplied, adopts a custom background.
	EnableImages bool
}

type generationService struct {
	tickets      repositories.TicketRepository
	metadata     MetadataGenerator
	images       ImageGenerator
	objects      storage.ObjectStore
	events       jobs.EventPublisher
	logger       *zap.Logger
	clock        func() time.Time
	newTicketID  func() string
	newRunID     func() string
	enableImages bool
	sanitize     func(string) string

	mu         sync.Mutex
	latestRuns map[string]string
	commitMu   sync.Mutex
}

var _ GenerationService = (*generationService)(nil)

// NewGenerationService wires dependencies into a concrete GenerationService.
func NewGenerationService(deps GenerationServiceDeps) (GenerationService, error) {
	if deps.Tickets == nil {
		return nil, errors.New("generation service: ticket repository is required")
	}
	if deps.Metadata == nil {
		return nil, errors.New("generation service: metadata generator is required")
	}
	if deps.EnableImages && deps.Images == nil {
		return nil, errors.New("generation service: image generator is required when images are enabled")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	ticketID := deps.IDGenerator
	if ticketID == nil {
		ticketID = func() string { return ticketIDPrefix + ulid.Make().String() }
	}
	runID := deps.RunID
	if runID == nil {
		runID = func() string { return runIDPrefix + ulid.Make().String() }
	}

	policy := bluemonday.StrictPolicy()
	return &generationService{
		tickets:      deps.Tickets,
		metadata:     deps.Metadata,
		images:       deps.Images,
		objects:      deps.Objects,
		events:       deps.Events,
		logger:       logger.Named("generation"),
		clock:        func() time.Time { return clock().UTC() },
		newTicketID:  ticketID,
		newRunID:     runID,
		enableImages: deps.EnableImages,
		sanitize: func(text string) string {
			return strings.TrimSpace(policy.Sanitize(text))
		},
		latestRuns: make(map[string]string),
	}, nil
}

func (s *generationService) Generate(ctx context.Context, cmd GenerateTicketCommand) (GenerationResult, error) {
	details := s.sanitizeDetails(cmd.Details)
	if details.IsEmpty() && cmd.Screenshot == nil {
		return GenerationResult{}, fmt.Errorf("%w: event details or a screenshot are required", ErrInvalidInput)
	}

	runID := s.newRunID()
	sessionKey := s.registerRun(cmd.SessionID, runID)
	result := GenerationResult{RunID: runID, State: domain.PipelineGeneratingMetadata}

	req := genai.MetadataRequest{Details: details}
	if cmd.Screenshot != nil {
		req.Screenshot = genai.InlineImage{MIMEType: cmd.Screenshot.MIMEType, Data: cmd.Screenshot.Data}
	}
	meta, err := s.metadata.Generate(ctx, req)
	if err != nil {
		result.State = domain.PipelineFailed
		return result, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if meta.Event.IsEmpty() {
		meta.Event = details
	}

	ticketID := strings.TrimSpace(cmd.TicketID)
	if ticketID == "" {
		ticketID = s.newTicketID()
	}

	result.State = domain.PipelineResolvingImage
	imageURL, imageSource := s.resolveImage(ctx, ticketID, runID, cmd.CustomBackground, meta.Prompts.Background)

	result.State = domain.PipelinePersisting
	record := domain.TicketRecord{
		ID:          ticketID,
		Event:       meta.Event,
		Theme:       meta.Theme,
		Prompts:     meta.Prompts,
		GiftCopy:    meta.GiftCopy,
		Layout:      meta.Layout,
		ImageURL:    imageURL,
		ImageSource: imageSource,
	}
	result.Ticket = record
	result.State = domain.PipelineDone

	saved, latest, err := s.commitRun(ctx, sessionKey, runID, record)
	if !latest {
		result.Superseded = true
		return result, nil
	}
	if err != nil {
		// Best effort: the generated ticket is still usable, just not shareable.
		s.logger.Warn("ticket save failed after generation",
			zap.String("run_id", runID), zap.Error(err))
		result.Ticket.ID = ""
		return result, nil
	}
	result.Ticket = saved
	result.Saved = true

	s.publish(ctx, jobs.TicketEvent{
		Kind:      jobs.EventTicketGenerated,
		TicketID:  saved.ID,
		RunID:     runID,
		SessionID: cmd.SessionID,
		ImageURL:  saved.ImageURL,
	})
	return result, nil
}

func (s *generationService) Remix(ctx context.Context, cmd RemixTicketCommand) (GenerationResult, error) {
	ticketID := strings.TrimSpace(cmd.TicketID)
	if ticketID == "" {
		return GenerationResult{}, fmt.Errorf("%w: ticket id is required", ErrInvalidInput)
	}
	mood := s.sanitize(cmd.Mood)
	if mood == "" {
		return GenerationResult{}, fmt.Errorf("%w: mood is required", ErrInvalidInput)
	}
	if !s.enableImages || s.images == nil {
		return GenerationResult{}, fmt.Errorf("%w: image generation is disabled", ErrInvalidInput)
	}

	ticket, err := s.tickets.FindByID(ctx, ticketID)
	if err != nil {
		return GenerationResult{}, mapRepositoryError(err)
	}

	runID := s.newRunID()
	sessionKey := s.registerRun(cmd.SessionID, runID)
	result := GenerationResult{RunID: runID, State: domain.PipelineResolvingImage, Ticket: ticket}

	prompt := strings.TrimSpace(ticket.Prompts.Background)
	if prompt == "" {
		prompt = describeEvent(ticket.Event)
	}
	image, err := s.images.Remix(ctx, prompt, mood)
	if err != nil {
		result.State = domain.PipelineFailed
		return result, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if image.IsEmpty() {
		// The model declined; the stored ticket stays exactly as it was.
		result.State = domain.PipelineDone
		return result, nil
	}

	imageURL := s.storeImage(ctx, storage.PurposeTicketImage, storage.PathParams{
		TicketID: ticketID,
		RunID:    runID,
		FileName: generatedImageFile,
	}, image.MIMEType, image.Data)
	if imageURL == "" {
		result.State = domain.PipelineDone
		return result, nil
	}

	result.State = domain.PipelinePersisting
	// A remix always adopts the regenerated background, even over a custom
	// upload; event details are never touched.
	ticket.ImageURL = imageURL
	ticket.ImageSource = domain.ImageSourceGenerated
	result.Ticket = ticket
	result.State = domain.PipelineDone

	saved, latest, err := s.commitRun(ctx, sessionKey, runID, ticket)
	if !latest {
		result.Superseded = true
		return result, nil
	}
	if err != nil {
		s.logger.Warn("ticket save failed after remix",
			zap.String("ticket_id", ticketID), zap.String("run_id", runID), zap.Error(err))
		return result, nil
	}
	result.Ticket = saved
	result.Saved = true

	s.publish(ctx, jobs.TicketEvent{
		Kind:      jobs.EventTicketRemixed,
		TicketID:  saved.ID,
		RunID:     runID,
		SessionID: cmd.SessionID,
		ImageURL:  saved.ImageURL,
	})
	return result, nil
}

// resolveImage picks the run's background: a custom upload short-circuits the
// image model entirely and is never overwritten within the same run.
func (s *generationService) resolveImage(ctx context.Context, ticketID, runID string, custom *InlineUpload, prompt string) (string, domain.ImageSource) {
	if custom != nil && len(custom.Data) > 0 {
		url := s.storeImage(ctx, storage.PurposeCustomBackground, storage.PathParams{
			TicketID: ticketID,
			UploadID: runID,
			FileName: customImageFile,
		}, custom.MIMEType, custom.Data)
		if url != "" {
			return url, domain.ImageSourceCustom
		}
		return "", ""
	}

	prompt = strings.TrimSpace(prompt)
	if !s.enableImages || s.images == nil || prompt == "" {
		return "", ""
	}
	image, err := s.images.Generate(ctx, prompt)
	if err != nil {
		s.logger.Warn("image generation failed", zap.String("run_id", runID), zap.Error(err))
		return "", ""
	}
	if image.IsEmpty() {
		return "", ""
	}
	url := s.storeImage(ctx, storage.PurposeTicketImage, storage.PathParams{
		TicketID: ticketID,
		RunID:    runID,
		FileName: generatedImageFile,
	}, image.MIMEType, image.Data)
	if url == "" {
		return "", ""
	}
	return url, domain.ImageSourceGenerated
}

func (s *generationService) storeImage(ctx context.Context, purpose storage.AssetPurpose, params storage.PathParams, contentType string, data []byte) string {
	if s.objects == nil {
		return ""
	}
	object, err := storage.BuildObjectPath(purpose, params)
	if err != nil {
		s.logger.Warn("asset path rejected", zap.Error(err))
		return ""
	}
	url, err := s.objects.Write(ctx, object, contentType, data)
	if err != nil {
		s.logger.Warn("asset upload failed", zap.String("object", object), zap.Error(err))
		return ""
	}
	return url
}

func (s *generationService) sanitizeDetails(details EventDetails) EventDetails {
	return EventDetails{
		ArtistOrEvent: s.sanitize(details.ArtistOrEvent),
		Venue:         s.sanitize(details.Venue),
		DateText:      s.sanitize(details.DateText),
		SeatText:      s.sanitize(details.SeatText),
		Message:       s.sanitize(details.Message),
	}
}

// registerRun records the run as the session's latest and returns the key it
// was registered under. Older outstanding runs of the same session lose the
// right to commit their results.
func (s *generationService) registerRun(sessionID, runID string) string {
	key := strings.TrimSpace(sessionID)
	if key == "" {
		key = anonymousSessionKey
	}
	s.mu.Lock()
	s.latestRuns[key] = runID
	s.mu.Unlock()
	return key
}

func (s *generationService) isLatestRun(sessionKey, runID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latestRuns[sessionKey] == runID
}

// commitRun saves the record only while the run is still the session's
// latest. The commit lock serialises the check with the save so a stale run
// cannot overwrite a record a newer run already persisted.
func (s *generationService) commitRun(ctx context.Context, sessionKey, runID string, record domain.TicketRecord) (domain.TicketRecord, bool, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	if !s.isLatestRun(sessionKey, runID) {
		return domain.TicketRecord{}, false, nil
	}
	saved, err := s.tickets.Save(ctx, record)
	return saved, true, err
}

func (s *generationService) publish(ctx context.Context, event jobs.TicketEvent) {
	if s.events == nil {
		return
	}
	event.OccurredAt = s.clock()
	if _, err := s.events.PublishTicketEvent(ctx, event); err != nil {
		s.logger.Warn("ticket event publish failed",
			zap.String("kind", string(event.Kind)), zap.Error(err))
	}
}

func describeEvent(details EventDetails) string {
	parts := make([]string, 0, 3)
	if details.ArtistOrEvent != "" {
		parts = append(parts, details.ArtistOrEvent)
	}
	if details.Venue != "" {
		parts = append(parts, "at "+details.Venue)
	}
	if details.DateText != "" {
		parts = append(parts, "on "+details.DateText)
	}
	if len(parts) == 0 {
		return "an unforgettable live concert"
	}
	return "a live show by " + strings.Join(parts, " ")
}

func mapRepositoryError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrTicketNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
		}
	}
	return err
}

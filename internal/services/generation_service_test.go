package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/prettytickets/api/internal/domain"
	"github.com/prettytickets/api/internal/genai"
	"github.com/prettytickets/api/internal/platform/jobs"
)

// memTicketRepo is an in-memory TicketRepository used across the service tests.
type memTicketRepo struct {
	mu      sync.Mutex
	records map[string]domain.TicketRecord
	nextID  int
	saveErr error
	findErr error
	saves   int
	onSave  func()
}

func newMemTicketRepo() *memTicketRepo {
	return &memTicketRepo{records: make(map[string]domain.TicketRecord)}
}

type fakeRepoError struct {
	msg      string
	notFound bool
	unavail  bool
}

func (e *fakeRepoError) Error() string       { return e.msg }
func (e *fakeRepoError) IsNotFound() bool    { return e.notFound }
func (e *fakeRepoError) IsConflict() bool    { return false }
func (e *fakeRepoError) IsUnavailable() bool { return e.unavail }

func (r *memTicketRepo) Save(_ context.Context, ticket domain.TicketRecord) (domain.TicketRecord, error) {
	if r.onSave != nil {
		r.onSave()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return domain.TicketRecord{}, r.saveErr
	}
	r.saves++
	now := time.Now().UTC()
	if ticket.ID == "" {
		r.nextID++
		ticket.ID = fmt.Sprintf("tkt_%04d", r.nextID)
	}
	if existing, ok := r.records[ticket.ID]; ok {
		ticket.IsPaid = existing.IsPaid
		ticket.PaidAt = existing.PaidAt
		ticket.CreatedAt = existing.CreatedAt
	} else {
		ticket.IsPaid = false
		ticket.PaidAt = nil
		ticket.CreatedAt = now
	}
	ticket.UpdatedAt = now
	r.records[ticket.ID] = ticket
	return ticket, nil
}

func (r *memTicketRepo) FindByID(_ context.Context, ticketID string) (domain.TicketRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return domain.TicketRecord{}, r.findErr
	}
	ticket, ok := r.records[ticketID]
	if !ok {
		return domain.TicketRecord{}, &fakeRepoError{msg: "ticket not found", notFound: true}
	}
	return ticket, nil
}

func (r *memTicketRepo) MarkPaid(_ context.Context, ticketID string, paidAt time.Time) (domain.TicketRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.records[ticketID]
	if !ok {
		return domain.TicketRecord{}, &fakeRepoError{msg: "ticket not found", notFound: true}
	}
	if !ticket.IsPaid {
		when := paidAt.UTC()
		ticket.IsPaid = true
		ticket.PaidAt = &when
		r.records[ticketID] = ticket
	}
	return ticket, nil
}

func (r *memTicketRepo) ListRecent(_ context.Context, limit int) ([]domain.TicketRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.TicketRecord, 0, len(r.records))
	for _, ticket := range r.records {
		out = append(out, ticket)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type stubMetadata struct {
	result  genai.MetadataResult
	err     error
	calls   int
	onFirst func()
}

func (m *stubMetadata) Generate(_ context.Context, _ genai.MetadataRequest) (genai.MetadataResult, error) {
	m.calls++
	if m.calls == 1 && m.onFirst != nil {
		m.onFirst()
	}
	return m.result, m.err
}

type stubImages struct {
	result       genai.ImageResult
	err          error
	prompts      []string
	remixPrompts []string
	remixMoods   []string
}

func (m *stubImages) Generate(_ context.Context, prompt string) (genai.ImageResult, error) {
	m.prompts = append(m.prompts, prompt)
	return m.result, m.err
}

func (m *stubImages) Remix(_ context.Context, prompt, mood string) (genai.ImageResult, error) {
	m.remixPrompts = append(m.remixPrompts, prompt)
	m.remixMoods = append(m.remixMoods, mood)
	return m.result, m.err
}

type stubObjects struct {
	objects map[string][]byte
	err     error
}

func (s *stubObjects) Write(_ context.Context, object, _ string, data []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.objects == nil {
		s.objects = make(map[string][]byte)
	}
	s.objects[object] = data
	return "https://storage.googleapis.com/assets/" + object, nil
}

type stubPublisher struct {
	events []jobs.TicketEvent
	err    error
}

func (p *stubPublisher) PublishTicketEvent(_ context.Context, event jobs.TicketEvent) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, event)
	return "msg-1", nil
}

func sampleMetadataResult() genai.MetadataResult {
	return genai.MetadataResult{
		Event: domain.EventDetails{ArtistOrEvent: "The Midnight", Venue: "Brixton Academy"},
		Theme: domain.VisualTheme{Palette: []string{"#0b1026"}, HeadlineFont: "Monument Extended"},
		Prompts: domain.AIPrompts{
			Background:   "neon skyline over a rain soaked street",
			AlternateArt: "chrome sunset grid",
		},
		GiftCopy: domain.GiftCopy{Headline: "One Night Only"},
		Layout:   domain.LayoutGuide{Alignment: "left"},
	}
}

type generationFixture struct {
	repo      *memTicketRepo
	metadata  *stubMetadata
	images    *stubImages
	objects   *stubObjects
	publisher *stubPublisher
}

func newGenerationService(t *testing.T, fix *generationFixture) GenerationService {
	t.Helper()
	var events jobs.EventPublisher
	if fix.publisher != nil {
		events = fix.publisher
	}
	svc, err := NewGenerationService(GenerationServiceDeps{
		Tickets:      fix.repo,
		Metadata:     fix.metadata,
		Images:       fix.images,
		Objects:      fix.objects,
		Events:       events,
		Clock:        func() time.Time { return time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC) },
		EnableImages: true,
	})
	if err != nil {
		t.Fatalf("new generation service: %v", err)
	}
	return svc
}

func TestGenerateHappyPath(t *testing.T) {
	fix := &generationFixture{
		repo:      newMemTicketRepo(),
		metadata:  &stubMetadata{result: sampleMetadataResult()},
		images:    &stubImages{result: genai.ImageResult{MIMEType: "image/png", Data: []byte("png")}},
		objects:   &stubObjects{},
		publisher: &stubPublisher{},
	}
	svc := newGenerationService(t, fix)

	result, err := svc.Generate(context.Background(), GenerateTicketCommand{
		SessionID: "sess-1",
		Details:   domain.EventDetails{ArtistOrEvent: "The Midnight"},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.State != domain.PipelineDone {
		t.Fatalf("state = %s", result.State)
	}
	if !result.Saved || result.Ticket.ID == "" {
		t.Fatalf("expected saved ticket with id, got %+v", result)
	}
	if result.Ticket.ImageURL == "" || result.Ticket.ImageSource != domain.ImageSourceGenerated {
		t.Fatalf("expected generated image, got %+v", result.Ticket)
	}
	if result.RunID == "" || !strings.HasPrefix(result.RunID, "run_") {
		t.Fatalf("run id = %q", result.RunID)
	}
	if len(fix.images.prompts) != 1 || fix.images.prompts[0] != "neon skyline over a rain soaked street" {
		t.Fatalf("image prompts = %v", fix.images.prompts)
	}
	if len(fix.publisher.events) != 1 || fix.publisher.events[0].Kind != jobs.EventTicketGenerated {
		t.Fatalf("events = %+v", fix.publisher.events)
	}

	// Round trip: the stored record carries the same event details and image.
	stored, err := fix.repo.FindByID(context.Background(), result.Ticket.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.Event != result.Ticket.Event || stored.ImageURL != result.Ticket.ImageURL {
		t.Fatalf("round trip mismatch: %+v vs %+v", stored, result.Ticket)
	}
}

func TestGenerateMetadataFailure(t *testing.T) {
	fix := &generationFixture{
		repo:     newMemTicketRepo(),
		metadata: &stubMetadata{err: fmt.Errorf("generate ticket metadata: %w", genai.ErrGeneration)},
		images:   &stubImages{},
		objects:  &stubObjects{},
	}
	svc := newGenerationService(t, fix)

	result, err := svc.Generate(context.Background(), GenerateTicketCommand{
		Details: domain.EventDetails{ArtistOrEvent: "The Midnight"},
	})
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("err = %v, want ErrGenerationFailed", err)
	}
	if result.State != domain.PipelineFailed {
		t.Fatalf("state = %s", result.State)
	}
	if fix.repo.saves != 0 {
		t.Fatalf("no save expected on failed run, got %d", fix.repo.saves)
	}
}

func TestGenerateImageRefusalStillSaves(t *testing.T) {
	fix := &generationFixture{
		repo:     newMemTicketRepo(),
		metadata: &stubMetadata{result: sampleMetadataResult()},
		images:   &stubImages{result: genai.ImageResult{}},
		objects:  &stubObjects{},
	}
	svc := newGenerationService(t, fix)

	result, err := svc.Generate(context.Background(), GenerateTicketCommand{
		Details: domain.EventDetails{ArtistOrEvent: "The Midnight"},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !result.Saved {
		t.Fatal("record with event name must still be saved without an image")
	}
	if result.Ticket.ImageURL != "" || result.Ticket.ImageSource != "" {
		t.Fatalf("expected no image, got %+v", result.Ticket)
	}
}

func TestGenerateCustomBackgroundShortCircuits(t *testing.T) {
	fix := &generationFixture{
		repo:     newMemTicketRepo(),
		metadata: &stubMetadata{result: sampleMetadataResult()},
		images:   &stubImages{result: genai.ImageResult{MIMEType: "image/png", Data: []byte("generated")}},
		objects:  &stubObjects{},
	}
	svc := newGenerationService(t, fix)

	result, err := svc.Generate(context.Background(), GenerateTicketCommand{
		Details:          domain.EventDetails{ArtistOrEvent: "The Midnight"},
		CustomBackground: &InlineUpload{MIMEType: "image/png", Data: []byte("custom")},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(fix.images.prompts) != 0 {
		t.Fatalf("image model must not run for custom backgrounds, prompts = %v", fix.images.prompts)
	}
	if result.Ticket.ImageSource != domain.ImageSourceCustom {
		t.Fatalf("image source = %q", result.Ticket.ImageSource)
	}
	if !strings.Contains(result.Ticket.ImageURL, "backgrounds") {
		t.Fatalf("custom image url = %q", result.Ticket.ImageURL)
	}
}

func TestGenerateSaveFailureIsBestEffort(t *testing.T) {
	repo := newMemTicketRepo()
	repo.saveErr = &fakeRepoError{msg: "firestore unavailable", unavail: true}
	fix := &generationFixture{
		repo:     repo,
		metadata: &stubMetadata{result: sampleMetadataResult()},
		images:   &stubImages{result: genai.ImageResult{MIMEType: "image/png", Data: []byte("png")}},
		objects:  &stubObjects{},
	}
	svc := newGenerationService(t, fix)

	result, err := svc.Generate(context.Background(), GenerateTicketCommand{
		Details: domain.EventDetails{ArtistOrEvent: "The Midnight"},
	})
	if err != nil {
		t.Fatalf("generate must not fail on save error: %v", err)
	}
	if result.Saved || result.Ticket.ID != "" {
		t.Fatalf("expected unsaved result without shareable id, got %+v", result)
	}
	if result.Ticket.ImageURL == "" {
		t.Fatal("generated content must survive a save failure")
	}
}

func TestGenerateSecondRunWins(t *testing.T) {
	fix := &generationFixture{
		repo:     newMemTicketRepo(),
		metadata: &stubMetadata{result: sampleMetadataResult()},
		images:   &stubImages{result: genai.ImageResult{MIMEType: "image/png", Data: []byte("png")}},
		objects:  &stubObjects{},
	}
	svc := newGenerationService(t, fix)

	var second GenerationResult
	// The second submission arrives while the first run is still inside the
	// metadata stage.
	fix.metadata.onFirst = func() {
		var err error
		second, err = svc.Generate(context.Background(), GenerateTicketCommand{
			SessionID: "sess-1",
			Details:   domain.EventDetails{ArtistOrEvent: "Caroline Polachek"},
		})
		if err != nil {
			t.Errorf("second generate: %v", err)
		}
	}

	first, err := svc.Generate(context.Background(), GenerateTicketCommand{
		SessionID: "sess-1",
		Details:   domain.EventDetails{ArtistOrEvent: "The Midnight"},
	})
	if err != nil {
		t.Fatalf("first generate: %v", err)
	}
	if !first.Superseded || first.Saved {
		t.Fatalf("stale run must not commit, got %+v", first)
	}
	if !second.Saved || second.Superseded {
		t.Fatalf("latest run must commit, got %+v", second)
	}
	if fix.repo.saves != 1 {
		t.Fatalf("saves = %d, want 1", fix.repo.saves)
	}
}

func TestCommitSerialisesStaleRunWithNewerSave(t *testing.T) {
	fix := &generationFixture{
		repo:     newMemTicketRepo(),
		metadata: &stubMetadata{result: sampleMetadataResult()},
		images:   &stubImages{},
		objects:  &stubObjects{},
	}
	svc := newGenerationService(t, fix).(*generationService)

	sessionKey := svc.registerRun("sess-1", "run_1")
	svc.registerRun("sess-1", "run_2")

	// The newer run is held mid-save while the stale run tries to commit.
	// The stale commit must wait out the save and then see it lost the race.
	enteredSave := make(chan struct{})
	release := make(chan struct{})
	fix.repo.onSave = func() {
		fix.repo.onSave = nil
		close(enteredSave)
		<-release
	}

	staleDone := make(chan struct{})
	var staleLatest bool
	go func() {
		defer close(staleDone)
		<-enteredSave
		close(release)
		_, latest, err := svc.commitRun(context.Background(), sessionKey, "run_1", domain.TicketRecord{
			Event: domain.EventDetails{ArtistOrEvent: "The Midnight"},
		})
		if err != nil {
			t.Errorf("stale commit: %v", err)
		}
		staleLatest = latest
	}()

	saved, latest, err := svc.commitRun(context.Background(), sessionKey, "run_2", domain.TicketRecord{
		Event: domain.EventDetails{ArtistOrEvent: "Caroline Polachek"},
	})
	if err != nil {
		t.Fatalf("latest commit: %v", err)
	}
	if !latest {
		t.Fatal("latest run must commit")
	}
	<-staleDone

	if staleLatest {
		t.Fatal("stale run must not commit after a newer run registered")
	}
	if fix.repo.saves != 1 {
		t.Fatalf("saves = %d, want 1", fix.repo.saves)
	}
	got, err := fix.repo.FindByID(context.Background(), saved.ID)
	if err != nil {
		t.Fatalf("find saved ticket: %v", err)
	}
	if got.Event.ArtistOrEvent != "Caroline Polachek" {
		t.Fatalf("stored event = %q, want the newer run's record", got.Event.ArtistOrEvent)
	}
}

func TestGenerateRequiresInput(t *testing.T) {
	fix := &generationFixture{
		repo:     newMemTicketRepo(),
		metadata: &stubMetadata{result: sampleMetadataResult()},
		images:   &stubImages{},
		objects:  &stubObjects{},
	}
	svc := newGenerationService(t, fix)

	_, err := svc.Generate(context.Background(), GenerateTicketCommand{})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestGenerateSanitisesMessage(t *testing.T) {
	fix := &generationFixture{
		repo:     newMemTicketRepo(),
		metadata: &stubMetadata{result: genai.MetadataResult{}},
		images:   &stubImages{},
		objects:  &stubObjects{},
	}
	svc := newGenerationService(t, fix)

	result, err := svc.Generate(context.Background(), GenerateTicketCommand{
		Details: domain.EventDetails{
			ArtistOrEvent: "The Midnight",
			Message:       `<script>alert("x")</script>see you there`,
		},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if strings.Contains(result.Ticket.Event.Message, "<script>") {
		t.Fatalf("message not sanitised: %q", result.Ticket.Event.Message)
	}
	if !strings.Contains(result.Ticket.Event.Message, "see you there") {
		t.Fatalf("plain text lost: %q", result.Ticket.Event.Message)
	}
}

func TestRemixRegeneratesImageOnly(t *testing.T) {
	repo := newMemTicketRepo()
	seed, err := repo.Save(context.Background(), domain.TicketRecord{
		Event:       domain.EventDetails{ArtistOrEvent: "The Midnight", Message: "Happy birthday!"},
		Prompts:     domain.AIPrompts{Background: "neon skyline over a rain soaked street"},
		ImageURL:    "https://storage.googleapis.com/assets/custom.png",
		ImageSource: domain.ImageSourceCustom,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	fix := &generationFixture{
		repo:      repo,
		metadata:  &stubMetadata{},
		images:    &stubImages{result: genai.ImageResult{MIMEType: "image/png", Data: []byte("remixed")}},
		objects:   &stubObjects{},
		publisher: &stubPublisher{},
	}
	svc := newGenerationService(t, fix)

	result, err := svc.Remix(context.Background(), RemixTicketCommand{TicketID: seed.ID, Mood: "melancholy"})
	if err != nil {
		t.Fatalf("remix: %v", err)
	}
	if len(fix.images.remixPrompts) != 1 || fix.images.remixPrompts[0] != "neon skyline over a rain soaked street" {
		t.Fatalf("remix prompts = %v", fix.images.remixPrompts)
	}
	if fix.images.remixMoods[0] != "melancholy" {
		t.Fatalf("remix mood = %q", fix.images.remixMoods[0])
	}
	if result.Ticket.Event != seed.Event {
		t.Fatalf("event details must be untouched: %+v vs %+v", result.Ticket.Event, seed.Event)
	}
	if result.Ticket.ImageSource != domain.ImageSourceGenerated {
		t.Fatalf("remix must adopt the generated image, got %q", result.Ticket.ImageSource)
	}
	if !result.Saved {
		t.Fatal("remix result must be saved")
	}
	if len(fix.publisher.events) != 1 || fix.publisher.events[0].Kind != jobs.EventTicketRemixed {
		t.Fatalf("events = %+v", fix.publisher.events)
	}
}

func TestRemixRefusalLeavesTicketUnchanged(t *testing.T) {
	repo := newMemTicketRepo()
	seed, err := repo.Save(context.Background(), domain.TicketRecord{
		Event:    domain.EventDetails{ArtistOrEvent: "The Midnight"},
		Prompts:  domain.AIPrompts{Background: "neon skyline"},
		ImageURL: "https://storage.googleapis.com/assets/original.png",
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	saves := repo.saves

	fix := &generationFixture{
		repo:     repo,
		metadata: &stubMetadata{},
		images:   &stubImages{result: genai.ImageResult{}},
		objects:  &stubObjects{},
	}
	svc := newGenerationService(t, fix)

	result, err := svc.Remix(context.Background(), RemixTicketCommand{TicketID: seed.ID, Mood: "dreamy"})
	if err != nil {
		t.Fatalf("remix: %v", err)
	}
	if result.Saved {
		t.Fatal("refused remix must not save")
	}
	if result.Ticket.ImageURL != seed.ImageURL {
		t.Fatalf("image changed on refusal: %q", result.Ticket.ImageURL)
	}
	if repo.saves != saves {
		t.Fatalf("unexpected save, count %d -> %d", saves, repo.saves)
	}
}

func TestRemixUnknownTicket(t *testing.T) {
	fix := &generationFixture{
		repo:     newMemTicketRepo(),
		metadata: &stubMetadata{},
		images:   &stubImages{},
		objects:  &stubObjects{},
	}
	svc := newGenerationService(t, fix)

	_, err := svc.Remix(context.Background(), RemixTicketCommand{TicketID: "tkt_missing", Mood: "dreamy"})
	if !errors.Is(err, ErrTicketNotFound) {
		t.Fatalf("err = %v, want ErrTicketNotFound", err)
	}
}

// Package repositories defines the persistence contracts consumed by the
// service layer, independent of the backing store.
package repositories

import (
	"context"
	"time"

	domain "github.com/prettytickets/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// TicketRepository persists keepsake ticket records.
//
// Save upserts the full record. A record without an ID is created with a
// freshly minted one; an existing record is replaced wholesale except for
// payment state and creation time, which only MarkPaid and the original
// insert may touch.
type TicketRepository interface {
	Save(ctx context.Context, ticket domain.TicketRecord) (domain.TicketRecord, error)
	FindByID(ctx context.Context, ticketID string) (domain.TicketRecord, error)
	MarkPaid(ctx context.Context, ticketID string, paidAt time.Time) (domain.TicketRecord, error)
	ListRecent(ctx context.Context, limit int) ([]domain.TicketRecord, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

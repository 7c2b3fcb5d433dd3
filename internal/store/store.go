// Package store defines the persistence boundary of the marketplace. The
// engine only ever talks to these interfaces; mongostore, sqlstore and
// memstore implement them.
package store

import (
	"context"
	"errors"
	"time"

	"upcycle-api-server/internal/models"
)

var (
	ErrNotFound  = errors.New("store: not found")
	ErrDuplicate = errors.New("store: duplicate key")
	// ErrConflict is returned when a conditional write finds the row changed
	// since it was read (version or status mismatch).
	ErrConflict = errors.New("store: concurrent modification")
)

type Materials interface {
	Get(ctx context.Context, id string) (*models.Material, error)
	// GetForUpdate reads the material and holds an exclusive claim on it
	// until the enclosing transaction ends.
	GetForUpdate(ctx context.Context, id string) (*models.Material, error)
	// Update writes quantity and status iff the stored version still equals
	// m.Version, then bumps m.Version.
	Update(ctx context.Context, m *models.Material) error
}

type Organizations interface {
	Get(ctx context.Context, id string) (*models.Organization, error)
}

type Requests interface {
	Create(ctx context.Context, r *models.Request) error
	Get(ctx context.Context, id string) (*models.Request, error)
	// FindByMaterialAndBuyer returns the buyer's live (non-rejected) request
	// on the material. Create enforces the same uniqueness with ErrDuplicate.
	FindByMaterialAndBuyer(ctx context.Context, materialID, buyerID string) (*models.Request, error)
	ListByMaterial(ctx context.Context, materialID string) ([]models.Request, error)
	ListByOrganization(ctx context.Context, orgID string) ([]models.Request, error)
	// UpdateStatus moves the request from -> to and stamps updatedAt with at;
	// ErrConflict if the stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to models.RequestStatus, at time.Time) error
}

type Feedback interface {
	Create(ctx context.Context, f *models.Feedback) error
	GetByRequest(ctx context.Context, requestID string) (*models.Feedback, error)
}

type Reports interface {
	Create(ctx context.Context, r *models.Report) error
	Get(ctx context.Context, id string) (*models.Report, error)
	ListByOrganization(ctx context.Context, orgID string) ([]models.Report, error)
	SetEvidence(ctx context.Context, id, url string) error
}

// Tx is one unit of work. Everything written through it commits or rolls
// back together.
type Tx interface {
	Materials() Materials
	Organizations() Organizations
	Requests() Requests
	Feedback() Feedback
	Reports() Reports
}

type Store interface {
	// WithinTx runs fn in a transaction. A non-nil error from fn rolls back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close(ctx context.Context) error
}

// Seeder is implemented by stores that accept listings and organizations
// directly. Listing CRUD lives outside the marketplace; this is for dev data
// and tests.
type Seeder interface {
	PutOrganization(ctx context.Context, org *models.Organization) error
	PutMaterial(ctx context.Context, m *models.Material) error
}

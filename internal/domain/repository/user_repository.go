package repository

import (
	"context"
	"errors"

	"github.com/usagelab/mobile-usage-api/internal/domain/entity"
)

// Error taxonomy shared by every store implementation. Callers branch with
// errors.Is; anything not listed here is a generic store failure.
var (
	// ErrNotFound means the subject user_id has no row in users.
	ErrNotFound = errors.New("not found")
	// ErrReferentialIntegrity means a child row referenced a user_id with no
	// corresponding users row.
	ErrReferentialIntegrity = errors.New("referential integrity violation")
	// ErrPoolExhausted means no store connection became free within the
	// configured acquire timeout.
	ErrPoolExhausted = errors.New("connection pool exhausted")
)

// UserRepository defines store access for the user aggregate and the flat
// per-table records. Every write is a single statement group: it commits
// only when all constituent statements succeed and rolls back otherwise.
type UserRepository interface {
	// Create persists the whole aggregate (user row first, then children)
	// and fills store-generated child ids on success.
	Create(ctx context.Context, u *entity.User) error
	// GetByID reconstructs one aggregate from scoped per-relation queries.
	GetByID(ctx context.Context, userID int) (*entity.User, error)
	// GetLatest returns the aggregate with the highest user_id.
	GetLatest(ctx context.Context) (*entity.User, error)
	// List reconstructs every aggregate from a single joined result stream,
	// ordered by ascending user_id.
	List(ctx context.Context) ([]entity.User, error)
	// Update replaces the aggregate: user scalars overwritten, children
	// reconciled to exactly the supplied sets.
	Update(ctx context.Context, u *entity.User) error
	// Delete removes the user row and every child row referencing it.
	Delete(ctx context.Context, userID int) error

	// Flat single-row operations mirroring the per-table endpoints.
	AddDevice(ctx context.Context, d *entity.Device) error
	AddAppUsage(ctx context.Context, a *entity.AppUsage) error
	AddBehavior(ctx context.Context, b *entity.UserBehavior) error
	ListDevices(ctx context.Context) ([]entity.Device, error)
	ListAppUsage(ctx context.Context) ([]entity.AppUsage, error)
	ListBehaviors(ctx context.Context) ([]entity.UserBehavior, error)
}

package account

import (
	"context"
	"errors"
)

var (
	ErrNotFound  = errors.New("account: not found")
	ErrDuplicate = errors.New("account: email already registered")
)

// Store describes persistence operations required by the identity subsystem.
// Updates are single-document and rely on the database for atomicity; the
// subsystem adds no locking of its own.
type Store interface {
	Create(ctx context.Context, a *Account) error
	Find(ctx context.Context, id string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	List(ctx context.Context) ([]*Account, error)
	SetActive(ctx context.Context, id string, active bool) (*Account, error)
	SetAssignedOrders(ctx context.Context, id string, orderIDs []string) (*Account, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

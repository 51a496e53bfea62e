package relays

import (
	"context"

	"github.com/dmitrijs2005/exius/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, relay *models.Relay) error
	Get(ctx context.Context, name string) (*models.Relay, error)
	Update(ctx context.Context, name string, upd *Update) error
	Delete(ctx context.Context, name string) error
	IncrementPulls(ctx context.Context, name string) (int64, error)
}

// Update lists the relay columns to overwrite. Nil fields are left as they
// are.
type Update struct {
	Repository     *string
	Password       *string
	WriteEndpoints models.WriteEndpoints
	BaseFolder     *models.BaseFolder
	MaxRelayPulls  *int64
	CustomPath     *string
	MetaData       *string
}

// Empty reports whether the update carries no field.
func (u *Update) Empty() bool {
	return u == nil || (u.Repository == nil && u.Password == nil && u.WriteEndpoints == nil &&
		u.BaseFolder == nil && u.MaxRelayPulls == nil && u.CustomPath == nil && u.MetaData == nil)
}

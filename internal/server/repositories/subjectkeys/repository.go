package subjectkeys

import (
	"context"

	"github.com/dmitrijs2005/exius/internal/server/models"
)

// Repository manages the credential table of a single relay.
type Repository interface {
	CreateTable(ctx context.Context) error
	DropTable(ctx context.Context) error
	TableExists(ctx context.Context) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Insert(ctx context.Context, key *models.SubjectKey) error
	Get(ctx context.Context, key string) (*models.SubjectKey, error)
	List(ctx context.Context) ([]*models.SubjectKey, error)
	Update(ctx context.Context, key string, upd *Update) error
	Delete(ctx context.Context, key string) error
}

// Update lists the credential columns to overwrite. Nil fields are left as
// they are.
type Update struct {
	UploadState models.UploadState
	MetaData    *string
}

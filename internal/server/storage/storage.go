// Package storage abstracts the remote folder store that relays upload into.
//
// Folders are addressed by opaque ids. The id common.RootFolderID ("0")
// names the storage root.
package storage

import (
	"context"
	"errors"
	"io"
)

var ErrFolderNotFound = errors.New("folder not found")
var ErrFileNotFound = errors.New("file not found")

// Folder is a child entry returned by ListFolderChildren.
type Folder struct {
	ID   string
	Name string
}

// Storage is the remote storage capability used by the folder materializer
// and the upload executor.
type Storage interface {
	ListFolderChildren(ctx context.Context, folderID string) ([]Folder, error)
	CreateFolder(ctx context.Context, parentID, name string) (Folder, error)
	CreateShareLink(ctx context.Context, folderID string) (string, error)
	// UploadFile stores the first version of name under folderID and
	// returns the new file id.
	UploadFile(ctx context.Context, folderID, name string, body io.Reader, size int64) (string, error)
	// ReplaceFile stores a new version of an existing file.
	ReplaceFile(ctx context.Context, fileID string, body io.Reader, size int64) error
}

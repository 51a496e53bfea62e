// Package folders materializes slash paths as folder trees in remote
// storage, reusing folders that already exist.
package folders

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/exius/internal/common"
	"github.com/dmitrijs2005/exius/internal/logging"
	"github.com/dmitrijs2005/exius/internal/server/storage"
	"golang.org/x/sync/singleflight"
)

// Tree is the result of MaterializeMany.
type Tree struct {
	BaseID string
	// Subtrees maps each requested sub-path (as given) to its leaf folder id.
	Subtrees map[string]string
}

// Materializer walks and extends folder trees. Concurrent requests creating
// the same child of the same parent inside this process share one remote
// call.
type Materializer struct {
	store  storage.Storage
	logger logging.Logger
	group  singleflight.Group
}

func NewMaterializer(store storage.Storage, logger logging.Logger) *Materializer {
	return &Materializer{store: store, logger: logger.With("module", "folders")}
}

// SplitPath splits a slash path into its non-empty segments.
func SplitPath(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Materialize ensures the chain of segments exists below rootID and returns
// the id of the last one. No segments yields rootID.
func (m *Materializer) Materialize(ctx context.Context, rootID string, segments []string) (string, error) {
	current := rootID
	for _, name := range segments {
		next, err := m.child(ctx, current, name)
		if err != nil {
			return "", err
		}
		current = next
	}
	return current, nil
}

// MaterializePath is Materialize over SplitPath(p).
func (m *Materializer) MaterializePath(ctx context.Context, rootID, p string) (string, error) {
	return m.Materialize(ctx, rootID, SplitPath(p))
}

// MaterializeMany materializes basePath below rootID, then each distinct
// sub-path below the base folder.
func (m *Materializer) MaterializeMany(ctx context.Context, rootID, basePath string, subPaths []string) (*Tree, error) {
	baseID, err := m.MaterializePath(ctx, rootID, basePath)
	if err != nil {
		return nil, err
	}

	tree := &Tree{BaseID: baseID, Subtrees: make(map[string]string, len(subPaths))}
	for _, p := range subPaths {
		if _, done := tree.Subtrees[p]; done {
			continue
		}
		id, err := m.MaterializePath(ctx, baseID, p)
		if err != nil {
			return nil, err
		}
		tree.Subtrees[p] = id
	}
	return tree, nil
}

// ShareLink returns a share link for folderID, or common.ShareLinkUnavailable
// for the storage root.
func (m *Materializer) ShareLink(ctx context.Context, folderID string) (string, error) {
	if folderID == common.RootFolderID {
		return common.ShareLinkUnavailable, nil
	}
	link, err := m.store.CreateShareLink(ctx, folderID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrRemoteStorage, err)
	}
	return link, nil
}

// child returns the id of name below parentID, creating it when missing.
// The shared remote call runs detached from the caller's cancellation, so
// a caller that gives up does not fail the others waiting on it.
func (m *Materializer) child(ctx context.Context, parentID, name string) (string, error) {
	ch := m.group.DoChan(parentID+"\x00"+name, func() (any, error) {
		ctx := context.WithoutCancel(ctx)
		children, err := m.store.ListFolderChildren(ctx, parentID)
		if err != nil {
			return "", fmt.Errorf("%w: list %s: %v", common.ErrRemoteStorage, parentID, err)
		}
		for _, c := range children {
			if c.Name == name {
				return c.ID, nil
			}
		}
		created, err := m.store.CreateFolder(ctx, parentID, name)
		if err != nil {
			return "", fmt.Errorf("%w: create %q in %s: %v", common.ErrRemoteStorage, name, parentID, err)
		}
		m.logger.Debug(ctx, "folder created", "parent", parentID, "name", name, "id", created.ID)
		return created.ID, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/dmitrijs2005/exius/internal/common"
	"github.com/google/uuid"
)

type memFolder struct {
	name     string
	parent   string
	children []string
}

type memFile struct {
	folder   string
	name     string
	versions [][]byte
}

// MemoryStorage is an in-process Storage used for development and tests.
// It is safe for concurrent use.
type MemoryStorage struct {
	mu      sync.Mutex
	folders map[string]*memFolder
	files   map[string]*memFile
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		folders: map[string]*memFolder{common.RootFolderID: {}},
		files:   map[string]*memFile{},
	}
}

func (m *MemoryStorage) ListFolderChildren(ctx context.Context, folderID string) ([]Folder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.folders[folderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFolderNotFound, folderID)
	}
	out := make([]Folder, 0, len(f.children))
	for _, id := range f.children {
		out = append(out, Folder{ID: id, Name: m.folders[id].name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CreateFolder always creates a new child, even when one with the same name
// exists, like most remote folder APIs.
func (m *MemoryStorage) CreateFolder(ctx context.Context, parentID, name string) (Folder, error) {
	if err := ctx.Err(); err != nil {
		return Folder{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	parent, ok := m.folders[parentID]
	if !ok {
		return Folder{}, fmt.Errorf("%w: %s", ErrFolderNotFound, parentID)
	}
	id := uuid.NewString()
	m.folders[id] = &memFolder{name: name, parent: parentID}
	parent.children = append(parent.children, id)
	return Folder{ID: id, Name: name}, nil
}

func (m *MemoryStorage) CreateShareLink(ctx context.Context, folderID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.folders[folderID]; !ok {
		return "", fmt.Errorf("%w: %s", ErrFolderNotFound, folderID)
	}
	return "memory://folders/" + folderID, nil
}

func (m *MemoryStorage) UploadFile(ctx context.Context, folderID, name string, body io.Reader, size int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(body, size))
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.folders[folderID]; !ok {
		return "", fmt.Errorf("%w: %s", ErrFolderNotFound, folderID)
	}
	id := uuid.NewString()
	m.files[id] = &memFile{folder: folderID, name: name, versions: [][]byte{data}}
	return id, nil
}

func (m *MemoryStorage) ReplaceFile(ctx context.Context, fileID string, body io.Reader, size int64) error {
	data, err := io.ReadAll(io.LimitReader(body, size))
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[fileID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
	}
	f.versions = append(f.versions, data)
	return nil
}

// ReadFile returns the latest content of fileID and its version count.
func (m *MemoryStorage) ReadFile(fileID string) ([]byte, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[fileID]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
	}
	return bytes.Clone(f.versions[len(f.versions)-1]), len(f.versions), nil
}

// FolderCount returns the number of folders excluding the root.
func (m *MemoryStorage) FolderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.folders) - 1
}

// Package files is the client-side state for the document browser:
// the current folder listing, the processed-document catalog and the
// recent-activity feed, all backed by the document service.
package files

import (
	"context"
	"io"
	"sync"

	"github.com/orderchat/orderchat/internal/log"
	"github.com/orderchat/orderchat/internal/rest"
)

// Service is the slice of the REST client the browser needs.
type Service interface {
	ListDocuments(ctx context.Context) ([]rest.Document, error)
	ListTree(ctx context.Context, q rest.TreeQuery) (rest.Listing, error)
	ListChildren(ctx context.Context, path string) (rest.Listing, error)
	CreateFolder(ctx context.Context, name, path string) error
	DeleteItem(ctx context.Context, path string) error
	UploadFile(ctx context.Context, path, filename string, contents io.Reader) error
	RecentActivity(ctx context.Context) ([]rest.FileItem, error)
}

// Browser holds the file-browser state. Mutations happen through its
// methods; reads return snapshots.
type Browser struct {
	mu              sync.Mutex
	files           []rest.FileItem
	folders         []rest.Folder
	currentFolderID string
	currentPath     string
	recent          []rest.FileItem

	svc    Service
	logger log.Logger
}

// NewBrowser creates an empty browser over the document service.
func NewBrowser(svc Service, logger log.Logger) *Browser {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Browser{svc: svc, logger: logger.With("component", "files")}
}

// normalizePath maps the UI's "root" marker to the service's empty
// root path.
func normalizePath(path string) string {
	if path == "root" {
		return ""
	}
	return path
}

// List fetches the tree at q.Path and replaces the browser state. On
// failure the previous listing stays in place.
func (b *Browser) List(ctx context.Context, q rest.TreeQuery) error {
	q.Path = normalizePath(q.Path)
	listing, err := b.svc.ListTree(ctx, q)
	if err != nil {
		b.logger.Warn("tree listing failed", "path", q.Path, "error", err)
		return err
	}

	b.mu.Lock()
	b.files = listing.Files
	b.folders = listing.Folders
	b.currentFolderID = listing.CurrentFolderID
	b.currentPath = q.Path
	b.mu.Unlock()
	return nil
}

// OpenFolder fetches the immediate children of one folder and makes
// it the current location.
func (b *Browser) OpenFolder(ctx context.Context, path string) error {
	path = normalizePath(path)
	listing, err := b.svc.ListChildren(ctx, path)
	if err != nil {
		b.logger.Warn("folder open failed", "path", path, "error", err)
		return err
	}

	b.mu.Lock()
	b.files = listing.Files
	b.folders = listing.Folders
	b.currentFolderID = listing.CurrentFolderID
	b.currentPath = path
	b.mu.Unlock()
	return nil
}

// CreateFolder creates a folder in the current location and refreshes
// the listing.
func (b *Browser) CreateFolder(ctx context.Context, name string) error {
	b.mu.Lock()
	path := b.currentPath
	b.mu.Unlock()

	if err := b.svc.CreateFolder(ctx, name, path); err != nil {
		return err
	}
	return b.List(ctx, rest.TreeQuery{Path: path})
}

// DeleteItem removes a file or folder and refreshes the listing.
func (b *Browser) DeleteItem(ctx context.Context, path string) error {
	if err := b.svc.DeleteItem(ctx, normalizePath(path)); err != nil {
		return err
	}

	b.mu.Lock()
	current := b.currentPath
	b.mu.Unlock()
	return b.List(ctx, rest.TreeQuery{Path: current})
}

// Upload sends a file into the current folder and refreshes the
// listing.
func (b *Browser) Upload(ctx context.Context, filename string, contents io.Reader) error {
	b.mu.Lock()
	path := b.currentPath
	b.mu.Unlock()

	if err := b.svc.UploadFile(ctx, path, filename, contents); err != nil {
		return err
	}
	return b.List(ctx, rest.TreeQuery{Path: path})
}

// RefreshRecent fetches the recent-activity feed.
func (b *Browser) RefreshRecent(ctx context.Context) error {
	recent, err := b.svc.RecentActivity(ctx)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.recent = recent
	b.mu.Unlock()
	return nil
}

// Documents fetches the processed-document catalog. The catalog is
// not cached: the list screen always shows fresh state.
func (b *Browser) Documents(ctx context.Context) ([]rest.Document, error) {
	return b.svc.ListDocuments(ctx)
}

// Files returns the current folder's files.
func (b *Browser) Files() []rest.FileItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]rest.FileItem, len(b.files))
	copy(out, b.files)
	return out
}

// Folders returns the current folder's subfolders.
func (b *Browser) Folders() []rest.Folder {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]rest.Folder, len(b.folders))
	copy(out, b.folders)
	return out
}

// Recent returns the last fetched recent-activity feed.
func (b *Browser) Recent() []rest.FileItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]rest.FileItem, len(b.recent))
	copy(out, b.recent)
	return out
}

// CurrentPath returns the path of the folder being browsed.
func (b *Browser) CurrentPath() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentPath
}

// CurrentFolderID returns the id the service assigned to the current
// folder.
func (b *Browser) CurrentFolderID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentFolderID
}

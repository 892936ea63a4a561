package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
)

// Document is one entry of the processed-document catalog.
type Document struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Size  string `json:"size"`
	URL   string `json:"url"`
	Type  string `json:"type,omitempty"`
}

// FileItem is a file in the raw storage tree.
type FileItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Size     string `json:"size"`
	Date     string `json:"date"`
	FolderID string `json:"folderId"`
}

// Folder is a node in the storage tree. Children are populated by the
// backend for tree queries and empty for flat listings.
type Folder struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Children []Folder `json:"children"`
}

// Listing is the file-browser view of one directory.
type Listing struct {
	Files           []FileItem `json:"files"`
	Folders         []Folder   `json:"folders"`
	CurrentFolderID string     `json:"currentFolderId"`
}

// TreeQuery are the optional parameters of a tree listing.
type TreeQuery struct {
	Path   string
	Search string
	SortBy string // "name" | "size" | "date"
	Order  string // "asc" | "desc"
	Page   int
	Limit  int
}

// envelope is the {success, message, data} wrapper the document service
// puts around its responses.
type envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    []T    `json:"data"`
}

// unwrap returns the first data element of a successful envelope.
func unwrap[T any](op string, resp envelope[T]) (T, error) {
	var zero T
	if !resp.Success {
		return zero, &Error{Op: op, StatusCode: http.StatusOK,
			Err: fmt.Errorf("backend reported failure: %s", resp.Message)}
	}
	if len(resp.Data) == 0 {
		return zero, nil
	}
	return resp.Data[0], nil
}

// ListDocuments fetches the processed-document catalog.
func (c *Client) ListDocuments(ctx context.Context) ([]Document, error) {
	var resp envelope[Document]
	if err := c.doJSON(ctx, "list documents", http.MethodGet, "/document/list", nil, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &Error{Op: "list documents", StatusCode: http.StatusOK,
			Err: fmt.Errorf("backend reported failure: %s", resp.Message)}
	}
	return resp.Data, nil
}

// ListTree fetches the storage tree rooted at q.Path with search, sort
// and pagination applied server-side.
func (c *Client) ListTree(ctx context.Context, q TreeQuery) (Listing, error) {
	query := url.Values{}
	if q.Path != "" {
		query.Set("path", q.Path)
	}
	if q.Search != "" {
		query.Set("search", q.Search)
	}
	if q.SortBy != "" {
		query.Set("sort_by", q.SortBy)
	}
	if q.Order != "" {
		query.Set("order", q.Order)
	}
	if q.Page > 0 {
		query.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}

	var resp envelope[Listing]
	if err := c.doJSON(ctx, "list tree", http.MethodGet, "/document/tree", query, nil, &resp); err != nil {
		return Listing{}, err
	}
	return unwrap("list tree", resp)
}

// ListChildren fetches the immediate contents of one folder.
func (c *Client) ListChildren(ctx context.Context, path string) (Listing, error) {
	query := url.Values{"path": {path}}

	var resp envelope[Listing]
	if err := c.doJSON(ctx, "list children", http.MethodGet, "/document/list", query, nil, &resp); err != nil {
		return Listing{}, err
	}
	return unwrap("list children", resp)
}

// CreateFolder creates a folder under path; empty path means the root.
func (c *Client) CreateFolder(ctx context.Context, name, path string) error {
	body := map[string]string{"name": name, "path": path}
	return c.doJSON(ctx, "create folder", http.MethodPost, "/document/folder", nil, body, nil)
}

// DeleteItem removes the file or folder at path.
func (c *Client) DeleteItem(ctx context.Context, path string) error {
	query := url.Values{"path": {path}}
	return c.doJSON(ctx, "delete item", http.MethodDelete, "/document/delete", query, nil, nil)
}

// UploadFile sends one file as a multipart form to the document
// service. Empty path targets the root folder.
func (c *Client) UploadFile(ctx context.Context, path, filename string, contents io.Reader) error {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return &Error{Op: "upload file", Err: err}
	}
	if _, err := io.Copy(part, contents); err != nil {
		return &Error{Op: "upload file", Err: err}
	}
	if err := form.WriteField("path", path); err != nil {
		return &Error{Op: "upload file", Err: err}
	}
	if err := form.Close(); err != nil {
		return &Error{Op: "upload file", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/document/upload", &buf)
	if err != nil {
		return &Error{Op: "upload file", Err: err}
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.authKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Op: "upload file", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &Error{Op: "upload file", StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return nil
}

// RecentActivity fetches the most recently touched files.
func (c *Client) RecentActivity(ctx context.Context) ([]FileItem, error) {
	var resp envelope[FileItem]
	if err := c.doJSON(ctx, "recent activity", http.MethodGet, "/document/recent", nil, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &Error{Op: "recent activity", StatusCode: http.StatusOK,
			Err: fmt.Errorf("backend reported failure: %s", resp.Message)}
	}
	return resp.Data, nil
}

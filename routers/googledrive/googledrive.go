// Package googledrive exposes Google Drive file operations as tools.
// The Router works against the Drive interface; HTTPDrive implements it
// over the Drive v3 REST API.
package googledrive

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/vladimirpesic/juggler/router"
	"github.com/vladimirpesic/juggler/schema"
)

const routerID = "google_drive"

// File is Drive file metadata.
type File struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size,omitempty"`
}

// Drive is the backend the router calls. HTTPDrive is the production
// implementation.
type Drive interface {
	Upload(ctx context.Context, name, mimeType string, content []byte) (File, error)
	Download(ctx context.Context, fileID string) (File, []byte, error)
	List(ctx context.Context, pageSize int) ([]File, error)
	Search(ctx context.Context, query string, pageSize int) ([]File, error)
}

// defaultPageSize bounds list and search results when the caller does
// not ask for a size.
const defaultPageSize = 25

// Router exposes drive operations as tools.
type Router struct {
	drive Drive
}

// NewRouter creates a google_drive router backed by drive.
func NewRouter(drive Drive) *Router {
	return &Router{drive: drive}
}

// ID implements router.Router.
func (r *Router) ID() string { return routerID }

// Stateful implements router.Router.
func (r *Router) Stateful() bool { return false }

// Tools implements router.Router.
func (r *Router) Tools() []router.Descriptor {
	return []router.Descriptor{
		{
			Name:        "upload_file",
			Description: "Upload a file to Google Drive",
			InputSchema: &schema.JSON{
				Type: schema.Object,
				Properties: map[string]*schema.JSON{
					"name":      {Type: schema.String, Description: "File name in Drive"},
					"content":   {Type: schema.String, Description: "Base64-encoded file content"},
					"mime_type": {Type: schema.String, Description: "Defaults to application/octet-stream"},
				},
				Required: []string{"name", "content"},
			},
		},
		{
			Name:        "download_file",
			Description: "Download a file from Google Drive by id",
			InputSchema: &schema.JSON{
				Type: schema.Object,
				Properties: map[string]*schema.JSON{
					"file_id": {Type: schema.String},
				},
				Required: []string{"file_id"},
			},
		},
		{
			Name:        "list_files",
			Description: "List files in Google Drive",
			InputSchema: &schema.JSON{
				Type: schema.Object,
				Properties: map[string]*schema.JSON{
					"page_size": {Type: schema.Integer, Description: "Max files to return"},
				},
			},
		},
		{
			Name:        "search_files",
			Description: "Search Google Drive by file name",
			InputSchema: &schema.JSON{
				Type: schema.Object,
				Properties: map[string]*schema.JSON{
					"query":     {Type: schema.String},
					"page_size": {Type: schema.Integer},
				},
				Required: []string{"query"},
			},
		},
	}
}

// Invoke implements router.Router.
func (r *Router) Invoke(ctx context.Context, call router.Call) (json.RawMessage, error) {
	switch call.Tool {
	case "upload_file":
		return r.upload(ctx, call.Arguments)
	case "download_file":
		return r.download(ctx, call.Arguments)
	case "list_files":
		return r.list(ctx, call.Arguments)
	case "search_files":
		return r.search(ctx, call.Arguments)
	default:
		return nil, router.NotOwned(routerID, call.Tool)
	}
}

func (r *Router) upload(ctx context.Context, arguments json.RawMessage) (json.RawMessage, error) {
	var args struct {
		Name     string `json:"name"`
		Content  string `json:"content"`
		MimeType string `json:"mime_type"`
	}
	if err := json.Unmarshal(arguments, &args); err != nil {
		return nil, router.InvalidArgsf("upload_file: %v", err)
	}

	content, err := base64.StdEncoding.DecodeString(args.Content)
	if err != nil {
		return nil, router.InvalidArgsf("upload_file: content is not valid base64: %v", err)
	}
	mimeType := args.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	file, err := r.drive.Upload(ctx, args.Name, mimeType, content)
	if err != nil {
		return nil, router.Translate(err)
	}
	return json.Marshal(map[string]any{"file": file})
}

func (r *Router) download(ctx context.Context, arguments json.RawMessage) (json.RawMessage, error) {
	var args struct {
		FileID string `json:"file_id"`
	}
	if err := json.Unmarshal(arguments, &args); err != nil {
		return nil, router.InvalidArgsf("download_file: %v", err)
	}

	file, content, err := r.drive.Download(ctx, args.FileID)
	if err != nil {
		return nil, router.Translate(err)
	}
	return json.Marshal(map[string]any{
		"file":    file,
		"content": base64.StdEncoding.EncodeToString(content),
	})
}

func (r *Router) list(ctx context.Context, arguments json.RawMessage) (json.RawMessage, error) {
	var args struct {
		PageSize int `json:"page_size"`
	}
	if err := json.Unmarshal(arguments, &args); err != nil {
		return nil, router.InvalidArgsf("list_files: %v", err)
	}

	files, err := r.drive.List(ctx, normalizePageSize(args.PageSize))
	if err != nil {
		return nil, router.Translate(err)
	}
	return marshalFiles(files)
}

func (r *Router) search(ctx context.Context, arguments json.RawMessage) (json.RawMessage, error) {
	var args struct {
		Query    string `json:"query"`
		PageSize int    `json:"page_size"`
	}
	if err := json.Unmarshal(arguments, &args); err != nil {
		return nil, router.InvalidArgsf("search_files: %v", err)
	}

	files, err := r.drive.Search(ctx, args.Query, normalizePageSize(args.PageSize))
	if err != nil {
		return nil, router.Translate(err)
	}
	return marshalFiles(files)
}

func normalizePageSize(pageSize int) int {
	if pageSize <= 0 || pageSize > 1000 {
		return defaultPageSize
	}
	return pageSize
}

func marshalFiles(files []File) (json.RawMessage, error) {
	if files == nil {
		files = []File{}
	}
	return json.Marshal(map[string]any{"files": files})
}

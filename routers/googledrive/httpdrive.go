package googledrive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
)

// DefaultBaseURL is the Drive v3 API endpoint.
const DefaultBaseURL = "https://www.googleapis.com/drive/v3"

// TokenSource supplies a bearer token for each request, so short-lived
// OAuth tokens can be refreshed between calls.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken returns a TokenSource that always yields token.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) { return token, nil }
}

// HTTPDrive talks to the Drive v3 REST API.
type HTTPDrive struct {
	baseURL string
	client  *http.Client
	token   TokenSource
}

// NewHTTPDrive creates a Drive client. An empty baseURL selects
// DefaultBaseURL; a nil client selects http.DefaultClient.
func NewHTTPDrive(baseURL string, client *http.Client, token TokenSource) *HTTPDrive {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPDrive{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		token:   token,
	}
}

var _ Drive = (*HTTPDrive)(nil)

// fileResource is the wire form of Drive file metadata.
type fileResource struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     string `json:"size,omitempty"`
}

func (fr fileResource) toFile() File {
	size, _ := strconv.ParseInt(fr.Size, 10, 64)
	return File{ID: fr.ID, Name: fr.Name, MimeType: fr.MimeType, Size: size}
}

// Upload implements Drive using a multipart/related upload.
func (d *HTTPDrive) Upload(ctx context.Context, name, mimeType string, content []byte) (File, error) {
	metadata, err := json.Marshal(map[string]string{
		"name":     name,
		"mimeType": mimeType,
	})
	if err != nil {
		return File{}, fmt.Errorf("encode metadata: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	metaPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": []string{"application/json; charset=UTF-8"},
	})
	if err != nil {
		return File{}, fmt.Errorf("create metadata part: %w", err)
	}
	if _, err := metaPart.Write(metadata); err != nil {
		return File{}, fmt.Errorf("write metadata part: %w", err)
	}

	contentPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": []string{mimeType},
	})
	if err != nil {
		return File{}, fmt.Errorf("create content part: %w", err)
	}
	if _, err := contentPart.Write(content); err != nil {
		return File{}, fmt.Errorf("write content part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return File{}, fmt.Errorf("finish multipart body: %w", err)
	}

	uploadURL := d.uploadURL() + "/files?uploadType=multipart&fields=id,name,mimeType,size"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, &body)
	if err != nil {
		return File{}, err
	}
	req.Header.Set("Content-Type", "multipart/related; boundary="+mw.Boundary())

	var resource fileResource
	if err := d.do(req, &resource); err != nil {
		return File{}, err
	}
	return resource.toFile(), nil
}

// Download implements Drive with a metadata request followed by an
// alt=media content request.
func (d *HTTPDrive) Download(ctx context.Context, fileID string) (File, []byte, error) {
	metaURL := fmt.Sprintf("%s/files/%s?fields=id,name,mimeType,size", d.baseURL, url.PathEscape(fileID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metaURL, nil)
	if err != nil {
		return File{}, nil, err
	}
	var resource fileResource
	if err := d.do(req, &resource); err != nil {
		return File{}, nil, err
	}

	mediaURL := fmt.Sprintf("%s/files/%s?alt=media", d.baseURL, url.PathEscape(fileID))
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return File{}, nil, err
	}
	content, err := d.doRaw(req)
	if err != nil {
		return File{}, nil, err
	}
	return resource.toFile(), content, nil
}

// List implements Drive.
func (d *HTTPDrive) List(ctx context.Context, pageSize int) ([]File, error) {
	return d.files(ctx, "", pageSize)
}

// Search implements Drive. The query matches against file names.
func (d *HTTPDrive) Search(ctx context.Context, query string, pageSize int) ([]File, error) {
	q := fmt.Sprintf("name contains '%s'", strings.ReplaceAll(query, "'", `\'`))
	return d.files(ctx, q, pageSize)
}

func (d *HTTPDrive) files(ctx context.Context, query string, pageSize int) ([]File, error) {
	params := url.Values{}
	params.Set("pageSize", strconv.Itoa(pageSize))
	params.Set("fields", "files(id,name,mimeType,size)")
	if query != "" {
		params.Set("q", query)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/files?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var listing struct {
		Files []fileResource `json:"files"`
	}
	if err := d.do(req, &listing); err != nil {
		return nil, err
	}

	files := make([]File, 0, len(listing.Files))
	for _, resource := range listing.Files {
		files = append(files, resource.toFile())
	}
	return files, nil
}

// uploadURL rewrites the API base for the upload endpoint, which lives
// under /upload/drive/v3 in production.
func (d *HTTPDrive) uploadURL() string {
	if d.baseURL == DefaultBaseURL {
		return "https://www.googleapis.com/upload/drive/v3"
	}
	return d.baseURL + "/upload"
}

func (d *HTTPDrive) do(req *http.Request, out any) error {
	body, err := d.doRaw(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode drive response: %w", err)
	}
	return nil
}

func (d *HTTPDrive) doRaw(req *http.Request) ([]byte, error) {
	if d.token != nil {
		token, err := d.token(req.Context())
		if err != nil {
			return nil, fmt.Errorf("get token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read drive response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("drive API: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

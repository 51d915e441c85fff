// Package client talks to the OCR API over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Caia-Tech/caia-ocr/internal/controller"
	"github.com/Caia-Tech/caia-ocr/pkg/document"
)

// APIError is a non-2xx response from the server
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
	Details    string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("server returned %d: %s: %s", e.StatusCode, e.Message, e.Details)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client calls the upload and OCR endpoints
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the server at baseURL. timeout bounds each request;
// zero means no limit.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// UploadFile uploads the PDF at path
func (c *Client) UploadFile(ctx context.Context, path string) (document.Upload, error) {
	f, err := os.Open(path)
	if err != nil {
		return document.Upload{}, err
	}
	defer f.Close()
	return c.Upload(ctx, filepath.Base(path), f)
}

// Upload sends content as the multipart field "file"
func (c *Client) Upload(ctx context.Context, fileName string, content io.Reader) (document.Upload, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return document.Upload{}, err
	}
	if _, err := io.Copy(part, content); err != nil {
		return document.Upload{}, fmt.Errorf("buffering upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return document.Upload{}, err
	}

	var upload document.Upload
	if err := c.do(ctx, http.MethodPost, "/api/upload", mw.FormDataContentType(), &body, &upload); err != nil {
		return document.Upload{}, err
	}
	return upload, nil
}

// OCR requests the text of one page of an uploaded file
func (c *Client) OCR(ctx context.Context, filePath string, page int) (document.PageResult, error) {
	payload, err := json.Marshal(map[string]interface{}{"filePath": filePath, "page": page})
	if err != nil {
		return document.PageResult{}, err
	}

	var result document.PageResult
	if err := c.do(ctx, http.MethodPost, "/api/ocr", "application/json", bytes.NewReader(payload), &result); err != nil {
		return document.PageResult{}, err
	}
	return result, nil
}

// Results fetches every cached page of a session
func (c *Client) Results(ctx context.Context, sessionID string) ([]document.PageResult, error) {
	var body struct {
		Results []document.PageResult `json:"results"`
	}
	path := "/api/v1/sessions/" + url.PathEscape(sessionID) + "/results"
	if err := c.do(ctx, http.MethodGet, path, "", nil, &body); err != nil {
		return nil, err
	}
	return body.Results, nil
}

// Pages binds an uploaded file to the controller's page source
func (c *Client) Pages(filePath string) controller.PageSource {
	return controller.PageSourceFunc(func(ctx context.Context, page int) (document.PageResult, error) {
		return c.OCR(ctx, filePath, page)
	})
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Package api wraps the remote coursework REST API: client identification
// headers, bearer signing, and mapping of non-2xx responses onto the typed
// error taxonomy.
package api

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jkorri/tmcli/internal/clienterr"
	"github.com/jkorri/tmcli/internal/config"
	"github.com/jkorri/tmcli/internal/token"
	"github.com/tidwall/gjson"
)

// defaultHTTPTimeout is the per-request timeout used by the client.
const defaultHTTPTimeout = 30 * time.Second

// Client performs signed requests against the coursework API.
type Client struct {
	baseURL       string
	hc            *http.Client
	clientName    string
	clientVersion string
	tokenURL      string
	clientID      string
	clientSecret  string
	tokens        *token.Store
}

// New creates a client from config. tokens supplies the bearer credential;
// requests go out unsigned while no token is stored.
func New(cfg config.APIConfig, tokens *token.Store) *Client {
	if tokens == nil {
		panic("api: client constructed without a token store")
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		hc:            &http.Client{Timeout: defaultHTTPTimeout},
		clientName:    cfg.ClientName,
		clientVersion: cfg.ClientVersion,
		tokenURL:      cfg.TokenURL,
		clientID:      cfg.ClientID,
		clientSecret:  cfg.ClientSecret,
		tokens:        tokens,
	}
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// GetJSON fetches a path relative to the API base.
func (c *Client) GetJSON(ctx context.Context, path string) ([]byte, error) {
	return c.GetURL(ctx, c.endpoint(path))
}

// GetURL fetches an absolute URL (the API hands out absolute submission and
// feedback URLs).
func (c *Client) GetURL(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &clienterr.ConnectionError{Msg: "building request", Err: err}
	}
	return c.do(req)
}

// PostForm posts URL-encoded fields to a path relative to the API base.
func (c *Client) PostForm(ctx context.Context, path string, values url.Values) ([]byte, error) {
	return c.PostFormURL(ctx, c.endpoint(path), values)
}

// PostFormURL posts URL-encoded fields to an absolute URL.
func (c *Client) PostFormURL(ctx context.Context, rawURL string, values url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, &clienterr.ConnectionError{Msg: "building request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

// DownloadArchive fetches the raw bytes of an exercise archive.
func (c *Client) DownloadArchive(ctx context.Context, path string) ([]byte, error) {
	return c.GetJSON(ctx, path)
}

// UploadSubmission posts an exercise archive as multipart form data with
// the extra parameters attached as plain form fields.
func (c *Client) UploadSubmission(ctx context.Context, path string, archive []byte, fields map[string]string) ([]byte, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, &clienterr.ConnectionError{Msg: "building multipart body", Err: err}
		}
	}
	part, err := w.CreateFormFile("submission[file]", "submission.zip")
	if err != nil {
		return nil, &clienterr.ConnectionError{Msg: "building multipart body", Err: err}
	}
	if _, err := part.Write(archive); err != nil {
		return nil, &clienterr.ConnectionError{Msg: "building multipart body", Err: err}
	}
	if err := w.Close(); err != nil {
		return nil, &clienterr.ConnectionError{Msg: "building multipart body", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), &body)
	if err != nil {
		return nil, &clienterr.ConnectionError{Msg: "building request", Err: err}
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.do(req)
}

// do signs and executes one request. 403 maps to AuthorizationError, any
// other non-2xx to APIError with a best-effort message from the body's
// `error` field, and transport failures to ConnectionError.
func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("client", c.clientName)
	req.Header.Set("client_version", c.clientVersion)
	if tok, err := c.tokens.Load(); err == nil && tok != nil {
		req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &clienterr.ConnectionError{Msg: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &clienterr.ConnectionError{Msg: "reading response body", Err: err}
	}

	if resp.StatusCode == http.StatusForbidden {
		return nil, &clienterr.AuthorizationError{Msg: errorMessage(body)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &clienterr.APIError{
			Status:     resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			Message:    errorMessage(body),
		}
	}
	return body, nil
}

// errorMessage extracts the JSON body's `error` field, falling back to the
// raw text body.
func errorMessage(body []byte) string {
	if v := gjson.GetBytes(body, "error"); v.Exists() {
		return v.String()
	}
	return strings.TrimSpace(string(body))
}

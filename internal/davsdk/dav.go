// Package davsdk implements the WebDAV client and the transfer engine used
// by the sync engine. Any WebDAV-compliant server reachable over HTTP(S)
// with basic auth works as a remote.
package davsdk

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/imroc/req/v3"

	"github.com/notedav/notedav/internal/version"
)

const requestTimeout = 60 * time.Second

// Config holds the connection parameters for a WebDAV endpoint.
type Config struct {
	BaseURL  string // e.g. https://dav.example.com/remote.php/dav/files/user
	Username string
	Password string
}

// Client is a minimal WebDAV client: list, get, put, delete, mkcol.
type Client struct {
	http    *req.Client
	baseURL string
}

// NewClient creates a WebDAV client with basic auth credentials.
func NewClient(cfg *Config) *Client {
	httpClient := req.C().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetCommonBasicAuth(cfg.Username, cfg.Password).
		SetUserAgent(version.UserAgent()).
		SetTimeout(requestTimeout)

	return &Client{
		http:    httpClient,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
	}
}

// List performs a PROPFIND on path with the given depth (0 or 1) and returns
// the listed resources. The collection entry for path itself is excluded
// when depth is 1.
func (c *Client) List(ctx context.Context, path string, depth int) ([]*Resource, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Depth", fmt.Sprintf("%d", depth)).
		SetContentType("application/xml").
		SetBodyString(propfindBody).
		Send("PROPFIND", path)
	if err != nil {
		return nil, fmt.Errorf("davsdk: propfind %q: %w", path, err)
	}
	if err := c.statusError(resp, "propfind", path); err != nil {
		return nil, err
	}

	var ms multistatus
	if err := xml.Unmarshal(resp.Bytes(), &ms); err != nil {
		return nil, fmt.Errorf("davsdk: propfind %q: parse multistatus: %w", path, err)
	}

	resources := make([]*Resource, 0, len(ms.Responses))
	base := strings.TrimSuffix(path, "/")
	for i := range ms.Responses {
		res := ms.Responses[i].resource()
		if depth > 0 && res.IsCollection && strings.HasSuffix(strings.TrimSuffix(res.Path, "/"), base) {
			// the collection itself
			continue
		}
		resources = append(resources, res)
	}
	return resources, nil
}

// Get downloads a resource and returns its content and ETag.
func (c *Client) Get(ctx context.Context, path string) ([]byte, string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(path)
	if err != nil {
		return nil, "", fmt.Errorf("davsdk: get %q: %w", path, err)
	}
	if err := c.statusError(resp, "get", path); err != nil {
		return nil, "", err
	}

	etag := strings.Trim(resp.GetHeader("Etag"), `"`)
	return resp.Bytes(), etag, nil
}

// Put uploads body to path and returns the new ETag if the server reports
// one. An empty ETag means the caller must re-list to learn it.
func (c *Client) Put(ctx context.Context, path string, body []byte, contentType string) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetContentType(contentType).
		SetBodyBytes(body).
		Put(path)
	if err != nil {
		return "", fmt.Errorf("davsdk: put %q: %w", path, err)
	}
	if err := c.statusError(resp, "put", path); err != nil {
		return "", err
	}

	return strings.Trim(resp.GetHeader("Etag"), `"`), nil
}

// Delete removes a resource. A 404 is not an error: the resource is gone
// either way.
func (c *Client) Delete(ctx context.Context, path string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Delete(path)
	if err != nil {
		return fmt.Errorf("davsdk: delete %q: %w", path, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return c.statusError(resp, "delete", path)
}

// MkCol creates a collection. 405 means it already exists and is tolerated.
func (c *Client) MkCol(ctx context.Context, path string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Send("MKCOL", path)
	if err != nil {
		return fmt.Errorf("davsdk: mkcol %q: %w", path, err)
	}
	if resp.StatusCode == http.StatusMethodNotAllowed {
		return nil
	}
	return c.statusError(resp, "mkcol", path)
}

// Exists checks whether a resource is present via a depth-0 PROPFIND.
func (c *Client) Exists(ctx context.Context, path string) (bool, error) {
	_, err := c.List(ctx, path, 0)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *Client) statusError(resp *req.Response, op, path string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	err := &StatusError{Code: resp.StatusCode, Path: path, Op: op}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	default:
		return err
	}
}

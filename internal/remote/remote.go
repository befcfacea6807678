// Package remote provides the client for the user's cloud-storage account.
//
// The API is a Graph-style drive: folder children are listed page by page,
// folders are expanded by recursing into their children, and file content is
// addressed by the remote file ID. All calls act on behalf of a user and
// carry that user's bearer token.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/mirrorlens/mirrorlens/internal/logging"
	"github.com/mirrorlens/mirrorlens/internal/retry"
)

// File is a single entry in the remote drive. Identity is ID, which is
// stable across renames; Name may change between listings.
type File struct {
	ID       string
	Name     string
	IsFolder bool
}

// TokenRefresher exchanges an expired token for a fresh one. The client
// performs exactly one refresh attempt per download before giving up.
type TokenRefresher interface {
	Refresh(ctx context.Context, oldToken string) (string, error)
}

// Config holds remote client configuration.
type Config struct {
	BaseURL   string
	PageSize  int
	Timeout   time.Duration
	Refresher TokenRefresher
	Retry     retry.Config
}

// Client talks to the remote drive API.
type Client struct {
	baseURL    string
	pageSize   int
	httpClient *http.Client
	refresher  TokenRefresher
	retryCfg   retry.Config
}

// NewClient creates a remote drive client.
func NewClient(cfg Config) *Client {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 200
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		pageSize:   cfg.PageSize,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		refresher:  cfg.Refresher,
		retryCfg:   cfg.Retry,
	}
}

// ListFilesRecursive returns every file under the user's drive root, with
// folders transparently expanded. Any page failure fails the whole listing;
// callers must never act on partial data.
func (c *Client) ListFilesRecursive(ctx context.Context, token string) ([]File, error) {
	var files []File

	// Iterative traversal; folders discovered on one page are queued behind
	// the folders already pending.
	queue := []string{"root"}
	for len(queue) > 0 {
		folderID := queue[0]
		queue = queue[1:]

		pager := c.ListFolder(folderID, token)
		for pager.More() {
			page, err := pager.Next(ctx)
			if err != nil {
				return nil, fmt.Errorf("list folder %s: %w", folderID, err)
			}
			for _, f := range page {
				if f.IsFolder {
					queue = append(queue, f.ID)
				} else {
					files = append(files, f)
				}
			}
		}
	}

	return files, nil
}

// DownloadFile fetches the raw content of a remote file. On an authorization
// failure it attempts exactly one token refresh before giving up.
func (c *Client) DownloadFile(ctx context.Context, id, token string) ([]byte, error) {
	data, status, err := c.fetchContent(ctx, id, token)
	if status == http.StatusUnauthorized && c.refresher != nil {
		logging.Debug("download unauthorized, refreshing token", zap.String("id", id))
		fresh, refreshErr := c.refresher.Refresh(ctx, token)
		if refreshErr != nil {
			return nil, fmt.Errorf("refresh token: %w", refreshErr)
		}
		data, _, err = c.fetchContent(ctx, id, fresh)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Client) fetchContent(ctx context.Context, id, token string) ([]byte, int, error) {
	var status int
	data, err := retry.DoWithResult(ctx, c.retryCfg, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			fmt.Sprintf("%s/me/drive/items/%s/content", c.baseURL, url.PathEscape(id)), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, retry.Retryable(err)
		}
		defer resp.Body.Close()
		status = resp.StatusCode

		switch {
		case resp.StatusCode == http.StatusOK:
			return io.ReadAll(resp.Body)
		case resp.StatusCode >= 500:
			return nil, retry.Retryable(fmt.Errorf("download %s: server returned %d", id, resp.StatusCode))
		default:
			return nil, fmt.Errorf("download %s: server returned %d", id, resp.StatusCode)
		}
	})
	return data, status, err
}

// UploadFile writes content to the given folder under the given name.
func (c *Client) UploadFile(ctx context.Context, folderID, name string, body io.Reader, token string) error {
	if folderID == "" {
		folderID = "root"
	}
	uploadURL := fmt.Sprintf("%s/me/drive/items/%s:/%s:/content",
		c.baseURL, url.PathEscape(folderID), url.PathEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("upload %s: server returned %d", name, resp.StatusCode)
	}
	return nil
}

// DeleteFile removes a remote file by ID.
func (c *Client) DeleteFile(ctx context.Context, id, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/me/drive/items/%s", c.baseURL, url.PathEscape(id)), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("delete %s: server returned %d", id, resp.StatusCode)
	}
	return nil
}

// listingItem is the wire shape of one drive entry.
type listingItem struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Folder json.RawMessage `json:"folder,omitempty"`
}

// listingPage is the wire shape of one children page.
type listingPage struct {
	Value    []listingItem `json:"value"`
	NextLink string        `json:"@odata.nextLink"`
}

func (c *Client) fetchPage(ctx context.Context, pageURL, token string) (*listingPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}

	var page listingPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode listing page: %w", err)
	}
	return &page, nil
}

package remote

import (
	"context"
	"fmt"
	"net/url"
)

// Pager iterates the children of one folder page by page. A Pager is
// single-use; call ListFolder again to restart from the first page.
type Pager struct {
	client *Client
	token  string

	nextURL string
	done    bool
}

// ListFolder returns a pager over the direct children of a folder.
// folderID "root" (or empty) addresses the drive root.
func (c *Client) ListFolder(folderID, token string) *Pager {
	if folderID == "" {
		folderID = "root"
	}
	first := fmt.Sprintf("%s/me/drive/items/%s/children?$top=%d",
		c.baseURL, url.PathEscape(folderID), c.pageSize)
	return &Pager{client: c, token: token, nextURL: first}
}

// More reports whether another page is available.
func (p *Pager) More() bool {
	return !p.done
}

// Next fetches the next page of entries. After the last page, More returns
// false. An error leaves the pager finished; the caller restarts the listing
// rather than resuming mid-sequence.
func (p *Pager) Next(ctx context.Context) ([]File, error) {
	if p.done {
		return nil, nil
	}

	page, err := p.client.fetchPage(ctx, p.nextURL, p.token)
	if err != nil {
		p.done = true
		return nil, err
	}

	files := make([]File, 0, len(page.Value))
	for _, item := range page.Value {
		files = append(files, File{
			ID:       item.ID,
			Name:     item.Name,
			IsFolder: len(item.Folder) > 0,
		})
	}

	p.nextURL = page.NextLink
	if p.nextURL == "" {
		p.done = true
	}
	return files, nil
}

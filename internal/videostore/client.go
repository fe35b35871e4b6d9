// Package videostore fetches video blobs by name from the remote archive.
package videostore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/kestrel-data/visionproof/internal/faults"
	"github.com/kestrel-data/visionproof/internal/httputil"
)

// maxVideoBytes caps a single fetch. Clips in the archive run a few tens
// of megabytes; anything past this is a mislabeled row or a server bug.
const maxVideoBytes = 512 << 20

// Client reads videos from the archive service.
type Client struct {
	base string
	http httputil.HTTPClient
}

// NewClient builds an archive client around baseURL.
func NewClient(baseURL string, hc httputil.HTTPClient) *Client {
	if hc == nil {
		hc = httputil.NewStandardClient(nil)
	}
	return &Client{base: baseURL, http: hc}
}

// Fetch downloads one video by name. Not-found and other 4xx come back
// as permanent errors, transport failures and 5xx as transient.
func (c *Client) Fetch(ctx context.Context, name string) ([]byte, error) {
	if name == "" {
		return nil, faults.Dataf("fetch video", "empty video name")
	}

	u := fmt.Sprintf("%s/api/videos/%s", c.base, url.PathEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, faults.Permanent("fetch video", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, faults.Transient("fetch video", err)
	}
	defer resp.Body.Close()

	if err := faults.FromStatus("fetch video", resp.StatusCode); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxVideoBytes+1))
	if err != nil {
		return nil, faults.Transient("fetch video", err)
	}
	if len(data) > maxVideoBytes {
		return nil, faults.Dataf("fetch video", "%s exceeds %d byte limit", name, maxVideoBytes)
	}
	if len(data) == 0 {
		return nil, faults.Dataf("fetch video", "%s is empty", name)
	}

	return data, nil
}

package embed

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
)

// imageClient talks to a CLIP-style HTTP embedding service. Images are
// downscaled before upload; CLIP-family models see at most a few hundred
// pixels per side, so larger uploads only cost bandwidth.
type imageClient struct {
	url          string
	maxDimension int
	httpClient   *http.Client
}

func newImageClient(url string, timeout time.Duration, maxDimension int) *imageClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &imageClient{
		url:          url,
		maxDimension: maxDimension,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// Embed posts image bytes to the embedding service and returns the vector.
func (c *imageClient) Embed(ctx context.Context, data []byte) ([]float32, error) {
	payload, err := json.Marshal(struct {
		Image string `json:"image"`
	}{
		Image: base64.StdEncoding.EncodeToString(c.prepare(data)),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image embedding failed: %s", resp.Status)
	}

	var out struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, errors.New("no embedding returned")
	}
	return out.Embedding, nil
}

// prepare downscales oversized images to maxDimension on the longest side.
// Undecodable input is passed through unchanged and left for the service to
// reject.
func (c *imageClient) prepare(data []byte) []byte {
	if c.maxDimension <= 0 {
		return data
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return data
	}

	bounds := img.Bounds()
	if bounds.Dx() <= c.maxDimension && bounds.Dy() <= c.maxDimension {
		return data
	}

	resized := imaging.Fit(img, c.maxDimension, c.maxDimension, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return data
	}
	return buf.Bytes()
}

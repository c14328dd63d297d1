package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/menta2k/image-redactor/pkg/types"
)

// HTTPDetector posts every image to an inference endpoint
type HTTPDetector struct {
	url        string
	params     types.Params
	httpClient *http.Client
}

// NewHTTP creates a detector for the endpoint at url
func NewHTTP(url string, params types.Params, timeout time.Duration) (*HTTPDetector, error) {
	if url == "" {
		return nil, fmt.Errorf("detector url is required")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPDetector{
		url:        url,
		params:     params,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Detect sends img to the server and returns its boxes
func (d *HTTPDetector) Detect(ctx context.Context, img image.Image) ([]types.Detection, error) {
	payload, err := newRequest(img, d.params)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrServer, resp.StatusCode, string(respBody))
	}

	var result Response
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return result.toDetections()
}

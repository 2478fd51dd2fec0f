package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// maxResponseSize caps how much of an upstream body is buffered. Inline
// base64 images inflate the payload by a third, so this sits well above the
// upload limit.
const maxResponseSize = 64 << 20

// UpstreamStatusError reports a non-2xx answer from a provider. Body keeps the
// start of the upstream answer for debugging; it is left out of Error() since
// providers may echo request headers back. Download marks answers from the
// result image host, which never sees the API key.
type UpstreamStatusError struct {
	Kind     Kind
	Status   int
	Body     string
	Download bool
}

func (e *UpstreamStatusError) Error() string {
	if e.Download {
		return fmt.Sprintf("provider %s: image download status %d", e.Kind, e.Status)
	}
	return fmt.Sprintf("provider %s: upstream status %d", e.Kind, e.Status)
}

// Client performs the outbound HTTP calls. It holds no per-request state and
// is safe for concurrent use.
type Client struct {
	httpClient      *http.Client
	logger          *zap.Logger
	downloadTimeout time.Duration
}

// NewClient wraps httpClient. Timeouts come from each Request, so httpClient
// should not carry its own.
func NewClient(httpClient *http.Client, settings Settings, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient:      httpClient,
		logger:          logger.Named("provider_client"),
		downloadTimeout: settings.downloadTimeout(),
	}
}

// Invoke posts req once and returns the raw response body of a 2xx answer.
func (c *Client) Invoke(ctx context.Context, req *Request) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("provider: build request: %w", err)
	}
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("provider: %s request: %w", req.Kind, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("provider: %s read response: %w", req.Kind, err)
	}

	c.logger.Debug("upstream responded",
		zap.String("provider", string(req.Kind)),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(raw)),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamStatusError{Kind: req.Kind, Status: resp.StatusCode, Body: snippet(raw)}
	}
	return raw, nil
}

// Download fetches the image behind imageURL, the second hop of the
// enhancement flow.
func (c *Client) Download(ctx context.Context, imageURL string) ([]byte, error) {
	parsed, err := url.Parse(strings.TrimSpace(imageURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("%w: invalid image url %q", ErrMalformedResponse, imageURL)
	}

	ctx, cancel := context.WithTimeout(ctx, c.downloadTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("provider: build download request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("provider: download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamStatusError{Kind: EnhanceImage, Status: resp.StatusCode, Download: true}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("provider: read image: %w", err)
	}
	return data, nil
}

func snippet(raw []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(raw))
	if len(s) > limit {
		return s[:limit]
	}
	return s
}

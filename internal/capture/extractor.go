package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/webstash/webstash/internal/outbox"
)

const (
	defaultExtractionTimeout = 10 * time.Second
	maxExtractorResponse     = 1 << 20
)

// Extraction is what the extractor service derives from a page.
type Extraction struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Extractor calls an external page-extraction service. With no base
// URL configured it degrades to a passthrough that titles the bookmark
// with its own URL, so capture keeps working before the service is
// deployed.
type Extractor struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

func NewExtractor(baseURL string) *Extractor {
	return &Extractor{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultExtractionTimeout},
		timeout:    defaultExtractionTimeout,
	}
}

func (e *Extractor) Extract(ctx context.Context, pageURL string) (Extraction, error) {
	if pageURL == "" {
		return Extraction{}, outbox.ErrInvalidInput
	}
	if e.baseURL == "" {
		return Extraction{Title: pageURL}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	payload, err := json.Marshal(map[string]string{"url": pageURL})
	if err != nil {
		return Extraction{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL, bytes.NewReader(payload))
	if err != nil {
		return Extraction{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Extraction{}, fmt.Errorf("%w: %s", outbox.ErrExtractionTimeout, pageURL)
		}
		return Extraction{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxExtractorResponse))
	if err != nil {
		return Extraction{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Extraction{}, fmt.Errorf("extractor returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var out Extraction
	if err := json.Unmarshal(body, &out); err != nil {
		return Extraction{}, fmt.Errorf("extractor returned invalid JSON: %w", err)
	}
	if out.Title == "" {
		out.Title = pageURL
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package store

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// FormPoster sends the current power draw to a web app as a form field
// named "kW", one request per record.
type FormPoster struct {
	url    string
	client *http.Client
}

// NewFormPoster creates a poster for the given endpoint.
func NewFormPoster(endpoint string) *FormPoster {
	return &FormPoster{
		url:    endpoint,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Write posts r.KW.
func (p *FormPoster) Write(ctx context.Context, r Record) error {
	form := url.Values{"kW": {strconv.FormatFloat(r.KW, 'f', -1, 64)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("post kW: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("post kW: unexpected status %s", resp.Status)
	}
	return nil
}

// Close is a no-op.
func (p *FormPoster) Close() error {
	return nil
}

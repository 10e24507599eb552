// Package datasets provides clients for the open-data registry (CUM) and
// price (SISMED) datasets published on datos.gov.co, plus the snapshot
// files used when the service runs from a local copy.
package datasets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/giygas/misalud-api/logging"
	"golang.org/x/text/encoding/charmap"
)

const (
	// DefaultRegistryURL is the CUM resource endpoint
	DefaultRegistryURL = "https://www.datos.gov.co/resource/i7cb-raxc.json"
	// DefaultPricesURL is the SISMED resource endpoint
	DefaultPricesURL = "https://www.datos.gov.co/resource/3he6-m866.json"

	// DefaultTimeout bounds a single dataset request
	DefaultTimeout = 30 * time.Second

	maxResponseSize = 64 << 20
)

// SocrataClient performs SoQL queries against one Socrata resource.
type SocrataClient struct {
	endpoint string
	appToken string
	client   *http.Client
}

// NewSocrataClient creates a client for the resource at endpoint. A zero
// timeout uses DefaultTimeout.
func NewSocrataClient(endpoint, appToken string, timeout time.Duration) (*SocrataClient, error) {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid dataset URL %q", endpoint)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &SocrataClient{
		endpoint: endpoint,
		appToken: appToken,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// Endpoint returns the resource URL the client queries.
func (c *SocrataClient) Endpoint() string {
	return c.endpoint
}

// query runs a SoQL request and decodes the JSON array response into out.
func (c *SocrataClient) query(ctx context.Context, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.appToken != "" {
		req.Header.Set("X-App-Token", c.appToken)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", c.endpoint, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logging.Warn("Failed to close response body", "error", err)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("dataset returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(truncate(body, 200))))
	}

	if err := json.NewDecoder(decodeBody(body)).Decode(out); err != nil {
		return fmt.Errorf("failed to decode dataset response: %w", err)
	}

	logging.Debug("Dataset query completed",
		"endpoint", c.endpoint,
		"duration_ms", time.Since(start).Milliseconds(),
		"bytes", len(body))
	return nil
}

// decodeBody returns a UTF-8 reader over body. Some exports are served in
// ISO-8859-1, so anything that is not valid UTF-8 is decoded from Latin-1.
func decodeBody(body []byte) io.Reader {
	if utf8.Valid(body) {
		return bytes.NewReader(body)
	}
	return charmap.ISO8859_1.NewDecoder().Reader(bytes.NewReader(body))
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

// soqlString quotes s as a SoQL string literal.
func soqlString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// likePattern builds an uppercase containment pattern, dropping the SoQL
// wildcards a user could smuggle in.
func likePattern(term string) string {
	term = strings.ToUpper(strings.TrimSpace(term))
	term = strings.NewReplacer("%", "", "_", " ").Replace(term)
	return soqlString("%" + term + "%")
}

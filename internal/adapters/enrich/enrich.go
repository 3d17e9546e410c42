// Package enrich calls the optional enrichment boundary (OCR, captioning,
// entity extraction) as a black box. Enrichment is failure-tolerant: a failed
// call yields no annotations plus a warning, never a failed item
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ChrisPatten/haven-sub004/internal/platform/config"
	perr "github.com/ChrisPatten/haven-sub004/internal/platform/errors"
)

const defaultTimeout = 20 * time.Second

// Enricher produces auxiliary annotations for a document
type Enricher interface {
	Enrich(ctx context.Context, doc Document) (map[string]any, error)
}

// Document is the enrichment input: text plus optional raw bytes
type Document struct {
	SourceType  string `json:"source_type"`
	ContentHash string `json:"content_hash"`
	Text        string `json:"text,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`
	Bytes       []byte `json:"bytes,omitempty"`
}

// Config configures the HTTP enricher
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// FromConf reads ENRICH_* env settings; an empty ENRICH_BASE_URL disables
// enrichment entirely
func FromConf(cfg config.Conf) Config {
	c := cfg.Prefix("ENRICH_")
	return Config{
		BaseURL: c.MayString("BASE_URL", ""),
		Timeout: c.MayDuration("TIMEOUT", defaultTimeout),
	}
}

// Client is the HTTP enricher
type Client struct {
	http *http.Client
	base string
}

// New returns nil when cfg.BaseURL is empty so callers can nil-check the
// optional boundary
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		return nil
	}
	to := cfg.Timeout
	if to <= 0 {
		to = defaultTimeout
	}
	return &Client{
		http: &http.Client{Timeout: to},
		base: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// Enrich posts the document and returns its annotations
func (c *Client) Enrich(ctx context.Context, doc Document) (map[string]any, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "encode enrich payload")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/enrich", bytes.NewReader(body))
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "build enrich request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "enrich call")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return nil, perr.Newf(perr.FromHTTPStatus(resp.StatusCode), "enrich: status %d", resp.StatusCode)
	}

	var out struct {
		Annotations map[string]any `json:"annotations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "decode enrich response")
	}
	return out.Annotations, nil
}

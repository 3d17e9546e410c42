package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/ChrisPatten/haven-sub004/internal/platform/config"
	perr "github.com/ChrisPatten/haven-sub004/internal/platform/errors"
	"github.com/ChrisPatten/haven-sub004/internal/platform/logger"
)

const (
	documentsPath = "/v1/documents"
	batchPath     = "/v1/documents:batch"
	filesPath     = "/v1/files"

	defaultTimeout = 30 * time.Second

	// maxErrorBody caps how much of an error response we read for messages
	maxErrorBody = 4 * 1024
)

// Config configures the ingest client
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// FromConf reads INGEST_* env settings
func FromConf(cfg config.Conf) Config {
	c := cfg.Prefix("INGEST_")
	return Config{
		BaseURL: c.MustString("BASE_URL"),
		Token:   c.MayString("TOKEN", ""),
		Timeout: c.MayDuration("TIMEOUT", defaultTimeout),
	}
}

// Client posts payloads to the ingest API
type Client struct {
	http  *http.Client
	base  string
	token string

	// batchOff flips after the first 404/405/501 from the batch endpoint so
	// later flushes skip the probe
	batchOff bool
}

// New creates a Client from cfg
func New(cfg Config) *Client {
	to := cfg.Timeout
	if to <= 0 {
		to = defaultTimeout
	}
	return &Client{
		http:  &http.Client{Timeout: to},
		base:  strings.TrimRight(cfg.BaseURL, "/"),
		token: cfg.Token,
	}
}

// SubmitDocument posts one normalized document with an idempotency key
func (c *Client) SubmitDocument(ctx context.Context, p DocumentPayload, idemKey string) (*SubmissionResponse, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "encode document payload")
	}
	return c.post(ctx, documentsPath, "application/json", bytes.NewReader(body), idemKey)
}

// UploadFile posts raw bytes plus metadata as multipart form data
func (c *Client) UploadFile(ctx context.Context, p FilePayload, idemKey string) (*SubmissionResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	meta := map[string]any{
		"source_type":  p.SourceType,
		"source_id":    p.SourceID,
		"content_hash": p.ContentHash,
		"mime_type":    p.MimeType,
	}
	for k, v := range p.Metadata {
		meta[k] = v
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "encode file metadata")
	}
	if err := mw.WriteField("metadata", string(metaJSON)); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "write metadata field")
	}
	fw, err := mw.CreateFormFile("file", p.Filename)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "create file part")
	}
	if _, err := fw.Write(p.Bytes); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "write file part")
	}
	if err := mw.Close(); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "finalize multipart body")
	}

	return c.post(ctx, filesPath, mw.FormDataContentType(), &buf, idemKey)
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader, idemKey string) (*SubmissionResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, body)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "build request")
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Idempotency-Key", idemKey)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// transport errors carry their own transient classification
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "ingest %s", path)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logger.Named("ingest").Warn().Err(cerr).Msg("close response body")
		}
	}()

	if resp.StatusCode >= 300 {
		return nil, statusError(resp, path)
	}

	var out SubmissionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "decode ingest response")
	}
	return &out, nil
}

// statusError maps a non-2xx response to a typed error; retryability follows
// from the code so callers ask perr.Retryable instead of inspecting statuses
func statusError(resp *http.Response, path string) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(snippet))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return perr.Newf(perr.FromHTTPStatus(resp.StatusCode),
		"ingest %s: status %d: %s", path, resp.StatusCode, compactMsg(msg))
}

func compactMsg(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// Retryable re-exports the platform classification for convenience at call sites
func Retryable(err error) bool { return perr.Retryable(err) }

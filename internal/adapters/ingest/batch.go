package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	perr "github.com/ChrisPatten/haven-sub004/internal/platform/errors"
	"github.com/ChrisPatten/haven-sub004/internal/platform/logger"
)

type batchItem struct {
	IdempotencyKey string          `json:"idempotency_key"`
	Document       DocumentPayload `json:"document"`
}

type batchRequest struct {
	Items []batchItem `json:"items"`
}

type batchResponse struct {
	Results []struct {
		IdempotencyKey string              `json:"idempotency_key"`
		Response       *SubmissionResponse `json:"response,omitempty"`
		Error          string              `json:"error,omitempty"`
		Retryable      bool                `json:"retryable,omitempty"`
	} `json:"results"`
}

// SubmitBatch delivers several documents, preferring the batch endpoint and
// falling back to sequential single submissions when the boundary lacks batch
// support. Results are positional: out[i] belongs to docs[i]/keys[i]
func (c *Client) SubmitBatch(ctx context.Context, docs []DocumentPayload, keys []string) ([]BatchResult, error) {
	if len(docs) != len(keys) {
		return nil, perr.InvalidArgf("batch: %d documents but %d keys", len(docs), len(keys))
	}
	if len(docs) == 0 {
		return nil, nil
	}

	if !c.batchOff {
		out, supported, err := c.tryBatch(ctx, docs, keys)
		if err != nil {
			return nil, err
		}
		if supported {
			return out, nil
		}
		c.batchOff = true
		logger.Named("ingest").Info().Msg("batch endpoint unsupported, using sequential submissions")
	}

	return c.sequential(ctx, docs, keys), nil
}

// tryBatch returns supported=false only for endpoint-absent signals; any
// other failure is a real batch error
func (c *Client) tryBatch(ctx context.Context, docs []DocumentPayload, keys []string) ([]BatchResult, bool, error) {
	items := make([]batchItem, len(docs))
	for i := range docs {
		items[i] = batchItem{IdempotencyKey: keys[i], Document: docs[i]}
	}
	body, err := json.Marshal(batchRequest{Items: items})
	if err != nil {
		return nil, false, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "encode batch payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+batchPath, bytes.NewReader(body))
	if err != nil {
		return nil, false, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "build batch request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, perr.Wrapf(err, perr.ErrorCodeUnavailable, "ingest %s", batchPath)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusMethodNotAllowed, http.StatusNotImplemented:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, false, nil
	}
	if resp.StatusCode >= 300 {
		return nil, false, statusError(resp, batchPath)
	}

	var br batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return nil, false, perr.Wrapf(err, perr.ErrorCodeUnknown, "decode batch response")
	}

	byKey := make(map[string]BatchResult, len(br.Results))
	for _, r := range br.Results {
		res := BatchResult{Key: r.IdempotencyKey, Resp: r.Response}
		if r.Error != "" {
			code := perr.ErrorCodeInvalidArgument
			if r.Retryable {
				code = perr.ErrorCodeUnavailable
			}
			res.Err = perr.Newf(code, "ingest batch item: %s", r.Error)
		}
		byKey[r.IdempotencyKey] = res
	}

	out := make([]BatchResult, len(keys))
	for i, k := range keys {
		if res, ok := byKey[k]; ok {
			out[i] = res
			continue
		}
		out[i] = BatchResult{Key: k, Err: perr.Internalf("ingest batch: missing result for item %d", i)}
	}
	return out, true, nil
}

func (c *Client) sequential(ctx context.Context, docs []DocumentPayload, keys []string) []BatchResult {
	out := make([]BatchResult, len(docs))
	for i := range docs {
		resp, err := c.SubmitDocument(ctx, docs[i], keys[i])
		out[i] = BatchResult{Key: keys[i], Resp: resp, Err: err}
		if ctx.Err() != nil {
			for j := i + 1; j < len(docs); j++ {
				out[j] = BatchResult{Key: keys[j], Err: perr.Wrapf(ctx.Err(), perr.ErrorCodeUnavailable, "ingest canceled")}
			}
			break
		}
	}
	return out
}

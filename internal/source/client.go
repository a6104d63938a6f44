// Package source fetches sale records from the remote product API.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"sales-dashboard/internal/config"
	apperrors "sales-dashboard/internal/errors"
	"sales-dashboard/internal/metrics"
	"sales-dashboard/internal/models"
	"sales-dashboard/internal/observability"
)

const (
	dateLayout = "02/01/2006"
	chunkSize  = 2000

	paramRegion = "regiao"
	paramYear   = "ano"
)

// Client performs one GET per Fetch. There are no retries.
type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	maxBody    int64
	workers    int
	logger     *slog.Logger
	metrics    *metrics.Manager
}

func NewClient(cfg config.SourceConfig, logger *slog.Logger, m *metrics.Manager) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()},
		baseURL:    cfg.URL,
		timeout:    cfg.Timeout,
		maxBody:    cfg.MaxBodyBytes,
		workers:    max(cfg.DecodeWorkers, 1),
		logger:     logger,
		metrics:    m,
	}
}

// Close releases idle upstream connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// Fetch returns the records in the region/year scope. Any transport, status,
// or decoding problem fails the whole fetch with an UPSTREAM_ERROR (or
// SERVICE_UNAVAILABLE on timeout).
func (c *Client) Fetch(ctx context.Context, q models.SourceQuery) ([]models.Transaction, error) {
	ctx, span := observability.StartSpan(ctx, "source.fetch")
	span.SetTag("region", q.Region)
	span.SetTag("year", q.Year)
	defer func() {
		span.Finish()
		c.logger.DebugContext(ctx, "span finished", "span", span)
	}()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	records, reason, err := c.fetch(ctx, q)
	if err != nil {
		span.SetError(err)
		c.metrics.FetchFailed(reason, time.Since(start))
		c.logger.WarnContext(ctx, "record source fetch failed",
			"reason", reason,
			"region", q.Region,
			"year", q.Year,
			"error", err,
			"request_id", observability.GetRequestID(ctx),
		)
		return nil, err
	}

	duration := time.Since(start)
	c.metrics.ObserveFetch(duration, len(records))
	c.logger.InfoContext(ctx, "records fetched",
		"region", q.Region,
		"year", q.Year,
		"records", len(records),
		"duration", duration,
		"request_id", observability.GetRequestID(ctx),
	)
	return records, nil
}

func (c *Client) fetch(ctx context.Context, q models.SourceQuery) ([]models.Transaction, string, error) {
	endpoint, err := c.endpoint(q)
	if err != nil {
		return nil, "request", apperrors.InternalWrap(err, "invalid record source URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "request", apperrors.InternalWrap(err, "build record source request")
	}
	req.Header.Set("Accept", "application/json")
	if id := observability.GetRequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, "timeout", apperrors.Wrap(err, apperrors.CodeServiceUnavail, "record source timed out")
		}
		return nil, "transport", apperrors.UpstreamWrap(err, "record source unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, "status", apperrors.Upstream("record source returned an error").
			WithDetails(fmt.Sprintf("status %d", resp.StatusCode))
	}

	body := io.Reader(resp.Body)
	if c.maxBody > 0 {
		body = http.MaxBytesReader(nil, resp.Body, c.maxBody)
	}
	return c.readRecords(ctx, body)
}

// readRecords decodes a body that must hold exactly one JSON array of
// records and nothing after it.
func (c *Client) readRecords(ctx context.Context, body io.Reader) ([]models.Transaction, string, error) {
	var raw []rawRecord
	dec := json.NewDecoder(body)
	if err := dec.Decode(&raw); err != nil {
		return bodyFailure(err)
	}
	if raw == nil {
		return nil, "decode", apperrors.Upstream("malformed record source response").
			WithDetails("expected a JSON array of records, got null")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err != nil && interrupted(err) {
			return bodyFailure(err)
		}
		return nil, "decode", apperrors.Upstream("malformed record source response").
			WithDetails("trailing data after record array")
	}

	records, err := c.decodeRecords(ctx, raw)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "timeout", apperrors.Wrap(err, apperrors.CodeServiceUnavail, "record source timed out")
		}
		return nil, "decode", apperrors.UpstreamWrap(err, "invalid record in source response").
			WithDetails(err.Error())
	}
	return records, "", nil
}

// interrupted reports a read that stopped on the deadline or the size limit
// rather than on the content of the body.
func interrupted(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.As(err, &tooLarge)
}

func bodyFailure(err error) ([]models.Transaction, string, error) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil, "timeout", apperrors.Wrap(err, apperrors.CodeServiceUnavail, "record source timed out")
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return nil, "size", apperrors.UpstreamWrap(err, "record source response too large").
			WithDetails(fmt.Sprintf("response exceeds %d bytes", tooLarge.Limit))
	}
	return nil, "decode", apperrors.UpstreamWrap(err, "malformed record source response").
		WithDetails(err.Error())
}

func (c *Client) endpoint(q models.SourceQuery) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	params := u.Query()
	params.Set(paramRegion, q.Region)
	params.Set(paramYear, q.Year)
	u.RawQuery = params.Encode()
	return u.String(), nil
}

// decodeRecords validates and converts raw records in parallel chunks. The
// output keeps input order, and the reported error is the one for the lowest
// failing record index regardless of scheduling.
func (c *Client) decodeRecords(ctx context.Context, raw []rawRecord) ([]models.Transaction, error) {
	out := make([]models.Transaction, len(raw))
	chunks := (len(raw) + chunkSize - 1) / chunkSize
	errs := make([]error, chunks)

	var g errgroup.Group
	g.SetLimit(c.workers)

	for chunk := range chunks {
		g.Go(func() error {
			lo := chunk * chunkSize
			hi := min(lo+chunkSize, len(raw))
			for i := lo; i < hi; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				tx, err := raw[i].transaction(i)
				if err != nil {
					errs[chunk] = err
					return nil
				}
				out[i] = tx
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

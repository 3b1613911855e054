package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	nethttp "net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/quillsearch/quill-go/logger"
	"github.com/quillsearch/quill-go/trace"
)

// Transport implements Client over a pool of interchangeable nodes.
type Transport struct {
	httpClient *nethttp.Client
	pool       *pool
	cfg        Config
	log        logger.Logger
	callCount  int64
}

var _ Client = (*Transport)(nil)

// New creates a Transport for the given cluster. The logger may be nil, in
// which case events are discarded.
func New(cfg Config, log logger.Logger) (*Transport, error) {
	if len(cfg.Nodes) == 0 {
		return nil, fmt.Errorf("transport: at least one node URL is required")
	}
	nodes := make([]string, len(cfg.Nodes))
	for i, raw := range cfg.Nodes {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("transport: invalid node URL %q", raw)
		}
		nodes[i] = strings.TrimRight(raw, "/")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RevivalDelay <= 0 {
		cfg.RevivalDelay = DefaultRevivalDelay
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Transport{
		// Per-attempt deadlines come from the request context, not the
		// client, so per-call overrides work.
		httpClient: &nethttp.Client{},
		pool:       newPool(nodes, cfg.RevivalDelay),
		cfg:        cfg,
		log:        log,
	}, nil
}

// Do executes one logical operation, trying up to MaxRetries+1 nodes.
//
// Transport-level failures (connect errors, per-attempt timeouts) mark the
// node dead and consume retry budget. Application-level failures do not:
// a node that answers with a 4xx/5xx is alive, and retrying a malformed
// request against a different node cannot fix it, so non-2xx statuses and
// undecodable bodies surface immediately. On success the decoded JSON value
// is returned and the node re-enters normal rotation.
func (t *Transport) Do(ctx context.Context, req *Request) (any, error) {
	if err := t.validateRequest(req); err != nil {
		return nil, err
	}

	body, err := t.requestBody(req)
	if err != nil {
		return nil, err
	}
	path := joinPath(req.Path)
	query, err := encodeParams(req.Params)
	if err != nil {
		return nil, err
	}

	timeout := t.cfg.Timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	requestID := trace.EnsureRequestID(ctx)

	var (
		tried    []string
		lastErr  error
		timedOut bool
	)
	for attempt := 0; attempt <= t.cfg.MaxRetries; attempt++ {
		n := t.pool.selectNode(time.Now())
		fullURL := n.baseURL + path + query
		call := atomic.AddInt64(&t.callCount, 1)

		t.log.Debug().
			Str("request_id", requestID).
			Str("method", req.Method).
			Str("url", fullURL).
			Int("attempt", attempt+1).
			Int64("call_count", call).
			Msg("sending request")

		start := time.Now()
		resp, err := t.attempt(ctx, req.Method, fullURL, body, requestID, timeout)
		if err != nil {
			if ctx.Err() != nil {
				// Caller gave up; not a node problem and not retryable.
				return nil, ctx.Err()
			}
			tried = append(tried, n.baseURL)
			lastErr = err
			timedOut = isTimeout(err)
			if t.pool.markDead(n, time.Now()) {
				t.log.Warn().
					Str("node", n.baseURL).
					Dur("revival_delay", t.cfg.RevivalDelay).
					Err(err).
					Msg("node marked dead")
			}
			continue
		}

		return t.classify(n, req.Method, resp, requestID, time.Since(start))
	}

	if timedOut {
		return nil, NewTimeoutError(timeout, tried, lastErr)
	}
	return nil, NewConnectionError(tried, lastErr)
}

// response holds the wire-level facts of one physical attempt.
type response struct {
	statusCode int
	body       []byte
}

// attempt performs one HTTP round trip bounded by timeout.
func (t *Transport) attempt(ctx context.Context, method, fullURL string, body []byte, requestID string, timeout time.Duration) (*response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := nethttp.NewRequestWithContext(attemptCtx, method, fullURL, reader)
	if err != nil {
		return nil, err
	}

	for key, value := range t.cfg.DefaultHeaders {
		httpReq.Header.Set(key, value)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(trace.HeaderXRequestID, requestID)
	if body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if t.cfg.BasicAuth != nil {
		httpReq.SetBasicAuth(t.cfg.BasicAuth.Username, t.cfg.BasicAuth.Password)
	}

	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}
	return &response{statusCode: httpResp.StatusCode, body: respBody}, nil
}

// classify turns one attempt's wire-level outcome into a decoded value or a
// typed error, updating pool liveness on success.
func (t *Transport) classify(n *node, method string, resp *response, requestID string, elapsed time.Duration) (any, error) {
	var decoded any
	if err := json.Unmarshal(resp.body, &decoded); err != nil {
		return nil, NewMalformedResponseError(resp.statusCode, resp.body, n.baseURL, err)
	}

	if !IsSuccessStatus(resp.statusCode) {
		// The node answered, so it is alive; only transport failures mark
		// nodes dead.
		t.log.Debug().
			Str("request_id", requestID).
			Str("node", n.baseURL).
			Int("status", resp.statusCode).
			Msg("request rejected")
		return nil, NewHTTPError(resp.statusCode, decoded, n.baseURL)
	}

	if t.pool.markLive(n) {
		t.log.Info().
			Str("node", n.baseURL).
			Msg("node back in rotation")
	}
	t.log.Debug().
		Str("request_id", requestID).
		Str("method", method).
		Str("node", n.baseURL).
		Int("status", resp.statusCode).
		Dur("elapsed", elapsed).
		Msg("request finished")
	return decoded, nil
}

func (t *Transport) validateRequest(req *Request) error {
	if req == nil {
		return fmt.Errorf("transport: request cannot be nil")
	}
	if req.Method == "" {
		return fmt.Errorf("transport: method cannot be empty")
	}
	return nil
}

func (t *Transport) requestBody(req *Request) ([]byte, error) {
	if req.RawBody != nil {
		return req.RawBody, nil
	}
	if req.Body == nil {
		return nil, nil
	}
	return EncodeBody(req.Body)
}

// DeadNodes reports how many nodes are currently marked dead. Useful for
// health reporting.
func (t *Transport) DeadNodes() int {
	return t.pool.deadCount()
}

// joinPath escapes and joins path segments, dropping empty ones.
func joinPath(segments []string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s == "" {
			continue
		}
		parts = append(parts, url.PathEscape(s))
	}
	return "/" + strings.Join(parts, "/")
}

// encodeParams converts params to a query string, including the leading
// "?". Returns "" for no params.
func encodeParams(params Params) (string, error) {
	if len(params) == 0 {
		return "", nil
	}
	values := url.Values{}
	for key, value := range params {
		text, err := EncodeScalar(value)
		if err != nil {
			return "", err
		}
		values.Set(key, text)
	}
	return "?" + values.Encode(), nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

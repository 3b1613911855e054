package transport

import (
	"context"
	"time"
)

// Client is the cluster-aware request executor. One instance is intended to
// be constructed once and shared by many concurrent callers.
type Client interface {
	Do(ctx context.Context, req *Request) (any, error)
}

// Request describes one logical operation. It is built fresh per call and
// not mutated by the transport.
type Request struct {
	// Method is the HTTP method, like "GET".
	Method string
	// Path holds the URL path segments; they are escaped and joined with
	// "/" (empty segments dropped).
	Path []string
	// Body is the JSON-serializable request body, encoded via EncodeBody.
	// Nil means no body.
	Body any
	// RawBody, when non-nil, is sent verbatim instead of encoding Body.
	// Used for pre-framed payloads like bulk indexing.
	RawBody []byte
	// Params holds query-string parameters; values are converted with
	// EncodeScalar.
	Params Params
	// Timeout overrides the configured per-attempt timeout when positive.
	Timeout time.Duration
}

// Params maps query-string parameter names to values.
type Params map[string]any

// BasicAuth contains basic authentication credentials applied to every
// request.
type BasicAuth struct {
	Username string
	Password string
}

// Config holds the transport configuration.
type Config struct {
	// Nodes lists the base URLs of the cluster nodes. Required, non-empty.
	// Trailing slashes are stripped at construction.
	Nodes []string
	// Timeout bounds each physical attempt. Default: 60s.
	Timeout time.Duration
	// MaxRetries is how many additional nodes to try, in series, after an
	// attempt times out or cannot connect. Default: 0.
	MaxRetries int
	// RevivalDelay is how long a dead node is avoided before it re-enters
	// normal selection. Default: 5m.
	RevivalDelay time.Duration
	// BasicAuth, when set, is applied to every request.
	BasicAuth *BasicAuth
	// DefaultHeaders are sent with every request.
	DefaultHeaders map[string]string
}

const (
	// DefaultTimeout is the default per-attempt timeout
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the default number of additional nodes to try
	DefaultMaxRetries = 0

	// DefaultRevivalDelay is the default downtime before a dead node
	// re-enters normal selection
	DefaultRevivalDelay = 5 * time.Minute
)

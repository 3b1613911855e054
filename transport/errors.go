package transport

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ClientError represents the different kinds of transport errors
type ClientError interface {
	error
	Kind() ErrorKind
}

// ErrorKind defines the category of transport error
type ErrorKind string

const (
	// ConnectionError is raised when no node could be reached within the
	// retry budget.
	ConnectionError ErrorKind = "connection"
	// TimeoutError is raised when the retry budget was exhausted by
	// attempts exceeding the per-attempt deadline.
	TimeoutError ErrorKind = "timeout"
	// HTTPError is raised when a node answered with a non-2xx status and a
	// well-formed JSON body.
	HTTPError ErrorKind = "http"
	// MalformedResponseError is raised when a response body is not valid
	// JSON even though JSON was expected.
	MalformedResponseError ErrorKind = "malformed_response"
	// EncodingError is raised when a value has no defined wire
	// representation. Always a caller bug; never retried.
	EncodingError ErrorKind = "encoding"
)

// connectionError covers transport-level failures across all tried nodes
type connectionError struct {
	nodes   []string
	wrapped error
}

func (e *connectionError) Error() string {
	return fmt.Sprintf("connection error: no node reachable (tried: %s): %v",
		strings.Join(e.nodes, ", "), e.wrapped)
}

func (e *connectionError) Kind() ErrorKind {
	return ConnectionError
}

func (e *connectionError) Unwrap() error {
	return e.wrapped
}

// NodesTried returns the node base URLs attempted before giving up.
func (e *connectionError) NodesTried() []string {
	return e.nodes
}

// timeoutError covers retry budgets exhausted by per-attempt deadlines
type timeoutError struct {
	timeout time.Duration
	nodes   []string
	wrapped error
}

func (e *timeoutError) Error() string {
	return fmt.Sprintf("timeout error: no node answered within %v (tried: %s): %v",
		e.timeout, strings.Join(e.nodes, ", "), e.wrapped)
}

func (e *timeoutError) Kind() ErrorKind {
	return TimeoutError
}

func (e *timeoutError) Unwrap() error {
	return e.wrapped
}

func (e *timeoutError) NodesTried() []string {
	return e.nodes
}

// Timeout returns the per-attempt deadline that was exceeded.
func (e *timeoutError) Timeout() time.Duration {
	return e.timeout
}

// httpError represents a non-2xx response with a well-formed JSON body
type httpError struct {
	statusCode int
	body       any
	node       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("HTTP error: node %s returned status %d: %v", e.node, e.statusCode, e.body)
}

func (e *httpError) Kind() ErrorKind {
	return HTTPError
}

// StatusCode returns the HTTP status of the response.
func (e *httpError) StatusCode() int {
	return e.statusCode
}

// Body returns the decoded JSON body of the error response.
func (e *httpError) Body() any {
	return e.body
}

// Node returns the base URL of the node that produced the response.
func (e *httpError) Node() string {
	return e.node
}

// malformedResponseError represents a response body that is not valid JSON
type malformedResponseError struct {
	statusCode int
	raw        []byte
	node       string
	wrapped    error
}

func (e *malformedResponseError) Error() string {
	return fmt.Sprintf("malformed response: node %s returned non-JSON body (status %d): %v",
		e.node, e.statusCode, e.wrapped)
}

func (e *malformedResponseError) Kind() ErrorKind {
	return MalformedResponseError
}

func (e *malformedResponseError) Unwrap() error {
	return e.wrapped
}

func (e *malformedResponseError) StatusCode() int {
	return e.statusCode
}

// Raw returns the raw response bytes that failed to parse.
func (e *malformedResponseError) Raw() []byte {
	return e.raw
}

func (e *malformedResponseError) Node() string {
	return e.node
}

// encodingError represents a value with no defined wire representation
type encodingError struct {
	value any
}

func (e *encodingError) Error() string {
	return fmt.Sprintf("encoding error: no wire representation for %T (%v)", e.value, e.value)
}

func (e *encodingError) Kind() ErrorKind {
	return EncodingError
}

// Value returns the offending value.
func (e *encodingError) Value() any {
	return e.value
}

// NewConnectionError creates a new connection error
func NewConnectionError(nodes []string, wrapped error) ClientError {
	return &connectionError{
		nodes:   nodes,
		wrapped: wrapped,
	}
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(timeout time.Duration, nodes []string, wrapped error) ClientError {
	return &timeoutError{
		timeout: timeout,
		nodes:   nodes,
		wrapped: wrapped,
	}
}

// NewHTTPError creates a new HTTP error
func NewHTTPError(statusCode int, body any, node string) ClientError {
	return &httpError{
		statusCode: statusCode,
		body:       body,
		node:       node,
	}
}

// NewMalformedResponseError creates a new malformed-response error
func NewMalformedResponseError(statusCode int, raw []byte, node string, wrapped error) ClientError {
	return &malformedResponseError{
		statusCode: statusCode,
		raw:        raw,
		node:       node,
		wrapped:    wrapped,
	}
}

// NewEncodingError creates a new encoding error
func NewEncodingError(value any) ClientError {
	return &encodingError{value: value}
}

// IsKind checks if an error is of a specific kind
func IsKind(err error, kind ErrorKind) bool {
	if err == nil {
		return false
	}
	var clientErr ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Kind() == kind
	}
	return false
}

// IsStatus checks if an error is an HTTP error with a specific status code
func IsStatus(err error, statusCode int) bool {
	var httpErr *httpError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode() == statusCode
	}
	return false
}

// IsNotFound reports whether an error is an HTTP error for a missing
// resource (404).
func IsNotFound(err error) bool {
	return IsStatus(err, 404)
}

// IsAlreadyExists reports whether an error is an HTTP error for an attempt
// to create a resource that already exists. The engine signals this as a
// 409, or as a 400 whose error text mentions the existing resource.
func IsAlreadyExists(err error) bool {
	var httpErr *httpError
	if !errors.As(err, &httpErr) {
		return false
	}
	if httpErr.statusCode == 409 {
		return true
	}
	if httpErr.statusCode != 400 {
		return false
	}
	return strings.Contains(strings.ToLower(errorText(httpErr.body)), "already exists")
}

// errorText extracts the engine's error message from a decoded error body.
// Bodies are typically {"error": "...", "status": N}; anything else is
// stringified as-is.
func errorText(body any) string {
	if m, ok := body.(map[string]any); ok {
		if msg, ok := m["error"].(string); ok {
			return msg
		}
	}
	if s, ok := body.(string); ok {
		return s
	}
	return fmt.Sprint(body)
}

// IsSuccessStatus checks if a status code represents success (2xx)
func IsSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

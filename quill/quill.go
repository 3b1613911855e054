// Package quill exposes typed endpoint wrappers over the cluster transport.
// Every method assembles a path, merges pass-through parameters, and
// forwards to transport.Client.Do; retries, failover, and error
// classification all happen there.
package quill

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/quillsearch/quill-go/logger"
	"github.com/quillsearch/quill-go/transport"
)

// Client is a high-level client for a Quill cluster. It is safe for use by
// many concurrent goroutines.
type Client struct {
	transport transport.Client
	log       logger.Logger
}

// New creates a Client for the given cluster configuration.
func New(cfg transport.Config, log logger.Logger) (*Client, error) {
	if log == nil {
		log = logger.Nop()
	}
	tr, err := transport.New(cfg, log)
	if err != nil {
		return nil, err
	}
	return &Client{transport: tr, log: log}, nil
}

// NewWithTransport creates a Client over an existing transport. Used for
// sharing one node pool between clients, and for tests.
func NewWithTransport(tr transport.Client, log logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	return &Client{transport: tr, log: log}
}

// IndexOptions controls document indexing.
type IndexOptions struct {
	// ID is the document ID. When empty the engine assigns one.
	ID string
	// ForceInsert makes the call fail if a document with the same ID
	// already exists, instead of overwriting it.
	ForceInsert bool
	// Extra holds pass-through query parameters.
	Extra transport.Params
}

// Index puts a typed JSON document into an index to make it searchable.
func (c *Client) Index(ctx context.Context, index, docType string, doc any, opts *IndexOptions) (any, error) {
	if opts == nil {
		opts = &IndexOptions{}
	}
	method := "POST"
	if opts.ID != "" {
		method = "PUT"
	}
	params := transport.Params{}
	if opts.ForceInsert {
		params["op_type"] = "create"
	}
	if err := mergeParams(params, opts.Extra); err != nil {
		return nil, err
	}
	return c.transport.Do(ctx, &transport.Request{
		Method: method,
		Path:   []string{index, docType, opts.ID},
		Body:   doc,
		Params: params,
	})
}

// Get retrieves a document by ID.
func (c *Client) Get(ctx context.Context, index, docType, id string, extra transport.Params) (any, error) {
	return c.transport.Do(ctx, &transport.Request{
		Method: "GET",
		Path:   []string{index, docType, id},
		Params: extra,
	})
}

// Delete removes a document by ID.
func (c *Client) Delete(ctx context.Context, index, docType, id string, extra transport.Params) (any, error) {
	if id == "" {
		return nil, fmt.Errorf("quill: document ID is required for delete")
	}
	return c.transport.Do(ctx, &transport.Request{
		Method: "DELETE",
		Path:   []string{index, docType, id},
		Params: extra,
	})
}

// SearchQuery runs a query-string search across the given indexes and
// document types. Empty slices mean all.
func (c *Client) SearchQuery(ctx context.Context, query string, indexes, docTypes []string, extra transport.Params) (any, error) {
	params := transport.Params{"q": query}
	if err := mergeParams(params, extra); err != nil {
		return nil, err
	}
	return c.transport.Do(ctx, &transport.Request{
		Method: "GET",
		Path:   []string{concat(indexes), concat(docTypes), "_search"},
		Params: params,
	})
}

// Search runs a structured search with a query DSL body.
func (c *Client) Search(ctx context.Context, body any, indexes, docTypes []string, extra transport.Params) (any, error) {
	return c.transport.Do(ctx, &transport.Request{
		Method: "GET",
		Path:   []string{concat(indexes), concat(docTypes), "_search"},
		Body:   body,
		Params: extra,
	})
}

// Count counts documents matching a query-string query.
func (c *Client) Count(ctx context.Context, query string, indexes, docTypes []string, extra transport.Params) (any, error) {
	params := transport.Params{"q": query}
	if err := mergeParams(params, extra); err != nil {
		return nil, err
	}
	return c.transport.Do(ctx, &transport.Request{
		Method: "GET",
		Path:   []string{concat(indexes), concat(docTypes), "_count"},
		Params: params,
	})
}

// CreateIndex creates an index, optionally with settings. Use
// transport.IsAlreadyExists on the error to branch on the index already
// being there.
func (c *Client) CreateIndex(ctx context.Context, index string, settings any) (any, error) {
	return c.transport.Do(ctx, &transport.Request{
		Method: "PUT",
		Path:   []string{index},
		Body:   settings,
	})
}

// DeleteIndex deletes an index.
func (c *Client) DeleteIndex(ctx context.Context, index string) (any, error) {
	if index == "" {
		return nil, fmt.Errorf("quill: index name is required for delete")
	}
	return c.transport.Do(ctx, &transport.Request{
		Method: "DELETE",
		Path:   []string{index},
	})
}

// Refresh makes recent index changes visible to search.
func (c *Client) Refresh(ctx context.Context, indexes []string) (any, error) {
	return c.transport.Do(ctx, &transport.Request{
		Method: "POST",
		Path:   []string{concat(indexes), "_refresh"},
	})
}

// PutMapping registers a mapping definition for a document type.
func (c *Client) PutMapping(ctx context.Context, indexes []string, docType string, mapping any, extra transport.Params) (any, error) {
	return c.transport.Do(ctx, &transport.Request{
		Method: "PUT",
		Path:   []string{concat(indexes), docType, "_mapping"},
		Body:   mapping,
		Params: extra,
	})
}

// BulkIndex indexes several documents in one round trip. IDs are taken from
// idField in each document when present. The payload is framed as
// newline-delimited JSON: an action line followed by a document line per
// document.
func (c *Client) BulkIndex(ctx context.Context, index, docType string, docs []map[string]any, idField string, extra transport.Params) (any, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("quill: bulk index of zero documents")
	}

	var buf bytes.Buffer
	for _, doc := range docs {
		action := map[string]any{"index": map[string]any{}}
		if id, ok := doc[idField]; ok {
			action["index"].(map[string]any)["_id"] = id
		}
		for _, line := range []any{action, doc} {
			encoded, err := transport.EncodeBody(line)
			if err != nil {
				return nil, err
			}
			buf.Write(encoded)
			buf.WriteByte('\n')
		}
	}

	return c.transport.Do(ctx, &transport.Request{
		Method:  "POST",
		Path:    []string{index, docType, "_bulk"},
		RawBody: buf.Bytes(),
		Params:  extra,
	})
}

// Health reports cluster health, optionally restricted to some indexes.
func (c *Client) Health(ctx context.Context, indexes []string, extra transport.Params) (any, error) {
	return c.transport.Do(ctx, &transport.Request{
		Method: "GET",
		Path:   []string{"_cluster", "health", concat(indexes)},
		Params: extra,
	})
}

// Status reports index status.
func (c *Client) Status(ctx context.Context, indexes []string) (any, error) {
	return c.transport.Do(ctx, &transport.Request{
		Method: "GET",
		Path:   []string{concat(indexes), "_status"},
	})
}

// concat joins names with commas, omitting the "_all" wildcard since an
// empty path segment already means "all" to the engine.
func concat(names []string) string {
	kept := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" && n != "_all" {
			kept = append(kept, n)
		}
	}
	return strings.Join(kept, ",")
}

// mergeParams copies extra pass-through parameters into params, rejecting
// keys that would shadow a parameter the wrapper already set.
func mergeParams(params, extra transport.Params) error {
	for key, value := range extra {
		if _, reserved := params[key]; reserved {
			return fmt.Errorf("quill: parameter %q collides with a reserved parameter", key)
		}
		params[key] = value
	}
	return nil
}

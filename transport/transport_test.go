package transport

import (
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillsearch/quill-go/logger"
)

type roundTripperFunc func(*nethttp.Request) (*nethttp.Response, error)

func (f roundTripperFunc) RoundTrip(req *nethttp.Request) (*nethttp.Response, error) {
	return f(req)
}

// fakeTimeoutError satisfies net.Error with Timeout() == true
type fakeTimeoutError struct{}

func (fakeTimeoutError) Error() string   { return "i/o timeout" }
func (fakeTimeoutError) Timeout() bool   { return true }
func (fakeTimeoutError) Temporary() bool { return true }

func jsonResponse(status int, body string) *nethttp.Response {
	return &nethttp.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(nethttp.Header),
	}
}

func newTestTransport(t *testing.T, cfg Config, rt nethttp.RoundTripper) *Transport {
	t.Helper()
	tr, err := New(cfg, logger.Nop())
	require.NoError(t, err)
	if rt != nil {
		tr.httpClient.Transport = rt
	}
	return tr
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name  string
		nodes []string
	}{
		{"empty node list", nil},
		{"not a URL", []string{"definitely not a url"}},
		{"missing scheme", []string{"localhost:9200"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Config{Nodes: tt.nodes}, nil)
			assert.Error(t, err)
		})
	}
}

func TestNewStripsTrailingSlashes(t *testing.T) {
	tr := newTestTransport(t, Config{Nodes: []string{"http://es1:9200/"}}, nil)
	assert.Equal(t, "http://es1:9200", tr.pool.nodes[0].baseURL)
}

func TestNewDefaults(t *testing.T) {
	tr := newTestTransport(t, Config{Nodes: []string{"http://es1:9200"}}, nil)
	assert.Equal(t, DefaultTimeout, tr.cfg.Timeout)
	assert.Equal(t, DefaultMaxRetries, tr.cfg.MaxRetries)
	assert.Equal(t, DefaultRevivalDelay, tr.cfg.RevivalDelay)
}

func TestDoReturnsDecodedJSON(t *testing.T) {
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok": true, "count": 3}`)
	}))
	defer server.Close()

	tr := newTestTransport(t, Config{Nodes: []string{server.URL}}, nil)
	result, err := tr.Do(context.Background(), &Request{Method: "GET", Path: []string{"_status"}})

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true, "count": float64(3)}, result)
}

func TestDoSendsPathQueryAndHeaders(t *testing.T) {
	var got *nethttp.Request
	var gotBody []byte
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		got = r.Clone(context.Background())
		gotBody, _ = io.ReadAll(r.Body)
		fmt.Fprint(w, `{"ok": true}`)
	}))
	defer server.Close()

	tr := newTestTransport(t, Config{
		Nodes:     []string{server.URL},
		BasicAuth: &BasicAuth{Username: "elmo", Password: "sesame"},
	}, nil)

	_, err := tr.Do(context.Background(), &Request{
		Method: "POST",
		Path:   []string{"test index", "test-type", "", "_search"},
		Body:   map[string]any{"query": "name:joe"},
		Params: Params{"pretty": true, "size": 10},
	})
	require.NoError(t, err)

	assert.Equal(t, "/test%20index/test-type/_search", got.URL.EscapedPath())
	assert.Equal(t, "pretty=true&size=10", got.URL.RawQuery)
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.NotEmpty(t, got.Header.Get("X-Request-ID"))
	assert.JSONEq(t, `{"query": "name:joe"}`, string(gotBody))

	user, pass, ok := got.BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "elmo", user)
	assert.Equal(t, "sesame", pass)
}

func TestDoRetryBudgetExactness(t *testing.T) {
	for _, maxRetries := range []int{0, 1, 3} {
		t.Run(fmt.Sprintf("max_retries=%d", maxRetries), func(t *testing.T) {
			var attempts int32
			rt := roundTripperFunc(func(*nethttp.Request) (*nethttp.Response, error) {
				atomic.AddInt32(&attempts, 1)
				return nil, fmt.Errorf("connection refused")
			})

			tr := newTestTransport(t, Config{
				Nodes:      []string{"http://es1:9200", "http://es2:9200", "http://es3:9200", "http://es4:9200"},
				MaxRetries: maxRetries,
			}, rt)

			_, err := tr.Do(context.Background(), &Request{Method: "GET", Path: []string{"_status"}})

			require.Error(t, err)
			assert.True(t, IsKind(err, ConnectionError))
			assert.Equal(t, int32(maxRetries+1), attempts)
		})
	}
}

func TestDoConnectionErrorCarriesNodesTried(t *testing.T) {
	rt := roundTripperFunc(func(*nethttp.Request) (*nethttp.Response, error) {
		return nil, fmt.Errorf("connection refused")
	})
	tr := newTestTransport(t, Config{
		Nodes:      []string{"http://es1:9200", "http://es2:9200"},
		MaxRetries: 1,
	}, rt)

	_, err := tr.Do(context.Background(), &Request{Method: "GET", Path: []string{"_status"}})

	var connErr *connectionError
	require.ErrorAs(t, err, &connErr)
	assert.Len(t, connErr.NodesTried(), 2)
	assert.ErrorContains(t, err, "connection refused")
}

func TestDoTimeoutClassification(t *testing.T) {
	rt := roundTripperFunc(func(*nethttp.Request) (*nethttp.Response, error) {
		return nil, fakeTimeoutError{}
	})
	tr := newTestTransport(t, Config{Nodes: []string{"http://es1:9200"}}, rt)

	_, err := tr.Do(context.Background(), &Request{Method: "GET", Path: []string{"_status"}})

	assert.True(t, IsKind(err, TimeoutError))
	assert.False(t, IsKind(err, ConnectionError))
}

func TestDoTransportFailureMarksNodeDead(t *testing.T) {
	rt := roundTripperFunc(func(*nethttp.Request) (*nethttp.Response, error) {
		return nil, fmt.Errorf("connection refused")
	})
	tr := newTestTransport(t, Config{Nodes: []string{"http://es1:9200"}}, rt)

	_, err := tr.Do(context.Background(), &Request{Method: "GET", Path: []string{"_status"}})

	require.Error(t, err)
	assert.Equal(t, 1, tr.DeadNodes())
}

func TestDoNoRetryOnApplicationError(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(404)
		fmt.Fprint(w, `{"error": "IndexMissingException[[test-index] missing]", "status": 404}`)
	}))
	defer server.Close()

	tr := newTestTransport(t, Config{Nodes: []string{server.URL}, MaxRetries: 5}, nil)
	_, err := tr.Do(context.Background(), &Request{Method: "GET", Path: []string{"test-index", "_status"}})

	require.Error(t, err)
	assert.Equal(t, int32(1), attempts)
	assert.True(t, IsStatus(err, 404))
	assert.True(t, IsNotFound(err))
	// The node answered, so it stays in rotation.
	assert.Zero(t, tr.DeadNodes())
}

func TestDoMalformedResponse(t *testing.T) {
	t.Run("on 2xx", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
			atomic.AddInt32(&attempts, 1)
			fmt.Fprint(w, "<html>not json</html>")
		}))
		defer server.Close()

		tr := newTestTransport(t, Config{Nodes: []string{server.URL}, MaxRetries: 3}, nil)
		_, err := tr.Do(context.Background(), &Request{Method: "GET", Path: []string{"_status"}})

		require.Error(t, err)
		assert.Equal(t, int32(1), attempts)

		var malErr *malformedResponseError
		require.ErrorAs(t, err, &malErr)
		assert.Equal(t, 200, malErr.StatusCode())
		assert.Equal(t, []byte("<html>not json</html>"), malErr.Raw())
	})

	t.Run("on error status", func(t *testing.T) {
		server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
			w.WriteHeader(502)
			fmt.Fprint(w, "Bad Gateway")
		}))
		defer server.Close()

		tr := newTestTransport(t, Config{Nodes: []string{server.URL}}, nil)
		_, err := tr.Do(context.Background(), &Request{Method: "GET", Path: []string{"_status"}})

		// Distinct from HTTPError: the body was not the JSON we were promised.
		assert.True(t, IsKind(err, MalformedResponseError))
		assert.False(t, IsKind(err, HTTPError))
	})
}

func TestDoFailover(t *testing.T) {
	var failedHosts sync.Map
	rt := roundTripperFunc(func(req *nethttp.Request) (*nethttp.Response, error) {
		if req.URL.Host == "es-down:9200" {
			failedHosts.Store(req.URL.Host, true)
			return nil, fmt.Errorf("connection refused")
		}
		return jsonResponse(200, `{"ok": true}`), nil
	})

	tr := newTestTransport(t, Config{
		Nodes:      []string{"http://es-down:9200", "http://es-up:9200"},
		MaxRetries: 1,
	}, rt)

	result, err := tr.Do(context.Background(), &Request{Method: "GET", Path: []string{"_status"}})

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, result)

	if _, sawDown := failedHosts.Load("es-down:9200"); sawDown {
		assert.Equal(t, 1, tr.DeadNodes())
	} else {
		assert.Zero(t, tr.DeadNodes())
	}
}

func TestDoSuccessRevivesNode(t *testing.T) {
	rt := roundTripperFunc(func(*nethttp.Request) (*nethttp.Response, error) {
		return jsonResponse(200, `{"ok": true}`), nil
	})
	tr := newTestTransport(t, Config{Nodes: []string{"http://es1:9200"}}, rt)

	// Force the all-dead fallback path.
	tr.pool.markDead(tr.pool.nodes[0], time.Now())
	require.Equal(t, 1, tr.DeadNodes())

	_, err := tr.Do(context.Background(), &Request{Method: "GET", Path: []string{"_status"}})

	require.NoError(t, err)
	assert.Zero(t, tr.DeadNodes())
}

func TestDoPerCallTimeout(t *testing.T) {
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		time.Sleep(300 * time.Millisecond)
		fmt.Fprint(w, `{"ok": true}`)
	}))
	defer server.Close()

	tr := newTestTransport(t, Config{Nodes: []string{server.URL}, Timeout: time.Minute}, nil)
	_, err := tr.Do(context.Background(), &Request{
		Method:  "GET",
		Path:    []string{"_status"},
		Timeout: 20 * time.Millisecond,
	})

	assert.True(t, IsKind(err, TimeoutError))
	assert.Equal(t, 1, tr.DeadNodes())
}

func TestDoCancellationIsTerminal(t *testing.T) {
	var attempts int32
	rt := roundTripperFunc(func(req *nethttp.Request) (*nethttp.Response, error) {
		atomic.AddInt32(&attempts, 1)
		<-req.Context().Done()
		return nil, req.Context().Err()
	})
	tr := newTestTransport(t, Config{Nodes: []string{"http://es1:9200"}, MaxRetries: 5}, rt)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := tr.Do(ctx, &Request{Method: "GET", Path: []string{"_status"}})

	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsKind(err, TimeoutError))
	// Cancellation must not burn through the retry budget.
	assert.Equal(t, int32(1), attempts)
}

func TestDoEncodingErrorShortCircuits(t *testing.T) {
	var attempts int32
	rt := roundTripperFunc(func(*nethttp.Request) (*nethttp.Response, error) {
		atomic.AddInt32(&attempts, 1)
		return jsonResponse(200, `{}`), nil
	})
	tr := newTestTransport(t, Config{Nodes: []string{"http://es1:9200"}}, rt)

	t.Run("body", func(t *testing.T) {
		_, err := tr.Do(context.Background(), &Request{
			Method: "PUT",
			Path:   []string{"idx"},
			Body:   map[string]any{"sock": struct{}{}},
		})
		assert.True(t, IsKind(err, EncodingError))
	})

	t.Run("query param", func(t *testing.T) {
		_, err := tr.Do(context.Background(), &Request{
			Method: "GET",
			Path:   []string{"idx"},
			Params: Params{"bad": struct{}{}},
		})
		assert.True(t, IsKind(err, EncodingError))
	})

	assert.Zero(t, atomic.LoadInt32(&attempts))
}

func TestDoRawBodySentVerbatim(t *testing.T) {
	var gotBody []byte
	var gotType string
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotType = r.Header.Get("Content-Type")
		fmt.Fprint(w, `{"ok": true}`)
	}))
	defer server.Close()

	raw := []byte("{\"index\": {}}\n{\"name\": \"joe\"}\n")
	tr := newTestTransport(t, Config{Nodes: []string{server.URL}}, nil)
	_, err := tr.Do(context.Background(), &Request{
		Method:  "POST",
		Path:    []string{"_bulk"},
		RawBody: raw,
	})

	require.NoError(t, err)
	assert.Equal(t, raw, gotBody)
	assert.Equal(t, "application/json", gotType)
}

func TestDoValidatesRequest(t *testing.T) {
	tr := newTestTransport(t, Config{Nodes: []string{"http://es1:9200"}}, nil)

	_, err := tr.Do(context.Background(), nil)
	assert.Error(t, err)

	_, err = tr.Do(context.Background(), &Request{Path: []string{"x"}})
	assert.Error(t, err)
}

func TestDoEmptyBodyIsMalformed(t *testing.T) {
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		w.WriteHeader(200)
	}))
	defer server.Close()

	tr := newTestTransport(t, Config{Nodes: []string{server.URL}}, nil)
	_, err := tr.Do(context.Background(), &Request{Method: "GET", Path: []string{"_status"}})

	assert.True(t, IsKind(err, MalformedResponseError))
}

func TestDoConcurrentCallers(t *testing.T) {
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		fmt.Fprint(w, `{"ok": true}`)
	}))
	defer server.Close()

	tr := newTestTransport(t, Config{Nodes: []string{server.URL}}, nil)

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				result, err := tr.Do(context.Background(), &Request{Method: "GET", Path: []string{"_status"}})
				assert.NoError(t, err)
				assert.Equal(t, map[string]any{"ok": true}, result)
			}
		}()
	}
	wg.Wait()
}

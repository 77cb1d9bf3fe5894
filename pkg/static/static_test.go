package static

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-image-audit/pkg/audit"
	"github.com/shouni/go-image-audit/pkg/engine"
	"github.com/shouni/go-image-audit/pkg/httpclient"
)

const testPage = `<html><head>
<meta property="og:image" content="http://cdn.test/og.jpg">
<link rel="stylesheet" href="/style.css">
</head><body>
<img src="/img/a.png" srcset="/img/a-1x.png 1x, http://cdn.test/a-2x.png 2x">
<img data-src="http://cdn.test/lazy.png" data-srcset="http://cdn.test/lazy-2x.png 2x">
<div src="ignored.png"></div>
<a href="page2.html">next</a>
</body></html>`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/blog/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(testPage))
	})
	mux.HandleFunc("/img/a.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", "3")
		_, _ = w.Write([]byte("png"))
	})
	mux.HandleFunc("/moved.png", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/img/a.png", http.StatusMovedPermanently)
	})
	return httptest.NewServer(mux)
}

func openSession(t *testing.T, server *httptest.Server) engine.Session {
	t.Helper()
	eng := NewEngine(time.Second, 0)
	session, err := eng.NewSession(context.Background())
	require.NoError(t, err)
	require.NoError(t, session.Open(context.Background(), server.URL+"/blog/post"))
	return session
}

func TestSession_Query(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()
	session := openSession(t, server)
	defer session.Close()

	tests := []struct {
		name     string
		prop     engine.Property
		expected []string
	}{
		{"src_resolved_and_non_src_element_empty", engine.Property{Attr: "src", Path: "src"}, []string{server.URL + "/img/a.png", ""}},
		{"dataset_src_raw", engine.Property{Attr: "data-src", Path: "dataset.src"}, []string{"http://cdn.test/lazy.png"}},
		{"meta_content", engine.Property{Attr: "content", Path: "content"}, []string{"http://cdn.test/og.jpg"}},
		{"href_resolved_against_document", engine.Property{Attr: "href", Path: "href"}, []string{server.URL + "/style.css", server.URL + "/blog/page2.html"}},
		{"srcset_raw", engine.Property{Attr: "srcset", Path: "srcset"}, []string{"/img/a-1x.png 1x, http://cdn.test/a-2x.png 2x"}},
		{"dataset_srcset_raw", engine.Property{Attr: "data-srcset", Path: "dataset.srcset"}, []string{"http://cdn.test/lazy-2x.png 2x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := session.Query(context.Background(), tt.prop)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestSession_QueryBeforeOpen(t *testing.T) {
	session, err := NewEngine(time.Second, 0).NewSession(context.Background())
	require.NoError(t, err)

	_, err = session.Query(context.Background(), engine.Property{Attr: "src", Path: "src"})
	assert.Error(t, err)
}

func TestSession_Fetch(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()
	session := openSession(t, server)
	defer session.Close()

	t.Run("image_headers", func(t *testing.T) {
		resp, err := session.Fetch(context.Background(), server.URL+"/img/a.png")
		require.NoError(t, err)
		assert.Equal(t, "image/png", resp.ContentType())
		length, ok := resp.ContentLength()
		assert.True(t, ok)
		assert.Equal(t, "3", length)
	})

	t.Run("final_url_after_redirect", func(t *testing.T) {
		resp, err := session.Fetch(context.Background(), server.URL+"/moved.png")
		require.NoError(t, err)
		assert.Equal(t, server.URL+"/img/a.png", resp.URL)
	})

	t.Run("unsupported_scheme_is_error", func(t *testing.T) {
		_, err := session.Fetch(context.Background(), "ftp://files.test/a.png")
		assert.Error(t, err)
	})
}

func TestSession_FetchGzipEncodedImage(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(`<svg xmlns="http://www.w3.org/2000/svg" width="1" height="1"/>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	body := buf.Bytes()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = w.Write(body)
	}))
	defer server.Close()

	eng := NewEngine(5*time.Second, 0)
	defer eng.Close()
	session, err := eng.NewSession(context.Background())
	require.NoError(t, err)
	defer session.Close()

	resp, err := session.Fetch(context.Background(), server.URL+"/logo.svg")
	require.NoError(t, err)

	length, ok := resp.ContentLength()
	require.True(t, ok, "headers: %v", resp.Header)
	assert.Equal(t, strconv.Itoa(len(body)), length)

	outcome := audit.Classify(server.URL+"/logo.svg", resp)
	assert.Equal(t, audit.OutcomeRecorded, outcome.Kind)
	assert.Equal(t, int64(len(body)), outcome.Record.Size)
}

func TestNewEngineWithClient(t *testing.T) {
	_, err := NewEngineWithClient(nil)
	assert.Error(t, err)

	eng, err := NewEngineWithClient(httpclient.New(time.Second))
	require.NoError(t, err)
	assert.NoError(t, eng.Close())
}

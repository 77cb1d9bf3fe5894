package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ysmood/gson"

	"github.com/shouni/go-image-audit/pkg/engine"
)

func TestToResponse(t *testing.T) {
	tests := []struct {
		name          string
		in            *proto.NetworkResponse
		wantURL       string
		wantStatus    int
		wantType      string
		wantLength    string
		wantHasLength bool
	}{
		{
			name: "http2_lowercase_headers",
			in: &proto.NetworkResponse{
				URL:    "https://cdn.test/a.png",
				Status: 200,
				Headers: proto.NetworkHeaders{
					"content-type":   gson.New("image/png"),
					"content-length": gson.New("1024"),
				},
			},
			wantURL:       "https://cdn.test/a.png",
			wantStatus:    200,
			wantType:      "image/png",
			wantLength:    "1024",
			wantHasLength: true,
		},
		{
			name: "http1_canonical_headers",
			in: &proto.NetworkResponse{
				URL:    "http://a.test/page",
				Status: 404,
				Headers: proto.NetworkHeaders{
					"Content-Type": gson.New("text/html; charset=utf-8"),
				},
			},
			wantURL:    "http://a.test/page",
			wantStatus: 404,
			wantType:   "text/html; charset=utf-8",
		},
		{
			name:       "no_headers",
			in:         &proto.NetworkResponse{URL: "http://a.test/x", Status: 204},
			wantURL:    "http://a.test/x",
			wantStatus: 204,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := toResponse(tt.in)
			assert.Equal(t, tt.wantURL, resp.URL)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.wantType, resp.ContentType())
			length, ok := resp.ContentLength()
			assert.Equal(t, tt.wantHasLength, ok)
			assert.Equal(t, tt.wantLength, length)
		})
	}
}

// newBrowserSession は、ローカルの Chromium が見つからない場合テストをスキップします。
func newBrowserSession(t *testing.T) engine.Session {
	t.Helper()
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("Chromium が見つからないためスキップします")
	}

	eng, err := NewEngine(context.Background(), Options{Bin: bin})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	session, err := eng.NewSession(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func newImageServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><img src="/img/a.png"><a href="#top">top</a></body></html>`))
	})
	mux.HandleFunc("/img/a.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", "3")
		_, _ = w.Write([]byte("png"))
	})
	mux.HandleFunc("/moved.png", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/img/a.png", http.StatusFound)
	})
	return httptest.NewServer(mux)
}

func TestSession_Fetch(t *testing.T) {
	session := newBrowserSession(t)
	server := newImageServer()
	defer server.Close()

	require.NoError(t, session.Open(context.Background(), server.URL+"/page"))

	values, err := session.Query(context.Background(), engine.Property{Attr: "src", Path: "src"})
	require.NoError(t, err)
	assert.Equal(t, []string{server.URL + "/img/a.png"}, values)

	t.Run("image_response", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		resp, err := session.Fetch(ctx, server.URL+"/img/a.png")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.Status)
		assert.Equal(t, "image/png", resp.ContentType())
		length, ok := resp.ContentLength()
		assert.True(t, ok)
		assert.Equal(t, "3", length)
	})

	t.Run("final_url_after_redirect", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		resp, err := session.Fetch(ctx, server.URL+"/moved.png")
		require.NoError(t, err)
		assert.Equal(t, server.URL+"/img/a.png", resp.URL)
	})

	t.Run("same_document_navigation_has_no_response", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_, err := session.Fetch(ctx, server.URL+"/page")
		require.NoError(t, err)

		start := time.Now()
		resp, err := session.Fetch(ctx, server.URL+"/page#top")
		assert.Nil(t, resp)
		assert.ErrorIs(t, err, engine.ErrNoResponse)
		assert.Less(t, time.Since(start), 5*time.Second)
	})
}

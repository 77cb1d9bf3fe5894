package static

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/shouni/go-image-audit/pkg/engine"
	"github.com/shouni/go-image-audit/pkg/httpclient"
)

// propertyTags は、DOMプロパティとして値を公開する要素のタグ名です。
// 該当しない要素のプロパティはブラウザ同様に空文字列として扱います。
var propertyTags = map[string]map[string]bool{
	"src":     {"img": true, "script": true, "iframe": true, "audio": true, "video": true, "source": true, "input": true, "embed": true, "track": true, "frame": true},
	"href":    {"a": true, "link": true, "area": true, "base": true},
	"content": {"meta": true},
	"srcset":  {"img": true, "source": true},
}

// urlProperties は、ブラウザがドキュメントURLを基準に絶対URLへ解決して返すプロパティです。
var urlProperties = map[string]bool{"src": true, "href": true}

// Engine は、ヘッドレスブラウザを使わずに、取得したHTMLをそのまま解析するエンジンです。
// JavaScriptによって生成される要素は対象外になります。
type Engine struct {
	client *httpclient.Client
}

// NewEngine は、新しい Engine を生成します。
func NewEngine(timeout time.Duration, maxRetries uint64) *Engine {
	return &Engine{
		client: httpclient.New(timeout, httpclient.WithMaxRetries(maxRetries)),
	}
}

// NewEngineWithClient は、既存の httpclient.Client を使う Engine を生成します。
func NewEngineWithClient(client *httpclient.Client) (*Engine, error) {
	if client == nil {
		return nil, fmt.Errorf("static.NewEngineWithClient: client cannot be nil")
	}
	return &Engine{client: client}, nil
}

// NewSession は engine.Engine を満たします。
func (e *Engine) NewSession(ctx context.Context) (engine.Session, error) {
	return &Session{client: e.client}, nil
}

// Close は engine.Engine を満たします。解放するリソースはありません。
func (e *Engine) Close() error { return nil }

// Session は、直近に開いたドキュメントを保持するナビゲーションコンテキストです。
type Session struct {
	client  *httpclient.Client
	doc     *goquery.Document
	baseURL *url.URL
}

// Open は、URLのHTMLを取得して解析し、以降の Query の対象にします。
func (s *Session) Open(ctx context.Context, rawURL string) error {
	page, err := s.client.FetchDocument(ctx, rawURL)
	if err != nil {
		return err
	}

	base, err := url.Parse(page.URL)
	if err != nil {
		return fmt.Errorf("ドキュメントURLのパースエラー: %w", err)
	}
	s.doc, s.baseURL = page.Document, base
	return nil
}

// Query は、prop.Attr を持つ要素からDOMプロパティ相当の値を取り出します。
func (s *Session) Query(ctx context.Context, prop engine.Property) ([]string, error) {
	if s.doc == nil {
		return nil, fmt.Errorf("ドキュメントが読み込まれていません")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	values := []string{}
	s.doc.Find("[" + prop.Attr + "]").Each(func(_ int, sel *goquery.Selection) {
		values = append(values, s.readProperty(sel, prop.Path))
	})
	return values, nil
}

// readProperty は、ブラウザのDOMプロパティの振る舞いを近似します。
func (s *Session) readProperty(sel *goquery.Selection, path string) string {
	if name, ok := strings.CutPrefix(path, "dataset."); ok {
		return sel.AttrOr("data-"+name, "")
	}

	if tags, ok := propertyTags[path]; ok && !tags[goquery.NodeName(sel)] {
		return ""
	}

	raw := sel.AttrOr(path, "")
	if !urlProperties[path] {
		return raw
	}
	return s.resolve(raw)
}

// resolve は、ブラウザ同様に値をドキュメントURL基準の絶対URLへ解決します。
func (s *Session) resolve(raw string) string {
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || s.baseURL == nil {
		return raw
	}
	return s.baseURL.ResolveReference(ref).String()
}

// Fetch は、URLへGETリクエストを送り、ステータスとヘッダーを返します。
func (s *Session) Fetch(ctx context.Context, rawURL string) (*engine.Response, error) {
	resp, err := s.client.FetchHeaders(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return &engine.Response{
		URL:    finalURL,
		Status: resp.StatusCode,
		Header: resp.Header,
	}, nil
}

// Close は engine.Session を満たします。
func (s *Session) Close() error {
	s.doc, s.baseURL = nil, nil
	return nil
}

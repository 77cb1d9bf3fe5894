package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/shouni/go-image-audit/pkg/retry"
)

const (
	DefaultHTTPTimeout = 30 * time.Second
	// MaxErrorBodySize は、エラーメッセージに含めるレスポンスボディの最大サイズです。
	MaxErrorBodySize = 1024

	// サイトからのブロックを避けるためのUser-Agent
	UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36"
)

// Doer は、*http.Client.Do と互換性のあるインターフェースです。
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NonRetryableHTTPError はHTTP 4xx系のステータスコードエラーを示すカスタムエラー型です。
type NonRetryableHTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *NonRetryableHTTPError) Error() string {
	body := strings.TrimSpace(string(e.Body))
	if body == "" {
		return fmt.Sprintf("HTTPクライアントエラー (非リトライ対象): ステータスコード %d, ボディなし", e.StatusCode)
	}
	if len(body) > MaxErrorBodySize {
		body = body[:MaxErrorBodySize] + "..."
	}
	return fmt.Sprintf("HTTPクライアントエラー (非リトライ対象): ステータスコード %d, ボディ: %s", e.StatusCode, body)
}

// Page は取得したHTMLドキュメントと、リダイレクト後の最終URLです。
type Page struct {
	URL      string
	Document *goquery.Document
}

// Client はHTTPリクエストと指数バックオフを用いたリトライを管理します。
type Client struct {
	httpClient  Doer
	retryConfig retry.Config
}

// ClientOption は Client の設定を行う関数型です。
type ClientOption func(*Client)

// WithHTTPClient はカスタムのDoerを設定します。
func WithHTTPClient(doer Doer) ClientOption {
	return func(c *Client) {
		c.httpClient = doer
	}
}

// WithMaxRetries はドキュメント取得の最大リトライ回数を設定します。
func WithMaxRetries(max uint64) ClientOption {
	return func(c *Client) {
		c.retryConfig.MaxRetries = max
	}
}

// New は新しい Client を生成します。timeout が0以下の場合は DefaultHTTPTimeout を使います。
func New(timeout time.Duration, options ...ClientOption) *Client {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}

	c := &Client{
		httpClient:  &http.Client{Timeout: timeout},
		retryConfig: retry.DefaultConfig(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// FetchDocument はURLからHTMLを取得し、goquery.Document として返します。
// ネットワークエラーと5xxはリトライし、4xxは即座に返します。
func (c *Client) FetchDocument(ctx context.Context, url string) (*Page, error) {
	var page *Page

	op := func() error {
		var fetchErr error
		page, fetchErr = c.doFetchDocument(ctx, url)
		return fetchErr
	}

	err := retry.Do(ctx, c.retryConfig, fmt.Sprintf("URL(%s)のフェッチ", url), op, isRetryableError)
	if err != nil {
		return nil, err
	}
	return page, nil
}

// FetchHeaders はURLへGETリクエストを一度だけ送り、ボディを読まずにレスポンスを返します。
// 返される Response の Body は既に閉じられています。
// 圧縮されたレスポンスでも Content-Length が残るよう、Accept-Encoding を明示して透過的な展開を無効にします。
func (c *Client) FetchHeaders(ctx context.Context, url string) (*http.Response, error) {
	req, err := c.newRequest(ctx, url)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストに失敗しました (ネットワーク/接続エラー): %w", err)
	}
	_ = resp.Body.Close()

	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("GETリクエスト作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	return req, nil
}

// doFetchDocument は一度のHTTP GETリクエストとHTML解析を実行します。
func (c *Client) doFetchDocument(ctx context.Context, url string) (*Page, error) {
	req, err := c.newRequest(ctx, url)
	if err != nil {
		return nil, retry.Permanent(err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストに失敗しました (ネットワーク/接続エラー): %w", err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("HTML解析に失敗しました: %w", err)
	}

	finalURL := url
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
		doc.Url = resp.Request.URL
	}

	return &Page{URL: finalURL, Document: doc}, nil
}

// checkResponse はステータスコードを評価し、5xxはリトライ対象、それ以外の非2xxは
// NonRetryableHTTPError を返します。
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize+1))

	if resp.StatusCode >= 500 && resp.StatusCode <= 599 {
		return fmt.Errorf("HTTPステータスコードエラー (5xx リトライ対象): %d, 詳細: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return &NonRetryableHTTPError{StatusCode: resp.StatusCode, Body: body}
}

// IsNonRetryableError は与えられたエラーが非リトライ対象のHTTPエラーであるかを判断します。
func IsNonRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var nonRetryable *NonRetryableHTTPError
	return errors.As(err, &nonRetryable)
}

// isRetryableError は retry.ShouldRetryFunc を満たします。
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return !IsNonRetryableError(err)
}

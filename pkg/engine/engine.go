package engine

import (
	"context"
	"errors"
	"net/http"
)

// ----------------------------------------------------------------------
// ブラウザ自動化エンジンの境界 (DIP)
// ----------------------------------------------------------------------

// ErrNoResponse は、ナビゲーションは完了したがレスポンスが観測できなかったことを示します。
var ErrNoResponse = errors.New("レスポンスを受信できませんでした")

// Property は、属性を持つ要素から読み出すプロパティを表します。
// Attr は要素の選択に使う属性名、Path は読み出すDOMプロパティのドット区切りパスです
// (例: "src", "dataset.src")。
type Property struct {
	Attr string
	Path string
}

// Response は、ナビゲーションで受信したレスポンスのステータスとヘッダーです。
// URL はリダイレクト後の最終URLです。
type Response struct {
	URL    string
	Status int
	Header http.Header
}

// ContentType は content-type ヘッダーの値を返します。
func (r *Response) ContentType() string {
	if r == nil || r.Header == nil {
		return ""
	}
	return r.Header.Get("Content-Type")
}

// ContentLength は content-length ヘッダーの生の値と、その有無を返します。
func (r *Response) ContentLength() (string, bool) {
	if r == nil || r.Header == nil {
		return "", false
	}
	values, ok := r.Header[http.CanonicalHeaderKey("Content-Length")]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// Session は、単一のナビゲーションコンテキストです。
// 対象ページの読み込みと、各候補URLへの逐次ナビゲーションの両方に同じコンテキストを使います。
// 並行呼び出しは想定しません。
type Session interface {
	// Open は、URLへナビゲートしドキュメントの読み込み完了を待ちます。
	Open(ctx context.Context, url string) error
	// Query は、読み込み済みドキュメントから prop.Attr を持つ要素を選択し、
	// 各要素の prop.Path を文字列として返します。
	Query(ctx context.Context, prop Property) ([]string, error)
	// Fetch は、URLへナビゲートし受信したレスポンスを返します。
	// 通信・ナビゲーションの失敗はエラーとして返されます。
	Fetch(ctx context.Context, url string) (*Response, error)
	// Close は、コンテキストを破棄します。
	Close() error
}

// Engine は、Session を生成する機能を提供します。
type Engine interface {
	NewSession(ctx context.Context) (Session, error)
	Close() error
}

package browser

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/shouni/go-image-audit/pkg/engine"
)

const (
	// DefaultLoadTimeout は、Open がドキュメント読み込みを待つ既定の上限です。
	DefaultLoadTimeout = 60 * time.Second
)

// queryPropertiesJS は、属性を持つ要素を選択し、各要素のプロパティ値を文字列で返します。
// プロパティが存在しない要素は空文字列になります。
const queryPropertiesJS = `(attr, path) => Array.from(document.querySelectorAll('[' + attr + ']'), (el) => {
	const v = path.split('.').reduce((o, k) => (o == null ? o : o[k]), el);
	return v == null ? '' : String(v);
})`

// Options は、ヘッドレスブラウザの起動設定です。
type Options struct {
	// Bin は Chromium 実行ファイルのパスです。空の場合は launcher が自動で取得します。
	Bin string
	// ShowBrowser が true の場合、ヘッドレスモードを無効にします。
	ShowBrowser bool
}

// Engine は Rod が管理するヘッドレスChromiumです。NewEngine で生成し、使用後に Close を呼びます。
type Engine struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
}

// NewEngine は、ヘッドレスChromiumを起動して接続します。
func NewEngine(ctx context.Context, opts Options) (*Engine, error) {
	l := launcher.New().
		Context(ctx).
		Headless(!opts.ShowBrowser).
		Set("disable-gpu").
		Set("no-sandbox").
		Set("disable-dev-shm-usage")
	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("ヘッドレスブラウザの起動に失敗しました: %w", err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("ヘッドレスブラウザへの接続に失敗しました: %w", err)
	}

	return &Engine{browser: b, launcher: l}, nil
}

// NewSession は、ステルス設定を適用したタブを一つ開きます。
func (e *Engine) NewSession(ctx context.Context) (engine.Session, error) {
	page, err := stealth.Page(e.browser)
	if err != nil {
		return nil, fmt.Errorf("タブの作成に失敗しました: %w", err)
	}
	return &Session{page: page}, nil
}

// Close はブラウザプロセスを終了します。
func (e *Engine) Close() error {
	err := e.browser.Close()
	e.launcher.Kill()
	return err
}

// Session は、単一のタブをナビゲーションコンテキストとして扱います。
type Session struct {
	page *rod.Page
}

// Open は、URLへナビゲートし load イベントまで待機します。
func (s *Session) Open(ctx context.Context, url string) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultLoadTimeout)
		defer cancel()
	}

	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("%s へのナビゲーションに失敗しました: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("%s の読み込み待機に失敗しました: %w", url, err)
	}
	return nil
}

// Query は、読み込み済みドキュメント内でプロパティ値を評価します。
func (s *Session) Query(ctx context.Context, prop engine.Property) ([]string, error) {
	res, err := s.page.Context(ctx).Eval(queryPropertiesJS, prop.Attr, prop.Path)
	if err != nil {
		return nil, fmt.Errorf("[%s] の評価に失敗しました: %w", prop.Attr, err)
	}

	items := res.Value.Arr()
	values := make([]string, 0, len(items))
	for _, item := range items {
		values = append(values, item.Str())
	}
	return values, nil
}

// Fetch は、同じタブでURLへナビゲートし、メインフレームのドキュメントレスポンスを返します。
// フラグメントのみが異なるURLなど、同一ドキュメント内のナビゲーションではレスポンスが発生しないため、
// 待機せずに engine.ErrNoResponse を返します。
func (s *Session) Fetch(ctx context.Context, url string) (*engine.Response, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p := s.page.Context(ctx)

	var received *proto.NetworkResponseReceived
	wait := p.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type != proto.NetworkResourceTypeDocument || e.FrameID != s.page.FrameID {
			return false
		}
		received = e
		return true
	})

	// 購読を解除してから戻る
	abandon := func() {
		cancel()
		wait()
	}

	_ = proto.PageStopLoading{}.Call(p)
	nav, err := proto.PageNavigate{URL: url}.Call(p)
	if err != nil {
		abandon()
		return nil, fmt.Errorf("%s へのナビゲーションに失敗しました: %w", url, err)
	}
	if nav.ErrorText != "" {
		abandon()
		return nil, fmt.Errorf("%s へのナビゲーションに失敗しました: %s", url, nav.ErrorText)
	}
	if nav.LoaderID == "" {
		abandon()
		return nil, fmt.Errorf("%s: %w", url, engine.ErrNoResponse)
	}
	wait()

	if received == nil {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s のレスポンス待機に失敗しました: %w", url, err)
		}
		return nil, fmt.Errorf("%s: %w", url, engine.ErrNoResponse)
	}

	return toResponse(received.Response), nil
}

// toResponse は CDP のレスポンスを engine.Response へ変換します。
// CDP のヘッダー名は HTTP/2 では小文字になるため、http.Header で正規化します。
func toResponse(r *proto.NetworkResponse) *engine.Response {
	header := http.Header{}
	for name, value := range r.Headers {
		header.Add(name, value.Str())
	}
	return &engine.Response{
		URL:    r.URL,
		Status: r.Status,
		Header: header,
	}
}

// Close はタブを閉じます。
func (s *Session) Close() error {
	return s.page.Close()
}

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shouni/go-image-audit/pkg/audit"
	"github.com/shouni/go-image-audit/pkg/candidate"
	"github.com/shouni/go-image-audit/pkg/engine"
	"github.com/shouni/go-image-audit/pkg/extract"
	"github.com/shouni/go-image-audit/pkg/retry"
	"github.com/shouni/go-image-audit/pkg/urlcheck"
)

// Config は一回の監査の入力です。
type Config struct {
	URL    string
	Filter string

	// PageTimeout は対象ページの読み込み一回あたりの上限です。
	PageTimeout time.Duration
	// FetchTimeout は候補一件の取得の上限です。
	FetchTimeout time.Duration
	// Retry は対象ページ読み込みのリトライ設定です。
	Retry retry.Config

	Logger logrus.FieldLogger
}

// ValidateTarget は、対象ページURLが絶対URLとして妥当かを検証します。
func ValidateTarget(rawURL string) error {
	if !urlcheck.IsValid(rawURL) {
		return fmt.Errorf("%w: %q は有効なURLではありません", audit.ErrInvalidURL, rawURL)
	}
	return nil
}

// Run は、対象ページの読み込みから集計結果の出力までを実行します。
//  1. 対象URLの検証
//  2. ページの読み込み (リトライ付き)
//  3. 候補の抽出 → 重複除去 → フィルター
//  4. 候補の逐次監査と結果の出力
//
// 実行を中断すべきエラーはそのまま返します。Reporter.Fatal の呼び出しは呼び出し側の責務です。
func Run(ctx context.Context, cfg Config, eng engine.Engine, reporter audit.Reporter) (*audit.Result, error) {
	if err := ValidateTarget(cfg.URL); err != nil {
		return nil, err
	}

	reporter.Info(fmt.Sprintf("%s の候補画像を解析しています", cfg.URL))

	session, err := eng.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", audit.ErrEngine, err)
	}
	defer session.Close()

	if err := openPage(ctx, cfg, session); err != nil {
		if ctx.Err() != nil {
			// 中断はエンジンの失敗として扱わない
			return nil, fmt.Errorf("%s の読み込みを中断しました: %w", cfg.URL, err)
		}
		return nil, fmt.Errorf("%w: %s から有効なレスポンスを得られず解析できません: %w", audit.ErrEngine, cfg.URL, err)
	}

	images, err := collectCandidates(ctx, cfg, session, reporter)
	if err != nil {
		return nil, err
	}

	opts := []audit.Option{audit.WithFetchTimeout(cfg.FetchTimeout)}
	if cfg.Logger != nil {
		opts = append(opts, audit.WithLogger(cfg.Logger))
	}
	auditor, err := audit.NewAuditor(session, reporter, opts...)
	if err != nil {
		return nil, err
	}

	result, err := auditor.Run(ctx, images)
	if result != nil {
		reporter.ShowResults(result.Summary())
	}
	return result, err
}

// openPage は対象ページを開きます。一回ごとに PageTimeout を適用します。
func openPage(ctx context.Context, cfg Config, session engine.Session) error {
	return retry.Do(ctx, cfg.Retry, fmt.Sprintf("URL(%s)の読み込み", cfg.URL), func() error {
		openCtx := ctx
		if cfg.PageTimeout > 0 {
			var cancel context.CancelFunc
			openCtx, cancel = context.WithTimeout(ctx, cfg.PageTimeout)
			defer cancel()
		}
		return session.Open(openCtx, cfg.URL)
	}, retry.Always)
}

// collectCandidates は候補を抽出・重複除去・フィルターし、件数を Reporter に通知します。
func collectCandidates(ctx context.Context, cfg Config, session engine.Session, reporter audit.Reporter) ([]string, error) {
	extractor, err := extract.NewExtractor(session)
	if err != nil {
		return nil, err
	}

	all, err := extractor.Candidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", audit.ErrEngine, err)
	}
	unique := candidate.Dedup(all)

	var filteredCount *int
	images := unique
	if cfg.Filter != "" {
		images, err = candidate.Filter(unique, cfg.Filter)
		if err != nil {
			return nil, err
		}
		n := len(images)
		filteredCount = &n
	}

	reporter.AuditInfo(len(all), len(unique), filteredCount)
	return images, nil
}

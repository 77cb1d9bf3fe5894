package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shouni/go-image-audit/pkg/engine"
)

// DefaultFetchTimeout は、候補一件の取得に許す既定の時間です。
const DefaultFetchTimeout = 30 * time.Second

// Fetcher は、候補URLへナビゲートしレスポンスを返す機能です。engine.Session はこれを満たします。
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*engine.Response, error)
}

// Auditor は候補を一件ずつ順番に取得し、画像サイズを記録します。
// 取得は決して並行しません。i+1 件目の取得は i 件目が完了してから始まります。
type Auditor struct {
	fetcher      Fetcher
	reporter     Reporter
	fetchTimeout time.Duration
	logger       logrus.FieldLogger
}

// Option は Auditor の設定を行う関数型です。
type Option func(*Auditor)

// WithFetchTimeout は、候補一件あたりの取得タイムアウトを設定します。0以下は無制限です。
func WithFetchTimeout(d time.Duration) Option {
	return func(a *Auditor) {
		a.fetchTimeout = d
	}
}

// WithLogger は、候補ごとの結果を出力するロガーを設定します。
func WithLogger(logger logrus.FieldLogger) Option {
	return func(a *Auditor) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAuditor は、新しい Auditor を生成します。
func NewAuditor(fetcher Fetcher, reporter Reporter, opts ...Option) (*Auditor, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("audit.NewAuditor: Fetcher cannot be nil")
	}
	if reporter == nil {
		return nil, fmt.Errorf("audit.NewAuditor: Reporter cannot be nil")
	}

	discard := logrus.New()
	discard.SetOutput(io.Discard)

	a := &Auditor{
		fetcher:      fetcher,
		reporter:     reporter,
		fetchTimeout: DefaultFetchTimeout,
		logger:       discard,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Run は候補を順番に監査します。
// 候補が空の場合は ErrNoImagesFound を返し、取得は一切行いません。
// 一件の取得失敗は Reporter.Error に渡して継続します。
// ctx が取り消された場合は、それまでの結果と ctx のエラーを返します。
func (a *Auditor) Run(ctx context.Context, candidates []string) (*Result, error) {
	if len(candidates) == 0 {
		return nil, ErrNoImagesFound
	}

	result := &Result{Outcomes: make([]Outcome, 0, len(candidates))}
	progress := a.reporter.StartProgress(len(candidates))
	defer progress.Finish()

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("監査を中断しました: %w", err)
		}

		progress.Increment()
		outcome := a.auditOne(ctx, candidate)

		if outcome.Kind == OutcomeFailed && ctx.Err() != nil {
			return result, fmt.Errorf("監査を中断しました: %w", ctx.Err())
		}

		result.Outcomes = append(result.Outcomes, outcome)
		a.logOutcome(outcome)
		if outcome.Kind == OutcomeFailed {
			a.reporter.Error(outcome.Err)
		}
	}

	return result, nil
}

// auditOne は候補一件を取得し分類します。取得が終わるまで戻りません。
func (a *Auditor) auditOne(ctx context.Context, candidate string) Outcome {
	fetchCtx := ctx
	if a.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, a.fetchTimeout)
		defer cancel()
	}

	resp, err := a.fetcher.Fetch(fetchCtx, candidate)
	if errors.Is(err, engine.ErrNoResponse) || (err == nil && resp == nil) {
		// 同一ドキュメント内のナビゲーションなど、レスポンスを伴わない候補
		return Outcome{Kind: OutcomeSkipped, Candidate: candidate, Reason: SkipNoResponse}
	}
	if err != nil {
		return Outcome{
			Kind:      OutcomeFailed,
			Candidate: candidate,
			Err:       &FetchError{URL: candidate, Err: err},
		}
	}
	return Classify(candidate, resp)
}

func (a *Auditor) logOutcome(o Outcome) {
	entry := a.logger.WithFields(logrus.Fields{
		"url":     o.Candidate,
		"outcome": o.Kind.String(),
	})
	switch o.Kind {
	case OutcomeRecorded:
		entry.WithField("bytes", o.Record.Size).Debug("画像サイズを記録しました")
	case OutcomeSkipped:
		entry.WithField("reason", string(o.Reason)).Debug("候補をスキップしました")
	}
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	clibase "github.com/shouni/go-cli-base"
	"github.com/spf13/cobra"

	"github.com/shouni/go-image-audit/internal/pipeline"
	"github.com/shouni/go-image-audit/pkg/audit"
	"github.com/shouni/go-image-audit/pkg/browser"
	"github.com/shouni/go-image-audit/pkg/engine"
	"github.com/shouni/go-image-audit/pkg/report"
	"github.com/shouni/go-image-audit/pkg/retry"
	"github.com/shouni/go-image-audit/pkg/static"
)

var (
	auditURL    string
	auditFilter string
)

// newReporter は audit コマンドが使う Console を生成します。
var newReporter = func() *report.Console {
	return report.NewConsole(report.Options{
		Verbose:    clibase.Flags.Verbose,
		NoProgress: Flags.NoProgress,
	})
}

// newEngine は --engine の指定に従ってエンジンを生成します。
func newEngine(ctx context.Context) (engine.Engine, error) {
	switch Flags.Engine {
	case engineBrowser:
		eng, err := browser.NewEngine(ctx, browser.Options{Bin: Flags.ChromeBin, ShowBrowser: Flags.ShowBrowser})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", audit.ErrEngine, err)
		}
		return eng, nil
	case engineStatic:
		return static.NewEngine(seconds(Flags.PageTimeoutSec), 0), nil
	default:
		return nil, fmt.Errorf("%w: 不明なエンジンです: %q (%s または %s を指定してください)", audit.ErrUsage, Flags.Engine, engineBrowser, engineStatic)
	}
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

// runAudit はエンジンの生成から結果の出力までを行います。
// 中断すべきエラーはエンジンを閉じた後に返します。
func runAudit(ctx context.Context, cfg pipeline.Config, reporter *report.Console) error {
	eng, err := newEngine(ctx)
	if err != nil {
		return err
	}

	_, runErr := pipeline.Run(ctx, cfg, eng, reporter)

	if closeErr := eng.Close(); closeErr != nil {
		reporter.Logger().WithError(closeErr).Warn("エンジンの終了に失敗しました")
	}
	return runErr
}

var auditCmd = &cobra.Command{
	Use:   "audit [URL]",
	Short: "Webページが参照する画像のダウンロードサイズを合計します",
	Long: `指定されたURLのページを読み込み、src / data-src / content / href / srcset / data-srcset から
画像の候補URLを抽出し、一件ずつ順番に取得して content-length の合計を表示します。`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reporter := newReporter()

		// 1. 対象URLの決定 (フラグ優先)
		target := auditURL
		if target == "" && len(args) > 0 {
			target = args[0]
		}
		if target == "" {
			_ = cmd.Usage()
			reporter.Fatal(fmt.Errorf("%w: --url で監査対象のURLを指定してください", audit.ErrUsage))
			return nil
		}

		// 2. ブラウザを起動する前に対象URLを検証
		if err := pipeline.ValidateTarget(target); err != nil {
			reporter.Fatal(err)
			return nil
		}

		parent := cmd.Context()
		if parent == nil {
			parent = context.Background()
		}
		ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
		defer stop()

		retryCfg := retry.DefaultConfig()
		if Flags.MaxRetries >= 0 {
			retryCfg.MaxRetries = uint64(Flags.MaxRetries)
		}

		cfg := pipeline.Config{
			URL:          target,
			Filter:       auditFilter,
			PageTimeout:  seconds(Flags.PageTimeoutSec),
			FetchTimeout: seconds(Flags.TimeoutSec),
			Retry:        retryCfg,
			Logger:       reporter.Logger(),
		}

		// 3. 実行。Fatal は os.Exit するため、エンジンを閉じた後に呼び出す
		if err := runAudit(ctx, cfg, reporter); err != nil {
			stop()
			reporter.Fatal(err)
		}
		return nil
	},
}

func init() {
	auditCmd.Flags().StringVarP(&auditURL, "url", "u", "", "監査対象のページURL")
	auditCmd.Flags().StringVarP(&auditFilter, "filter", "f", "", "候補URLを絞り込む正規表現（部分一致）")
}

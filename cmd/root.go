package cmd

import (
	"fmt"
	"log"
	"os"
	"strings"

	clibase "github.com/shouni/go-cli-base"
	"github.com/spf13/cobra"
)

// --- グローバル定数 ---

const (
	appName               = "image-audit"
	defaultTimeoutSec     = 30 // 候補一件あたり
	defaultPageTimeoutSec = 60 // 対象ページの読み込み
	defaultMaxRetries     = 2
	engineEnvKey          = "IMAGE_AUDIT_ENGINE"
	engineBrowser         = "browser"
	engineStatic          = "static"
	defaultEngine         = engineBrowser
)

// --- グローバル変数とフラグ構造体 ---

// AppFlags はこのアプリケーション固有の永続フラグを保持
type AppFlags struct {
	TimeoutSec     int    // --timeout 候補一件の取得タイムアウト
	PageTimeoutSec int    // --page-timeout 対象ページの読み込みタイムアウト
	MaxRetries     int    // --max-retries 対象ページ読み込みのリトライ回数
	Engine         string // --engine browser | static
	ChromeBin      string // --chrome-bin
	ShowBrowser    bool   // --show-browser
	NoProgress     bool   // --no-progress
}

var Flags AppFlags

// addAppPersistentFlags は、アプリケーション固有の永続フラグをルートコマンドに追加します。
func addAppPersistentFlags(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().IntVar(&Flags.TimeoutSec, "timeout", defaultTimeoutSec, "候補画像一件あたりの取得タイムアウト（秒）。0で無制限")
	rootCmd.PersistentFlags().IntVar(&Flags.PageTimeoutSec, "page-timeout", defaultPageTimeoutSec, "対象ページの読み込みタイムアウト（秒）")
	rootCmd.PersistentFlags().IntVar(&Flags.MaxRetries, "max-retries", defaultMaxRetries, "対象ページ読み込みのリトライ最大回数")
	rootCmd.PersistentFlags().StringVar(&Flags.Engine, "engine", defaultEngine, fmt.Sprintf("ページの読み込み方法 (%s | %s)。環境変数 %s でも指定可能", engineBrowser, engineStatic, engineEnvKey))
	rootCmd.PersistentFlags().StringVar(&Flags.ChromeBin, "chrome-bin", "", "Chromium 実行ファイルのパス（未指定時は自動取得）")
	rootCmd.PersistentFlags().BoolVar(&Flags.ShowBrowser, "show-browser", false, "ヘッドレスモードを無効にしてブラウザを表示する")
	rootCmd.PersistentFlags().BoolVar(&Flags.NoProgress, "no-progress", false, "進捗バーを表示しない")
}

// initAppPreRunE は、clibase共通処理の後に実行される、アプリケーション固有のPersistentPreRunEです。
func initAppPreRunE(cmd *cobra.Command, args []string) error {
	if !cmd.Flags().Changed("engine") {
		if env := strings.TrimSpace(os.Getenv(engineEnvKey)); env != "" {
			Flags.Engine = env
		}
	}
	Flags.Engine = strings.ToLower(Flags.Engine)

	if clibase.Flags.Verbose {
		log.Printf("エンジン: %s, 取得タイムアウト: %d秒, ページ読み込みタイムアウト: %d秒, リトライ回数: %d",
			Flags.Engine, Flags.TimeoutSec, Flags.PageTimeoutSec, Flags.MaxRetries)
	}
	return nil
}

// --- エントリポイント ---

// Execute は、clibase を使ってルートコマンドを組み立てて実行します。
func Execute() {
	clibase.Execute(
		appName,
		addAppPersistentFlags,
		initAppPreRunE,
		auditCmd,
	)
}

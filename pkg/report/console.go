package report

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"

	"github.com/shouni/go-image-audit/pkg/audit"
)

const progressDescription = "画像サイズを監査中"

// Options は Console の出力設定です。
type Options struct {
	Out        io.Writer // 結果の出力先 (既定: os.Stdout)
	Err        io.Writer // ログと進捗バーの出力先 (既定: os.Stderr)
	Verbose    bool
	NoProgress bool
	NoColor    bool
	// Exit は Fatal から呼ばれます (既定: os.Exit)。
	Exit func(code int)
}

// Console は、端末向けの audit.Reporter 実装です。
// 進捗バーの表示中に出力されるログは、バーを一度消してから書き込み、書き込み後に再描画します。
type Console struct {
	out         io.Writer
	errOut      io.Writer
	logger      *logrus.Logger
	interactive bool
	exit        func(code int)

	info    *color.Color
	success *color.Color
	warn    *color.Color
	fatal   *color.Color

	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

var _ audit.Reporter = (*Console)(nil)

// NewConsole は新しい Console を生成します。
func NewConsole(opts Options) *Console {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}

	c := &Console{
		out:         opts.Out,
		errOut:      opts.Err,
		interactive: !opts.NoProgress && isTerminal(opts.Err),
		exit:        opts.Exit,
		info:        color.New(color.FgCyan),
		success:     color.New(color.FgGreen),
		warn:        color.New(color.FgYellow),
		fatal:       color.New(color.FgRed, color.Bold),
	}
	if opts.NoColor {
		for _, col := range []*color.Color{c.info, c.success, c.warn, c.fatal} {
			col.DisableColor()
		}
	}

	c.logger = logrus.New()
	c.logger.SetOutput(suspendingWriter{c: c, w: opts.Err})
	c.logger.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
		DisableColors:    opts.NoColor || !isTerminal(opts.Err),
	})
	c.logger.SetLevel(logrus.InfoLevel)
	if opts.Verbose {
		c.logger.SetLevel(logrus.DebugLevel)
	}

	return c
}

// isTerminal は w が端末に接続された *os.File かどうかを返します。
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Logger は、進捗バーと協調するロガーを返します。
func (c *Console) Logger() *logrus.Logger {
	return c.logger
}

// suspend は、進捗バーを消去した状態で fn を実行し、その後バーを再描画します。
func (c *Console) suspend(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bar != nil {
		_ = c.bar.Clear()
	}
	fn()
	if c.bar != nil {
		_ = c.bar.RenderBlank()
	}
}

// suspendingWriter は書き込みのたびに Console.suspend を通すための io.Writer です。
type suspendingWriter struct {
	c *Console
	w io.Writer
}

func (s suspendingWriter) Write(p []byte) (n int, err error) {
	s.c.suspend(func() {
		n, err = s.w.Write(p)
	})
	return n, err
}

func (c *Console) println(col *color.Color, icon, message string) {
	c.suspend(func() {
		if icon == "" {
			fmt.Fprintln(c.out, message)
			return
		}
		col.Fprint(c.out, icon)
		fmt.Fprintln(c.out, " "+message)
	})
}

// Info は情報メッセージを出力します。
func (c *Console) Info(message string) {
	c.println(c.info, "ℹ", message)
}

// AuditInfo は抽出した候補の件数を出力します。
func (c *Console) AuditInfo(total, unique int, filtered *int) {
	c.println(nil, "", "")
	c.println(c.success, "✔", "検出結果:")
	c.println(c.info, "ℹ", fmt.Sprintf("- 候補画像 %d 件", total))
	c.println(c.info, "ℹ", fmt.Sprintf("- 重複を除いた候補画像 %d 件", unique))
	if filtered != nil {
		c.println(c.info, "ℹ", fmt.Sprintf("- フィルターに一致した候補画像 %d 件", *filtered))
	}
	c.println(nil, "", "")
	c.println(nil, "", "📸  画像サイズを監査しています")
	c.println(nil, "", "")
}

// StartProgress は進捗バーを開始します。端末以外への出力では何も描画しません。
func (c *Console) StartProgress(max int) audit.Progress {
	if !c.interactive {
		return &progress{console: c}
	}

	bar := progressbar.NewOptions(max,
		progressbar.OptionSetWriter(c.errOut),
		progressbar.OptionSetDescription(progressDescription),
		progressbar.OptionShowCount(),
		progressbar.OptionFullWidth(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)

	c.mu.Lock()
	c.bar = bar
	c.mu.Unlock()

	return &progress{console: c, bar: bar}
}

// Error は監査を継続できるエラーを出力します。
func (c *Console) Error(err error) {
	c.logger.Error(err.Error())
}

// Fatal はエラーを出力し、エラーの分類に応じた終了コードでプロセスを終了します。
func (c *Console) Fatal(err error) {
	c.stopBar(false)
	c.suspend(func() {
		c.fatal.Fprint(c.errOut, "✖")
		fmt.Fprintln(c.errOut, " "+err.Error())
	})
	c.exit(audit.ExitCode(err))
}

// ShowResults は監査結果を出力します。
func (c *Console) ShowResults(summary audit.Summary) {
	c.println(nil, "", "📸  監査結果")
	c.println(nil, "", "")
	c.println(c.success, "✔", fmt.Sprintf("画像の合計数: %d", summary.Count))
	c.println(c.success, "✔", fmt.Sprintf("合計サイズ: %smb (%d bytes)", FormatMB(summary.TotalSizeMB()), summary.TotalBytes))
	if summary.Unmeasured > 0 {
		c.println(c.warn, "⚠", fmt.Sprintf("content-length の無い画像 %d 件は合計から除外しました", summary.Unmeasured))
	}
}

// FormatMB は、末尾のゼロを付けずにメガバイト値を整形します (例: 0.01, 1, 2.35)。
func FormatMB(mb float64) string {
	return strconv.FormatFloat(mb, 'f', -1, 64)
}

// stopBar は進捗バーを外します。completed が false の場合は完了させずに消去だけ行います。
func (c *Console) stopBar(completed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bar == nil {
		return
	}
	if completed {
		_ = c.bar.Finish()
	} else {
		_ = c.bar.Clear()
	}
	c.bar = nil
}

// progress は audit.Progress の実装です。bar が nil の場合は描画しません。
type progress struct {
	console *Console
	bar     *progressbar.ProgressBar
	done    bool
}

func (p *progress) Increment() {
	if p.bar == nil || p.done {
		return
	}
	p.console.mu.Lock()
	defer p.console.mu.Unlock()
	_ = p.bar.Add(1)
}

func (p *progress) Finish() {
	if p.done {
		return
	}
	p.done = true
	if p.bar != nil {
		p.console.stopBar(true)
	}
	p.console.println(nil, "", "")
}

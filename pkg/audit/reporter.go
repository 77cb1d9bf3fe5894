package audit

// Progress は、StartProgress が返す進捗表示のハンドルです。
type Progress interface {
	// Increment は候補を一件進めます。
	Increment()
	// Finish は進捗表示を終了し、一時停止していたログ出力を再開します。
	Finish()
}

// Reporter は、監査の進捗・エラー・結果を受け取る出力先です。
// 表示方法は実装側がすべて決めます。
type Reporter interface {
	Info(message string)
	// AuditInfo は抽出件数を表示します。filtered はフィルター未指定の場合 nil です。
	AuditInfo(total, unique int, filtered *int)
	StartProgress(max int) Progress
	// Error は監査を継続できるエラーを表示します。
	Error(err error)
	// Fatal はエラーを表示し、ExitCode(err) でプロセスを終了します。戻りません。
	Fatal(err error)
	ShowResults(summary Summary)
}

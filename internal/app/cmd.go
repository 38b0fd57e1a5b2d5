package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker はリソース取り込みと通知の整理を行うワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandSeed は全コレクションを既定データで初期化することを示す。
	CommandSeed Command = "seed"
	// CommandWatch は端末上のビューで定期読み込みの結果を表示することを示す。
	CommandWatch Command = "watch"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "seed":
		return CommandSeed
	case "watch":
		return CommandWatch
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}

// watchViewArg はwatchコマンドの表示対象を返す。省略時はフィード。
func watchViewArg(args []string) string {
	if len(args) < 2 || args[1] == "" {
		return viewFeed
	}
	return args[1]
}

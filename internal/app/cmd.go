package app

import (
	"fmt"
	"io"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバー（REST + WebSocket）モードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は期限切れルームを定期削除するワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandHelp はサブコマンドの一覧を表示することを示す。
	CommandHelp Command = "help"
)

// commands はサブコマンドと説明の一覧。usageの表示順を兼ねる。
var commands = []struct {
	cmd         Command
	description string
}{
	{CommandServe, "クイズ生成・ルーム・リアルタイム配信のAPIサーバーを起動する（デフォルト）"},
	{CommandWorker, "ROOM_TTLを過ぎたルームを定期的に削除する"},
	{CommandMigrate, "未適用のマイグレーションをすべて適用する"},
	{CommandHealthcheck, "起動中のAPIサーバーの/healthを確認する"},
	{CommandHelp, "このヘルプを表示する"},
}

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "-h", "--help":
		return CommandHelp
	}
	for _, c := range commands {
		if string(c.cmd) == args[0] {
			return c.cmd
		}
	}
	return CommandServe
}

// writeUsage はサブコマンドの一覧をwに書き込む。
func writeUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: quizroom <command>")
	fmt.Fprintln(w)
	for _, c := range commands {
		fmt.Fprintf(w, "  %-12s %s\n", c.cmd, c.description)
	}
}

// Command quizroom はクイズ生成APIとマルチプレイヤールームのサーバー。
//
// サブコマンド:
//
//	serve       APIサーバーを起動する（デフォルト）
//	worker      期限切れルームのクリーンアップを定期実行する
//	migrate     データベースマイグレーションを適用する
//	healthcheck /healthを呼び出して終了コードで結果を返す
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/quizroom/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "quizroom: %v\n", err)
		os.Exit(1)
	}
}

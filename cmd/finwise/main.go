// Command finwise は認証APIサーバー、クリーンアップワーカー、マイグレーションを起動する。
//
// 使い方:
//
//	finwise [serve|worker|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/finwise/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "finwise: %v\n", err)
		os.Exit(1)
	}
}

// Command taskmaster はタスク管理Webアプリケーションを起動する。
//
// 使い方:
//
//	taskmaster [serve|migrate|reset|seed|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/taskmaster/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

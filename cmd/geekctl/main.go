// Package main はgeekctlのエントリーポイント。
package main

import (
	"os"

	"github.com/hitoshi/geekcms/internal/cli"
)

// version はビルド時に -ldflags で設定する。
var version = "dev"

func main() {
	cli.SetVersion(version)
	os.Exit(cli.Execute())
}

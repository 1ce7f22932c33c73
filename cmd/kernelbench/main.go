// cmd/kernelbench/main.go
package main

import (
	kernelbench "github.com/mwiater/kernelbench/internal/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	setVersionInfo = kernelbench.SetVersionInfo
	executeCmd     = kernelbench.Execute
)

// main injects build information and hands control to the cobra root command.
func main() {
	setVersionInfo(version, commit, date)
	executeCmd()
}

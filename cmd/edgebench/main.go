// cmd/edgebench/main.go
package main

import (
	edgebench "github.com/mwiater/edgebench/internal/commands"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	setVersionInfo = edgebench.SetVersionInfo
	executeCmd     = edgebench.Execute
)

// main starts the edgebench CLI by delegating to the cobra root command.
func main() {
	setVersionInfo(version, commit, date)
	executeCmd()
}

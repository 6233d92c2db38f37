// Command ebookimport splits ebook files into draft chapters, as an HTTP
// service, an MCP server, an inbox watcher or a one-shot CLI.
package main

import (
	"fmt"
	"os"

	"github.com/hazyhaar/ebookimport/cmd/ebookimport/commands"
)

// Set by the release build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersion(version, commit, date)

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

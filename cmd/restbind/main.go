package main

import (
	"fmt"
	"os"

	"github.com/goliatone/go-restbind/cmd/restbind/commands"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	root := commands.NewRootCommand(&commands.Options{})
	root.Version = fmt.Sprintf("%s (commit: %s)", version, commit)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

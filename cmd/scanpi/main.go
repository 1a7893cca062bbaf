package main

import (
	"os"

	"github.com/sebastian-xyz/scanpi/cmd/scanpi/commands"
)

var (
	version = "0.1.0"
)

func main() {
	commands.Version = version
	os.Exit(commands.Execute())
}

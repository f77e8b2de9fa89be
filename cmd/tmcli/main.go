package main

import (
	"os"

	"github.com/jkorri/tmcli/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}

package main

import (
	"context"
	"os"

	"github.com/YoshitsuguKoike/deeflow/internal/interface/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background()))
}

package main

import (
	"os"

	"github.com/menta2k/image-redactor/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}

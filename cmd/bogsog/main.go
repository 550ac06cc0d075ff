package main

import (
	"os"

	"github.com/arkivsog/bogsog/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}

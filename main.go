package main

import (
	"os"

	"github.com/fzft/go-avocado/cmd"
)

func main() {
	if err := cmd.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

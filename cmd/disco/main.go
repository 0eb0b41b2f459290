package main

import (
	"os"

	"github.com/TheusHen/disco/cmd/disco/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}

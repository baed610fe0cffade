package main

import (
	"os"

	"planes_maxsum/cmd/planesim/commands"
)

var version = "dev"

func main() {
	if err := commands.Execute(version); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"os"

	"github.com/coopfin/bankintake/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

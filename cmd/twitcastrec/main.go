package main

import (
	"os"

	"github.com/tomasbasham/twitcastrec/internal/cmd"
)

func main() {
	command := cmd.NewRootCommand()
	err := command.Execute()
	os.Exit(cmd.ExitCode(err))
}

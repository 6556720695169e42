package main

import (
	"fmt"
	"os"

	"github.com/hashicorp/cli"

	"github.com/deepaksharma/otlp-span-encoder/internal/command"
)

func main() {

	commands := map[string]cli.CommandFactory{
		"version":  command.NewCommand(command.NewVersionCommand()),
		"generate": command.NewCommand(command.NewGenerateCommand()),
		"inspect":  command.NewCommand(command.NewInspectCommand()),
	}

	c := &cli.CLI{
		Name:     "spanenc",
		Version:  command.Version,
		Args:     os.Args[1:],
		Commands: commands,
	}

	exitCode, err := c.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error executing CLI: %s\n", err.Error())
	}

	os.Exit(exitCode)
}

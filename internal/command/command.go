// Package command holds the spanenc subcommands.
package command

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hashicorp/cli"
	"github.com/spf13/pflag"
)

// Definition is implemented by each subcommand.
type Definition interface {
	Synopsis() string
	Flags() *pflag.FlagSet
	Execute(ctx context.Context, args []string) error
}

// NewCommand wraps a Definition into a cli.CommandFactory.
func NewCommand(definition Definition) cli.CommandFactory {
	return func() (cli.Command, error) {
		return &command{Definition: definition, stderr: os.Stderr}, nil
	}
}

type command struct {
	Definition
	stderr io.Writer
}

func (c *command) Help() string {
	sb := strings.Builder{}

	sb.WriteString(c.Synopsis())
	sb.WriteString("\n\n")

	sb.WriteString("Flags:\n\n")

	sb.WriteString(c.Flags().FlagUsagesWrapped(80))

	return sb.String()
}

func (c *command) Run(args []string) int {
	ctx, stop := withCancelSignals(context.Background())
	defer stop()

	flags := c.Flags()

	if err := flags.Parse(args); err != nil {
		fmt.Fprintln(c.stderr, err.Error())
		return 1
	}

	if err := c.Execute(ctx, flags.Args()); err != nil {
		fmt.Fprintln(c.stderr, err.Error())
		return 1
	}

	return 0
}

func withCancelSignals(ctx context.Context) (context.Context, func()) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}

package command

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
)

// Version is set at build time with -ldflags "-X ...command.Version=v1.2.3".
var Version = "dev"

type VersionCommand struct {
	out io.Writer
}

func NewVersionCommand() *VersionCommand {
	return &VersionCommand{out: os.Stdout}
}

func (c *VersionCommand) Synopsis() string {
	return "Prints the version"
}

func (c *VersionCommand) Flags() *pflag.FlagSet {
	return pflag.NewFlagSet("version", pflag.ContinueOnError)
}

func (c *VersionCommand) Execute(_ context.Context, _ []string) error {
	_, err := fmt.Fprintf(c.out, "spanenc %s\n", Version)
	return err
}

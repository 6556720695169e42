package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"
	"go.opentelemetry.io/collector/pdata/ptrace"
)

type InspectCommand struct {
	out   io.Writer
	flags *pflag.FlagSet

	json bool
}

func NewInspectCommand() *InspectCommand {
	return &InspectCommand{out: os.Stdout}
}

func (c *InspectCommand) Synopsis() string {
	return "Decodes an encoded OTLP trace request file and prints a summary"
}

func (c *InspectCommand) Flags() *pflag.FlagSet {
	if c.flags != nil {
		return c.flags
	}
	flags := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	flags.BoolVar(&c.json, "json", false, "print the decoded request as OTLP JSON")
	c.flags = flags
	return flags
}

func (c *InspectCommand) Execute(_ context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("inspect takes exactly one payload file")
	}

	content, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}

	td, err := (&ptrace.ProtoUnmarshaler{}).UnmarshalTraces(content)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", args[0], err)
	}

	if c.json {
		out, err := (&ptrace.JSONMarshaler{}).MarshalTraces(td)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(c.out, string(out))
		return err
	}

	s := summarize(td)
	s.bytes = len(content)
	return writeSummary(c.out, s)
}

type scopeSummary struct {
	name    string
	version string
	spans   int
}

type summary struct {
	bytes             int
	resources         int
	scopes            []scopeSummary
	spans             int
	errors            int
	attributes        int
	droppedAttributes uint64
	droppedEvents     uint64
	droppedLinks      uint64
}

func summarize(td ptrace.Traces) summary {
	s := summary{resources: td.ResourceSpans().Len()}

	for i := 0; i < td.ResourceSpans().Len(); i++ {
		sss := td.ResourceSpans().At(i).ScopeSpans()
		for j := 0; j < sss.Len(); j++ {
			ss := sss.At(j)
			spans := ss.Spans()
			s.scopes = append(s.scopes, scopeSummary{
				name:    ss.Scope().Name(),
				version: ss.Scope().Version(),
				spans:   spans.Len(),
			})
			for k := 0; k < spans.Len(); k++ {
				span := spans.At(k)
				s.spans++
				s.attributes += span.Attributes().Len()
				if span.Status().Code() == ptrace.StatusCodeError {
					s.errors++
				}
				s.droppedAttributes += uint64(span.DroppedAttributesCount())
				s.droppedEvents += uint64(span.DroppedEventsCount())
				s.droppedLinks += uint64(span.DroppedLinksCount())
			}
		}
	}
	return s
}

func writeSummary(out io.Writer, s summary) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "bytes:\t%d\n", s.bytes)
	fmt.Fprintf(w, "resources:\t%d\n", s.resources)
	fmt.Fprintf(w, "scopes:\t%d\n", len(s.scopes))
	fmt.Fprintf(w, "spans:\t%d\n", s.spans)
	fmt.Fprintf(w, "error spans:\t%d\n", s.errors)
	fmt.Fprintf(w, "attributes:\t%d\n", s.attributes)
	fmt.Fprintf(w, "dropped attributes:\t%d\n", s.droppedAttributes)
	fmt.Fprintf(w, "dropped events:\t%d\n", s.droppedEvents)
	fmt.Fprintf(w, "dropped links:\t%d\n", s.droppedLinks)
	for _, sc := range s.scopes {
		fmt.Fprintf(w, "  scope %q\t%s\t%d spans\n", sc.name, sc.version, sc.spans)
	}
	return w.Flush()
}

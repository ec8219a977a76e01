// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

// Command represents a CLI command or subcommand.
type Command struct {
	// Name is the command name as typed by the user.
	Name string

	// Summary is a one-line description shown in the parent's help listing.
	Summary string

	// Description is shown at the top of the command's own help.
	Description string

	// Usage overrides the synthesized usage line.
	Usage string

	// Examples are shown in help output after the flags.
	Examples []Example

	// Flags returns the command's flag set. Called on each use. Nil
	// means the command accepts no flags.
	Flags func() *pflag.FlagSet

	// Subcommands are dispatched by the first positional argument.
	Subcommands []*Command

	// Hidden commands are dispatched normally but omitted from help.
	Hidden bool

	// Run executes the command with the positional arguments left after
	// flag parsing. When Subcommands is also set, Run is called only when
	// no positional arguments remain.
	Run func(args []string) error

	// Output receives help text. Defaults to os.Stderr.
	Output io.Writer

	parent *Command
}

// Example is a usage example shown in help output.
type Example struct {
	Description string
	Command     string
}

func (c *Command) output() io.Writer {
	for command := c; command != nil; command = command.parent {
		if command.Output != nil {
			return command.Output
		}
	}
	return os.Stderr
}

// Execute parses args and dispatches to a subcommand or Run.
func (c *Command) Execute(args []string) error {
	if len(args) > 0 && isHelpFlag(args[0]) {
		c.PrintHelp(c.output())
		return nil
	}

	args, err := c.parseFlags(args)
	if errors.Is(err, pflag.ErrHelp) {
		c.PrintHelp(c.output())
		return nil
	}
	if err != nil {
		return err
	}

	if len(c.Subcommands) > 0 && len(args) > 0 {
		return c.dispatch(args[0], args[1:])
	}
	if c.Run != nil {
		return c.Run(args)
	}

	c.PrintHelp(c.output())
	if len(c.Subcommands) > 0 {
		return errors.New("command required")
	}
	return fmt.Errorf("no action defined for %q", c.fullName())
}

// parseFlags returns the positional arguments left after the
// command's flags. A command with subcommands stops at the first
// positional so the subcommand's flags reach the subcommand.
func (c *Command) parseFlags(args []string) ([]string, error) {
	if c.Flags == nil {
		return args, nil
	}
	flagSet := c.Flags()
	flagSet.SetOutput(io.Discard)
	flagSet.SetInterspersed(len(c.Subcommands) == 0)
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		message := err.Error()
		if strings.Contains(message, "unknown") {
			if suggestion := suggestFlag(args, c.Flags()); suggestion != "" {
				message += " (did you mean " + suggestion + "?)"
			}
		}
		return nil, c.usageError(message)
	}
	return flagSet.Args(), nil
}

func (c *Command) dispatch(name string, args []string) error {
	if isHelpFlag(name) {
		c.PrintHelp(c.output())
		return nil
	}
	for _, sub := range c.Subcommands {
		if sub.Name == name {
			sub.parent = c
			return sub.Execute(args)
		}
	}
	message := fmt.Sprintf("unknown command %q", name)
	if suggestion := suggestCommand(name, c.Subcommands); suggestion != "" {
		message += fmt.Sprintf(" (did you mean %q?)", suggestion)
	}
	return c.usageError(message)
}

func (c *Command) usageError(message string) error {
	return fmt.Errorf("%s\n\nRun '%s --help' for usage.", message, c.fullName())
}

// PrintHelp writes the command's help to w.
func (c *Command) PrintHelp(w io.Writer) {
	name := c.fullName()

	if intro := cmp.Or(c.Description, c.Summary); intro != "" {
		fmt.Fprintln(w, intro)
		fmt.Fprintln(w)
	}

	usage := c.Usage
	if usage == "" {
		usage = name + " [flags]"
		if len(c.Subcommands) > 0 {
			usage += " <command>"
		}
	}
	fmt.Fprintf(w, "Usage:\n  %s\n", usage)

	c.writeCommands(w)
	if c.Flags != nil {
		if usages := c.Flags().FlagUsages(); usages != "" {
			fmt.Fprintf(w, "\nFlags:\n%s", usages)
		}
	}
	c.writeExamples(w)

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nRun '%s <command> --help' for details on a command.\n", name)
	}
}

func (c *Command) writeCommands(w io.Writer) {
	if len(c.Subcommands) == 0 {
		return
	}
	fmt.Fprintln(w, "\nCommands:")
	table := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	for _, sub := range c.Subcommands {
		if !sub.Hidden {
			fmt.Fprintf(table, "  %s\t%s\n", sub.Name, sub.Summary)
		}
	}
	table.Flush()
}

func (c *Command) writeExamples(w io.Writer) {
	if len(c.Examples) == 0 {
		return
	}
	fmt.Fprintln(w, "\nExamples:")
	for i, example := range c.Examples {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if example.Description != "" {
			fmt.Fprintf(w, "  # %s\n", example.Description)
		}
		fmt.Fprintf(w, "  %s\n", example.Command)
	}
}

// fullName returns the complete command path (e.g., "ping status").
func (c *Command) fullName() string {
	if c.parent == nil {
		return c.Name
	}
	return c.parent.fullName() + " " + c.Name
}

func isHelpFlag(arg string) bool {
	return arg == "-h" || arg == "--help" || arg == "help"
}

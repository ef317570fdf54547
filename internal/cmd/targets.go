package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/templates"

	"github.com/tomasbasham/twitcastrec/internal/target"
)

// TargetsOptions defines the options shared by the add/remove/list/clear
// subcommands, all of which operate on the same on-disk targets file
// (§6.1, §6.3).
type TargetsOptions struct {
	Raw string

	iooption.IOStreams
}

// NewTargetsOptions provides an initialised TargetsOptions instance.
func NewTargetsOptions(streams iooption.IOStreams) *TargetsOptions {
	return &TargetsOptions{
		IOStreams: streams,
	}
}

func (o *TargetsOptions) Complete(args []string) error {
	if len(args) > 0 {
		o.Raw = args[0]
	}
	return nil
}

// NewAddCommand creates the `add` subcommand.
func NewAddCommand(o *TargetsOptions) *cobra.Command {
	return &cobra.Command{
		Use:                   "add <target>",
		DisableFlagsInUseLine: true,
		Short:                 "Add a broadcaster to the watch list",
		Long:                  templates.LongDesc(`Normalizes <target> (a bare username, a c:/g:/ig:/f:/tw: prefixed id, or a full URL) and adds it to the targets file.`),
		Args:                  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(args); err != nil {
				return err
			}
			return runAdd(o)
		},
	}
}

func runAdd(o *TargetsOptions) error {
	t, err := target.Normalize(o.Raw)
	if err != nil {
		fmt.Fprintf(o.ErrOut, "invalid target %q: %v\n", o.Raw, err)
		return exitError(ExitInternalError)
	}

	f, err := target.Load(targetsPath)
	if err != nil {
		fmt.Fprintf(o.ErrOut, "load targets: %v\n", err)
		return exitError(ExitInternalError)
	}

	urls := f.URLs
	for _, u := range urls {
		if u == t.CanonicalURL {
			fmt.Fprintf(o.Out, "%s already tracked\n", t.CanonicalURL)
			return nil
		}
	}
	urls = append(urls, t.CanonicalURL)

	if err := target.Save(targetsPath, urls); err != nil {
		fmt.Fprintf(o.ErrOut, "save targets: %v\n", err)
		return exitError(ExitInternalError)
	}

	fmt.Fprintf(o.Out, "added %s\n", t.CanonicalURL)
	return nil
}

// NewRemoveCommand creates the `remove` subcommand.
func NewRemoveCommand(o *TargetsOptions) *cobra.Command {
	return &cobra.Command{
		Use:                   "remove <target>",
		DisableFlagsInUseLine: true,
		Short:                 "Remove a broadcaster from the watch list",
		Args:                  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(args); err != nil {
				return err
			}
			return runRemove(o)
		},
	}
}

func runRemove(o *TargetsOptions) error {
	t, err := target.Normalize(o.Raw)
	if err != nil {
		fmt.Fprintf(o.ErrOut, "invalid target %q: %v\n", o.Raw, err)
		return exitError(ExitInternalError)
	}

	f, err := target.Load(targetsPath)
	if err != nil {
		fmt.Fprintf(o.ErrOut, "load targets: %v\n", err)
		return exitError(ExitInternalError)
	}

	var kept []string
	for _, u := range f.URLs {
		if u != t.CanonicalURL {
			kept = append(kept, u)
		}
	}

	if err := target.Save(targetsPath, kept); err != nil {
		fmt.Fprintf(o.ErrOut, "save targets: %v\n", err)
		return exitError(ExitInternalError)
	}

	fmt.Fprintf(o.Out, "removed %s\n", t.CanonicalURL)
	return nil
}

// NewListCommand creates the `list` subcommand.
func NewListCommand(o *TargetsOptions) *cobra.Command {
	return &cobra.Command{
		Use:                   "list",
		DisableFlagsInUseLine: true,
		Short:                 "List every tracked broadcaster",
		Args:                  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(o)
		},
	}
}

func runList(o *TargetsOptions) error {
	if _, err := os.Stat(targetsPath); os.IsNotExist(err) {
		fmt.Fprintf(o.ErrOut, "targets file %q does not exist\n", targetsPath)
		return exitError(ExitTargetsMissing)
	}

	f, err := target.Load(targetsPath)
	if err != nil {
		fmt.Fprintf(o.ErrOut, "load targets: %v\n", err)
		return exitError(ExitInternalError)
	}

	urls := append([]string(nil), f.URLs...)
	sort.Strings(urls)
	for _, u := range urls {
		fmt.Fprintln(o.Out, u)
	}
	return nil
}

// NewClearCommand creates the `clear` subcommand.
func NewClearCommand(o *TargetsOptions) *cobra.Command {
	return &cobra.Command{
		Use:                   "clear",
		DisableFlagsInUseLine: true,
		Short:                 "Remove every tracked broadcaster",
		Args:                  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClear(o)
		},
	}
}

func runClear(o *TargetsOptions) error {
	if err := target.Save(targetsPath, nil); err != nil {
		fmt.Fprintf(o.ErrOut, "save targets: %v\n", err)
		return exitError(ExitInternalError)
	}
	fmt.Fprintln(o.Out, "cleared")
	return nil
}

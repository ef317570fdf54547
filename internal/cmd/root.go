package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cliflag "github.com/tomasbasham/cli-runtime/flag"
	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/printer"
	"github.com/tomasbasham/cli-runtime/templates"
)

var (
	rootLong = templates.LongDesc(`
		twitcastrec watches a set of TwitCasting broadcasters and records
		any that go live, handling authentication, stream detection and
		download retries without supervision.`)

	rootExamples = templates.Examples(`
		# Watch c:example and start recording whenever it goes live
		twitcastrec add c:example
		twitcastrec start`)

	// Injected at build time using ldflags.
	version = ""
	commit  = ""
)

// Exit codes for the CLI surface (§6.3).
const (
	ExitOK             = 0
	ExitInternalError  = 1
	ExitTargetsMissing = 2
)

// RootOptions defines the options shared by every subcommand.
type RootOptions struct {
	iooption.IOStreams
}

// NewRootOptions provides an initialised RootOptions instance.
func NewRootOptions(streams iooption.IOStreams) *RootOptions {
	return &RootOptions{
		IOStreams: streams,
	}
}

// NewRootCommand creates the `twitcastrec` command with default arguments.
func NewRootCommand() *cobra.Command {
	options := NewRootOptions(iooption.IOStreams{
		In:     os.Stdin,
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	})

	return NewRootCommandWithArgs(options)
}

// NewRootCommandWithArgs creates the `twitcastrec` command and its nested
// children.
func NewRootCommandWithArgs(o *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "twitcastrec [command]",
		Version:               versionInfo(),
		DisableFlagsInUseLine: true,
		Short:                 "TwitCasting live-stream recording supervisor",
		Long:                  rootLong,
		Example:               rootExamples,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}

	printerOpts := printer.WarningPrinterOptions{Color: true}
	warnPrinter := printer.NewWarningPrinter(o.ErrOut, printerOpts)
	cmd.SetGlobalNormalizationFunc(cliflag.WarnWordSepNormalizeFunc(warnPrinter))

	pflags := cmd.PersistentFlags()
	pflags.StringVar(&targetsPath, "targets-path", "./data/targets.json", "Path to the targets file")

	cmd.AddCommand(NewAddCommand(NewTargetsOptions(o.IOStreams)))
	cmd.AddCommand(NewRemoveCommand(NewTargetsOptions(o.IOStreams)))
	cmd.AddCommand(NewListCommand(NewTargetsOptions(o.IOStreams)))
	cmd.AddCommand(NewClearCommand(NewTargetsOptions(o.IOStreams)))
	cmd.AddCommand(NewCheckCommand(NewCheckOptions(o.IOStreams)))
	cmd.AddCommand(NewStartCommand(NewStartOptions(o.IOStreams)))

	// The global normalisation function ensures that all flags specified meet
	// the desired format, changing users' input if necessary.
	cmd.SetGlobalNormalizationFunc(cliflag.WordSepNormalizeFunc())

	return cmd
}

// targetsPath is shared by every targets-mutating subcommand via the
// persistent --targets-path flag.
var targetsPath string

func versionInfo() string {
	if version == "" {
		return ""
	}
	return fmt.Sprintf("%s (commit: %s)", version, commit)
}

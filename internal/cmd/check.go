package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/iooption"

	"github.com/tomasbasham/twitcastrec/internal/config"
	"github.com/tomasbasham/twitcastrec/internal/cookie"
	"github.com/tomasbasham/twitcastrec/internal/detector"
	"github.com/tomasbasham/twitcastrec/internal/streamprobe"
	"github.com/tomasbasham/twitcastrec/internal/target"
)

// CheckOptions defines the options for the `check` subcommand.
type CheckOptions struct {
	Raw string

	iooption.IOStreams
}

// NewCheckOptions provides an initialised CheckOptions instance.
func NewCheckOptions(streams iooption.IOStreams) *CheckOptions {
	return &CheckOptions{
		IOStreams: streams,
	}
}

// NewCheckCommand creates the `check` subcommand.
func NewCheckCommand(o *CheckOptions) *cobra.Command {
	return &cobra.Command{
		Use:                   "check <target>",
		DisableFlagsInUseLine: true,
		Short:                 "Run a one-off liveness check against a broadcaster",
		Args:                  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.Raw = args[0]
			return runCheck(cmd.Context(), o)
		},
	}
}

func runCheck(ctx context.Context, o *CheckOptions) error {
	if _, err := os.Stat(targetsPath); os.IsNotExist(err) {
		fmt.Fprintf(o.ErrOut, "targets file %q does not exist\n", targetsPath)
		return exitError(ExitTargetsMissing)
	}

	t, err := target.Normalize(o.Raw)
	if err != nil {
		fmt.Fprintf(o.ErrOut, "invalid target %q: %v\n", o.Raw, err)
		return exitError(ExitInternalError)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(o.ErrOut, "load config: %v\n", err)
		return exitError(ExitInternalError)
	}

	det := detector.New(detector.Config{
		UserAgent:      cfg.UserAgent,
		StreamlinkPath: cfg.StreamlinkPath,
	}, nil, streamprobe.New(cfg.StreamlinkPath))

	var cookies []cookie.Cookie
	if latest, err := cookie.ReadLatestPointer(latestCookiePointerPath(cfg)); err == nil {
		if c, err := cookie.ReadNetscape(latest); err == nil {
			cookies = c
		}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	res, err := det.Check(checkCtx, t.CanonicalURL, cookies)
	if err != nil {
		fmt.Fprintf(o.ErrOut, "check %s: %v\n", t.CanonicalURL, err)
		return exitError(ExitInternalError)
	}
	fmt.Fprintf(o.Out, "%s: %s (method=%s movie_id=%s detail=%s)\n", t.CanonicalURL, res.Reason, res.Method, res.MovieID, res.Detail)
	return nil
}

// latestCookiePointerPath returns the path of the single-line pointer file
// written by the Recorder Wrapper after the cookie export that follows a
// guided login (§3).
func latestCookiePointerPath(cfg config.Config) string {
	return cfg.DataDir + "/latest_cookie_path.txt"
}

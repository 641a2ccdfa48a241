package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// Exit codes returned by Execute.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeNotFound indicates the addressed object does not exist.
	ExitCodeNotFound = 2
)

type options struct {
	url     string
	output  string
	timeout time.Duration
	noColor bool

	httpClient *http.Client
}

func (o *options) client() *Client {
	hc := o.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: o.timeout}
	}
	return NewClient(o.url, hc)
}

func (o *options) formatter(w io.Writer) (*Formatter, error) {
	return NewFormatter(w, o.output, !o.noColor)
}

// NewRootCommand builds the actuatorctl command tree.
func NewRootCommand(version string) *cobra.Command {
	return newRootCommand(version, &options{})
}

func newRootCommand(version string, opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:   "actuatorctl",
		Short: "Inspect and manage a running service through its actuator endpoints",
		Long: `actuatorctl talks to the management API of a service: it lists and patches
executors, HTTP clients, interceptors and listener containers, runs their
lifecycle actions, and reads or edits the layered configuration.`,
		// SilenceUsage keeps usage text out of API failures.
		SilenceUsage: true,
		Version:      version,
	}
	root.SetVersionTemplate(`{{printf "actuatorctl version %s\n" .Version}}`)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.url, "url", envOr("ACTUATOR_URL", DefaultBaseURL), "management base URL")
	flags.StringVarP(&opts.output, "output", "o", OutputTable, "output format: table or json")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newIndexCmd(opts),
		newListCmd(opts),
		newGetCmd(opts),
		newUpdateCmd(opts),
		newActionCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(version string) int {
	ctx, cancel := signalContext()
	defer cancel()

	if err := NewRootCommand(version).ExecuteContext(ctx); err != nil {
		return getExitCode(err)
	}
	return ExitCodeSuccess
}

func getExitCode(err error) int {
	if NotFound(err) {
		return ExitCodeNotFound
	}
	if errors.Is(err, errNoValue) {
		return ExitCodeNotFound
	}
	return ExitCodeError
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of actuatorctl",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "actuatorctl version %s\n", cmd.Root().Version)
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// Package cli turns command-line arguments into an Invocation.
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tdh8316/watson/internal/config"
	"github.com/tdh8316/watson/internal/version"
)

var (
	ErrHelp  = errors.New("help requested")
	ErrUsage = errors.New("usage error")
)

// UsageError is a bad flag, argument or option value. It matches ErrUsage.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }

func (e *UsageError) Unwrap() error { return e.Err }

func (e *UsageError) Is(target error) bool { return target == ErrUsage }

type Command int

const (
	Search Command = iota
	ListSites
	SelfTest
	ShowVersion
)

type Invocation struct {
	Command Command
	Options config.Options

	// CheckUpdate asks ShowVersion to look for a newer release.
	CheckUpdate bool
}

type flagGroup struct {
	title string
	flags []string
}

var helpGroups = []flagGroup{
	{"TARGET", []string{"file", "email", "variations"}},
	{"SITES", []string{"database", "catalog-url", "update", "local", "sites", "exclude", "nsfw"}},
	{"TRANSPORT", []string{"tor", "tor-proxy", "proxy", "user-agent", "rotate-ua"}},
	{"RATE-LIMIT", []string{"timeout", "concurrency", "rate-limit"}},
	{"OUTPUT", []string{"output", "format", "print-all", "no-color", "progress", "results", "scrape-emails"}},
	{"LOGGING", []string{"verbose", "quiet", "log-format"}},
	{"OBSERVABILITY", []string{"metrics-addr", "otlp-endpoint", "otlp-insecure"}},
	{"CONFIGURATION", []string{"config"}},
	{"VERSION", []string{"check"}},
}

// Parse reads the config file named by --config (or the default one) and
// applies the flags in args over it. Help and --version output is written
// to stdout and reported as ErrHelp.
func Parse(args []string, stdout, stderr io.Writer) (Invocation, error) {
	opts, err := config.Load(configPath(args))
	if err != nil {
		return Invocation{}, &UsageError{Err: err}
	}

	inv := Invocation{Options: opts}
	ran := false
	root := newRootCommand(&inv, &ran)
	if args == nil {
		args = []string{} // cobra falls back to os.Args on nil
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		return Invocation{}, &UsageError{Err: err}
	}
	if !ran {
		return Invocation{}, ErrHelp
	}
	return inv, nil
}

func newRootCommand(inv *Invocation, ran *bool) *cobra.Command {
	o := &inv.Options

	validate := func(cmd Command) error {
		inv.Command = cmd
		*ran = true
		return o.Validate()
	}

	root := &cobra.Command{
		Use:     "watson [flags] IDENTIFIER [IDENTIFIER...]",
		Short:   "Find accounts by username or email across hundreds of sites",
		Version: version.Version,
		Long: `watson probes every site of a Sherlock-compatible catalog for an
identifier and reports where an account exists. Results are printed
in catalog order as they are decided.`,
		Example: `  watson alice
  watson alice bob --sites GitHub,Reddit --print-all
  watson --file users.txt --tor -o results.json
  watson --email alice@example.com
  watson selftest --sites GitHub
  watson sites --nsfw`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o.Identifiers = nonEmpty(args)
			if len(o.Identifiers) == 0 && o.IdentifiersFile == "" {
				return errors.New("at least one identifier or --file is required")
			}
			return validate(Search)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	sites := &cobra.Command{
		Use:   "sites",
		Short: "List the sites of the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return validate(ListSites)
		},
	}

	selftest := &cobra.Command{
		Use:   "selftest",
		Short: "Check every site against its claimed and unclaimed sample usernames",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return validate(SelfTest)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inv.Command = ShowVersion
			*ran = true
			return nil
		},
	}
	versionCmd.Flags().BoolVar(&inv.CheckUpdate, "check", false, "Look for a newer release")

	root.CompletionOptions.DisableDefaultCmd = true
	root.AddCommand(sites, selftest, versionCmd)

	// Search-only flags.
	f := root.Flags()
	f.StringVarP(&o.IdentifiersFile, "file", "f", "", "File with one identifier per line")
	f.BoolVar(&o.Email, "email", o.Email, "Treat identifiers as email addresses and probe email services")
	f.BoolVar(&o.Variations, "variations", o.Variations, "Also search common variations of each username")
	f.StringVarP(&o.OutputFile, "output", "o", o.OutputFile, "Write a report to this file")
	f.StringVar(&o.OutputFormat, "format", o.OutputFormat, "Report format: text, json, csv, html (default: from --output extension)")
	f.BoolVarP(&o.PrintAll, "print-all", "a", o.PrintAll, "Also print sites where the account was not found")
	f.BoolVar(&o.Progress, "progress", o.Progress, "Show a progress line on stderr when it is a terminal")
	f.StringVar(&o.ResultsDir, "results", o.ResultsDir, "Write results/<identifier>/out.txt under this directory")
	f.BoolVar(&o.ScrapeEmails, "scrape-emails", o.ScrapeEmails, "Scrape email addresses from found profile pages")

	// Shared by every subcommand.
	p := root.PersistentFlags()
	p.String("config", "", "YAML config file (default: "+config.DefaultPath()+")")

	p.StringVar(&o.DataFile, "database", o.DataFile, "Site database path")
	p.StringVar(&o.CatalogURL, "catalog-url", o.CatalogURL, "Download the site database from this URL")
	p.BoolVar(&o.Update, "update", o.Update, "Update the site database before running")
	p.BoolVar(&o.LocalOnly, "local", o.LocalOnly, "Never download the site database")
	p.StringSliceVar(&o.Sites, "sites", o.Sites, "Only probe these sites (comma-separated)")
	p.StringSliceVar(&o.Exclude, "exclude", o.Exclude, "Skip these sites (comma-separated)")
	p.BoolVar(&o.NSFW, "nsfw", o.NSFW, "Include NSFW sites")

	p.BoolVarP(&o.Tor, "tor", "t", o.Tor, "Route requests through Tor")
	p.StringVar(&o.TorProxy, "tor-proxy", o.TorProxy, "Tor SOCKS address")
	p.StringVar(&o.Proxy, "proxy", o.Proxy, "HTTP or SOCKS proxy URL")
	p.StringVar(&o.UserAgent, "user-agent", o.UserAgent, "User-Agent header")
	p.BoolVar(&o.RotateUA, "rotate-ua", o.RotateUA, "Pick a random browser User-Agent per request")

	p.IntVar(&o.Timeout, "timeout", o.Timeout, fmt.Sprintf("Request timeout in seconds (1-%d)", config.MaxTimeout))
	p.IntVarP(&o.Concurrency, "concurrency", "c", o.Concurrency, fmt.Sprintf("Maximum concurrent requests (1-%d)", config.MaxConcurrency))
	p.Float64Var(&o.RateLimit, "rate-limit", o.RateLimit, "Maximum requests per second, 0 for no limit")

	p.BoolVar(&o.NoColor, "no-color", o.NoColor, "Disable colored output")
	p.BoolVarP(&o.Verbose, "verbose", "v", o.Verbose, "Debug logging")
	p.BoolVarP(&o.Quiet, "quiet", "q", o.Quiet, "Only log warnings and errors")
	p.StringVar(&o.LogFormat, "log-format", o.LogFormat, "Log format: text, json")

	p.StringVar(&o.MetricsAddr, "metrics-addr", o.MetricsAddr, "Serve Prometheus metrics on this address")
	p.StringVar(&o.OTLPEndpoint, "otlp-endpoint", o.OTLPEndpoint, "Export traces to this OTLP gRPC endpoint")
	p.BoolVar(&o.OTLPInsecure, "otlp-insecure", o.OTLPInsecure, "Disable TLS for the OTLP exporter")

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &UsageError{Err: err}
	})
	root.SetHelpFunc(printHelp)
	return root
}

func printHelp(cmd *cobra.Command, _ []string) {
	w := cmd.OutOrStdout()
	if cmd.Long != "" {
		fmt.Fprintf(w, "%s\n\n", cmd.Long)
	} else {
		fmt.Fprintf(w, "%s\n\n", cmd.Short)
	}
	fmt.Fprintf(w, "Usage:\n  %s\n", cmd.UseLine())
	if cmd.Example != "" {
		fmt.Fprintf(w, "\nExamples:\n%s\n", cmd.Example)
	}
	if cmd.HasAvailableSubCommands() {
		fmt.Fprintf(w, "\nCommands:\n")
		for _, c := range cmd.Commands() {
			if c.IsAvailableCommand() {
				fmt.Fprintf(w, "  %-12s%s\n", c.Name(), c.Short)
			}
		}
	}

	fmt.Fprintf(w, "\nFlags:\n")
	for _, g := range helpGroups {
		var lines []string
		for _, name := range g.flags {
			if f := lookup(cmd, name); f != nil {
				lines = append(lines, formatFlag(f))
			}
		}
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s:\n%s\n", g.title, strings.Join(lines, "\n"))
	}
	fmt.Fprintln(w)
}

func lookup(cmd *cobra.Command, name string) *pflag.Flag {
	if f := cmd.LocalFlags().Lookup(name); f != nil {
		return f
	}
	return cmd.InheritedFlags().Lookup(name)
}

func formatFlag(f *pflag.Flag) string {
	var left string
	if f.Shorthand != "" {
		left = fmt.Sprintf("-%s, --%s", f.Shorthand, f.Name)
	} else {
		left = fmt.Sprintf("    --%s", f.Name)
	}
	if typ := f.Value.Type(); typ != "bool" {
		left += " " + typ
	}

	const col = 32
	if len(left) < col {
		left += strings.Repeat(" ", col-len(left))
	}

	right := f.Usage
	switch def := f.DefValue; def {
	case "", "false", "0", "[]":
	default:
		right += fmt.Sprintf(" (default %s)", def)
	}
	return "   " + left + right
}

// configPath finds --config before flags are parsed, so that file values
// become the flag defaults.
func configPath(args []string) string {
	for i, a := range args {
		if a == "--" {
			break
		}
		if v, ok := strings.CutPrefix(a, "--config="); ok {
			return v
		}
		if a == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func nonEmpty(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

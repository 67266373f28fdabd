// Command globus-transfer scans an instrument data tree for files modified
// in a calendar window, bundles small-file directories into tar archives,
// and submits the resulting manifest to a transfer service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/rwilfong/globus-transfer/internal/config"
	"github.com/rwilfong/globus-transfer/internal/journal"
	"github.com/rwilfong/globus-transfer/internal/logging"
	"github.com/rwilfong/globus-transfer/internal/manifest"
	"github.com/rwilfong/globus-transfer/internal/pipeline"
	"github.com/rwilfong/globus-transfer/internal/secrets"
	"github.com/rwilfong/globus-transfer/internal/stats"
	"github.com/rwilfong/globus-transfer/internal/submit"
	"github.com/rwilfong/globus-transfer/internal/window"
)

var version = "dev"

func main() {
	os.Exit(run())
}

// runOptions are the persistent flags shared by every window subcommand.
type runOptions struct {
	configPath  string
	dryRun      bool
	logFile     string
	manifestOut string
	verbose     bool
	quiet       bool
}

// bindRunFlags registers the shared flags on a flag set.
func bindRunFlags(flags *pflag.FlagSet, o *runOptions) {
	flags.StringVarP(&o.configPath, "config", "c", defaultConfigPath(), "config file (TOML)")
	flags.BoolVar(&o.dryRun, "dry-run", false, "build the manifest but stage and submit nothing")
	flags.StringVar(&o.logFile, "log", "", "write structured JSON log to FILE")
	flags.StringVarP(&o.manifestOut, "manifest-out", "o", "", "write the manifest as YAML to FILE (\"-\" for stdout)")
	flags.BoolVarP(&o.verbose, "verbose", "v", false, "verbose output")
	flags.BoolVarP(&o.quiet, "quiet", "q", false, "suppress all output except errors")
}

func defaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + "/globus-transfer/config.toml"
	}
	return "config.toml"
}

func run() int {
	var (
		opts        runOptions
		showVersion bool
	)

	rootCmd := &cobra.Command{
		Use:           "globus-transfer",
		Short:         "Incremental instrument-data transfers with small-file bundling",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				fmt.Fprintf(os.Stdout, "globus-transfer %s\n", version)
				return nil
			}
			return cmd.Help()
		},
	}
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")
	bindRunFlags(rootCmd.PersistentFlags(), &opts)

	rootCmd.AddCommand(
		windowCmd(&opts, "yesterday",
			"Transfer files modified during the previous calendar day",
			window.Yesterday),
		windowCmd(&opts, "current-month",
			"Transfer files modified since the first of the current month",
			window.MonthToDate),
		windowCmd(&opts, "previous-month",
			"Transfer files modified during the previous calendar month",
			window.PreviousMonth, "archive-and-transfer"),
		historyCmd(&opts),
	)

	if err := rootCmd.Execute(); err != nil {
		if exitErr, ok := err.(*exitError); ok {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// windowCmd builds one subcommand around a calendar window derivation.
func windowCmd(opts *runOptions, use, short string, derive func(time.Time) window.Window, aliases ...string) *cobra.Command {
	return &cobra.Command{
		Use:     use,
		Short:   short,
		Aliases: aliases,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			closeLog, err := setupLogging(opts)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runWindow(ctx, opts, derive(time.Now()))
		},
	}
}

func runWindow(ctx context.Context, opts *runOptions, w window.Window) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	threshold, err := cfg.ThresholdBytes()
	if err != nil {
		return err
	}
	timeout, err := cfg.SubmitTimeoutDuration()
	if err != nil {
		return err
	}

	var jnl *journal.Journal
	if cfg.JournalPath != "" && !opts.dryRun {
		if jnl, err = journal.Open(cfg.JournalPath); err != nil {
			slog.Warn("journal unavailable", "path", cfg.JournalPath, "error", err)
			jnl = nil
		} else {
			defer jnl.Close()
			warnRepeatRun(jnl, w.Label())
		}
	}

	var submitter submit.Submitter
	if !opts.dryRun {
		if cfg.EndpointURL == "" {
			return fmt.Errorf("config: endpoint_url is required unless --dry-run")
		}
		token, err := resolveToken(ctx, cfg)
		if err != nil {
			return err
		}
		submitter = &submit.Endpoint{URL: cfg.EndpointURL, Token: token, Timeout: timeout}
	}

	collector := stats.NewCollector()
	res := pipeline.Run(ctx, pipeline.Config{
		ScanRoot:          cfg.ScanRoot,
		Window:            w,
		Workers:           cfg.Workers,
		Threshold:         threshold,
		StagingRoot:       cfg.StagingRoot,
		RemoteSourceRoot:  cfg.RemoteSourceRoot,
		RemoteDestRoot:    cfg.RemoteDestRoot,
		RemoteStagingRoot: cfg.RemoteStaging(),
		TimestampRename:   cfg.TimestampRenameEnabled(),
		Policy: manifest.SyncPolicy{
			VerifyChecksum: cfg.VerifyChecksum,
			PreserveMtime:  cfg.PreserveMtime,
		},
		DryRun:    opts.dryRun,
		Submitter: submitter,
		Stats:     collector,
		Logger:    slog.Default(),
	})

	if res.Manifest != nil && !res.Manifest.Empty() {
		if err := writeManifest(opts, res.Manifest); err != nil {
			slog.Warn("manifest preview not written", "error", err)
		}
	}

	if jnl != nil {
		recordRun(jnl, w.Label(), res)
	}

	if !opts.quiet {
		fmt.Fprintf(os.Stderr, "%s %s: %s\n", w.Label(), res.State, res.Stats.String())
	}

	if res.Err != nil {
		slog.Error("run failed", "window", w.Label(), "error", res.Err)
		return &exitError{code: 1}
	}
	return nil
}

// resolveToken asks the credential chain for the endpoint token. A run with
// no secret_service configured submits unauthenticated.
func resolveToken(ctx context.Context, cfg config.Config) (string, error) {
	if cfg.SecretService == "" {
		return "", nil
	}
	chain := secrets.Chain{secrets.Env{}, secrets.File{Root: defaultSecretsDir()}}
	token, err := chain.Resolve(ctx, cfg.SecretService, cfg.SecretClientID)
	if err != nil {
		return "", fmt.Errorf("resolve endpoint credential: %w", err)
	}
	return token, nil
}

func defaultSecretsDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + "/globus-transfer/secrets"
	}
	return "secrets"
}

func writeManifest(opts *runOptions, m *manifest.Manifest) error {
	switch {
	case opts.manifestOut == "" && opts.dryRun && !opts.quiet:
		return m.EncodeYAML(os.Stdout)
	case opts.manifestOut == "":
		return nil
	case opts.manifestOut == "-":
		return m.EncodeYAML(os.Stdout)
	}

	f, err := os.Create(opts.manifestOut)
	if err != nil {
		return err
	}
	defer f.Close()
	return m.EncodeYAML(f)
}

// warnRepeatRun flags a window that already has a submitted run. With
// timestamp renaming off, repeating a window overwrites the prior run's
// destination files.
func warnRepeatRun(j *journal.Journal, label string) {
	prev, err := j.LastForLabel(label)
	if err != nil || prev == nil {
		return
	}
	if prev.State == pipeline.Submitted.String() {
		slog.Warn("window already submitted in a previous run",
			"label", label, "task_id", prev.TaskID,
			"finished_at", prev.FinishedAt.Format(time.RFC3339))
	}
}

// recordRun appends the outcome to the journal. Journal trouble is logged,
// never fatal; the transfer already happened.
func recordRun(j *journal.Journal, label string, res pipeline.Result) {
	if err := j.Record(journal.Entry{
		Label:           label,
		State:           res.State.String(),
		TaskID:          res.Task.ID,
		FilesConsidered: res.Stats.FilesConsidered,
		FilesSkipped:    res.Stats.FilesSkipped,
		FilesArchived:   res.Stats.FilesArchived,
		FilesRaw:        res.Stats.FilesRaw,
		GroupsDropped:   res.Stats.GroupsDropped,
	}); err != nil {
		slog.Warn("journal write failed", "label", label, "error", err)
	}
}

func historyCmd(opts *runOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent runs from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if cfg.JournalPath == "" {
				return fmt.Errorf("config: journal_path is not set")
			}

			j, err := journal.Open(cfg.JournalPath)
			if err != nil {
				return err
			}
			defer j.Close()

			entries, err := j.Recent(limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FINISHED\tLABEL\tSTATE\tTASK\tFILES\tSKIPPED\tDROPPED")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
					e.FinishedAt.Format(time.RFC3339), e.Label, e.State, e.TaskID,
					e.FilesConsidered, e.FilesSkipped, e.GroupsDropped)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum runs to show")
	return cmd
}

// setupLogging installs the default slog logger: text on stderr at a level
// set by -v/-q, plus JSON to --log when given.
func setupLogging(opts *runOptions) (func(), error) {
	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	} else if opts.quiet {
		level = slog.LevelWarn
	}

	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	var handler slog.Handler = textHandler
	closeLog := func() {}

	if opts.logFile != "" {
		lf, err := os.Create(opts.logFile)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		closeLog = func() { _ = lf.Close() }
		jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{Level: slog.LevelDebug})
		handler = logging.NewMultiHandler(textHandler, jsonHandler)
	}

	slog.SetDefault(slog.New(handler))
	return closeLog, nil
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

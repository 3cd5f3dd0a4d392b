// keyfold: consolidates duplicate localization keys in ARB catalogs and
// rewrites their call sites.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/minios-linux/keyfold/config"
	"github.com/minios-linux/keyfold/i18n"
	"github.com/minios-linux/keyfold/pipeline"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitConfigError = 2
)

// exitError carries the process exit code for an error.
type exitError struct {
	Code int
	Err  error
}

func (e *exitError) Error() string { return e.Err.Error() }
func (e *exitError) Unwrap() error { return e.Err }

// exitCode maps an error to the process exit code.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	var ce *config.ConfigurationError
	if errors.As(err, &ce) {
		return exitConfigError
	}
	return exitFailure
}

// ---------------------------------------------------------------------------
// Global flags
// ---------------------------------------------------------------------------

type globalFlags struct {
	root    string
	config  string
	verbose bool
	lang    string
}

// overrides are configuration values given on the command line. They are
// applied only when the flag was set, after file and environment.
type overrides struct {
	catalogDir  string
	pattern     string
	mapping     string
	unusedList  string
	backupDir   string
	sourceDirs  []string
	threshold   float64
	metric      string
	normalize   string
	primary     string
	preferUsed  bool
	keepPattern []string
}

func (o *overrides) register(fs *pflag.FlagSet) {
	fs.StringVar(&o.catalogDir, "catalog-dir", "", "Directory holding the ARB catalogs")
	fs.StringVar(&o.pattern, "pattern", "", "Catalog file name pattern (default app_*.arb)")
	fs.StringVar(&o.mapping, "mapping", "", "Mapping file path")
	fs.StringVar(&o.unusedList, "unused-list", "", "Unused keys list path")
	fs.StringVar(&o.backupDir, "backup-dir", "", "Backup root directory")
	fs.StringSliceVar(&o.sourceDirs, "source-dir", nil, "Source directories to scan (repeatable)")
	fs.Float64Var(&o.threshold, "threshold", 0, "Similarity threshold in (0,1]")
	fs.StringVar(&o.metric, "metric", "", "Similarity metric: ratio, levenshtein")
	fs.StringVar(&o.normalize, "normalize", "", "Value normalization: nfkc, fold, none")
	fs.StringVar(&o.primary, "primary", "", "Primary locale shown in the mapping file")
	fs.BoolVar(&o.preferUsed, "prefer-used", false, "Prefer referenced keys as canonical keys")
	fs.StringSliceVar(&o.keepPattern, "keep", nil, "Glob of keys never reported unused (repeatable)")
}

func (o *overrides) apply(fs *pflag.FlagSet, cfg *config.Config) {
	str := map[string]*string{
		"catalog-dir": &cfg.CatalogDir,
		"pattern":     &cfg.CatalogPattern,
		"mapping":     &cfg.MappingFile,
		"unused-list": &cfg.UnusedKeysFile,
		"backup-dir":  &cfg.BackupRoot,
		"metric":      &cfg.Metric,
		"normalize":   &cfg.Normalize,
		"primary":     &cfg.PrimaryLocale,
	}
	vals := map[string]string{
		"catalog-dir": o.catalogDir,
		"pattern":     o.pattern,
		"mapping":     o.mapping,
		"unused-list": o.unusedList,
		"backup-dir":  o.backupDir,
		"metric":      o.metric,
		"normalize":   o.normalize,
		"primary":     o.primary,
	}
	for name, dst := range str {
		if fs.Changed(name) {
			*dst = vals[name]
		}
	}
	if fs.Changed("source-dir") {
		cfg.SourceDirs = o.sourceDirs
	}
	if fs.Changed("threshold") {
		cfg.Threshold = o.threshold
	}
	if fs.Changed("prefer-used") {
		cfg.PreferUsed = o.preferUsed
	}
	if fs.Changed("keep") {
		cfg.KeepPatterns = append(cfg.KeepPatterns, o.keepPattern...)
	}
}

// app holds what the commands share.
type app struct {
	flags globalFlags
	over  overrides
	log   zerolog.Logger
}

func newLogger(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}).
		Level(level).
		With().Timestamp().Logger()
}

// loadConfig builds the configuration: defaults, .keyfold.yaml, .env and
// KEYFOLD_* variables, then command-line flags.
func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(a.flags.root, a.flags.config)
	if err != nil {
		return nil, err
	}
	a.over.apply(cmd.Flags(), cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a.log.Debug().
		Str("root", cfg.Root).
		Str("catalogs", cfg.CatalogDir).
		Str("mapping", cfg.MappingFile).
		Float64("threshold", cfg.Threshold).
		Msg("Configuration loaded")
	return cfg, nil
}

// pipeline loads the configuration, lets adjust change it, and builds the
// pipeline.
func (a *app) pipeline(cmd *cobra.Command, adjust func(*config.Config)) (*pipeline.Pipeline, error) {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if adjust != nil {
		adjust(cfg)
	}
	return pipeline.New(cfg, pipeline.WithLogger(a.log))
}

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	a := &app{log: zerolog.Nop()}

	root := &cobra.Command{
		Use:   "keyfold",
		Short: "Consolidate duplicate localization keys in ARB catalogs",
		Long: `keyfold finds ARB keys whose texts are duplicates or near-duplicates in
every locale, proposes a consolidation plan as an editable mapping file, and
applies the reviewed plan to the catalogs and to the Dart call sites.

Workflow:
  keyfold analyze --scan-unused   write arb_report/key_mapping.txt
  (review and edit the mapping file)
  keyfold apply --dry-run         preview the changes
  keyfold apply                   back up, then rewrite catalogs and sources
  keyfold check                   report drift between catalogs and mapping`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			i18n.Init(a.flags.lang)
			a.log = newLogger(cmd.ErrOrStderr(), a.flags.verbose)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.root, "root", ".", "Project root directory")
	pf.StringVar(&a.flags.config, "config", "", "Config file (default <root>/"+config.KeyfoldFileName+")")
	pf.BoolVarP(&a.flags.verbose, "verbose", "v", false, "Enable debug logging")
	pf.StringVar(&a.flags.lang, "lang", "", "Language of keyfold's messages (default from environment)")
	a.over.register(pf)

	root.AddCommand(
		newAnalyzeCmd(a),
		newApplyCmd(a),
		newCheckCmd(a),
		newScanUnusedCmd(a),
		newSortCmd(a),
		newBackupsCmd(a),
		newVersionCmd(),
	)

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "keyfold version %s\n", version)
			fmt.Fprintf(w, "  commit:    %s\n", commit)
			fmt.Fprintf(w, "  built:     %s\n", date)
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", filepath.Base(os.Args[0]), err)
	}
	stop()
	os.Exit(exitCode(err))
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/stackvity/stack-linguist/internal/cli"
	"github.com/stackvity/stack-linguist/internal/cli/config"
	"github.com/stackvity/stack-linguist/pkg/linguist"
	"github.com/stackvity/stack-linguist/pkg/linguist/cache"
	"github.com/stackvity/stack-linguist/pkg/linguist/classifier"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	var (
		cfgFile     string
		profileName string
	)

	cmd := &cobra.Command{
		Use:   "stack-linguist [paths...]",
		Short: "Reports the programming languages used in a source tree.",
		Long: `stack-linguist classifies every file of a repository by language and reports
how many bytes each language accounts for.

Files are matched by shebang, file name and extension, then narrowed down by
content heuristics and a statistical classifier. Vendored, generated,
gitignored and binary files are left out unless asked for, and
.gitattributes overrides are honoured.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			s, logger, err := config.LoadAndValidate(cfgFile, profileName, version, cmd.Flags(), args)
			if err != nil {
				return err
			}
			if !term.IsTerminal(int(os.Stderr.Fd())) {
				s.TUIEnabled = false
			}
			return cli.Run(ctx, s, logger, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.SetVersionTemplate(`{{.Use}} version {{.Version}}` + "\n")

	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Configuration file path (default: ./stack-linguist.yaml, then $HOME/.config/stack-linguist/)")
	pf.StringVar(&profileName, "profile", "", "Name of configuration profile to use")
	pf.BoolP("verbose", "v", false, "Enable verbose (debug) logging output (disables TUI)")

	f := cmd.Flags()
	f.StringSliceP("ignoredFiles", "i", nil, "Glob patterns of files to leave out, matched anywhere in a path")
	f.StringSliceP("ignoredLanguages", "l", nil, "Languages to leave out of the analysis")
	f.StringSliceP("categories", "c", nil, `Language types to include ("data", "markup", "programming", "prose")`)
	f.BoolP("childLanguages", "C", linguist.DefaultChildLanguages, "Report languages such as TSX separately from their group")
	f.BoolP("json", "j", false, "Print the results as JSON")
	f.StringP("tree", "t", "", "Print only the JSON subtree at this dot-delimited path")
	f.BoolP("quick", "q", linguist.DefaultQuick, "Skip gitignore, gitattributes, shebang and heuristic checks")
	f.BoolP("keepVendored", "V", linguist.DefaultKeepVendored, "Include vendored and generated files")
	f.BoolP("keepBinary", "B", linguist.DefaultKeepBinary, "Include binary files")
	f.BoolP("checkAttributes", "A", linguist.DefaultCheckAttributes, "Honour .gitattributes")
	f.BoolP("checkIgnored", "I", linguist.DefaultCheckIgnored, "Honour .gitignore")
	f.BoolP("checkHeuristics", "H", linguist.DefaultCheckHeuristics, "Use content heuristics for ambiguous files")
	f.BoolP("checkShebang", "S", linguist.DefaultCheckShebang, "Use the interpreter named by a shebang line")

	f.Int("concurrency", linguist.DefaultConcurrency, "Number of parallel workers (0 for one per CPU)")
	f.String("data-dir", "", "Linguist data directory (languages.yml, vendor.yml, heuristics.yml, generated.rb)")
	f.String("samples", "", `Training samples for the classifier: a folder, or "github"`)
	f.String("samples-cache", "", "Folder for downloaded samples (default: user cache directory)")
	f.String("fallback", string(linguist.DefaultFallback), fmt.Sprintf("Classifier for ambiguous files (%s)", kinds()))
	f.String("cache", "", "Classification cache file; without a value uses "+cache.FileName)
	f.Lookup("cache").NoOptDefVal = cache.FileName
	f.String("cache-format", cache.DefaultFormat, `Cache file format ("gob" or "json")`)
	f.String("git", "", `Classify only files git reports as "tracked" or "changed"`)
	f.Bool("watch", false, "Re-run whenever files change")
	f.Duration("watch-debounce", config.DefaultWatchDebounce, "Quiet period before a watch re-run")
	f.Bool("no-tui", false, "Disable the progress UI even in a terminal")
	f.String("metrics-file", "", "Write Prometheus metrics to this file after each run")
	f.Bool("trace", false, "Print OpenTelemetry spans to stderr")

	return cmd
}

func kinds() string {
	names := make([]string, len(classifier.Kinds))
	for i, k := range classifier.Kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

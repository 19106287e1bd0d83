// Command l4m is the listen4me CLI: ingest exports, classify text and render reports.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/ibeckermayer/listen4me/internal/app"
	"github.com/ibeckermayer/listen4me/internal/config"
	"github.com/ibeckermayer/listen4me/internal/digest"
	"github.com/ibeckermayer/listen4me/internal/ingest"
	"github.com/ibeckermayer/listen4me/internal/logging"
	"github.com/ibeckermayer/listen4me/internal/store"
	"github.com/ibeckermayer/listen4me/internal/types"
)

// openPath is browser.OpenFile outside tests.
var openPath = browser.OpenFile

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// cli carries the global flags shared by every subcommand.
type cli struct {
	configPath string
	logLevel   string
	stdout     io.Writer
	stderr     io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "l4m",
		Short:         "l4m - social listening reports from exported posts",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "Config file (default: user config dir)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	root.AddCommand(
		c.initCmd(),
		c.ingestCmd(),
		c.classifyCmd(),
		c.reportCmd(),
		c.reclassifyCmd(),
		c.lastCmd(),
		c.historyCmd(),
		c.phrasesCmd(),
		c.openCmd(),
	)
	return root
}

// loadConfig reads the config file, falling back to defaults on first run.
func (c *cli) loadConfig() (*config.Config, error) {
	path := c.configPath
	if path == "" {
		var err error
		if path, err = config.ConfigPath(); err != nil {
			return nil, err
		}
	}
	cfg, _, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	return cfg, nil
}

// setup builds the app and returns a cleanup func that closes the store.
func (c *cli) setup() (*app.App, func(), error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, nil, err
	}

	logger := logging.New(cfg.LogLevel)
	logger.SetOutput(c.stderr)

	dbPath, err := cfg.DBPath()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.New(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	a, err := app.New(cfg, st, logger)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return a, func() { st.Close() }, nil
}

func (c *cli) initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.configPath
			if path == "" {
				var err error
				if path, err = config.ConfigPath(); err != nil {
					return err
				}
			}
			if _, err := os.Stat(path); err == nil && !force {
				fmt.Fprintf(c.stdout, "Config already exists: %s\n", path)
				return nil
			}
			if err := config.Default().SaveTo(path); err != nil {
				return err
			}
			fmt.Fprintf(c.stdout, "Created config: %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config")
	return cmd
}

func (c *cli) ingestCmd() *cobra.Command {
	var kind, phrase, origin string
	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Read, classify and store exported posts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := ingest.ParseKind(kind)
			if err != nil {
				return err
			}
			opts := app.IngestOptions{Kind: k, Phrase: phrase}
			if origin != "" {
				opts.Origin = types.ParseOrigin(origin)
			}

			a, cleanup, err := c.setup()
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := a.Ingest(cmd.Context(), args, opts)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.stdout, "Read %d posts from %d file(s), skipped %d rows, %d undated\n",
				res.Rows, res.Files, res.Skipped, res.Undated)
			for _, b := range res.Buckets {
				fmt.Fprintf(c.stdout, "  %-20s %d\n", b.Category, b.Count)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Input kind: sheet, reddit or youtube (default: by extension)")
	cmd.Flags().StringVar(&phrase, "phrase", "", "Search phrase the export belongs to (default: file name)")
	cmd.Flags().StringVar(&origin, "origin", "", "Platform for sheet rows without a Platform column")
	return cmd
}

func (c *cli) classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <text>",
		Short: "Print the bucket a text falls into",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := c.setup()
			if err != nil {
				return err
			}
			defer cleanup()

			fmt.Fprintln(c.stdout, a.Classify(strings.Join(args, " ")))
			return nil
		},
	}
}

func (c *cli) reclassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reclassify",
		Short: "Re-run the configured categories over every stored post",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := c.setup()
			if err != nil {
				return err
			}
			defer cleanup()

			changed, err := a.Reclassify(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(c.stdout, "%d post(s) changed bucket\n", changed)
			return nil
		},
	}
}

func (c *cli) reportCmd() *cobra.Command {
	var (
		from, to   string
		days       int
		categories []string
		keyword    string
		phrase     string
		email      bool
		noSave     bool
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Aggregate stored posts, detect spikes and render a report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseDay(from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			end, err := parseDay(to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}

			a, cleanup, err := c.setup()
			if err != nil {
				return err
			}
			defer cleanup()

			rep, err := a.Report(cmd.Context(), app.ReportRequest{
				Start:        start,
				End:          end,
				LookbackDays: days,
				Categories:   categories,
				Phrase:       phrase,
				Keyword:      keyword,
				Email:        email,
				Save:         !noSave,
			})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(c.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}
			printReport(c.stdout, rep)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "First day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Last day (YYYY-MM-DD)")
	cmd.Flags().IntVar(&days, "days", 0, "Report the last N days when --from/--to are unset (default: all data)")
	cmd.Flags().StringSliceVar(&categories, "category", nil, "Categories to include (repeatable)")
	cmd.Flags().StringVar(&keyword, "keyword", "", "Only sample posts containing this keyword")
	cmd.Flags().StringVar(&phrase, "phrase", "", "Only posts ingested under this search phrase")
	cmd.Flags().BoolVar(&email, "email", false, "Email the report")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "Do not write the HTML report")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report data as JSON")
	return cmd
}

func (c *cli) lastCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "last",
		Short: "Print the most recent saved report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := c.setup()
			if err != nil {
				return err
			}
			defer cleanup()

			rep, _, err := a.LastReport()
			if errors.Is(err, store.ErrNoStepOutput) {
				fmt.Fprintln(c.stdout, "No saved reports yet. Run `l4m report` first.")
				return nil
			}
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(c.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}
			printReport(c.stdout, rep)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report data as JSON")
	return cmd
}

func (c *cli) historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently saved reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := c.setup()
			if err != nil {
				return err
			}
			defer cleanup()

			entries, err := a.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(c.stdout, "No saved reports yet.")
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(c.stdout, "%s  %s to %s  %5d posts  %2d spikes  %s\n",
					e.CreatedAt.Local().Format("2006-01-02 15:04"),
					e.Start.Format("2006-01-02"), e.End.Format("2006-01-02"),
					e.Total, e.Spikes, e.Path)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of reports to list")
	return cmd
}

func (c *cli) phrasesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "phrases",
		Short: "List the search phrases stored posts were ingested under",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := c.setup()
			if err != nil {
				return err
			}
			defer cleanup()

			phrases, err := a.Phrases(cmd.Context())
			if err != nil {
				return err
			}
			for _, p := range phrases {
				fmt.Fprintln(c.stdout, p)
			}
			return nil
		},
	}
}

func (c *cli) openCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "open <config|cache|report>",
		Short:     "Open the config file, cache directory or latest report",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"config", "cache", "report"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := c.openTarget(args[0])
			if err != nil {
				return err
			}
			return openPath(path)
		},
	}
}

func (c *cli) openTarget(target string) (string, error) {
	switch target {
	case "config":
		if c.configPath != "" {
			return c.configPath, nil
		}
		return config.ConfigPath()
	case "cache":
		return config.CacheDir()
	case "report":
		cfg, err := c.loadConfig()
		if err != nil {
			return "", err
		}
		dir, err := cfg.ReportDir()
		if err != nil {
			return "", err
		}
		return digest.GetLatestDigest(dir)
	default:
		return "", fmt.Errorf("unknown target: %s", target)
	}
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}

func printReport(w io.Writer, rep *app.Report) {
	res := rep.Result
	if res.Empty() {
		fmt.Fprintln(w, "No posts in the selected range and categories.")
		return
	}

	fmt.Fprintf(w, "%s to %s: %d posts\n", res.Start.Format("2006-01-02"), res.End.Format("2006-01-02"), res.Total)
	for _, c := range res.Counts {
		fmt.Fprintf(w, "  %-20s %d\n", c.Category, c.Count)
	}

	for _, origin := range []types.Origin{types.OriginReddit, types.OriginYouTube} {
		top := res.TopCommunities[origin]
		if len(top) == 0 {
			continue
		}
		fmt.Fprintf(w, "\nTop %s communities:\n", origin)
		for _, cc := range top {
			fmt.Fprintf(w, "  %-30s %d\n", cc.Community, cc.Count)
		}
	}

	if len(rep.OverallAlerts)+len(rep.Alerts) > 0 {
		fmt.Fprintln(w, "\nSpikes:")
		for _, a := range append(rep.OverallAlerts, rep.Alerts...) {
			fmt.Fprintf(w, "  %s  %-20s %d\n", a.Date.Format("2006-01-02"), a.Category, a.Count)
		}
	}

	if rep.Digest != nil && rep.Digest.FilePath != "" {
		fmt.Fprintf(w, "\nReport: %s\n", rep.Digest.FilePath)
	}
}

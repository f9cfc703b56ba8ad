package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/newsroom-builder/internal/app"
	"github.com/JakeFAU/newsroom-builder/internal/jsonl"
	"github.com/JakeFAU/newsroom-builder/internal/stage"
)

type scrapeFlags struct {
	urls, thin, archive string
	exactness           int
	diff                bool
	codec               codecFlags
}

func newScrapeCmd() *cobra.Command {
	f := &scrapeFlags{}
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Download archived article pages into the archive store",
		Long: `Downloads every archive.org snapshot listed in --urls (or the archive
fields of a --thin dataset) that the --archive store does not already hold.
Interrupting the command keeps every page downloaded so far; run it again to
resume.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScrape(cmd, f)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&f.urls, "urls", "", "Input path to URL list of articles to download.")
	fs.StringVar(&f.thin, "thin", "", "Input path to \"thin\" template dataset.")
	fs.StringVar(&f.archive, "archive", "", "Output path to write raw article HTML.")
	fs.IntVar(&f.exactness, "exactness", 0, "Truncate snapshot dates to this many digits before downloading.")
	fs.Int("workers", 16, "Number of concurrent downloads.")
	fs.Int("tries", 3, "Download attempts per article.")
	fs.Duration("sleep", 0, "Base delay before each attempt (default 2s).")
	fs.Float64("multiplier", 1.5, "Archive.org rate limiting sensitivity.")
	fs.Uint64("seed", 0, "Seed for the download order; 0 picks a random order.")
	fs.BoolVar(&f.diff, "diff", false, "Only list the URLs still to download.")
	_ = cmd.MarkFlagRequired("archive")
	cmd.MarkFlagsMutuallyExclusive("urls", "thin")
	mustBind(cmd, "workers", "fetch.workers")
	mustBind(cmd, "tries", "fetch.tries")
	mustBind(cmd, "sleep", "fetch.sleep")
	mustBind(cmd, "multiplier", "fetch.multiplier")
	mustBind(cmd, "seed", "fetch.seed")
	addCodecFlags(cmd, &f.codec)
	return cmd
}

func runScrape(cmd *cobra.Command, f *scrapeFlags) error {
	if f.urls == "" && f.thin == "" {
		return errors.New("either --urls or --thin must be defined")
	}
	ctx := cmd.Context()
	a, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	cfg := a.Config()

	archive, err := openStore(a, f.archive, f.codec)
	if err != nil {
		return err
	}
	defer closeStore(a, archive)

	opts := stage.ScrapeOptions{
		URLsPath:   f.urls,
		Archive:    archive,
		Diff:       f.diff,
		Seed:       cfg.Fetch.Seed,
		FlushEvery: cfg.Store.FlushEvery,
	}
	if cmd.Flags().Changed("exactness") {
		opts.Exactness = &f.exactness
	}
	if f.thin != "" {
		thin, err := openStore(a, f.thin, f.codec)
		if err != nil {
			return err
		}
		defer closeStore(a, thin)
		opts.Thin = thin
	}

	var dl stage.Downloader
	if !f.diff {
		fetch, err := a.Fetcher()
		if err != nil {
			return err
		}
		dl = fetch
	}
	summary, err := a.Runner().Scrape(ctx, dl, opts)
	if f.diff && err == nil {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "there are %d URLs not downloaded:\n\n", len(summary.Remaining))
		for _, u := range summary.Remaining {
			fmt.Fprintln(out, u)
		}
		return nil
	}
	for _, hint := range summary.Hints {
		a.Logger().Info(hint, zap.String("run_id", summary.RunID))
	}
	if summary.Aborted && errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return err
	}
	a.Logger().Info("Scrape finished",
		zap.String("run_id", summary.RunID),
		zap.Int("fetched", summary.Fetched),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", summary.Elapsed))
	return nil
}

func openStore(a *app.App, path string, flags codecFlags) (*jsonl.Store, error) {
	codec, err := flags.codecFor(path, a.Config().Store)
	if err != nil {
		return nil, err
	}
	return a.OpenStore(path, codec)
}

func closeStore(a *app.App, s *jsonl.Store) {
	if err := s.Close(); err != nil {
		a.Logger().Warn("Failed to close store", zap.String("path", s.Path()), zap.Error(err))
	}
}

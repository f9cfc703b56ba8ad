package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/newsroom-builder/internal/article"
	"github.com/JakeFAU/newsroom-builder/internal/binning"
	"github.com/JakeFAU/newsroom-builder/internal/fragments"
	"github.com/JakeFAU/newsroom-builder/internal/pipeline"
	"github.com/JakeFAU/newsroom-builder/internal/stage"
)

type extractFlags struct {
	archive, urldiff, dataset string
	codec                     codecFlags
}

func newExtractCmd() *cobra.Command {
	f := &extractFlags{}
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract article text, summaries and metrics into the dataset store",
		Long: `Transforms every page of the --archive store that the --dataset store
lacks, chunk by chunk. With --urldiff it instead lists the URLs of a URL file
that are missing from the dataset.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExtract(cmd, f)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&f.archive, "archive", "", "Input path to dataset of raw article HTML.")
	fs.StringVar(&f.urldiff, "urldiff", "", "Input path to check remaining URLs to download.")
	fs.StringVar(&f.dataset, "dataset", "", "Output path for final dataset.")
	fs.Int("workers", 0, "Number of transform workers (default CPU count).")
	fs.Int("chunksize", 0, "Items processed between appends (default 20*CPUs).")
	_ = cmd.MarkFlagRequired("dataset")
	mustBind(cmd, "workers", "extract.workers")
	mustBind(cmd, "chunksize", "extract.chunk_size")
	addCodecFlags(cmd, &f.codec)
	return cmd
}

func runExtract(cmd *cobra.Command, f *extractFlags) error {
	if f.archive == "" && f.urldiff == "" {
		return errors.New("one of --archive or --urldiff is required")
	}
	ctx := cmd.Context()
	a, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	ds, err := openStore(a, f.dataset, f.codec)
	if err != nil {
		return err
	}
	defer closeStore(a, ds)
	runner := a.Runner()

	if f.urldiff != "" {
		missing, err := runner.URLDiff(ctx, f.urldiff, ds)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(missing) == 0 {
			fmt.Fprintln(out, "Dataset complete.")
			return nil
		}
		fmt.Fprintf(out, "%d URLs missing:\n\n", len(missing))
		for _, u := range missing {
			fmt.Fprintln(out, u)
		}
		return nil
	}

	archive, err := openStore(a, f.archive, f.codec)
	if err != nil {
		return err
	}
	defer closeStore(a, archive)

	cfg := a.Config()
	summary, err := runner.Extract(ctx, stage.ExtractOptions{
		Archive:   archive,
		Dataset:   ds,
		Pipeline:  pipeline.Config{ChunkSize: cfg.Extract.ChunkSize, Workers: cfg.Extract.Workers},
		Extractor: article.NewExtractor(a.Logger().Named("article")),
		Metrics:   fragments.Calculator{},
		Binner:    binning.DefaultScheme(),
	})
	if summary.Aborted && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

package app_test

import (
	"github.com/JakeFAU/newsroom-builder/internal/article"
	"github.com/JakeFAU/newsroom-builder/internal/binning"
	"github.com/JakeFAU/newsroom-builder/internal/fragments"
	"github.com/JakeFAU/newsroom-builder/internal/jsonl"
	"github.com/JakeFAU/newsroom-builder/internal/pipeline"
	"github.com/JakeFAU/newsroom-builder/internal/stage"
)

func stageOptions(archive, ds *jsonl.Store, workers, chunk int) stage.ExtractOptions {
	return stage.ExtractOptions{
		Archive:   archive,
		Dataset:   ds,
		Pipeline:  pipeline.Config{Workers: workers, ChunkSize: chunk},
		Extractor: article.NewExtractor(nil),
		Metrics:   fragments.Calculator{},
		Binner:    binning.DefaultScheme(),
	}
}

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/newsroom-builder/internal/config"
	"github.com/JakeFAU/newsroom-builder/internal/jsonl"
)

// codecFlags are the store compression switches shared by the stage commands.
type codecFlags struct {
	gzip, bzip2, xz, zstd bool
}

func addCodecFlags(cmd *cobra.Command, f *codecFlags) {
	fs := cmd.Flags()
	fs.BoolVar(&f.gzip, "gzip", false, "Compress stores with gzip.")
	fs.BoolVar(&f.bzip2, "bzip2", false, "Compress stores with bzip2.")
	fs.BoolVar(&f.xz, "xz", false, "Compress stores with xz.")
	fs.BoolVar(&f.zstd, "zstd", false, "Compress stores with zstd.")
	fs.Int("level", jsonl.DefaultLevel, "Compression level for gzip, bzip2 and zstd.")
	fs.Bool("fast", true, "Read compressed stores through external decompressors when available.")
	cmd.MarkFlagsMutuallyExclusive("gzip", "bzip2", "xz", "zstd")
	mustBind(cmd, "level", "store.level")
	mustBind(cmd, "fast", "store.fast_read")
}

// codecFor picks the codec of the store at path: an explicit switch wins,
// then the file suffix, then the configured codec.
func (f codecFlags) codecFor(path string, store config.StoreConfig) (jsonl.Codec, error) {
	if f.gzip || f.bzip2 || f.xz || f.zstd {
		return jsonl.FromFlags(f.gzip, f.bzip2, f.xz, f.zstd, store.Level)
	}
	if kind, ok := jsonl.KindFromPath(path); ok {
		store.Codec = kind.String()
	}
	return store.StoreCodec()
}

func mustBind(cmd *cobra.Command, name, key string) {
	if err := config.BindFlag(cmd.Flags(), name, key); err != nil {
		panic(err)
	}
}

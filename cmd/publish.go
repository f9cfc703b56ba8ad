package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/newsroom-builder/internal/storage"
)

func newPublishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish STORE...",
		Short: "Upload finished store files to the configured blob store",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runPublish,
	}
	fs := cmd.Flags()
	fs.String("backend", "local", "Upload target: local or gcs.")
	fs.String("bucket", "", "GCS bucket for the gcs backend.")
	fs.String("dir", "", "Directory for the local backend.")
	fs.String("prefix", "", "Object path prefix.")
	mustBind(cmd, "backend", "publish.backend")
	mustBind(cmd, "bucket", "publish.bucket")
	mustBind(cmd, "dir", "publish.local_dir")
	mustBind(cmd, "prefix", "publish.prefix")
	return cmd
}

func runPublish(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	blobs, err := a.BlobStore(ctx)
	if err != nil {
		return err
	}
	prefix := a.Config().Publish.Prefix
	for _, path := range args {
		uri, err := storage.Upload(ctx, blobs, path, storage.ObjectPath(prefix, path))
		if err != nil {
			return err
		}
		a.Logger().Info("Published store", zap.String("path", path), zap.String("uri", uri))
		fmt.Fprintln(cmd.OutOrStdout(), uri)
	}
	return nil
}

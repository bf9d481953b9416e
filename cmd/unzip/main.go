// Command unzip lists and extracts ZIP archives from local files, HTTP
// servers that honor range requests, and S3-compatible object stores.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	verbose    bool
	cacheDir   string
	cacheMax   string
	s3Endpoint string
	s3Region   string
	s3Insecure bool

	logger *slog.Logger
}

func newRootCmd(stderr io.Writer) *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "unzip",
		Short: "Read ZIP archives from files, HTTP and S3",
		Long: `unzip reads a ZIP archive through its central directory without loading
the archive into memory. ARCHIVE may be a local path, an http(s):// URL served
with range request support, or s3://bucket/key.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			level := slog.LevelWarn
			if opts.verbose {
				level = slog.LevelDebug
			}
			opts.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
		},
	}
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVar(&opts.cacheDir, "cache-dir", "", "cache remote archive blocks in this directory")
	flags.StringVar(&opts.cacheMax, "cache-max", "1GiB", "size limit for --cache-dir")
	flags.StringVar(&opts.s3Endpoint, "s3-endpoint", "s3.amazonaws.com", "S3-compatible endpoint for s3:// archives")
	flags.StringVar(&opts.s3Region, "s3-region", "us-east-1", "region for s3:// archives")
	flags.BoolVar(&opts.s3Insecure, "s3-insecure", false, "use plain HTTP for the S3 endpoint")

	root.AddCommand(newListCmd(opts), newExtractCmd(opts))
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd(os.Stderr).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "unzip: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/meigma/unzip"
	"github.com/meigma/unzip/extract"
)

type extractOptions struct {
	dest      string
	overwrite bool
	noVerify  bool
	keepTimes bool
	workers   int
	maxSize   string
	progress  bool
}

func newExtractCmd(opts *globalOptions) *cobra.Command {
	eo := &extractOptions{}
	cmd := &cobra.Command{
		Use:   "extract ARCHIVE",
		Short: "Extract an archive into a directory",
		Long: `Extract every entry of ARCHIVE beneath the destination directory.
Entries that cannot be extracted are reported and skipped; the command exits
non-zero if any entry failed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, opts, eo, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&eo.dest, "dir", "d", ".", "destination directory")
	flags.BoolVar(&eo.overwrite, "overwrite", false, "replace existing files")
	flags.BoolVar(&eo.noVerify, "no-verify", false, "skip CRC-32 verification")
	flags.BoolVar(&eo.keepTimes, "keep-times", false, "set modification times from the archive")
	flags.IntVar(&eo.workers, "workers", 1, "number of parallel extraction workers")
	flags.StringVar(&eo.maxSize, "max-size", "256MiB", "refuse entries larger than this (0 for no limit)")
	flags.BoolVar(&eo.progress, "progress", false, "report each entry on stderr")
	return cmd
}

func runExtract(cmd *cobra.Command, opts *globalOptions, eo *extractOptions, target string) error {
	maxSize, err := humanize.ParseBytes(eo.maxSize)
	if err != nil {
		return fmt.Errorf("--max-size: %w", err)
	}

	a, err := openArchive(cmd.Context(), opts, target)
	if err != nil {
		return err
	}
	defer a.Close()

	xopts := []extract.Option{
		extract.WithOverwrite(eo.overwrite),
		extract.WithVerifyChecksum(!eo.noVerify),
		extract.WithPreserveTimes(eo.keepTimes),
		extract.WithMaxFileSize(maxSize),
		extract.WithLogger(opts.logger),
		extract.WithReaderOptions(unzip.WithLogger(opts.logger)),
	}
	if eo.progress {
		stderr := cmd.ErrOrStderr()
		xopts = append(xopts, extract.WithProgress(func(e extract.ProgressEvent) {
			if e.Stage == extract.StageExtracting {
				fmt.Fprintf(stderr, "[%d/%d] %s\n", e.FilesDone, e.FilesTotal, e.Path)
			}
		}))
	}
	x := extract.New(eo.dest, xopts...)

	var stats extract.Stats
	if eo.workers > 1 {
		stats, err = x.ExtractParallel(cmd.Context(), a.open, eo.workers)
	} else {
		stats, err = extractSerial(x, a, opts)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "extracted %s and %s (%s)",
		pluralize(stats.Files, "file", "files"),
		pluralize(stats.Dirs, "directory", "directories"),
		humanize.IBytes(stats.Bytes))
	if stats.Skipped > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), ", skipped %s", humanize.Comma(int64(stats.Skipped)))
	}
	fmt.Fprintln(cmd.OutOrStdout())
	if stats.Failed > 0 {
		return fmt.Errorf("%s failed", pluralize(stats.Failed, "entry", "entries"))
	}
	return nil
}

func extractSerial(x *extract.Extractor, a *archive, opts *globalOptions) (extract.Stats, error) {
	src, err := a.open()
	if err != nil {
		return extract.Stats{}, err
	}
	defer src.Close()
	return x.Extract(unzip.NewReader(src, unzip.WithLogger(opts.logger)))
}

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/meigma/unzip"
)

func newListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list ARCHIVE",
		Short: "List the entries of an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, opts, args[0])
		},
	}
}

func runList(cmd *cobra.Command, opts *globalOptions, target string) error {
	a, err := openArchive(cmd.Context(), opts, target)
	if err != nil {
		return err
	}
	defer a.Close()

	src, err := a.open()
	if err != nil {
		return err
	}
	defer src.Close()

	r := unzip.NewReader(src, unzip.WithLogger(opts.logger))
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tMETHOD\tCOMPRESSED\tSIZE\tMODIFIED\tOFFSET\tNAME")

	var total uint64
	count := 0
	for e, err := range r.Entries() {
		if err != nil {
			_ = w.Flush() //nolint:errcheck // report the walk error instead
			return err
		}
		modified := "-"
		if t := e.Header.Modified(); !t.IsZero() {
			modified = t.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
			e.Index,
			e.Header.Method,
			humanize.IBytes(uint64(e.Header.CompressedSize)),
			humanize.IBytes(uint64(e.Header.UncompressedSize)),
			modified,
			e.Header.Offset,
			e.Name)
		total += uint64(e.Header.UncompressedSize)
		count++
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s in %s\n", humanize.IBytes(total), pluralize(count, "entry", "entries"))
	return nil
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return humanize.Comma(int64(n)) + " " + many
}

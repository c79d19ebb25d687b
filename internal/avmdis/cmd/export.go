package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"avmdis/internal/avmdis/styles"
	"avmdis/internal/report"
	"avmdis/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Export decode results as JSON, CBOR or into a database",
	Long: `Decode method bodies and trait sections and write the results as a
report. The report goes to --out, to stdout when neither --out nor --db is
given, and into the SQLite database at --db for later queries with "runs".`,
	Example: `
# JSON report on stdout
avmdis export -m 0x40 -t 0x1f40 abc.bin

# Canonical CBOR file plus a database entry
avmdis export -m 0x40 --format cbor --out abc.cbor --db runs.sqlite abc.bin
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		methodArgs, _ := cmd.Flags().GetStringSlice("method")
		traitArgs, _ := cmd.Flags().GetStringSlice("traits")
		var opts exportOptions
		opts.out, _ = cmd.Flags().GetString("out")
		opts.markdown, _ = cmd.Flags().GetBool("markdown")
		opts.list, _ = cmd.Flags().GetBool("list")
		opts.format = cfg.Format
		if cmd.Flags().Changed("format") {
			opts.format, _ = cmd.Flags().GetString("format")
		}
		opts.db = cfg.DB
		if cmd.Flags().Changed("db") {
			opts.db, _ = cmd.Flags().GetString("db")
		}

		s, err := openSession(cfg, args[0])
		if err != nil {
			return err
		}
		defer s.Close()

		methods, err := s.addresses(methodArgs, len(traitArgs) == 0)
		if err != nil {
			return err
		}
		sections, err := s.addresses(traitArgs, false)
		if err != nil {
			return err
		}
		return runExport(cmd.Context(), cmd.OutOrStdout(), s, methods, sections, opts)
	},
}

func init() {
	exportCmd.Flags().StringSliceP("method", "m", nil, "Method body address (repeatable)")
	exportCmd.Flags().StringSliceP("traits", "t", nil, "Trait section address (repeatable)")
	exportCmd.Flags().StringP("format", "f", "json", "Report format: json or cbor")
	exportCmd.Flags().StringP("out", "o", "", "Write the report to this file")
	exportCmd.Flags().String("db", "", "Save the run into this SQLite database")
	exportCmd.Flags().Bool("markdown", false, "Print a rendered summary instead of the report")
	exportCmd.Flags().BoolP("list", "l", false, "Trait addresses hold bare trait lists")
	rootCmd.AddCommand(exportCmd)
}

type exportOptions struct {
	format   string
	out      string
	db       string
	markdown bool
	list     bool
}

// runExport decodes everything, then writes the report. Decode failures are
// part of the report and are also returned once all outputs are written.
func runExport(ctx context.Context, w io.Writer, s *session, methods, sections []uint64, opts exportOptions) error {
	ms, methodErr := s.decodeMethods(methods, false)
	ts, traitErr := s.decodeTraits(sections, opts.list)
	r := s.buildReport(ms, ts)
	r.RunID = store.NewRunID()

	if opts.out != "" {
		f, err := os.Create(opts.out)
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		if err := report.Encode(f, r, opts.format); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close report: %w", err)
		}
		slog.Info("Wrote report", "file", opts.out, "format", opts.format)
	}

	if opts.db != "" {
		st, err := store.Open(ctx, opts.db)
		if err != nil {
			return err
		}
		id, err := st.Save(ctx, r)
		if cerr := st.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "saved %s to %s\n", id, opts.db)
	}

	switch {
	case opts.markdown:
		out := report.Markdown(r)
		if colorEnabled(w, s.cfg) {
			out = styles.RenderMarkdown(out, 100)
		}
		if _, err := io.WriteString(w, out); err != nil {
			return err
		}
	case opts.out == "" && opts.db == "":
		if err := report.Encode(w, r, opts.format); err != nil {
			return err
		}
	}

	if methodErr != nil {
		return methodErr
	}
	return traitErr
}

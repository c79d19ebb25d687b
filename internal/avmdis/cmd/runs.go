package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"avmdis/internal/dumpx"
	"avmdis/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Query runs saved by export --db",
	Example: `
# List saved runs
avmdis runs --db runs.sqlite

# Every stored reference whose name contains ByteArray
avmdis runs --db runs.sqlite --xref ByteArray

# Instruction count of one method in one run
avmdis runs --db runs.sqlite --run run_... --method 0x40
  `,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db := cfg.DB
		if cmd.Flags().Changed("db") {
			db, _ = cmd.Flags().GetString("db")
		}
		if db == "" {
			return errors.New("no database: pass --db or set db in avmdis.toml")
		}
		var q runsQuery
		q.run, _ = cmd.Flags().GetString("run")
		q.xref, _ = cmd.Flags().GetString("xref")
		if m, _ := cmd.Flags().GetString("method"); m != "" {
			if q.run == "" {
				return errors.New("--method needs --run")
			}
			va, err := dumpx.ParseAddress(m)
			if err != nil {
				return err
			}
			q.method, q.hasMethod = va, true
		}

		st, err := store.Open(cmd.Context(), db)
		if err != nil {
			return err
		}
		defer st.Close()
		return runRuns(cmd.Context(), cmd.OutOrStdout(), st, q)
	},
}

func init() {
	runsCmd.Flags().String("db", "", "SQLite database written by export")
	runsCmd.Flags().String("run", "", "Restrict to this run id")
	runsCmd.Flags().String("xref", "", "Find stored references whose name contains this text")
	runsCmd.Flags().String("method", "", "Print the instruction count of this method (needs --run)")
	rootCmd.AddCommand(runsCmd)
}

type runsQuery struct {
	run       string
	xref      string
	method    uint64
	hasMethod bool
}

func runRuns(ctx context.Context, w io.Writer, st *store.Store, q runsQuery) error {
	switch {
	case q.hasMethod:
		n, err := st.InstructionCount(ctx, q.run, q.method)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s %#x: %d instructions\n", q.run, q.method, n)

	case q.xref != "":
		hits, err := st.FindXrefs(ctx, q.run, q.xref)
		if err != nil {
			return err
		}
		for _, h := range hits {
			line := fmt.Sprintf("%s %-8x %-6x %-16s %-6d %s", h.RunID, h.Method, h.Offset, h.Opcode, h.Index, h.Name)
			if len(h.Tags) > 0 {
				line += " [" + strings.Join(h.Tags, ",") + "]"
			}
			fmt.Fprintln(w, line)
		}

	default:
		runs, err := st.Runs(ctx)
		if err != nil {
			return err
		}
		for _, r := range runs {
			fmt.Fprintf(w, "%s  %s  %d methods, %d failed  %s\n",
				r.ID, r.Created.Format("2006-01-02 15:04:05"), r.Methods, r.Failed, r.File)
		}
	}
	return nil
}

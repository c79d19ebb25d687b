package cmd

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"avmdis/internal/analysis"
)

var xrefsCmd = &cobra.Command{
	Use:   "xrefs <file>",
	Short: "List class references made by method bodies",
	Long: `List the pool indices referenced by type and class instructions
(getlex, coerce, constructprop, findpropstrict and friends) in each method
body, with resolved names and detector tags.`,
	Example: `
# Everything referenced by one method
avmdis xrefs --names pool.json -m 0x40 abc.bin

# First reference into a crypto namespace
avmdis xrefs --names pool.json -m 0x40 --ns crypto --first abc.bin

# Raw indices only, one per line
avmdis xrefs --raw abc.bin
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		methodArgs, _ := cmd.Flags().GetStringSlice("method")
		var opts xrefOptions
		opts.raw, _ = cmd.Flags().GetBool("raw")
		opts.first, _ = cmd.Flags().GetBool("first")
		opts.namespace, _ = cmd.Flags().GetString("ns")
		if match, _ := cmd.Flags().GetString("match"); match != "" {
			re, err := regexp.Compile(match)
			if err != nil {
				return fmt.Errorf("invalid --match: %w", err)
			}
			opts.match = re
		}

		s, err := openSession(cfg, args[0])
		if err != nil {
			return err
		}
		defer s.Close()

		addrs, err := s.addresses(methodArgs, true)
		if err != nil {
			return err
		}
		return runXrefs(cmd.OutOrStdout(), s, addrs, opts)
	},
}

func init() {
	xrefsCmd.Flags().StringSliceP("method", "m", nil, "Method body address (repeatable)")
	xrefsCmd.Flags().String("match", "", "Only names matching this regular expression")
	xrefsCmd.Flags().String("ns", "", "Only names whose namespace contains this text")
	xrefsCmd.Flags().Bool("first", false, "Stop at the first match per method")
	xrefsCmd.Flags().Bool("raw", false, "Print bare pool indices")
	rootCmd.AddCommand(xrefsCmd)
}

type xrefOptions struct {
	raw       bool
	first     bool
	namespace string
	match     *regexp.Regexp
}

func (o xrefOptions) accept(x analysis.Xref) bool {
	if o.namespace != "" && !analysis.InNamespace(o.namespace)(x) {
		return false
	}
	return o.match == nil || o.match.MatchString(x.Name)
}

func runXrefs(w io.Writer, s *session, addrs []uint64, opts xrefOptions) error {
	// Only the code section matters here.
	methods, decodeErr := s.decodeMethods(addrs, true)
	for _, m := range methods {
		if m.Body == nil {
			continue
		}
		if opts.raw {
			for _, idx := range analysis.Xrefs(m.Body.Disassembly) {
				fmt.Fprintln(w, idx)
			}
			continue
		}

		if opts.first {
			x, ok := analysis.FindXref(m.Body.Disassembly, s.names, opts.accept)
			if ok {
				x = s.chain.Detect([]analysis.Xref{x})[0]
				fmt.Fprintln(w, formatXref(s.image.Base+uint64(x.Offset), x))
			}
			continue
		}
		for _, x := range m.Xrefs {
			if opts.accept(x) {
				fmt.Fprintln(w, formatXref(s.image.Base+uint64(x.Offset), x))
			}
		}
	}
	return decodeErr
}

// formatXref renders one reference made by the instruction at va.
func formatXref(va uint64, x analysis.Xref) string {
	name := x.Name
	if !x.Resolved {
		name = fmt.Sprintf("#%d", x.Index)
	}
	esc, hex := analysis.FormatRecovered([]byte(name))
	line := fmt.Sprintf("%-8x %-16s %-6d %s", va, x.Mnemonic(), x.Index, esc)
	if esc != name {
		// obfuscated names are easier to grep for in hex
		line += " <" + hex + ">"
	}
	if len(x.Tags) > 0 {
		line += " [" + strings.Join(x.Tags, ",") + "]"
	}
	if x.Comment != "" {
		line += " ; " + x.Comment
	}
	return line
}

package cmd

import (
	"io"

	"github.com/spf13/cobra"
)

var disCmd = &cobra.Command{
	Use:   "dis <file>",
	Short: "Print annotated listings of method bodies",
	Long: `Disassemble the method bodies at the given addresses. Each listing shows
the body header, one line per instruction with resolved pool names, labels
for branch targets and the exception table and activation traits.`,
	Example: `
# Disassemble the body at the start of a dump
avmdis dis method.bin

# Two bodies from a memory dump, names from a pool export
avmdis dis --names pool.json --base 0x10000000 -m 0x10000040 -m 0x10000200 dump.bin
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		methodArgs, _ := cmd.Flags().GetStringSlice("method")
		codeOnly, _ := cmd.Flags().GetBool("code-only")

		s, err := openSession(cfg, args[0])
		if err != nil {
			return err
		}
		defer s.Close()

		addrs, err := s.addresses(methodArgs, true)
		if err != nil {
			return err
		}
		return runDis(cmd.OutOrStdout(), s, addrs, codeOnly)
	},
}

func init() {
	disCmd.Flags().StringSliceP("method", "m", nil, "Method body address (repeatable)")
	disCmd.Flags().Bool("code-only", false, "Stop after the code section")
	rootCmd.AddCommand(disCmd)
}

// runDis writes one listing per address. Methods that fail to decode are
// listed with their error and reported together at the end.
func runDis(w io.Writer, s *session, addrs []uint64, codeOnly bool) error {
	methods, decodeErr := s.decodeMethods(addrs, codeOnly)
	for i, m := range methods {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if err := writeListing(w, s.cfg, s.listing(m)); err != nil {
			return err
		}
	}
	return decodeErr
}

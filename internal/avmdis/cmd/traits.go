package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"avmdis/internal/pool"
	"avmdis/internal/traits"
)

var traitsCmd = &cobra.Command{
	Use:   "traits <file>",
	Short: "Decode trait sections",
	Long: `Decode the class or instance trait section at each address. With --list
the address holds a bare trait list (count then records) as found in
script and method bodies.`,
	Example: `
# Instance traits of a class
avmdis traits --names pool.txt --at 0x1f40 abc.bin

# Only slots typed as ByteArray
avmdis traits --at 0x1f40 --slot-type flash.utils::ByteArray abc.bin
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		at, _ := cmd.Flags().GetStringSlice("at")
		list, _ := cmd.Flags().GetBool("list")
		var filter traitFilter
		filter.slotType, _ = cmd.Flags().GetString("slot-type")
		if kind, _ := cmd.Flags().GetString("kind"); kind != "" {
			k, err := parseKind(kind)
			if err != nil {
				return err
			}
			filter.kind, filter.hasKind = k, true
		}

		s, err := openSession(cfg, args[0])
		if err != nil {
			return err
		}
		defer s.Close()

		addrs, err := s.addresses(at, true)
		if err != nil {
			return err
		}
		return runTraits(cmd.OutOrStdout(), s, addrs, list, filter)
	},
}

func init() {
	traitsCmd.Flags().StringSliceP("at", "a", nil, "Trait section address (repeatable)")
	traitsCmd.Flags().BoolP("list", "l", false, "Addresses hold bare trait lists")
	traitsCmd.Flags().String("slot-type", "", "Only print slots declared with this type name")
	traitsCmd.Flags().String("kind", "", "Only print traits of this kind (slot, method, getter, setter, class, const)")
	rootCmd.AddCommand(traitsCmd)
}

type traitFilter struct {
	slotType string
	kind     traits.Kind
	hasKind  bool
}

func (f traitFilter) apply(t traits.Table, l pool.Lookup) traits.Table {
	if f.slotType != "" {
		t = t.SlotsOfType(l, f.slotType)
	}
	if f.hasKind {
		t = t.ByKind(f.kind)
	}
	return t
}

func parseKind(s string) (traits.Kind, error) {
	for _, k := range []traits.Kind{traits.Slot, traits.Method, traits.Getter, traits.Setter, traits.Class, traits.Const} {
		if k.String() == strings.ToLower(s) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown trait kind %q", s)
}

func runTraits(w io.Writer, s *session, addrs []uint64, list bool, filter traitFilter) error {
	sections, decodeErr := s.decodeTraits(addrs, list)
	for _, sec := range sections {
		fmt.Fprintf(w, "; traits %#x\n", sec.Address)
		if sec.Err != nil {
			fmt.Fprintf(w, "; error: %v\n", sec.Err)
		}
		for _, t := range filter.apply(sec.Traits, s.names) {
			fmt.Fprintln(w, formatTrait(t, s.names))
		}
	}
	return decodeErr
}

func formatTrait(t traits.Trait, l pool.Lookup) string {
	label := "id"
	switch {
	case t.IsMethodLike():
		label = "method"
	case t.Kind == traits.Class:
		label = "class"
	}
	line := fmt.Sprintf("%-8x %-8s %-40s %s=%d", t.Offset, t.Kind, displayName(t), label, t.ID)
	switch t.Kind {
	case traits.Slot, traits.Const:
		line += fmt.Sprintf(" type=%s", nameOrIndex(l, t.TypeIndex))
	}
	if t.Attrs&traits.AttrFinal != 0 {
		line += " final"
	}
	if t.Attrs&traits.AttrOverride != 0 {
		line += " override"
	}
	return line
}

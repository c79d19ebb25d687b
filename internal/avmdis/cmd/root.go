package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	pathpkg "path/filepath"
	"runtime/pprof"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"avmdis/internal/avmdis/log"
	"avmdis/internal/config"
)

// cfg is the merged configuration, set by the root PersistentPreRunE.
var cfg = config.Default()

func init() {
	rootCmd.PersistentFlags().StringP("cwd", "c", "", "Current working directory")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ./avmdis.toml when present)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")
	rootCmd.PersistentFlags().String("names", "", "Constant pool names file (.json or index/name text)")
	rootCmd.PersistentFlags().String("base", "", "Virtual address of the first dump byte")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable listing colorization")

	rootCmd.Flags().BoolP("help", "h", false, "Help")
	rootCmd.Flags().BoolP("no-tui", "n", false, "Show summary without TUI")
	rootCmd.Flags().StringSliceP("method", "m", nil, "Method body address (repeatable)")
	rootCmd.Flags().StringSliceP("traits", "t", nil, "Trait section address (repeatable)")
	rootCmd.Flags().String("cpuprofile", "", "Write CPU profile to file")
	rootCmd.Flags().String("memprofile", "", "Write memory profile to file")
}

var rootCmd = &cobra.Command{
	Use:   "avmdis [file]",
	Short: "Terminal-based AVM2 bytecode disassembler",
	Long: `Avmdis decodes AVM2 (ABC) method bodies and trait sections from raw
bytecode dumps. It lists instructions with resolved constant pool names,
extracts class references and exports the results for later queries.`,
	Example: `
# Browse a dumped method body interactively
avmdis dump.bin

# Summarize two methods of a memory dump taken at 0x10000000
avmdis --base 0x10000000 -m 0x10000040 -m 0x10000200 --no-tui dump.bin
  `,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := ResolveCwd(cmd); err != nil {
			return err
		}
		loaded, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg = loaded
		log.Setup(cfg.LogFile, cfg.Debug)
		if cfg.Path != "" {
			slog.Debug("Loaded config", "path", cfg.Path)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cpuprofile, _ := cmd.Flags().GetString("cpuprofile")
		if cpuprofile != "" {
			f, err := os.Create(cpuprofile)
			if err != nil {
				return fmt.Errorf("could not create CPU profile: %v", err)
			}
			defer f.Close()
			if err := pprof.StartCPUProfile(f); err != nil {
				return fmt.Errorf("could not start CPU profile: %v", err)
			}
			defer pprof.StopCPUProfile()
		}

		memprofile, _ := cmd.Flags().GetString("memprofile")
		if memprofile != "" {
			defer func() {
				f, err := os.Create(memprofile)
				if err != nil {
					fmt.Fprintf(os.Stderr, "could not create memory profile: %v\n", err)
					return
				}
				defer f.Close()
				if err := pprof.WriteHeapProfile(f); err != nil {
					fmt.Fprintf(os.Stderr, "could not write memory profile: %v\n", err)
				}
			}()
		}

		absPath, err := pathpkg.Abs(args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve path: %v", err)
		}
		if _, err := os.Stat(absPath); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("file not found: %s", args[0])
			}
			return fmt.Errorf("cannot access file: %v", err)
		}

		methodArgs, _ := cmd.Flags().GetStringSlice("method")
		traitArgs, _ := cmd.Flags().GetStringSlice("traits")
		noTUI, _ := cmd.Flags().GetBool("no-tui")

		if !term.IsTerminal(os.Stdout.Fd()) {
			noTUI = true
		}
		if noTUI {
			cfg.NoColor = true
		}

		s, err := openSession(cfg, absPath)
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

		if noTUI {
			return runNoTUI(cmd.OutOrStdout(), s, methods, sections)
		}

		program := tea.NewProgram(
			NewModel(s, methods, sections),
			tea.WithAltScreen(),
			tea.WithContext(cmd.Context()),
		)
		if _, err := program.Run(); err != nil {
			slog.Error("TUI run error", "error", err)
			return fmt.Errorf("TUI error: %v", err)
		}
		return nil
	},
}

// loadConfig reads the config file and applies flags on top of it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	c, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("debug") {
		c.Debug, _ = flags.GetBool("debug")
	}
	if flags.Changed("names") {
		c.Names, _ = flags.GetString("names")
	}
	if flags.Changed("base") {
		c.Base, _ = flags.GetString("base")
	}
	if flags.Changed("no-color") {
		c.NoColor, _ = flags.GetBool("no-color")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func Execute() {
	// fang renders help and errors as styled markdown; skip it when piped.
	noTUI := false
	for _, arg := range os.Args[1:] {
		if arg == "--no-tui" || arg == "-n" {
			noTUI = true
			break
		}
	}
	if !noTUI && !term.IsTerminal(os.Stdout.Fd()) {
		noTUI = true
	}

	var err error
	if noTUI {
		err = rootCmd.Execute()
	} else {
		err = fang.Execute(
			context.Background(),
			rootCmd,
			fang.WithNotifySignal(os.Interrupt),
		)
	}
	_ = log.Close()
	if err != nil {
		os.Exit(1)
	}
}

func ResolveCwd(cmd *cobra.Command) (string, error) {
	cwd, _ := cmd.Flags().GetString("cwd")
	if cwd != "" {
		err := os.Chdir(cwd)
		if err != nil {
			return "", fmt.Errorf("failed to change directory: %v", err)
		}
		return cwd, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %v", err)
	}
	return cwd, nil
}

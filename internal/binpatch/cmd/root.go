package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/pprof"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"binpatch/internal/logging"
	"binpatch/internal/report"
	"binpatch/internal/ui/colorize"
)

func init() {
	rootCmd.PersistentFlags().String("cwd", "", "Current working directory")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (default: binpatch.yaml next to the target or in the working directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")
	rootCmd.PersistentFlags().String("arch", "", "Architecture used to disassemble patch sites: amd64, 386 or arm64")

	rootCmd.Flags().BoolP("help", "h", false, "Help")
	rootCmd.Flags().Bool("dry-run", false, "Report the patches that would be applied without touching any file")
	rootCmd.Flags().Bool("no-binary-patch", false, "Validate the build only; skip binary patching")
	rootCmd.Flags().BoolP("no-tui", "n", false, "Print a summary instead of the interactive viewer")
	rootCmd.Flags().BoolP("json", "j", false, "Print the run report as JSON")
	rootCmd.Flags().Bool("notes", false, "Write "+report.NotesName+" next to the target (ignored with --dry-run)")
	rootCmd.Flags().String("history", "", "Record the run in this sqlite ledger")
	rootCmd.Flags().String("cpuprofile", "", "Write CPU profile to file")
	rootCmd.Flags().String("memprofile", "", "Write memory profile to file")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(historyCmd)
}

var rootCmd = &cobra.Command{
	Use:   "binpatch [target]",
	Short: "Patch byte signatures in an executable image",
	Long: `binpatch searches an executable image for a table of byte signatures and
overwrites every occurrence with a same-length replacement.

The original file is backed up once (target + ".backup") before the first
modification, the patched image is written back atomically and runs that find
nothing leave the file untouched.`,
	Example: `
# Patch a build, viewing the report interactively
binpatch ./Binaries/Win64/Client-Shipping.exe

# See what would change without touching anything
binpatch --dry-run -n ./Client-Shipping.exe

# Only check the build layout
binpatch --no-binary-patch ./Client-Shipping.exe
  `,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
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

		if _, err := ResolveCwd(cmd); err != nil {
			return err
		}

		opts := runOptions{Target: args[0]}
		opts.ConfigPath, _ = cmd.Flags().GetString("config")
		opts.Debug, _ = cmd.Flags().GetBool("debug")
		opts.Arch, _ = cmd.Flags().GetString("arch")
		opts.DryRun, _ = cmd.Flags().GetBool("dry-run")
		opts.NoBinaryPatch, _ = cmd.Flags().GetBool("no-binary-patch")
		opts.Notes, _ = cmd.Flags().GetBool("notes")
		opts.History, _ = cmd.Flags().GetString("history")

		noTUI, _ := cmd.Flags().GetBool("no-tui")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		// Also use no-tui mode when output is being piped
		if jsonOutput || !term.IsTerminal(os.Stdout.Fd()) {
			noTUI = true
		}
		if noTUI {
			os.Setenv(colorize.NoColorEnv, "1")
			return runNoTUI(cmd.OutOrStdout(), opts, jsonOutput)
		}

		// The viewer owns the screen; logs only go to a file when asked for.
		var lc *logging.LoggerCloser
		if os.Getenv("BINPATCH_LOG_TO_FILE") == "1" {
			lc = logging.NewLogger()
		} else {
			lc = logging.NewLoggerWithWriter(io.Discard)
		}
		defer lc.Close()

		program := tea.NewProgram(
			NewModel(opts, lc.Logger),
			tea.WithAltScreen(),
			tea.WithContext(cmd.Context()),
		)

		final, err := program.Run()
		if err != nil {
			slog.Error("TUI run error", "error", err)
			return fmt.Errorf("TUI error: %v", err)
		}
		if m, ok := final.(model); ok {
			return m.err
		}
		return nil
	},
}

func runNoTUI(w io.Writer, opts runOptions, jsonOutput bool) error {
	lc := logging.NewLogger()
	defer lc.Close()

	out, err := runPatch(opts, lc.Logger)
	if err != nil {
		return err
	}

	if out.Report == nil {
		if jsonOutput {
			bts, err := json.MarshalIndent(map[string]any{
				"target":  opts.Target,
				"status":  "skipped",
				"markers": out.Markers,
			}, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal report: %w", err)
			}
			fmt.Fprintln(w, string(bts))
			return nil
		}
		fmt.Fprintln(w, "Build structure valid; binary patching skipped.")
		return nil
	}

	if jsonOutput {
		bts, err := report.JSON(out.Report, out.reportOptions())
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		fmt.Fprintln(w, string(bts))
		return nil
	}

	fmt.Fprintln(w, report.Summary(out.Report))
	if prev := out.Previous; prev != nil {
		fmt.Fprintf(w, "Previous run #%d: %s, digest %s\n", prev.ID, prev.Status, prev.FinalDigest)
	}
	if out.Notes != "" {
		fmt.Fprintf(w, "Patch notes: %s\n", out.Notes)
	}
	return nil
}

func Execute() {
	// Bypass fang's rendering when printing plain or JSON output.
	noTUI := false
	for _, arg := range os.Args[1:] {
		if arg == "--no-tui" || arg == "-n" || arg == "--json" || arg == "-j" {
			noTUI = true
			break
		}
	}

	// Also bypass fang when output is being piped
	if !noTUI && !term.IsTerminal(os.Stdout.Fd()) {
		noTUI = true
	}

	if noTUI {
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
	} else {
		if err := fang.Execute(
			context.Background(),
			rootCmd,
			fang.WithNotifySignal(os.Interrupt),
		); err != nil {
			os.Exit(1)
		}
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

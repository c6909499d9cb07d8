package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"binpatch/internal/binpatch/styles"
	"binpatch/internal/config"
	"binpatch/internal/disasm"
	"binpatch/internal/engine"
	"binpatch/internal/imagex"
	"binpatch/internal/logging"
	"binpatch/internal/patch"
	"binpatch/internal/report"
	"binpatch/internal/ui/colorize"
)

var scanCmd = &cobra.Command{
	Use:   "scan [file]",
	Short: "List every site the pattern table matches, without patching",
	Long: `Scan runs the pattern table over a file in memory and prints each candidate
site with its section, symbol and disassembly. The file is never written and
no backup is created.`,
	Example: `
# Scan with the built-in patterns
binpatch scan ./Client-Shipping.exe

# Scan with a custom table
binpatch scan -c patterns.yaml ./libgame.so
  `,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !term.IsTerminal(os.Stdout.Fd()) {
			os.Setenv(colorize.NoColorEnv, "1")
		}
		configPath, _ := cmd.Flags().GetString("config")
		arch, _ := cmd.Flags().GetString("arch")
		debug, _ := cmd.Flags().GetBool("debug")
		return runScan(cmd.OutOrStdout(), args[0], configPath, arch, debug)
	},
}

func runScan(w io.Writer, file, configPath, arch string, debug bool) error {
	target, err := filepath.Abs(file)
	if err != nil {
		return fmt.Errorf("failed to resolve target: %w", err)
	}
	cfg, err := config.Load(configPath, filepath.Dir(target))
	if err != nil {
		return err
	}
	reg, err := cfg.Registry()
	if err != nil {
		return fmt.Errorf("invalid pattern table: %w", err)
	}

	lc := logging.NewLogger()
	defer lc.Close()
	lc.SetLevel(logging.ParseLevel(cfg.LogLevel))
	if debug {
		lc.SetLevel(logging.ParseLevel("debug"))
	}

	r, err := engine.New(reg, engine.Options{DryRun: true}, lc.Logger).Run(target)
	if err != nil {
		return err
	}

	im, err := imagex.Parse(r.Data)
	if err != nil {
		lc.Warn("Could not describe image", "error", err)
		im = &imagex.Image{}
	}
	if arch == "" {
		arch = cfg.Arch
	}
	if arch == "" {
		arch = im.Arch
	}

	fmt.Fprintln(w, styles.Title.Render("binpatch scan"))
	fmt.Fprintf(w, "%s %s (%s, %s)\n\n", styles.Label.Render("target"), target, im.Format, engine.FormatSize(r.Size))

	sites := report.Sites(r, report.Options{Image: im, Arch: arch, Data: r.Data})
	for _, m := range r.Matches {
		spec, _ := reg.Lookup(m.PatternID)
		header := fmt.Sprintf("%s  %s → %s", m.PatternID, patch.FormatHex(spec.Signature), patch.FormatHex(spec.Replacement))
		if m.Count == 0 {
			fmt.Fprintln(w, styles.Warning.Render(header+"  (not found, may not be needed)"))
			continue
		}
		fmt.Fprintln(w, styles.Success.Render(fmt.Sprintf("%s  (%d sites)", header, m.Count)))

		for _, site := range sites {
			if site.Pattern != m.PatternID {
				continue
			}
			fmt.Fprintf(w, "  %s\n", styles.Offset.Render(im.Locate(uint64(site.Offset)).String()))
			if len(site.BeforeAsm) == 0 {
				continue
			}
			lines := colorize.Stream(site.BeforeAsm, disasm.ParseArch(arch), site.Addr, site.Addr+uint64(len(spec.Signature)))
			for _, line := range strings.Split(lines, "\n") {
				fmt.Fprintf(w, "    %s\n", line)
			}
		}
	}

	fmt.Fprintf(w, "\n%d candidate sites, %d patterns\n", r.Candidates, reg.Len())
	return nil
}

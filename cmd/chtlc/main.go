// Command chtlc is the CHTL compiler's CLI driver (spec.md §6: "Typical
// invocation `chtlc <input> [-o <dir>]`; exit codes: `0` success, `1`
// fatal"). The driver is not part of the core: it reads files, writes the
// three generated channels to disk, and prints diagnostics.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chtl-lang/chtl/internal/driver"
	"github.com/chtl-lang/chtl/internal/loc"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	outDir     string
	lineEnding string
	quiet      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chtlc <input> [-o <dir>]",
		Short: "Compile a .chtl document into HTML, CSS and JavaScript",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}
	rootCmd.Flags().StringVarP(&outDir, "out", "o", ".", "output directory for the generated files")
	rootCmd.Flags().StringVar(&lineEnding, "line-ending", "\n", `line ending for generated output ("\n" or "\r\n")`)
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress the progress spinner")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	input := args[0]

	fileCfg, err := loadProjectConfig(filepath.Dir(input))
	if err != nil {
		return err
	}
	if fileCfg != nil {
		if !cmd.Flags().Changed("out") && fileCfg.OutDir != "" {
			outDir = fileCfg.OutDir
		}
		if !cmd.Flags().Changed("line-ending") && fileCfg.LineEnding != "" {
			lineEnding = fileCfg.LineEnding
		}
	}

	var bar *progressbar.ProgressBar
	if !quiet {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription(fmt.Sprintf("compiling %s", input)),
			progressbar.OptionSpinnerType(14),
		)
		defer bar.Finish()
	}

	opts := driver.Options{LineEnding: lineEnding}
	if fileCfg != nil {
		opts.OfficialModuleRoot = fileCfg.ModuleRoot
	}
	result, err := driver.Compile(input, opts)
	if err != nil {
		return err
	}

	printDiagnostics(input, result.Diagnostics)

	if !result.Success() {
		return fmt.Errorf("compilation of %s failed", input)
	}

	if err := writeOutputs(input, result); err != nil {
		return err
	}

	fmt.Println(color.GreenString("✓"), "compiled", input, "->", outDir)
	return nil
}

// projectConfig is the optional `chtlc.config.yaml` project file (spec.md
// §1.3): module search roots, output directory, line-ending mode. CLI
// flags the user actually passed take precedence over it.
type projectConfig struct {
	ModuleRoot string `yaml:"module_root"`
	OutDir     string `yaml:"out_dir"`
	LineEnding string `yaml:"line_ending"`
}

// loadProjectConfig reads `chtlc.config.yaml` from dir if present, or
// returns nil if it doesn't exist.
func loadProjectConfig(dir string) (*projectConfig, error) {
	path := filepath.Join(dir, "chtlc.config.yaml")
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg projectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func writeOutputs(input string, result driver.Result) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory %s: %w", outDir, err)
	}
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))

	channels := []struct {
		ext     string
		content string
	}{
		{".html", result.HTML},
		{".css", result.CSS},
		{".js", result.JS},
	}
	for _, ch := range channels {
		if ch.content == "" {
			continue
		}
		path := filepath.Join(outDir, stem+ch.ext)
		if err := os.WriteFile(path, []byte(ch.content), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	return nil
}

func printDiagnostics(input string, diags []loc.DiagnosticMessage) {
	for _, d := range diags {
		line := d.String()
		switch d.Severity {
		case loc.ErrorSeverity:
			fmt.Fprintln(os.Stderr, color.RedString(line))
		case loc.WarningSeverity:
			fmt.Fprintln(os.Stderr, color.YellowString(line))
		default:
			fmt.Fprintln(os.Stderr, line)
		}
	}
}

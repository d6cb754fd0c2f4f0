package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"docextract/internal/capability"
	"docextract/internal/logger"
)

var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "Check which external tools are available",
	Long: `Check whether the external tools needed for scanned-PDF processing are
installed and report what is missing, with install hints for this platform.

Text-based PDFs work without any external tools. Scanned PDFs additionally
need the poppler utilities (pdftoppm) for rasterization and a Tesseract
installation for local OCR.`,
	Example: `  # Human-readable report
  docextract capabilities

  # Machine-readable report
  docextract capabilities --json`,
	Args: cobra.NoArgs,
	RunE: runCapabilities,
}

// CapabilitiesOutput is the JSON output structure when --json is used.
type CapabilitiesOutput struct {
	RasterizationAvailable bool     `json:"rasterization_available"`
	PdftoppmPath           string   `json:"pdftoppm_path,omitempty"`
	PdfinfoPath            string   `json:"pdfinfo_path,omitempty"`
	TesseractPath          string   `json:"tesseract_path,omitempty"`
	Reasons                []string `json:"reasons,omitempty"`
	InstallHints           []string `json:"install_hints,omitempty"`
}

func init() {
	rootCmd.AddCommand(capabilitiesCmd)

	capabilitiesCmd.Flags().Bool("json", false, "Output as JSON")
}

func runCapabilities(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("capabilities")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	report := capability.New().Check()

	// Tesseract is linked in, but still needs its system installation with
	// language data at runtime.
	tesseractPath, tessErr := exec.LookPath("tesseract")

	log.Info().
		Bool("rasterization", report.RasterizationAvailable).
		Bool("tesseract", tessErr == nil).
		Msg("Capability check completed")

	if jsonOutput {
		out := CapabilitiesOutput{
			RasterizationAvailable: report.RasterizationAvailable,
			PdftoppmPath:           report.PdftoppmPath,
			PdfinfoPath:            report.PdfinfoPath,
			TesseractPath:          tesseractPath,
			Reasons:                report.Reasons,
			InstallHints:           report.InstallHints,
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Println("=== Docextract Capabilities ===")
	fmt.Println()
	printTool("pdftoppm (rasterization)", report.PdftoppmPath)
	printTool("pdfinfo  (page metadata)", report.PdfinfoPath)
	printTool("tesseract (local OCR)", tesseractPath)
	fmt.Println()

	if report.RasterizationAvailable && tessErr == nil {
		fmt.Println("All tools available. Scanned PDFs can be fully processed.")
		return nil
	}

	if !report.RasterizationAvailable {
		fmt.Println("Scanned PDFs will fall back to direct text extraction:")
		for _, reason := range report.Reasons {
			fmt.Printf("  - %s\n", reason)
		}
		fmt.Println()
	}
	if tessErr != nil {
		fmt.Println("Local OCR (OCR_ENGINE=tesseract) will fail without a tesseract installation.")
		fmt.Println()
	}

	if len(report.InstallHints) > 0 {
		fmt.Println("To install:")
		for _, hint := range report.InstallHints {
			fmt.Printf("  %s\n", hint)
		}
	}

	// Missing tools are reported, not an error: text-based PDFs still work.
	_ = os.Stdout.Sync()
	return nil
}

func printTool(name, path string) {
	if path != "" {
		fmt.Printf("  [ok]      %-28s %s\n", name, path)
	} else {
		fmt.Printf("  [missing] %s\n", name)
	}
}

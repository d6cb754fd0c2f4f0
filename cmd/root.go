package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"docextract/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "docextract",
	Short: "Docextract CLI - Extract text from PDF documents",
	Long: `Docextract CLI extracts text from PDF documents.

Text-based PDFs are read directly from their embedded text layer. Scanned
PDFs are rasterized page by page and run through a bounded pool of OCR
workers, with a graceful fallback to whatever direct text exists when the
OCR toolchain is unavailable or fails.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Info().
			Str("version", version).
			Msg("Docextract CLI executed")

		fmt.Println("Welcome to Docextract CLI!")
		fmt.Println("Use --help to see available commands and options.")
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}

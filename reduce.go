package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"file_reducer/notebook"
	"file_reducer/pdf"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	outputPath string
	pagesSpec  string
)

var notebookCmd = &cobra.Command{
	Use:   "notebook <input.ipynb>",
	Short: "Reduce a notebook file",
	Long: `Drops empty cells, truncates stream and error output longer than the
configured character budget and re-encodes PNG images.
Without -o, the result is written next to the input as <name>_reduced.ipynb.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNotebook(args[0])
	},
}

var pdfCmd = &cobra.Command{
	Use:   "pdf <input.pdf>",
	Short: "Compress the images of a PDF file",
	Long: `Scales every embedded image and re-encodes it as JPEG.
Without -o, the result is written next to the input as <name>_reduced.pdf.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPDF(cmd, args[0])
	},
}

func init() {
	notebookCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file")
	pdfCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file")
	pdfCmd.Flags().StringVarP(&pagesSpec, "pages", "p", "", "Pages to process, e.g. 1,3-5 (default: all)")
	rootCmd.AddCommand(notebookCmd, pdfCmd)
}

func runNotebook(inFile string) error {
	f, err := os.Open(inFile)
	if err != nil {
		return err
	}
	defer f.Close()

	nb, err := notebook.Read(f)
	if err != nil {
		return err
	}
	stats := notebook.NewReducer(notebook.Options{MaxOutputChars: cfg.Notebook.MaxOutputChars}, logger).Reduce(nb)

	var buf bytes.Buffer
	if err := nb.Write(&buf); err != nil {
		return err
	}

	outFile := defaultOutput(inFile, outputPath)
	if err := os.WriteFile(outFile, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outFile, err)
	}

	logger.Info("Notebook written",
		zap.String("output", outFile),
		zap.Int("cells_dropped", stats.CellsDropped),
		zap.Int("outputs_truncated", stats.OutputsTruncated),
		zap.Int("images_reencoded", stats.ImagesReencoded),
		zap.Int("images_skipped", stats.ImagesSkipped))
	return nil
}

func runPDF(cmd *cobra.Command, inFile string) error {
	data, err := os.ReadFile(inFile)
	if err != nil {
		return err
	}

	opts := pdf.Options{Scale: cfg.PDF.Scale, JPEGQuality: cfg.PDF.JPEGQuality, Pages: pagesSpec}
	var buf bytes.Buffer
	result, err := pdf.CompressPDF(cmd.Context(), bytes.NewReader(data), &buf, opts, logger)
	if err != nil {
		return err
	}

	outFile := defaultOutput(inFile, outputPath)
	if err := os.WriteFile(outFile, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outFile, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d → %d bytes (%.1f%% saved, %d/%d images recompressed)\n",
		outFile, result.OriginalSize, result.CompressedSize, result.CompressionRatio,
		result.ImagesRecompressed, result.ImagesFound)
	return nil
}

// defaultOutput returns explicit if set, otherwise <name>_reduced<ext> next to inFile.
func defaultOutput(inFile, explicit string) string {
	if explicit != "" {
		return explicit
	}
	ext := filepath.Ext(inFile)
	return strings.TrimSuffix(inFile, ext) + "_reduced" + ext
}

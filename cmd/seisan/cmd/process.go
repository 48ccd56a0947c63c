package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/batch"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/config"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/document"
)

// processCmd extracts fields from one or more PDFs.
var processCmd = &cobra.Command{
	Use:   "process [files or directories...]",
	Short: "Extract expense fields from receipt and invoice PDFs",
	Long: `Run each PDF through the extraction pipeline and print one result per
document. Directories are searched for *.pdf files.

Results below the confidence threshold are added to the manual review queue.

Examples:
  seisan process scan_0001.pdf
  seisan process scans/ --recursive --workers 4
  seisan process scans/ --format csv --output results.csv`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runProcessCommand,
}

func init() {
	rootCmd.AddCommand(processCmd)
	processCmd.Flags().IntP("workers", "w", 0, "documents processed in parallel (default from batch.workers)")
	processCmd.Flags().BoolP("recursive", "r", false, "search directories recursively")
	processCmd.Flags().StringSlice("exclude", nil, "file name patterns to skip (e.g. '*_draft.pdf')")
	processCmd.Flags().StringP("format", "f", "json", "output format: json, csv or text")
	processCmd.Flags().StringP("output", "o", "", "write results to file instead of stdout")
	processCmd.Flags().Bool("retry-ocr", false, "also run the fallback OCR engine when the primary produced text")
	processCmd.Flags().Bool("progress", false, "show a progress bar on stderr")
	processCmd.Flags().Bool("stats", false, "print batch statistics on stderr")
	processCmd.Flags().String("engine", "", "primary OCR engine: paddle or tesseract")
	processCmd.Flags().Bool("llm", false, "enable the LLM validator for mid-confidence results")
	processCmd.Flags().Bool("strict-filename-only", false, "queue results whose fields all came from the file name")
}

// applyProcessFlags overrides config values with the flags the user set.
func applyProcessFlags(cfg *config.Config, cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Batch.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("recursive") {
		cfg.Batch.Recursive, _ = flags.GetBool("recursive")
	}
	if flags.Changed("engine") {
		cfg.Pipeline.PrimaryEngine, _ = flags.GetString("engine")
	}
	if flags.Changed("llm") {
		cfg.Pipeline.EnableLLMValidator, _ = flags.GetBool("llm")
	}
	if flags.Changed("strict-filename-only") {
		cfg.Pipeline.StrictFilenameOnly, _ = flags.GetBool("strict-filename-only")
	}
	return cfg.Validate()
}

func runProcessCommand(cmd *cobra.Command, args []string) error {
	base, err := GetConfig()
	if err != nil {
		return err
	}
	cfg := *base
	if err := applyProcessFlags(&cfg, cmd); err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "json", "csv", "text":
	default:
		return fmt.Errorf("unsupported format %q (use json, csv or text)", format)
	}

	exclude, _ := cmd.Flags().GetStringSlice("exclude")
	files, err := batch.Discover(args, cfg.Batch.Recursive, exclude)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no PDF files found")
	}

	p, err := buildPipeline(&cfg)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer func() { _ = p.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := batch.Options{Workers: cfg.Batch.Workers}
	opts.RetryOCR, _ = cmd.Flags().GetBool("retry-ocr")
	if show, _ := cmd.Flags().GetBool("progress"); show {
		opts.Progress = batch.NewConsoleProgressCallback(cmd.ErrOrStderr(), "Processing")
	} else {
		opts.Progress = batch.NewLogProgressCallback(slog.Default(), slog.LevelDebug)
	}

	slog.Info("processing documents", "files", len(files), "workers", opts.Workers)
	result, runErr := batch.Run(ctx, p, files, opts)
	if result == nil {
		return runErr
	}

	output, _ := cmd.Flags().GetString("output")
	if err := result.SaveResults(format, output, cmd.OutOrStdout()); err != nil {
		return err
	}
	if stats, _ := cmd.Flags().GetBool("stats"); stats {
		result.PrintStats(cmd.ErrOrStderr())
	}
	if runErr != nil {
		return runErr
	}
	return inputFailures(result)
}

// inputFailures reports documents that could not be read at all. Queued and
// low-confidence documents are normal outcomes and do not fail the command.
func inputFailures(result *batch.Result) error {
	n := 0
	for _, item := range result.Items {
		if item.Err != nil && errors.Is(item.Err, document.ErrInput) {
			n++
		}
	}
	if n > 0 {
		return fmt.Errorf("%d of %d documents could not be read", n, len(result.Items))
	}
	return nil
}

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/queue"
)

// queueCmd groups the manual review queue commands.
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and maintain the manual review queue",
	Long: `Documents the pipeline could not extract with enough confidence are
appended to the manual review queue. These commands list, remove and export
its entries.`,
}

var queueListCmd = &cobra.Command{
	Use:          "list",
	Short:        "List queued documents",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := openQueue()
		if err != nil {
			return err
		}
		entries, err := q.List()
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		out := cmd.OutOrStdout()
		switch format {
		case "json":
			if entries == nil {
				entries = []queue.Entry{}
			}
			enc := json.NewEncoder(out)
			enc.SetEscapeHTML(false)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		case "text":
			if len(entries) == 0 {
				_, _ = fmt.Fprintln(out, "Queue is empty")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "FILE\tQUEUED AT\tCONFIDENCE\tREASONS")
			for _, e := range entries {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\n",
					e.File, e.Timestamp.Format("2006-01-02 15:04:05"), e.Confidence, strings.Join(e.FailureReasons, ","))
			}
			return tw.Flush()
		default:
			return fmt.Errorf("unsupported format %q (use json or text)", format)
		}
	},
}

var queueRemoveCmd = &cobra.Command{
	Use:          "remove <file>",
	Short:        "Remove every entry for a document after review",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := openQueue()
		if err != nil {
			return err
		}
		n, err := q.Remove(args[0])
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("no queue entry for %s", args[0])
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entr%s for %s\n", n, plural(n, "y", "ies"), args[0])
		return nil
	},
}

var queueExportCmd = &cobra.Command{
	Use:          "export <output.xlsx>",
	Short:        "Export the queue as an Excel workbook",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := openQueue()
		if err != nil {
			return err
		}
		entries, err := q.List()
		if err != nil {
			return err
		}
		f, err := os.Create(args[0]) //nolint:gosec // G304: output path from the user
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", args[0], err)
		}
		if err := queue.ExportXLSX(entries, f); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Exported %d entr%s to %s\n", len(entries), plural(len(entries), "y", "ies"), args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueListCmd, queueRemoveCmd, queueExportCmd)
	queueListCmd.Flags().StringP("format", "f", "text", "output format: text or json")
}

func openQueue() (*queue.Queue, error) {
	cfg, err := GetConfig()
	if err != nil {
		return nil, err
	}
	return queue.New(cfg.Pipeline.QueuePath), nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/menta2k/doc-scanner/internal/logger"
	"github.com/menta2k/doc-scanner/internal/utils"
	"github.com/menta2k/doc-scanner/pkg/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent exports",
	Long: `List the most recent exports recorded in the scan history. The history
persists only with STORE_DRIVER=postgres; the memory store starts empty on
every run. Records older than the retention period are removed on start.`,
	Example: `  doc-scanner history --limit 20
  doc-scanner history --type idcard --json
  doc-scanner history --clear`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().Int("limit", 0, "number of records (default from config)")
	historyCmd.Flags().String("type", "", "only document or idcard records")
	historyCmd.Flags().Bool("json", false, "output as JSON")
	historyCmd.Flags().Bool("clear", false, "delete every record and setting")
}

func runHistory(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("history")

	limit, _ := cmd.Flags().GetInt("limit")
	typeName, _ := cmd.Flags().GetString("type")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	clearAll, _ := cmd.Flags().GetBool("clear")

	var recordType types.ScanType
	switch strings.ToLower(typeName) {
	case "":
	case string(types.ScanTypeDocument):
		recordType = types.ScanTypeDocument
	case string(types.ScanTypeIDCard):
		recordType = types.ScanTypeIDCard
	default:
		return fmt.Errorf("unknown record type %q (use 'document' or 'idcard')", typeName)
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	scanner, err := openScanner(ctx)
	if err != nil {
		return err
	}
	defer scanner.Close()

	if clearAll {
		if err := scanner.Store().ClearAll(ctx); err != nil {
			return err
		}
		fmt.Println("History cleared")
		return nil
	}

	records, err := scanner.History(ctx, recordType, limit)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Println("No scans yet")
		return nil
	}

	size, err := scanner.Store().Size(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tTYPE\tPAGES\tFILE\tTEXT")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", r.Date.Local().Format("2006-01-02 15:04"), r.Type, r.PageCount, r.Filename, preview(r.OCRText, 40))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d records, %s stored\n", len(records), utils.FormatFileSize(size))
	return nil
}

func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n-1]) + "…"
}

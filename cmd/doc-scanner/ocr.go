package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/menta2k/doc-scanner/internal/logger"
	"github.com/menta2k/doc-scanner/pkg/types"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr [image-file]",
	Short: "Recognize the text of one image",
	Long: `Recognize the text of an image with the configured OCR backend and, unless
disabled, send it to the enhancement endpoint for clean-up.

Environment variables:
  OCR_BACKEND      - tesseract (default, needs a build with -tags ocr) or gcv
  GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS - for the gcv backend
  ENHANCE_URL      - enhancement endpoint, e.g. http://localhost:5000/enhance`,
	Example: `  doc-scanner ocr letter.jpg
  doc-scanner ocr letter.jpg --filter bw --json --progress`,
	Args: cobra.ExactArgs(1),
	RunE: runOCR,
}

// OCROutput is the JSON output of the ocr command
type OCROutput struct {
	Text          string       `json:"text"`
	OriginalText  string       `json:"original_text,omitempty"`
	Confidence    float64      `json:"confidence"`
	Enhanced      bool         `json:"enhanced"`
	Status        string       `json:"status,omitempty"`
	StatusMessage string       `json:"status_message,omitempty"`
	Lines         []types.Line `json:"lines,omitempty"`
	Duration      string       `json:"processing_duration"`
	FileName      string       `json:"file_name"`
}

func init() {
	rootCmd.AddCommand(ocrCmd)

	ocrCmd.Flags().String("filter", "original", "filter applied before recognition")
	ocrCmd.Flags().Bool("json", false, "output as JSON")
	ocrCmd.Flags().Bool("progress", false, "print progress to stderr")
	ocrCmd.Flags().Bool("no-enhance", false, "do not send the text for rewriting")
	ocrCmd.Flags().Bool("auto-crop", false, "crop to the detected page before recognition")
}

func runOCR(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ocr")

	filterName, _ := cmd.Flags().GetString("filter")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	showProgress, _ := cmd.Flags().GetBool("progress")
	noEnhance, _ := cmd.Flags().GetBool("no-enhance")
	autoCrop, _ := cmd.Flags().GetBool("auto-crop")

	filter, err := types.ParseFilterKind(filterName)
	if err != nil {
		return err
	}

	if noEnhance {
		cfg.Enhance.Enabled = false
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	scanner, err := openScanner(ctx)
	if err != nil {
		return err
	}
	defer scanner.Close()

	page := scanner.NewPageSession()
	if err := addPage(ctx, page, args[0], nil, autoCrop, filter, 0); err != nil {
		return err
	}
	info := scanner.Processor().GetImageInfo(page.State().Pages[0].Image)
	log.Debug().Int("width", info.Width).Int("height", info.Height).Float64("aspect_ratio", info.AspectRatio).Msg("Image loaded")

	var progress chan types.Progress
	done := make(chan struct{})
	if showProgress {
		progress = make(chan types.Progress, 16)
		go func() {
			defer close(done)
			for p := range progress {
				fmt.Fprintf(os.Stderr, "%-13s %3.0f%%\n", p.Phase, p.Value*100)
			}
		}()
	} else {
		close(done)
	}

	res, err := page.Recognize(ctx, 0, progress)
	if progress != nil {
		close(progress)
	}
	<-done
	if err != nil {
		return err
	}

	log.Info().
		Str("file", args[0]).
		Int("chars", len(res.Text)).
		Bool("enhanced", res.Enhanced).
		Dur("elapsed", res.Elapsed).
		Msg("OCR processing completed")

	if !jsonOutput {
		if res.Text == "" {
			fmt.Fprintln(os.Stderr, res.StatusMessage)
			return nil
		}
		fmt.Println(res.Text)
		return nil
	}

	out := OCROutput{
		Text:          res.Text,
		OriginalText:  res.OriginalText,
		Confidence:    res.Confidence,
		Enhanced:      res.Enhanced,
		Status:        string(res.Status),
		StatusMessage: res.StatusMessage,
		Lines:         res.Lines,
		Duration:      res.Elapsed.String(),
		FileName:      args[0],
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

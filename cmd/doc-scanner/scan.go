package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/menta2k/doc-scanner/internal/logger"
	"github.com/menta2k/doc-scanner/internal/utils"
	"github.com/menta2k/doc-scanner/pkg/session"
	"github.com/menta2k/doc-scanner/pkg/types"
)

var scanCmd = &cobra.Command{
	Use:   "scan [image-directory-or-url...]",
	Short: "Combine images into a multi-page PDF",
	Long: `Each image becomes one page, in argument order. Directories are searched
recursively for images and http(s) URLs are downloaded. Every page gets the
same crop and filter.

With --ocr the text of every page is recognized and appended to the PDF
after the images.`,
	Example: `  # Two pages, grayscale
  doc-scanner scan page1.jpg page2.jpg --filter grayscale

  # Crop, black and white, with recognized text
  doc-scanner scan receipt.jpg --crop 40,60,900,1200 --filter bw --ocr

  # Every photo in a folder, cropped to the page
  doc-scanner scan ./photos --auto-crop --filter magic`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().String("filter", "original", "page filter: original, grayscale, bw, magic")
	scanCmd.Flags().String("crop", "", "crop region in pixels: x,y,width,height")
	scanCmd.Flags().Bool("auto-crop", false, "crop each image to the detected page")
	scanCmd.Flags().Bool("ocr", false, "recognize text and append it to the PDF")
	scanCmd.Flags().Bool("no-enhance", false, "do not send recognized text for rewriting")
	scanCmd.Flags().String("save-pages", "", "also write the filtered pages as images: jpg, png or webp")
}

func runScan(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("scan")

	filterName, _ := cmd.Flags().GetString("filter")
	cropSpec, _ := cmd.Flags().GetString("crop")
	autoCrop, _ := cmd.Flags().GetBool("auto-crop")
	withOCR, _ := cmd.Flags().GetBool("ocr")
	noEnhance, _ := cmd.Flags().GetBool("no-enhance")
	pageFormat, _ := cmd.Flags().GetString("save-pages")

	filter, err := types.ParseFilterKind(filterName)
	if err != nil {
		return err
	}
	var region *types.CropRegion
	if cropSpec != "" {
		r, err := parseCrop(cropSpec)
		if err != nil {
			return err
		}
		region = &r
	}

	inputs, err := expandInputs(args)
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
	for i, in := range inputs {
		if err := addPage(ctx, page, in, region, autoCrop, filter, i); err != nil {
			return fmt.Errorf("%s: %w", in, err)
		}
		if pageFormat != "" {
			img := page.State().Pages[i].Image
			path := utils.PageFilename(in, cfg.Output.OutputDir, i, pageFormat)
			if err := scanner.Processor().SaveImage(img, path, pageFormat); err != nil {
				return err
			}
			log.Info().Str("path", path).Msg("Page saved")
		}
	}

	if withOCR {
		var texts []string
		for i := range inputs {
			res, err := page.Recognize(ctx, i, nil)
			if err != nil {
				return fmt.Errorf("recognize page %d: %w", i+1, err)
			}
			logResult(log, i, res.Status, res.StatusMessage)
			if res.Text != "" {
				texts = append(texts, res.Text)
			}
		}
		page.SetText(strings.Join(texts, "\n\n"))
	}

	out, err := page.Export(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s (%d pages, %s)\n", out.Location, len(inputs), utils.FormatFileSize(int64(out.Size)))
	return nil
}

func addPage(ctx context.Context, page *session.PageSession, source string, region *types.CropRegion, autoCrop bool, filter types.FilterKind, index int) error {
	if err := page.UploadFile(ctx, source); err != nil {
		return err
	}
	switch {
	case region != nil:
		if err := page.Crop(*region); err != nil {
			return err
		}
	case autoCrop:
		if _, err := page.AutoCrop(); err != nil {
			return err
		}
	default:
		if err := page.CancelCrop(); err != nil {
			return err
		}
	}
	if err := page.AddPage(); err != nil {
		return err
	}
	return page.ApplyFilter(index, filter)
}

func logResult(log zerolog.Logger, index int, status types.EnhancementStatus, msg string) {
	log.Info().Int("page", index+1).Str("status", string(status)).Msg(msg)
}

func expandInputs(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		if isURL(arg) {
			out = append(out, arg)
			continue
		}
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		files, err := utils.ListImageFiles(arg)
		if err != nil {
			return nil, err
		}
		out = append(out, files...)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no images found")
	}
	return out, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func parseCrop(s string) (types.CropRegion, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return types.CropRegion{}, fmt.Errorf("crop must be x,y,width,height: %q", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return types.CropRegion{}, fmt.Errorf("crop: %w", err)
		}
		v[i] = n
	}
	return types.CropRegion{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, nil
}

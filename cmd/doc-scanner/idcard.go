package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/menta2k/doc-scanner/internal/logger"
	"github.com/menta2k/doc-scanner/internal/utils"
	"github.com/menta2k/doc-scanner/pkg/types"
)

var idcardCmd = &cobra.Command{
	Use:   "idcard [front-image] [back-image]",
	Short: "Combine both sides of an ID card into a one-page PDF",
	Example: `  doc-scanner idcard front.jpg back.jpg
  doc-scanner idcard front.jpg back.jpg --grayscale --preview card.png`,
	Args: cobra.ExactArgs(2),
	RunE: runIDCard,
}

func init() {
	rootCmd.AddCommand(idcardCmd)

	idcardCmd.Flags().Bool("grayscale", false, "render the card in grayscale")
	idcardCmd.Flags().String("preview", "", "also write the combined image to this path")
}

func runIDCard(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("idcard")

	grayscale, _ := cmd.Flags().GetBool("grayscale")
	preview, _ := cmd.Flags().GetString("preview")

	ctx, cancel := signalContext(log)
	defer cancel()

	scanner, err := openScanner(ctx)
	if err != nil {
		return err
	}
	defer scanner.Close()

	card := scanner.NewCardSession()
	for _, path := range args {
		if err := card.UploadFile(ctx, path); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	if grayscale {
		if err := card.SetColorMode(types.ColorModeGrayscale); err != nil {
			return err
		}
	}

	if preview != "" {
		img, err := card.Combined()
		if err != nil {
			return err
		}
		if err := scanner.Processor().SaveImage(img, preview, ""); err != nil {
			return err
		}
		log.Info().Str("path", preview).Msg("Preview saved")
	}

	out, err := card.Export(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s (%s)\n", out.Location, utils.FormatFileSize(int64(out.Size)))
	return nil
}

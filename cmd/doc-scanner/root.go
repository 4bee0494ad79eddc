package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	docscanner "github.com/menta2k/doc-scanner"
	"github.com/menta2k/doc-scanner/internal/config"
	"github.com/menta2k/doc-scanner/internal/logger"
	"github.com/menta2k/doc-scanner/internal/utils"
	"github.com/menta2k/doc-scanner/pkg/exporter"
)

var cfg = config.Default()

var rootCmd = &cobra.Command{
	Use:   "doc-scanner",
	Short: "Scan documents and ID cards into PDFs with OCR",
	Long: `doc-scanner crops and filters photos of documents, recognizes their text
with Tesseract or Google Cloud Vision, optionally cleans the text up with a
language model, and exports everything as a PDF.

Configuration is read from ~/.config/doc-scanner/config.json (or --config)
and overridden by environment variables, including a .env file in the
working directory.`,
	Version:           docscanner.Version,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log := logger.WithComponent("cmd")
		log.Error().Err(err).Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default ~/.config/doc-scanner/config.json)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().String("language", "", "OCR language, e.g. eng or eng+fra")
	rootCmd.PersistentFlags().StringP("out", "o", "", "output directory for exported files")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	explicit := path != ""
	if !explicit {
		path = config.GetConfigPath()
	}
	if explicit || utils.FileExists(path) {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v, _ := cmd.Flags().GetString("language"); v != "" {
		cfg.OCR.Language = v
	}
	if v, _ := cmd.Flags().GetString("out"); v != "" {
		cfg.Output.OutputDir = v
	}

	if err := logger.Setup(cfg.Log); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg.Validate()
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().Str("signal", sig.String()).Msg("Received interrupt signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

func scannerOptions() docscanner.Options {
	opts := docscanner.DefaultOptions()
	opts.Processing.JPEGQuality = cfg.Processing.JPEGQuality
	opts.Processing.SupportedFormats = cfg.Processing.SupportedFormats
	opts.Processing.MinImageSize = cfg.Processing.MinImageSize
	opts.OCRBackend = cfg.OCR.Backend
	opts.Language = cfg.OCR.Language
	opts.GoogleCredentialsJSON = cfg.OCR.CredentialsJSON
	opts.GoogleCredentialsFile = cfg.OCR.CredentialsFile
	opts.EnhanceEnabled = cfg.Enhance.Enabled
	opts.EnhanceURL = cfg.Enhance.URL
	opts.EnhanceTimeout = cfg.Enhance.Timeout()
	opts.StoreDriver = cfg.Store.Driver
	opts.DatabaseURL = cfg.Store.DatabaseURL
	opts.RetentionHours = cfg.Store.RetentionHours
	opts.HistoryLimit = cfg.Store.HistoryLimit
	opts.OutputDir = cfg.Output.OutputDir
	opts.TextFontFile = cfg.Output.TextFontFile
	opts.FacingMode = cfg.Capture.FacingMode
	opts.CaptureWidth = cfg.Capture.Width
	opts.CaptureHeight = cfg.Capture.Height
	opts.Clipboard = exporter.WriterClipboard{W: os.Stdout}
	return opts
}

func openScanner(ctx context.Context) (*docscanner.Scanner, error) {
	if err := utils.EnsureDir(cfg.Output.OutputDir); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	s, err := docscanner.New(ctx, scannerOptions())
	if err != nil {
		return nil, err
	}
	if _, err := s.Cleanup(ctx); err != nil && !errors.Is(err, context.Canceled) {
		l := logger.WithComponent("cmd")
		l.Warn().Err(err).Msg("History cleanup failed")
	}
	return s, nil
}

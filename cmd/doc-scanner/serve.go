package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/menta2k/doc-scanner/internal/logger"
	"github.com/menta2k/doc-scanner/pkg/client"
	"github.com/menta2k/doc-scanner/pkg/deepseek"
	"github.com/menta2k/doc-scanner/pkg/llamacpp"
	"github.com/menta2k/doc-scanner/pkg/ocr"
	"github.com/menta2k/doc-scanner/pkg/ocr/gcv"
	"github.com/menta2k/doc-scanner/pkg/ocr/tesseract"
	"github.com/menta2k/doc-scanner/pkg/ollama"
	"github.com/menta2k/doc-scanner/pkg/processing"
	"github.com/menta2k/doc-scanner/pkg/ratelimit"
	"github.com/menta2k/doc-scanner/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the text enhancement endpoint",
	Long: `Serve POST /enhance (also /api/enhance-text), which rewrites raw OCR text
with a language model, and POST /api/ocr for one-shot recognition.

Requests are rate limited per client. Set REDIS_URL to share the limit
between several instances; otherwise it is kept in memory.

Backends (REWRITE_BACKEND):
  deepseek - DeepSeek chat API, needs DEEPSEEK_API_KEY
  ollama   - local Ollama server (REWRITE_URL, default http://localhost:11434)
  llamacpp - llama.cpp server (REWRITE_URL, default http://localhost:8080)`,
	Example: `  DEEPSEEK_API_KEY=sk-... doc-scanner serve
  REWRITE_BACKEND=ollama REWRITE_MODEL=llama3.1 doc-scanner serve --addr :8081`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default :5000)")
	serveCmd.Flags().Bool("no-ocr", false, "disable the /api/ocr route")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	noOCR, _ := cmd.Flags().GetBool("no-ocr")

	ctx, cancel := signalContext(log)
	defer cancel()

	rewriter, err := newRewriter()
	switch {
	case errors.Is(err, deepseek.ErrMissingAPIKey):
		log.Warn().Msg("DEEPSEEK_API_KEY not set, enhancement requests will answer 503")
	case err != nil:
		return err
	}

	var limiter ratelimit.Limiter
	if cfg.Server.RedisURL != "" {
		rl, err := ratelimit.NewRedis(cfg.Server.RedisURL, cfg.Server.RateLimit, cfg.Server.Window())
		if err != nil {
			return err
		}
		defer rl.Close()
		if err := rl.Ping(ctx); err != nil {
			return fmt.Errorf("redis unreachable: %w", err)
		}
		limiter = rl
	} else {
		limiter = ratelimit.NewMemory(cfg.Server.RateLimit, cfg.Server.Window())
	}

	srvCfg := server.Config{
		Addr:      cfg.Server.Addr,
		Rewriter:  rewriter,
		Model:     cfg.Server.Model,
		Limiter:   limiter,
		Processor: processing.NewProcessorWithConfig(processing.Config{
			JPEGQuality:      cfg.Processing.JPEGQuality,
			SupportedFormats: cfg.Processing.SupportedFormats,
			MinImageSize:     cfg.Processing.MinImageSize,
		}),
		Language: cfg.OCR.Language,
	}
	if !noOCR {
		engine := newEngine()
		engine.Acquire()
		defer engine.Release()
		srvCfg.OCR = engine
	}

	log.Info().
		Str("addr", cfg.Server.Addr).
		Str("backend", cfg.Server.Backend).
		Bool("rewrite", rewriter != nil).
		Bool("redis", cfg.Server.RedisURL != "").
		Msg("Starting server")

	return server.New(srvCfg).ListenAndServe(ctx)
}

func newRewriter() (client.TextClient, error) {
	switch cfg.Server.Backend {
	case "deepseek":
		c, err := deepseek.NewClient(cfg.Server.APIKey, cfg.Server.BaseURL, cfg.Server.Model)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "ollama":
		c, err := ollama.NewClient(cfg.Server.BaseURL, cfg.Server.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return c, nil
	case "llamacpp":
		c, err := llamacpp.NewClient(cfg.Server.BaseURL, cfg.Server.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown backend: %s (use 'deepseek', 'ollama' or 'llamacpp')", cfg.Server.Backend)
}

func newEngine() *ocr.Engine {
	l := logger.WithComponent("ocr")
	if cfg.OCR.Backend == "gcv" {
		return ocr.NewEngine(gcv.NewFactory(gcv.Config{
			CredentialsJSON: cfg.OCR.CredentialsJSON,
			CredentialsFile: cfg.OCR.CredentialsFile,
		}), ocr.WithLogger(l))
	}
	return ocr.NewEngine(tesseract.NewFactory(), ocr.WithAvailability(tesseract.Available()), ocr.WithLogger(l))
}

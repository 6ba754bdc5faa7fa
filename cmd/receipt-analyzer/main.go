package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/zombor/receipt-analyzer/internal/receipt"
	"github.com/zombor/receipt-analyzer/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("receipt-analyzer")
	var (
		port             = fs.IntLong("port", 8080, "HTTP server port")
		dbPath           = fs.StringLong("db", "receipts.db", "Database file path")
		storeType        = fs.StringLong("store", "bolt", "Store type: 'bolt' or 'sqlite'")
		recognizerType   = fs.StringLong("recognizer", "tesseract", "Recognizer type: 'tesseract', 'gemini' or 'ollama'")
		tesseractPath    = fs.StringLong("tesseract-path", scanning.DefaultTesseractPath, "Path to the tesseract executable")
		tesseractLang    = fs.StringLong("tesseract-lang", "eng", "Tesseract language(s), e.g. eng or eng+fra")
		tesseractPSM     = fs.IntLong("tesseract-psm", 0, "Tesseract page segmentation mode (0 uses the engine default)")
		tessdataDir      = fs.StringLong("tessdata-dir", "", "Tesseract tessdata directory (optional)")
		geminiKey        = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel      = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL        = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel      = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, qwen2-vl)")
		recognizeTimeout = fs.DurationLong("recognize-timeout", receipt.DefaultRecognizeTimeout, "Timeout for a single recognition call (0 disables)")
		recognizeRate    = fs.Float64Long("recognize-rate", 0, "Maximum recognition calls per second (0 is unlimited)")
		recognizeBurst   = fs.IntLong("recognize-burst", 1, "Recognition calls allowed in a burst")
		authUser         = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass         = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		_                = fs.StringLong("config", "", "Config file (optional)")
		showVersion      = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_ANALYZER"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	slog.Info("Initializing database...", "store", *storeType, "path", *dbPath)
	db, err := openStore(*storeType, *dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize recognizer based on type
	var recognizer scanning.Recognizer
	switch *recognizerType {
	case "tesseract":
		slog.Info("Initializing Tesseract recognizer...", "path", *tesseractPath, "lang", *tesseractLang)
		recognizer = scanning.NewTesseract(scanning.TesseractConfig{
			Path:        *tesseractPath,
			Lang:        *tesseractLang,
			PSM:         *tesseractPSM,
			TessdataDir: *tessdataDir,
		})
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini recognizer...", "model", *geminiModel)
		recognizer, err = scanning.NewGemini(ctx, apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama recognizer...", "url", *ollamaURL, "model", *ollamaModel)
		recognizer, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid recognizer type", "type", *recognizerType, "valid", "tesseract, gemini or ollama")
		os.Exit(1)
	}
	if *recognizeRate > 0 {
		slog.Info("Rate limiting recognition", "per_second", *recognizeRate, "burst", *recognizeBurst)
		recognizer = scanning.NewRateLimited(recognizer, *recognizeRate, *recognizeBurst)
	}
	defer recognizer.Close()

	// Initialize service
	receiptService := receipt.NewService(db, recognizer)
	receiptService.SetRecognizeTimeout(*recognizeTimeout)

	// Initialize server
	basicAuth := receipt.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           receipt.NewServer(receiptService, basicAuth),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", httpServer.Addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal or a listener failure
	select {
	case <-ctx.Done():
	case err := <-errCh:
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown error", "error", err)
	}
}

// openStore opens the configured receipt store
func openStore(kind, path string) (receipt.DB, error) {
	switch kind {
	case "bolt":
		return receipt.NewBoltDB(path)
	case "sqlite":
		return receipt.NewSQLiteDB(path)
	default:
		return nil, fmt.Errorf("invalid store type %q (valid: bolt or sqlite)", kind)
	}
}

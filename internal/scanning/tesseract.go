package scanning

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os/exec"
	"strconv"
	"strings"
)

// DefaultTesseractPath is used when no engine location is configured.
// It is resolved through $PATH.
const DefaultTesseractPath = "tesseract"

// TesseractConfig configures the tesseract command line
type TesseractConfig struct {
	Path        string // binary name or absolute path; empty means DefaultTesseractPath
	Lang        string // default "eng"
	PSM         int    // page segmentation mode; 0 leaves tesseract's default
	TessdataDir string
}

// Runner executes an external command with stdin and returns its stdout.
type Runner interface {
	Run(ctx context.Context, stdin []byte, name string, args ...string) (stdout []byte, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return stdout.Bytes(), stderr.Bytes(), ctxErr
	}
	return stdout.Bytes(), stderr.Bytes(), err
}

// Tesseract implements the Recognizer interface by piping the bitmap into
// the tesseract binary.
type Tesseract struct {
	cfg    TesseractConfig
	runner Runner
}

// NewTesseract creates a new Tesseract recognizer
func NewTesseract(cfg TesseractConfig) *Tesseract {
	return NewTesseractWithRunner(cfg, execRunner{})
}

// NewTesseractWithRunner creates a Tesseract recognizer with a custom runner for testing
func NewTesseractWithRunner(cfg TesseractConfig, runner Runner) *Tesseract {
	if cfg.Path == "" {
		cfg.Path = DefaultTesseractPath
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	return &Tesseract{cfg: cfg, runner: runner}
}

// Path returns the engine location in use
func (t *Tesseract) Path() string {
	return t.cfg.Path
}

// args builds: tesseract stdin stdout -l <lang> [--psm N] [--tessdata-dir D]
func (t *Tesseract) args() []string {
	args := []string{"stdin", "stdout", "-l", t.cfg.Lang}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(t.cfg.PSM))
	}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	return args
}

// Recognize runs tesseract on img
func (t *Tesseract) Recognize(ctx context.Context, img image.Image) (string, error) {
	data, err := encodePNG(img)
	if err != nil {
		return "", err
	}

	out, errOut, err := t.runner.Run(ctx, data, t.cfg.Path, t.args()...)
	if err != nil {
		if msg := strings.TrimSpace(string(errOut)); msg != "" {
			return "", fmt.Errorf("running %s: %w: %s", t.cfg.Path, err, msg)
		}
		return "", fmt.Errorf("running %s: %w", t.cfg.Path, err)
	}
	return string(out), nil
}

// Close is a no-op; each call spawns its own process
func (t *Tesseract) Close() error {
	return nil
}

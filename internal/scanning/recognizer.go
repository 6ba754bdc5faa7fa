package scanning

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"
)

var (
	// ErrUnreadableInput is returned when uploaded bytes cannot be decoded
	// into an image or a document page.
	ErrUnreadableInput = errors.New("unreadable input")

	// ErrRecognitionFailed is returned when the text recognition engine
	// errors or times out.
	ErrRecognitionFailed = errors.New("text recognition failed")

	// ErrAmountUnresolved is returned when no monetary value can be found
	// in the recognized text.
	ErrAmountUnresolved = errors.New("amount not found in receipt")
)

// Recognizer turns a normalized bitmap into raw text.
// The returned text may be empty or garbled; callers must not assume structure.
type Recognizer interface {
	// Recognize runs text recognition on img
	Recognize(ctx context.Context, img image.Image) (string, error)
	// Close releases any resources held by the recognizer
	Close() error
}

// transcribePrompt is shared by the LLM-backed recognizers. They are used
// as plain OCR engines; field extraction stays in this package.
const transcribePrompt = `You are an OCR engine. Transcribe every piece of text visible in this receipt image exactly as printed.

Rules:
- Keep the original line breaks, one printed line per output line, top to bottom
- Do not summarize, translate, correct, or reformat numbers and dates
- Do not add commentary, headings, or explanations
- Do not use markdown code blocks
- If the image contains no readable text, return an empty response`

// encodePNG encodes img as PNG for engines that take encoded images.
func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// cleanTranscript strips markdown fences some models add despite the prompt.
func cleanTranscript(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```text")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

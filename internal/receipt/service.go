package receipt

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"time"

	"github.com/zombor/receipt-analyzer/internal/scanning"
)

// ErrUnsupportedExtension is returned for uploads outside AllowedExtensions
var ErrUnsupportedExtension = errors.New("unsupported file extension")

// AllowedExtensions are the upload file extensions accepted for processing
var AllowedExtensions = []string{".jpg", ".jpeg", ".png", ".pdf"}

// DefaultRecognizeTimeout bounds a single recognizer call
const DefaultRecognizeTimeout = 60 * time.Second

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service runs the extraction pipeline and serves stored receipts
type Service struct {
	db               DB
	recognizer       scanning.Recognizer
	timeSource       TimeSource
	recognizeTimeout time.Duration
}

// NewService creates a new Service with the default time source
func NewService(db DB, recognizer scanning.Recognizer) *Service {
	return NewServiceWithDeps(db, recognizer, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, recognizer scanning.Recognizer, timeSrc TimeSource) *Service {
	return &Service{
		db:               db,
		recognizer:       recognizer,
		timeSource:       timeSrc,
		recognizeTimeout: DefaultRecognizeTimeout,
	}
}

// SetRecognizeTimeout changes the per-call recognizer timeout. Zero disables it.
func (s *Service) SetRecognizeTimeout(d time.Duration) {
	s.recognizeTimeout = d
}

// checkExtension validates the file name before any bytes are decoded
func checkExtension(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return ext, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedExtension, ext)
}

// ProcessReceipt normalizes an upload, recognizes its text, extracts the
// fields and stores the result. Nothing is stored when any step fails.
func (s *Service) ProcessReceipt(ctx context.Context, filename string, data []byte, contentType, category string) (*Receipt, error) {
	logger := LoggerFromContext(ctx).With("filename", filename)

	ext, err := checkExtension(filename)
	if err != nil {
		return nil, err
	}

	now := s.timeSource.Now()
	kind := scanning.KindFor(ext, contentType)

	bitmap, err := scanning.Normalize(data, kind)
	if err != nil {
		logger.Warn("Failed to decode upload",
			"content_type", contentType,
			"kind", kind.String(),
			"file_size", len(data),
			"error", err,
		)
		return nil, fmt.Errorf("normalizing %s: %w", kind, err)
	}

	text, err := s.recognize(ctx, bitmap)
	if err != nil {
		logger.Error("Failed to recognize receipt text",
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		return nil, fmt.Errorf("%w: %w", scanning.ErrRecognitionFailed, err)
	}

	fields, err := scanning.ExtractFields(text, now)
	if err != nil {
		logger.Warn("No amount in recognized text", "text_length", len(text))
		return nil, err
	}

	receipt, err := s.db.CreateReceipt(fields.Vendor, NewDate(fields.Date), fields.Amount, strings.TrimSpace(category))
	if err != nil {
		return nil, fmt.Errorf("saving receipt to database: %w", err)
	}

	logger.Info("Receipt processed",
		"id", receipt.ID,
		"vendor", receipt.Vendor,
		"amount", receipt.Amount.String(),
		"date", receipt.Date.String(),
	)
	return receipt, nil
}

// recognize calls the recognizer under the configured timeout
func (s *Service) recognize(ctx context.Context, bitmap *image.Gray) (string, error) {
	if s.recognizeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.recognizeTimeout)
		defer cancel()
	}
	return s.recognizer.Recognize(ctx, bitmap)
}

// GetReceipt retrieves a receipt by ID
func (s *Service) GetReceipt(id string) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return receipt, nil
}

// ListReceipts returns all receipts
func (s *Service) ListReceipts() ([]*Receipt, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	return receipts, nil
}

// SearchReceipts returns the receipts matching filter
func (s *Service) SearchReceipts(filter Filter) ([]*Receipt, error) {
	receipts, err := s.db.SearchReceipts(filter)
	if err != nil {
		return nil, fmt.Errorf("searching receipts: %w", err)
	}
	return receipts, nil
}

// Stats summarizes all stored receipts
func (s *Service) Stats(topVendors int) (*Stats, error) {
	receipts, err := s.ListReceipts()
	if err != nil {
		return nil, err
	}
	return ComputeStats(receipts, topVendors), nil
}

package scanning

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"  // Register GIF decoder for mislabelled uploads
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// ContentKind is the declared family of an upload
type ContentKind int

const (
	// KindImage is a single raster image (JPEG, PNG, HEIC)
	KindImage ContentKind = iota
	// KindDocument is a paginated document; only its first page is analyzed
	KindDocument
)

func (k ContentKind) String() string {
	if k == KindDocument {
		return "document"
	}
	return "image"
}

// KindFor picks the content kind from the declared MIME type, falling back
// to the file extension when the type is missing or generic.
func KindFor(ext, contentType string) ContentKind {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "application/pdf" {
		return KindDocument
	}
	if (mimeType == "" || mimeType == "application/octet-stream") && strings.EqualFold(ext, ".pdf") {
		return KindDocument
	}
	return KindImage
}

// Normalize converts uploaded bytes into the single bitmap handed to the
// recognizer: upright according to EXIF orientation and reduced to one
// intensity channel. Documents contribute their first page only.
func Normalize(data []byte, kind ContentKind) (*image.Gray, error) {
	var (
		img image.Image
		err error
	)
	switch kind {
	case KindDocument:
		img, err = renderFirstPage(data)
	default:
		img, err = decodeImage(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadableInput, err)
	}
	return toGray(img), nil
}

// renderFirstPage renders page 0 of a PDF; remaining pages are ignored
func renderFirstPage(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() < 1 {
		return nil, fmt.Errorf("PDF has no pages")
	}

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// decodeImage decodes a raster image, applying EXIF orientation.
func decodeImage(imageData []byte) (image.Image, error) {
	if len(imageData) == 0 {
		return nil, fmt.Errorf("empty image")
	}

	// iPhones label HEIC captures as JPEG often enough that we sniff the bytes
	if isHEICFormat(imageData) {
		img, err := heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, err := imaging.Decode(bytes.NewReader(imageData), imaging.AutoOrientation(true))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") {
			return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, HEIC, PDF. Error: %w", err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// toGray copies img into a single-channel bitmap anchored at the origin
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// isHEICFormat checks if the image data is in HEIC/HEIF format
// HEIC files carry an ftyp box at offset 4 with a HEIF-family brand
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

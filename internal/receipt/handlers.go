package receipt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/receipt-analyzer/internal/scanning"
)

// maxUploadSize bounds multipart uploads (high-resolution phone photos)
const maxUploadSize = int64(50 << 20)

// defaultTopVendors is the number of vendors reported by the stats endpoint
const defaultTopVendors = 5

// errorResponse is the body of every failed API request
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// uploadResponse is returned after a receipt has been processed
type uploadResponse struct {
	ID     string `json:"id"`
	Vendor string `json:"vendor"`
	Amount string `json:"amount"`
	Date   string `json:"date"`
}

// writeJSON writes v as a JSON response with the given status
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		LoggerFromContext(r.Context()).Error("Error encoding response", "error", err)
	}
}

// writeError writes an error body with a machine-readable code
func writeError(w http.ResponseWriter, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: message, Code: code})
}

// classifyError maps a pipeline error to an HTTP status and error code.
// Client errors and recognizer failures are kept apart so callers can
// tell a bad upload from an unavailable OCR engine.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUnsupportedExtension):
		return http.StatusBadRequest, "unsupported_extension"
	case errors.Is(err, scanning.ErrUnreadableInput):
		return http.StatusBadRequest, "unreadable_input"
	case errors.Is(err, scanning.ErrAmountUnresolved):
		return http.StatusUnprocessableEntity, "amount_unresolved"
	case errors.Is(err, scanning.ErrRecognitionFailed) && errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "recognition_timeout"
	case errors.Is(err, scanning.ErrRecognitionFailed):
		return http.StatusBadGateway, "recognition_failed"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// contentTypeFor guesses the upload content type from its extension
func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// handleUploadReceipt runs the extraction pipeline over an uploaded file
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	logger := LoggerFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		logger.Warn("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, "File is too large. Maximum size is 50MB.", "too_large", http.StatusRequestEntityTooLarge)
			return
		}
		writeError(w, "Error parsing form", "bad_request", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		logger.Warn("Error getting file from form", "error", err)
		writeError(w, "No file was provided in the \"file\" field", "bad_request", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		logger.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, "Error reading file", "internal", http.StatusInternalServerError)
		return
	}

	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType == "" {
		contentType = contentTypeFor(header.Filename)
	}

	receipt, err := s.service.ProcessReceipt(r.Context(), header.Filename, data, contentType, r.FormValue("category"))
	if err != nil {
		status, code := classifyError(err)
		logger.Error("Error processing receipt", "filename", header.Filename, "status", status, "error", err)
		writeError(w, err.Error(), code, status)
		return
	}

	writeJSON(w, r, http.StatusCreated, uploadResponse{
		ID:     receipt.ID,
		Vendor: receipt.Vendor,
		Amount: receipt.Amount.StringFixed(2),
		Date:   receipt.Date.String(),
	})
}

// handleListReceipts returns all receipts
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.service.ListReceipts()
	if err != nil {
		LoggerFromContext(r.Context()).Error("Error listing receipts", "error", err)
		writeError(w, err.Error(), "internal", http.StatusInternalServerError)
		return
	}

	// Ensure we always return an array, not nil
	if receipts == nil {
		receipts = []*Receipt{}
	}
	writeJSON(w, r, http.StatusOK, receipts)
}

// handleSearchReceipts returns the receipts matching the query criteria
func (s *Server) handleSearchReceipts(w http.ResponseWriter, r *http.Request) {
	filter, err := FilterFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, err.Error(), "bad_request", http.StatusBadRequest)
		return
	}

	receipts, err := s.service.SearchReceipts(filter)
	if err != nil {
		LoggerFromContext(r.Context()).Error("Error searching receipts", "error", err)
		writeError(w, err.Error(), "internal", http.StatusInternalServerError)
		return
	}

	if receipts == nil {
		receipts = []*Receipt{}
	}
	writeJSON(w, r, http.StatusOK, receipts)
}

// handleGetReceipt returns a single receipt
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.GetReceipt(r.PathValue("id"))
	if err != nil {
		status, code := classifyError(err)
		if status != http.StatusNotFound {
			LoggerFromContext(r.Context()).Error("Error getting receipt", "error", err)
		}
		writeError(w, err.Error(), code, status)
		return
	}
	writeJSON(w, r, http.StatusOK, receipt)
}

// handleStats returns spending analytics over all receipts
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(defaultTopVendors)
	if err != nil {
		LoggerFromContext(r.Context()).Error("Error computing stats", "error", err)
		writeError(w, err.Error(), "internal", http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

// handleExportReceipts returns all receipts as a CSV attachment
func (s *Server) handleExportReceipts(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.service.ExportCSV(&buf); err != nil {
		LoggerFromContext(r.Context()).Error("Error exporting receipts", "error", err)
		writeError(w, err.Error(), "internal", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="receipts.csv"`)
	w.Write(buf.Bytes())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

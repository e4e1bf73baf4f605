// Package ocr turns page files (scans, photos, PDFs) into text lines using
// Google Cloud Vision or a Google Document AI OCR processor.
//
// Credentials are resolved in this order:
//   - GOOGLE_CREDENTIALS: inline service account JSON
//   - GOOGLE_APPLICATION_CREDENTIALS: path to a service account JSON file
//   - application default credentials
//
// Synchronous processing limits:
//   - Maximum file size: 20MB
//   - Maximum pages per PDF: 5 (Vision)
//   - Supported formats: PDF, JPEG, PNG
package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/api/option"

	"leasecheck/pkg/models"
)

const (
	// MaxFileSizeBytes is the maximum file size for synchronous processing (20MB)
	MaxFileSizeBytes = 20 * 1024 * 1024

	// MaxPagesSync is the maximum number of pages for synchronous processing
	MaxPagesSync = 5
)

// Provider names an OCR backend.
type Provider string

const (
	ProviderVision     Provider = "vision"
	ProviderDocumentAI Provider = "documentai"
)

// Recognizer extracts the text lines of one page file.
type Recognizer interface {
	Recognize(ctx context.Context, path string) ([]models.Line, error)
}

// Config selects and configures a backend.
type Config struct {
	Provider Provider

	CredentialsJSON string
	CredentialsFile string

	// Document AI only.
	ProjectID   string
	Location    string
	ProcessorID string
}

// New creates the configured recognizer. The returned close function
// releases the underlying client.
func New(ctx context.Context, cfg Config) (Recognizer, func() error, error) {
	switch cfg.Provider {
	case "", ProviderVision:
		r, err := NewVisionRecognizer(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	case ProviderDocumentAI:
		r, err := NewDocumentAIRecognizer(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	default:
		return nil, nil, WrapOCRError("New", ErrInvalidConfiguration, fmt.Sprintf("unknown provider %q", cfg.Provider))
	}
}

// credentialOptions returns the client option for the first configured
// credential source, or nil to use default credentials.
func credentialOptions(cfg Config) []option.ClientOption {
	switch {
	case cfg.CredentialsJSON != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(cfg.CredentialsJSON))}
	case cfg.CredentialsFile != "":
		return []option.ClientOption{option.WithCredentialsFile(cfg.CredentialsFile)}
	default:
		return nil
	}
}

// MimeType maps a page file extension onto the MIME type sent to the backend.
func MimeType(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf", nil
	case ".jpg", ".jpeg":
		return "image/jpeg", nil
	case ".png":
		return "image/png", nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// readPage loads and checks a page file.
func readPage(op, path string) ([]byte, string, error) {
	mime, err := MimeType(path)
	if err != nil {
		return nil, "", WrapOCRError(op, err, filepath.Base(path))
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, "", WrapOCRError(op, err, "failed to stat page file")
	}
	if info.Size() > MaxFileSizeBytes {
		return nil, "", WrapOCRError(op, ErrFileTooLarge, fmt.Sprintf("file size: %d bytes", info.Size()))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", WrapOCRError(op, err, "failed to read page file")
	}

	if mime == "application/pdf" && (len(data) < 4 || string(data[:4]) != "%PDF") {
		return nil, "", WrapOCRError(op, ErrInvalidPDF, "missing PDF header")
	}
	return data, mime, nil
}

// JoinLines joins line texts with newlines, skipping blank lines.
func JoinLines(lines []models.Line) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		if t := strings.TrimSpace(l.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"leasecheck/internal/logger"
	"leasecheck/pkg/models"
)

// DocumentAIRecognizer implements Recognizer using a Document AI OCR processor.
type DocumentAIRecognizer struct {
	client  *documentai.DocumentProcessorClient
	config  Config
	timeout time.Duration
	log     zerolog.Logger
}

// NewDocumentAIRecognizer creates a Document AI client on the regional
// endpoint of cfg.Location. ProjectID and ProcessorID are required.
func NewDocumentAIRecognizer(ctx context.Context, cfg Config) (*DocumentAIRecognizer, error) {
	const op = "NewDocumentAIRecognizer"

	if cfg.ProjectID == "" {
		return nil, WrapOCRError(op, ErrInvalidConfiguration, "GOOGLE_CLOUD_PROJECT is required")
	}
	if cfg.ProcessorID == "" {
		return nil, WrapOCRError(op, ErrInvalidConfiguration, "DOCUMENT_AI_PROCESSOR_ID is required")
	}
	if cfg.Location == "" {
		cfg.Location = "us"
	}

	creds := credentialOptions(cfg)
	opts := append([]option.ClientOption{
		option.WithEndpoint(fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)),
	}, creds...)

	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		if len(creds) == 0 {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapOCRError(op, err, fmt.Sprintf("failed to create Document AI client for location: %s", cfg.Location))
	}

	return NewDocumentAIRecognizerWithClient(cfg, client), nil
}

// NewDocumentAIRecognizerWithClient wraps an existing client.
func NewDocumentAIRecognizerWithClient(cfg Config, client *documentai.DocumentProcessorClient) *DocumentAIRecognizer {
	if cfg.Location == "" {
		cfg.Location = "us"
	}
	return &DocumentAIRecognizer{
		client:  client,
		config:  cfg,
		timeout: 60 * time.Second,
		log:     logger.WithComponent("document-ai"),
	}
}

// ProcessorName returns the full resource name of the configured processor.
func (d *DocumentAIRecognizer) ProcessorName() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		d.config.ProjectID, d.config.Location, d.config.ProcessorID)
}

// Recognize implements Recognizer.
func (d *DocumentAIRecognizer) Recognize(ctx context.Context, path string) ([]models.Line, error) {
	const op = "Recognize"
	start := time.Now()

	data, mime, err := readPage(op, path)
	if err != nil {
		return nil, err
	}

	processCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.client.ProcessDocument(processCtx, &documentaipb.ProcessRequest{
		Name: d.ProcessorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: mime,
			},
		},
	})
	if err != nil {
		return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Document AI call failed: %v", err))
	}
	if resp.GetDocument() == nil {
		return nil, WrapOCRError(op, ErrOCRFailed, "no document in response")
	}

	lines := documentLines(resp.GetDocument())

	d.log.Debug().
		Str("mime_type", mime).
		Int("pages", len(resp.GetDocument().GetPages())).
		Int("lines", len(lines)).
		Dur("duration", time.Since(start)).
		Msg("Document AI OCR completed")

	return lines, nil
}

// documentLines resolves every page line's text anchor against the document
// text. Anchor indices count code points.
func documentLines(doc *documentaipb.Document) []models.Line {
	text := []rune(doc.GetText())
	var lines []models.Line

	for _, page := range doc.GetPages() {
		for _, line := range page.GetLines() {
			layout := line.GetLayout()
			var b strings.Builder
			for _, seg := range layout.GetTextAnchor().GetTextSegments() {
				start, end := seg.GetStartIndex(), seg.GetEndIndex()
				if start < 0 || end > int64(len(text)) || start >= end {
					continue
				}
				b.WriteString(string(text[start:end]))
			}
			if t := strings.TrimSpace(b.String()); t != "" {
				lines = append(lines, models.Line{Text: t, Confidence: layout.GetConfidence()})
			}
		}
	}
	return lines
}

// Close closes the underlying Document AI client.
func (d *DocumentAIRecognizer) Close() error {
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}

package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/rs/zerolog"

	"leasecheck/internal/logger"
	"leasecheck/pkg/models"
)

// VisionRecognizer implements Recognizer using Google Cloud Vision document
// text detection.
type VisionRecognizer struct {
	client *vision.ImageAnnotatorClient
	log    zerolog.Logger
}

// NewVisionRecognizer creates a Vision client from the configured credentials.
func NewVisionRecognizer(ctx context.Context, cfg Config) (*VisionRecognizer, error) {
	const op = "NewVisionRecognizer"

	opts := credentialOptions(cfg)
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		if len(opts) == 0 {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapOCRError(op, err, "failed to create Vision client")
	}

	return NewVisionRecognizerWithClient(client), nil
}

// NewVisionRecognizerWithClient wraps an existing client.
func NewVisionRecognizerWithClient(client *vision.ImageAnnotatorClient) *VisionRecognizer {
	return &VisionRecognizer{
		client: client,
		log:    logger.WithComponent("vision-ocr"),
	}
}

// Recognize implements Recognizer. Images go through BatchAnnotateImages,
// PDFs through BatchAnnotateFiles.
func (v *VisionRecognizer) Recognize(ctx context.Context, path string) ([]models.Line, error) {
	const op = "Recognize"
	start := time.Now()

	data, mime, err := readPage(op, path)
	if err != nil {
		return nil, err
	}

	var annotations []*visionpb.AnnotateImageResponse
	if mime == "application/pdf" {
		annotations, err = v.annotateFile(ctx, data, mime)
	} else {
		annotations, err = v.annotateImage(ctx, data)
	}
	if err != nil {
		return nil, err
	}

	var lines []models.Line
	for i, page := range annotations {
		if page.GetError() != nil {
			return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("page %d: %s", i+1, page.GetError().GetMessage()))
		}
		lines = append(lines, visionLines(page.GetFullTextAnnotation())...)
	}

	v.log.Debug().
		Str("mime_type", mime).
		Int("pages", len(annotations)).
		Int("lines", len(lines)).
		Dur("duration", time.Since(start)).
		Msg("Vision OCR completed")

	return lines, nil
}

func (v *VisionRecognizer) annotateImage(ctx context.Context, data []byte) ([]*visionpb.AnnotateImageResponse, error) {
	const op = "annotateImage"

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: data},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	}

	resp, err := v.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API call failed: %v", err))
	}
	if len(resp.GetResponses()) == 0 {
		return nil, WrapOCRError(op, ErrOCRFailed, "no response from Vision API")
	}
	return resp.GetResponses(), nil
}

func (v *VisionRecognizer) annotateFile(ctx context.Context, data []byte, mime string) ([]*visionpb.AnnotateImageResponse, error) {
	const op = "annotateFile"

	req := &visionpb.BatchAnnotateFilesRequest{
		Requests: []*visionpb.AnnotateFileRequest{
			{
				InputConfig: &visionpb.InputConfig{
					Content:  data,
					MimeType: mime,
				},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	}

	resp, err := v.client.BatchAnnotateFiles(ctx, req)
	if err != nil {
		return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API call failed: %v", err))
	}
	if len(resp.GetResponses()) == 0 {
		return nil, WrapOCRError(op, ErrOCRFailed, "no response from Vision API")
	}

	fileResp := resp.GetResponses()[0]
	if fileResp.GetError() != nil {
		return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API error: %s", fileResp.GetError().GetMessage()))
	}
	if fileResp.GetTotalPages() > MaxPagesSync {
		return nil, WrapOCRError(op, ErrTooManyPages, fmt.Sprintf("document has %d pages", fileResp.GetTotalPages()))
	}
	return fileResp.GetResponses(), nil
}

// visionLines rebuilds text lines from the symbol layout. A line ends at an
// end-of-line or line-break symbol; its confidence is the mean confidence of
// the words that contributed to it.
func visionLines(annotation *visionpb.TextAnnotation) []models.Line {
	var lines []models.Line
	var text strings.Builder
	var confSum float32
	var words int

	flush := func() {
		t := strings.TrimSpace(text.String())
		if t != "" {
			var conf float32
			if words > 0 {
				conf = confSum / float32(words)
			}
			lines = append(lines, models.Line{Text: t, Confidence: conf})
		}
		text.Reset()
		confSum, words = 0, 0
	}

	for _, page := range annotation.GetPages() {
		for _, block := range page.GetBlocks() {
			for _, paragraph := range block.GetParagraphs() {
				for _, word := range paragraph.GetWords() {
					confSum += word.GetConfidence()
					words++
					for _, symbol := range word.GetSymbols() {
						text.WriteString(symbol.GetText())
						switch symbol.GetProperty().GetDetectedBreak().GetType() {
						case visionpb.TextAnnotation_DetectedBreak_SPACE,
							visionpb.TextAnnotation_DetectedBreak_SURE_SPACE:
							text.WriteByte(' ')
						case visionpb.TextAnnotation_DetectedBreak_EOL_SURE_SPACE,
							visionpb.TextAnnotation_DetectedBreak_LINE_BREAK:
							flush()
						case visionpb.TextAnnotation_DetectedBreak_HYPHEN:
							text.WriteByte('-')
							flush()
						}
					}
				}
			}
			flush()
		}
	}
	flush()
	return lines
}

// Close closes the underlying Vision client.
func (v *VisionRecognizer) Close() error {
	if v.client != nil {
		return v.client.Close()
	}
	return nil
}

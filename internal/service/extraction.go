package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/helixcare/clinidex/internal/domain"
)

const (
	// visionEnhancedHeader labels vision transcription appended after a
	// sparse OCR pass so both outputs stay attributable.
	visionEnhancedHeader = "[Vision Model Enhanced Extraction]"

	// pageSeparator joins per-page PDF text in page order.
	pageSeparator = "\n\n"

	transcriptionPrompt = "Transcribe all text visible in this medical document image, " +
		"including printed text, handwriting, tables, labels, and numeric values. " +
		"Preserve the layout and reading order as closely as possible. " +
		"Return only the transcribed content."
)

// ObjectStore reads uploaded document bytes from blob storage.
type ObjectStore interface {
	DownloadObject(ctx context.Context, key string) ([]byte, error)
}

// OCRClient runs structured text detection over a scanned image.
type OCRClient interface {
	ExtractText(ctx context.Context, document []byte) (string, error)
}

// VisionClient runs a vision-capable generation call over image bytes.
type VisionClient interface {
	AnalyzeImage(ctx context.Context, image []byte, mimeType, prompt string) (string, error)
}

// ExtractionConfig controls the OCR quality heuristic and the vision pass.
type ExtractionConfig struct {
	// MinTextLength is the OCR output length below which the vision
	// fallback is triggered.
	MinTextLength int
	// HighFidelity always runs the vision pass for images, even when
	// OCR output clears the threshold.
	HighFidelity bool
}

// ExtractionService turns an uploaded document into raw text.
type ExtractionService struct {
	store  ObjectStore
	ocr    OCRClient
	vision VisionClient
	cfg    ExtractionConfig
}

// NewExtractionService creates a new ExtractionService instance
func NewExtractionService(store ObjectStore, ocr OCRClient, vision VisionClient, cfg ExtractionConfig) *ExtractionService {
	if cfg.MinTextLength <= 0 {
		cfg.MinTextLength = 50
	}
	return &ExtractionService{
		store:  store,
		ocr:    ocr,
		vision: vision,
		cfg:    cfg,
	}
}

// ExtractText downloads the document and extracts its raw text according
// to the declared media type.
func (s *ExtractionService) ExtractText(ctx context.Context, doc *domain.Document) (string, error) {
	data, err := s.store.DownloadObject(ctx, doc.StorageKey)
	if err != nil {
		return "", fmt.Errorf("failed to download document %s: %w", doc.ID, err)
	}

	switch {
	case doc.MediaType == "application/pdf":
		return s.extractPDF(data)
	case doc.IsImage():
		return s.extractImage(ctx, data, doc.MediaType)
	case doc.MediaType == "text/plain":
		return string(data), nil
	default:
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedMediaType, doc.MediaType)
	}
}

// extractPDF pulls text per page and joins pages in order.
func (s *ExtractionService) extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to extract text from page %d: %w", i, err)
		}
		pages = append(pages, text)
	}

	return strings.Join(pages, pageSeparator), nil
}

// extractImage runs OCR first, then a vision transcription either as a
// fallback when OCR output is too sparse or unconditionally in
// high-fidelity mode. Both outputs are kept when both exist. An OCR
// transport failure is survivable as long as the vision pass yields
// text; a vision failure after a usable OCR pass keeps the OCR text.
func (s *ExtractionService) extractImage(ctx context.Context, data []byte, mediaType string) (string, error) {
	ocrText, ocrErr := s.ocr.ExtractText(ctx, data)
	if ocrErr != nil {
		ocrText = ""
	}
	ocrText = strings.TrimSpace(ocrText)

	sparse := len(ocrText) < s.cfg.MinTextLength
	if ocrErr == nil && !sparse && !s.cfg.HighFidelity {
		return ocrText, nil
	}

	visionText, visionErr := s.vision.AnalyzeImage(ctx, data, mediaType, transcriptionPrompt)
	if visionErr != nil {
		if ocrText != "" {
			return ocrText, nil
		}
		if ocrErr != nil {
			return "", fmt.Errorf("OCR extraction failed: %w", ocrErr)
		}
		return "", fmt.Errorf("vision transcription failed: %w", visionErr)
	}
	visionText = strings.TrimSpace(visionText)

	if ocrText == "" {
		if visionText == "" && ocrErr != nil {
			return "", fmt.Errorf("OCR extraction failed: %w", ocrErr)
		}
		return visionText, nil
	}
	if visionText == "" {
		return ocrText, nil
	}

	return ocrText + "\n\n" + visionEnhancedHeader + "\n" + visionText, nil
}

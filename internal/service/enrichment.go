package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/helixcare/clinidex/internal/domain"
)

const (
	visualAnalysisPrompt = "Analyze this medical document image. Identify the document " +
		"category, describe any abnormal findings, note visible risk indicators, and " +
		"list all measurements and values you can read. Be specific and medically " +
		"relevant rather than giving a generic description."

	riskMarkerSystemPrompt = "You are a clinical information extraction assistant. " +
		"You reply with a single JSON object and nothing else."

	riskMarkerPromptTemplate = "Extract structured findings from the following medical " +
		"document text. Return a JSON object with these keys, each holding an array of " +
		"short finding strings (omit keys with no findings): lumps, nipple_discharge, " +
		"skin_changes, family_history, genetic_mutations, abnormal_results, " +
		"tumor_markers.\n\nDocument text:\n%s"
)

// TextGenerator runs a plain text-generation call.
type TextGenerator interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// EnrichmentConfig controls the enrichment stage.
type EnrichmentConfig struct {
	// EnableVisionAnalysis gates the visual-narrative pass for images.
	EnableVisionAnalysis bool
}

// EnrichmentService produces the visual analysis and risk markers for a
// document after its raw text has been extracted.
type EnrichmentService struct {
	store     ObjectStore
	vision    VisionClient
	generator TextGenerator
	cfg       EnrichmentConfig
}

// NewEnrichmentService creates a new EnrichmentService instance
func NewEnrichmentService(store ObjectStore, vision VisionClient, generator TextGenerator, cfg EnrichmentConfig) *EnrichmentService {
	return &EnrichmentService{
		store:     store,
		vision:    vision,
		generator: generator,
		cfg:       cfg,
	}
}

// Enrich runs the visual narrative and risk-marker extraction for the
// document. Empty findings are not an error; transport failures are.
func (s *EnrichmentService) Enrich(ctx context.Context, doc *domain.Document, rawText string) (*domain.EnrichedData, error) {
	enriched := &domain.EnrichedData{}

	if doc.IsImage() && s.cfg.EnableVisionAnalysis {
		analysis, err := s.analyzeImage(ctx, doc)
		if err != nil {
			return nil, err
		}
		if analysis != "" {
			enriched.VisualAnalysis = &analysis
		}
	}

	if strings.TrimSpace(rawText) != "" {
		markers, err := s.extractRiskMarkers(ctx, rawText)
		if err != nil {
			return nil, err
		}
		enriched.RiskMarkers = markers
	}

	return enriched, nil
}

func (s *EnrichmentService) analyzeImage(ctx context.Context, doc *domain.Document) (string, error) {
	data, err := s.store.DownloadObject(ctx, doc.StorageKey)
	if err != nil {
		return "", fmt.Errorf("failed to download document %s: %w", doc.ID, err)
	}

	analysis, err := s.vision.AnalyzeImage(ctx, data, doc.MediaType, visualAnalysisPrompt)
	if err != nil {
		return "", fmt.Errorf("visual analysis failed: %w", err)
	}

	return strings.TrimSpace(analysis), nil
}

func (s *EnrichmentService) extractRiskMarkers(ctx context.Context, rawText string) (domain.RiskMarkers, error) {
	prompt := fmt.Sprintf(riskMarkerPromptTemplate, rawText)

	reply, err := s.generator.Complete(ctx, riskMarkerSystemPrompt, prompt)
	if err != nil {
		return domain.RiskMarkers{}, fmt.Errorf("risk marker extraction failed: %w", err)
	}

	var markers domain.RiskMarkers
	cleaned := stripCodeFence(reply)
	if jsonErr := json.Unmarshal([]byte(cleaned), &markers); jsonErr != nil {
		// Keep the raw reply instead of discarding an unparseable answer.
		return domain.RiskMarkers{RawAnalysis: strings.TrimSpace(reply)}, nil
	}

	return markers, nil
}

// stripCodeFence removes a surrounding markdown code fence if the model
// wrapped its JSON reply in one.
func stripCodeFence(reply string) string {
	trimmed := strings.TrimSpace(reply)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
